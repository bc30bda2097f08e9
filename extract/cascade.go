package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Budget is a cooperative wall-clock allowance shared by every strategy of one
// cascade run. Strategies check it before starting and between pages; a single
// library call is never interrupted.
type Budget struct {
	deadline time.Time
	now      func() time.Time
}

// NewBudget starts a budget of d from now.
func NewBudget(d time.Duration) *Budget {
	return &Budget{deadline: time.Now().Add(d), now: time.Now}
}

// Remaining returns the time left, never negative.
func (b *Budget) Remaining() time.Duration {
	if b == nil {
		return time.Hour
	}
	left := b.deadline.Sub(b.now())
	if left < 0 {
		return 0
	}
	return left
}

// Exhausted reports whether the budget has run out.
func (b *Budget) Exhausted() bool {
	return b != nil && b.Remaining() <= 0
}

// Strategy is one independent way of getting text out of a file.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, path string, budget *Budget) (string, error)
}

// Attempt is the diagnostic record of one strategy run.
type Attempt struct {
	Strategy string
	OK       bool
	Chars    int
	Elapsed  time.Duration
	Err      error
}

func (a Attempt) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%s: ok=%t chars=%d elapsed=%s err=%v", a.Strategy, a.OK, a.Chars, a.Elapsed, a.Err)
	}
	return fmt.Sprintf("%s: ok=%t chars=%d elapsed=%s", a.Strategy, a.OK, a.Chars, a.Elapsed)
}

// ErrBudgetExhausted marks strategies skipped because the budget ran out.
var ErrBudgetExhausted = errors.New("time budget exhausted")

// Cascade runs strategies in order and stops at the first non-empty result.
type Cascade struct {
	Strategies []Strategy
}

// Run executes the cascade. Panics inside a strategy are recovered and
// recorded as that strategy's error; the next strategy is still tried.
func (c *Cascade) Run(ctx context.Context, path string, budget *Budget) (string, []Attempt) {
	attempts := make([]Attempt, 0, len(c.Strategies))

	for _, s := range c.Strategies {
		if budget.Exhausted() || ctx.Err() != nil {
			attempts = append(attempts, Attempt{Strategy: s.Name(), Err: ErrBudgetExhausted})
			continue
		}

		start := time.Now()
		text, err := runIsolated(ctx, s, path, budget)
		text = strings.TrimSpace(text)
		a := Attempt{
			Strategy: s.Name(),
			OK:       text != "",
			Chars:    len([]rune(text)),
			Elapsed:  time.Since(start),
			Err:      err,
		}
		attempts = append(attempts, a)

		if text != "" {
			return text, attempts
		}
	}

	return "", attempts
}

func runIsolated(ctx context.Context, s Strategy, path string, budget *Budget) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Attempt(ctx, path, budget)
}
