//go:build !unix

package index

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var (
	locksMu sync.Mutex
	locks   = map[string]bool{}
)

// acquireLock serializes builds within this process on platforms without flock.
func acquireLock(ctx context.Context, path string) (func(), error) {
	for {
		locksMu.Lock()
		if !locks[path] {
			locks[path] = true
			locksMu.Unlock()
			break
		}
		locksMu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrBuildLocked, path)
		case <-time.After(lockPollInterval):
		}
	}

	return func() {
		locksMu.Lock()
		delete(locks, path)
		locksMu.Unlock()
	}, nil
}
