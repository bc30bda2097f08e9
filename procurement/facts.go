// Package procurement pulls structured facts out of procurement document
// text: prices, dates, taxpayer numbers (INN) and numbered item lists.
package procurement

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"procdocs/extract"
	"procdocs/index"
)

const maxItemRunes = 200

var (
	// 1 234 567,89 руб. / 1500 ₽ / 12.50 р.
	priceRegex = regexp.MustCompile(`(?i)(?:^|[^\d.,])(\d{1,3}(?:[ \x{00A0}]\d{3})+|\d+)(?:[.,](\d{1,2}))?\s*(?:руб(?:лей|ля|ль)?\.?|₽|р\.)`)

	numericDateRegex = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)

	// «15» марта 2024
	namedDateRegex = regexp.MustCompile(`(?i)(?:^|[^\d])«?(\d{1,2})»?\s+(января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря)\s+(\d{4})`)

	innRegex = regexp.MustCompile(`\b(\d{10}|\d{12})\b`)

	itemMarkerRegex = regexp.MustCompile(`(?:^|\s)(\d{1,3})[.)]\s`)
)

var monthsGenitive = map[string]time.Month{
	"января": time.January, "февраля": time.February, "марта": time.March,
	"апреля": time.April, "мая": time.May, "июня": time.June,
	"июля": time.July, "августа": time.August, "сентября": time.September,
	"октября": time.October, "ноября": time.November, "декабря": time.December,
}

// Price is a ruble amount found in text. Kopecks holds the whole amount in
// kopecks.
type Price struct {
	Raw      string `json:"raw"`
	Kopecks  int64  `json:"kopecks"`
	Position int    `json:"position"`
}

// Rubles returns the amount as a float for display.
func (p Price) Rubles() float64 {
	return float64(p.Kopecks) / 100
}

// Date is a calendar date found in text.
type Date struct {
	Raw      string    `json:"raw"`
	Date     time.Time `json:"date"`
	Position int       `json:"position"`
}

// Item is one line of a numbered list (1. ..., 2) ...).
type Item struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Facts holds everything extracted from one text. Dates and INNs are
// de-duplicated; prices keep every occurrence.
type Facts struct {
	Prices []Price  `json:"prices,omitempty"`
	Dates  []Date   `json:"dates,omitempty"`
	INNs   []string `json:"inns,omitempty"`
	Items  []Item   `json:"items,omitempty"`
}

// Empty reports whether nothing was found.
func (f Facts) Empty() bool {
	return len(f.Prices) == 0 && len(f.Dates) == 0 && len(f.INNs) == 0 && len(f.Items) == 0
}

// MaxPrice returns the largest price, usually the contract total.
func (f Facts) MaxPrice() (Price, bool) {
	if len(f.Prices) == 0 {
		return Price{}, false
	}
	best := f.Prices[0]
	for _, p := range f.Prices[1:] {
		if p.Kopecks > best.Kopecks {
			best = p
		}
	}
	return best, true
}

// Extract runs every extractor over text.
func Extract(text string) Facts {
	return Facts{
		Prices: extractPrices(text),
		Dates:  extractDates(text),
		INNs:   extractINNs(text),
		Items:  extractItems(text),
	}
}

// EntryFacts pairs an index entry with its facts.
type EntryFacts struct {
	Title  string `json:"title"`
	Format string `json:"format"`
	Facts  Facts  `json:"facts"`
}

// FromEntries extracts facts from every entry that has real text and at
// least one fact, keeping entry order.
func FromEntries(entries []index.Entry) []EntryFacts {
	var out []EntryFacts
	for _, e := range entries {
		if e.Body == "" || extract.IsDiagnostic(e.Body) {
			continue
		}
		f := Extract(e.Body)
		if f.Empty() {
			continue
		}
		out = append(out, EntryFacts{Title: e.Title, Format: e.Format, Facts: f})
	}
	return out
}

func extractPrices(text string) []Price {
	var prices []Price
	for _, loc := range priceRegex.FindAllStringSubmatchIndex(text, -1) {
		whole := strings.NewReplacer(" ", "", "\u00a0", "").Replace(text[loc[2]:loc[3]])
		rubles, err := strconv.ParseInt(whole, 10, 64)
		if err != nil || rubles > (1<<62)/100 {
			continue
		}
		var kopecks int64
		if loc[4] >= 0 {
			frac := text[loc[4]:loc[5]]
			if len(frac) == 1 {
				frac += "0"
			}
			kopecks, _ = strconv.ParseInt(frac, 10, 64)
		}
		prices = append(prices, Price{
			Raw:      strings.TrimSpace(text[loc[2]:loc[1]]),
			Kopecks:  rubles*100 + kopecks,
			Position: runeOffset(text, loc[2]),
		})
	}
	return prices
}

func extractDates(text string) []Date {
	var dates []Date
	seen := make(map[time.Time]bool)

	add := func(day, month, year int, start, end int) {
		d, ok := calendarDate(day, month, year)
		if !ok || seen[d] {
			return
		}
		seen[d] = true
		dates = append(dates, Date{Raw: text[start:end], Date: d, Position: runeOffset(text, start)})
	}

	type hit struct {
		day, month, year int
		start, end       int
	}
	var hits []hit
	for _, loc := range numericDateRegex.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[loc[2]:loc[3]])
		month, _ := strconv.Atoi(text[loc[4]:loc[5]])
		year, _ := strconv.Atoi(text[loc[6]:loc[7]])
		hits = append(hits, hit{day, month, year, loc[0], loc[1]})
	}
	for _, loc := range namedDateRegex.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[loc[2]:loc[3]])
		month := monthsGenitive[strings.ToLower(text[loc[4]:loc[5]])]
		year, _ := strconv.Atoi(text[loc[6]:loc[7]])
		start := loc[2]
		if start > 0 && strings.HasSuffix(text[:start], "«") {
			start -= len("«")
		}
		hits = append(hits, hit{day, int(month), year, start, loc[1]})
	}

	// Report in text order regardless of which pattern found the date.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].start < hits[j-1].start; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	for _, h := range hits {
		add(h.day, h.month, h.year, h.start, h.end)
	}
	return dates
}

func calendarDate(day, month, year int) (time.Time, bool) {
	if year < 1990 || year > 2100 || month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}

func extractINNs(text string) []string {
	var inns []string
	seen := make(map[string]bool)
	for _, m := range innRegex.FindAllString(text, -1) {
		if seen[m] || !ValidINN(m) {
			continue
		}
		seen[m] = true
		inns = append(inns, m)
	}
	return inns
}

var (
	inn10Weights  = []int{2, 4, 10, 3, 5, 9, 4, 6, 8}
	inn12Weights1 = []int{7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
	inn12Weights2 = []int{3, 7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
)

// ValidINN checks the control digits of a 10-digit (organisation) or
// 12-digit (individual) taxpayer number.
func ValidINN(s string) bool {
	digits := make([]int, 0, len(s))
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
		digits = append(digits, int(r-'0'))
	}

	switch len(digits) {
	case 10:
		return checkDigit(digits, inn10Weights) == digits[9]
	case 12:
		return checkDigit(digits, inn12Weights1) == digits[10] &&
			checkDigit(digits, inn12Weights2) == digits[11]
	}
	return false
}

func checkDigit(digits, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}
	return sum % 11 % 10
}

// extractItems finds runs of numbered markers counting up from 1. A run needs
// at least two markers; a lone "1." is not a list.
func extractItems(text string) []Item {
	type marker struct{ num, start, end int }

	var items []Item
	var run []marker
	flush := func() {
		if len(run) >= 2 {
			for i, m := range run {
				stop := len(text)
				if i+1 < len(run) {
					stop = run[i+1].start
				}
				if t := itemText(text[m.end:stop]); t != "" {
					items = append(items, Item{Number: m.num, Text: t})
				}
			}
		}
		run = run[:0]
	}

	for _, loc := range itemMarkerRegex.FindAllStringSubmatchIndex(text, -1) {
		n, _ := strconv.Atoi(text[loc[2]:loc[3]])
		switch {
		case n == len(run)+1:
			run = append(run, marker{n, loc[0], loc[1]})
		case n == 1:
			flush()
			run = append(run, marker{n, loc[0], loc[1]})
		}
	}
	flush()
	return items
}

func itemText(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxItemRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxItemRunes]))
	}
	return s
}

func runeOffset(text string, byteOffset int) int {
	return utf8.RuneCountInString(text[:byteOffset])
}
