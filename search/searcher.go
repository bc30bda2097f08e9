// Package search locates keywords in indexed documents with exact and
// gap-tolerant matching and builds positional snippets.
package search

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"procdocs/index"
)

// Options controls a search.
type Options struct {
	Context            int  // snippet radius in characters
	ExcludeMode        bool // return entries containing none of the keywords
	GapMinLen          int  // shortest keyword that gets the gap-tolerant pass
	GapMaxLen          int  // longest keyword that gets the gap-tolerant pass
	MaxSnippetsPerTerm int  // cap used by Group
}

// DefaultOptions returns the standard search settings.
func DefaultOptions() Options {
	return Options{
		Context:            100,
		GapMinLen:          2,
		GapMaxLen:          8,
		MaxSnippetsPerTerm: 3,
	}
}

// Match is one keyword occurrence in one entry. Position and Length count
// characters (runes) of the entry body.
type Match struct {
	Title    string `json:"title"`
	Format   string `json:"format"`
	Source   string `json:"source"`
	Keyword  string `json:"keyword"`
	Position int    `json:"position"`
	Length   int    `json:"length"`
	Snippet  string `json:"snippet"`
}

// gapClass matches characters that OCR and PDF text layers insert between
// letters: whitespace, NBSP, soft hyphen, zero-width space, BOM and hyphen.
const gapClass = `[\s\x{00A0}\x{00AD}\x{200B}\x{FEFF}-]*`

// Searcher runs keyword searches. It is safe for concurrent use.
type Searcher struct {
	opts Options

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewSearcher creates a searcher. Non-positive gap bounds fall back to 2..8.
func NewSearcher(opts Options) *Searcher {
	if opts.GapMinLen <= 0 {
		opts.GapMinLen = 2
	}
	if opts.GapMaxLen <= 0 {
		opts.GapMaxLen = 8
	}
	if opts.Context < 0 {
		opts.Context = 0
	}
	return &Searcher{opts: opts, patterns: make(map[string]*regexp.Regexp)}
}

// Options returns the effective options.
func (s *Searcher) Options() Options {
	return s.opts
}

// Search finds every keyword in every entry. Matches are unique per
// (entry, keyword, position) and sorted by title, lower-cased keyword and
// position. In exclude mode one match with an empty keyword is returned for
// each entry that contains none of the keywords.
func (s *Searcher) Search(entries []index.Entry, keywords []string) []Match {
	keywords = uniqueKeywords(keywords)

	var matches []Match
	for _, e := range entries {
		body := []rune(e.Body)
		lower := lowerRunes(body)

		if s.opts.ExcludeMode {
			if !s.containsAny(e.Body, lower, keywords) {
				end := min(len(body), 2*s.opts.Context)
				matches = append(matches, Match{
					Title:   e.Title,
					Format:  e.Format,
					Source:  e.Source,
					Snippet: string(body[:end]),
				})
			}
			continue
		}

		for _, kw := range keywords {
			matches = append(matches, s.findKeyword(e, body, lower, kw)...)
		}
	}

	sortMatches(matches)
	return matches
}

// findKeyword runs both passes for one keyword in one entry and drops the
// gap-tolerant hits whose start position the exact pass already reported.
func (s *Searcher) findKeyword(e index.Entry, body, lower []rune, kw string) []Match {
	seen := make(map[int]bool)
	var out []Match

	add := func(pos, length int) {
		if seen[pos] {
			return
		}
		seen[pos] = true
		out = append(out, Match{
			Title:    e.Title,
			Format:   e.Format,
			Source:   e.Source,
			Keyword:  kw,
			Position: pos,
			Length:   length,
			Snippet:  snippet(body, pos, length, s.opts.Context),
		})
	}

	for _, pos := range exactPositions(lower, lowerRunes([]rune(kw))) {
		add(pos, utf8.RuneCountInString(kw))
	}
	if re := s.gapPattern(kw); re != nil {
		for _, loc := range gapPositions(re, e.Body) {
			add(loc[0], loc[1])
		}
	}
	return out
}

// containsAny reports whether any keyword occurs exactly or gap-tolerantly
func (s *Searcher) containsAny(text string, lower []rune, keywords []string) bool {
	for _, kw := range keywords {
		if len(exactPositions(lower, lowerRunes([]rune(kw)))) > 0 {
			return true
		}
		if re := s.gapPattern(kw); re != nil && re.MatchString(text) {
			return true
		}
	}
	return false
}

// gapPattern returns the compiled gap-tolerant pattern for kw, or nil when
// the keyword is outside the configured length range.
func (s *Searcher) gapPattern(kw string) *regexp.Regexp {
	n := utf8.RuneCountInString(kw)
	if n < s.opts.GapMinLen || n > s.opts.GapMaxLen {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if re, ok := s.patterns[kw]; ok {
		return re
	}
	re := compileGapPattern(kw)
	s.patterns[kw] = re
	return re
}

// compileGapPattern allows any run of gap characters between consecutive
// keyword characters, case-insensitively.
func compileGapPattern(kw string) *regexp.Regexp {
	parts := make([]string, 0, utf8.RuneCountInString(kw))
	for _, r := range kw {
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return regexp.MustCompile(`(?i)` + strings.Join(parts, gapClass))
}

// exactPositions returns the non-overlapping start offsets of needle
func exactPositions(hay, needle []rune) []int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return nil
	}
	var out []int
	for i := 0; i+len(needle) <= len(hay); {
		if runesEqual(hay[i:i+len(needle)], needle) {
			out = append(out, i)
			i += len(needle)
			continue
		}
		i++
	}
	return out
}

// gapPositions returns [runeStart, runeLength] pairs for every regex match
func gapPositions(re *regexp.Regexp, text string) [][2]int {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	out := make([][2]int, 0, len(locs))
	runePos, bytePos := 0, 0
	for _, loc := range locs {
		runePos += utf8.RuneCountInString(text[bytePos:loc[0]])
		bytePos = loc[0]
		out = append(out, [2]int{runePos, utf8.RuneCountInString(text[loc[0]:loc[1]])})
	}
	return out
}

// snippet cuts [max(0,p-ctx), min(L,p+length+ctx)) out of body
func snippet(body []rune, pos, length, ctx int) string {
	start := max(0, pos-ctx)
	end := min(len(body), pos+length+ctx)
	if start > end {
		return ""
	}
	return string(body[start:end])
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// uniqueKeywords drops blank keywords and case variants of earlier ones,
// keeping the first spelling
func uniqueKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		key := strings.ToLower(kw)
		if strings.TrimSpace(kw) == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}

func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		if ka, kb := strings.ToLower(a.Keyword), strings.ToLower(b.Keyword); ka != kb {
			return ka < kb
		}
		return a.Position < b.Position
	})
}
