package search

import "strings"

// TermGroup summarizes the occurrences of one keyword within one entry.
type TermGroup struct {
	Keyword   string   `json:"keyword"`
	Count     int      `json:"count"`
	Positions []int    `json:"positions"`
	Snippets  []string `json:"snippets"`
}

// EntryGroup collects the matches of one entry.
type EntryGroup struct {
	Title  string      `json:"title"`
	Format string      `json:"format"`
	Source string      `json:"source"`
	Total  int         `json:"total"`
	Terms  []TermGroup `json:"terms"`
}

// Group folds sorted matches into entries and keywords, keeping every
// occurrence count but at most maxSnippets snippets per keyword.
// A non-positive maxSnippets keeps all of them.
func Group(matches []Match, maxSnippets int) []EntryGroup {
	var groups []EntryGroup
	for _, m := range matches {
		n := len(groups)
		if n == 0 || groups[n-1].Title != m.Title || groups[n-1].Source != m.Source {
			groups = append(groups, EntryGroup{Title: m.Title, Format: m.Format, Source: m.Source})
			n++
		}
		g := &groups[n-1]
		g.Total++

		t := len(g.Terms)
		if t == 0 || !strings.EqualFold(g.Terms[t-1].Keyword, m.Keyword) {
			g.Terms = append(g.Terms, TermGroup{Keyword: m.Keyword})
			t++
		}
		term := &g.Terms[t-1]
		term.Count++
		term.Positions = append(term.Positions, m.Position)
		if maxSnippets <= 0 || len(term.Snippets) < maxSnippets {
			term.Snippets = append(term.Snippets, m.Snippet)
		}
	}
	return groups
}
