package search

import (
	"fmt"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procdocs/index"
)

func entry(title, body string) index.Entry {
	return index.NewEntry(title, "txt", body, int64(len(body)))
}

func TestExactMatchCaseInsensitive(t *testing.T) {
	s := NewSearcher(Options{Context: 3})
	matches := s.Search([]index.Entry{entry("a.txt", "Договор и ДОГОВОР")}, []string{"договор"})

	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].Position)
	assert.Equal(t, 10, matches[1].Position)
	assert.Equal(t, "договор", matches[0].Keyword)
	assert.Equal(t, "Договор и ", matches[0].Snippet)
	assert.Equal(t, " и ДОГОВОР", matches[1].Snippet)
	assert.Equal(t, 7, matches[0].Length)
}

func TestGapTolerantRecall(t *testing.T) {
	entries := []index.Entry{
		entry("spaced.txt", "условия: д о г о в о р поставки"),
		entry("hyphen.txt", "текст до-говор текст"),
		entry("invisible.txt", "до\u00adго\u200bвор и до говор"),
	}
	s := NewSearcher(DefaultOptions())

	matches := s.Search(entries, []string{"договор"})

	byTitle := map[string][]Match{}
	for _, m := range matches {
		byTitle[m.Title] = append(byTitle[m.Title], m)
	}
	require.Len(t, byTitle["spaced.txt"], 1)
	assert.Equal(t, 9, byTitle["spaced.txt"][0].Position)
	assert.Equal(t, 13, byTitle["spaced.txt"][0].Length)

	require.Len(t, byTitle["hyphen.txt"], 1)
	assert.Equal(t, 6, byTitle["hyphen.txt"][0].Position)

	assert.Len(t, byTitle["invisible.txt"], 2)
}

func TestGapPassOnlyForShortKeywords(t *testing.T) {
	body := "к о н т р а к т о в а н и е"
	s := NewSearcher(DefaultOptions())

	assert.Empty(t, s.Search([]index.Entry{entry("a.txt", body)}, []string{"контрактование"}), "14 runes is beyond the tolerant range")
	assert.Len(t, s.Search([]index.Entry{entry("a.txt", body)}, []string{"контракт"}), 1)

	assert.Empty(t, s.Search([]index.Entry{entry("a.txt", "a b")}, []string{"x"}))
	assert.Len(t, s.Search([]index.Entry{entry("a.txt", "a-b")}, []string{"ab"}), 1)
}

// Both passes fire at the same offset for a plain occurrence; only one match
// per position may come back.
func TestNoDuplicatePositions(t *testing.T) {
	bodies := []string{
		"договор договор договор",
		"договордоговор",
		"д о г о в о р и договор",
		"ааааааа",
		"до-говор, ДОГОВОР, договор",
	}
	keywords := []string{"договор", "ДОГОВОР", "аа", "а", "вор"}
	s := NewSearcher(Options{Context: 5})

	for i, body := range bodies {
		matches := s.Search([]index.Entry{entry(fmt.Sprintf("%d.txt", i), body)}, keywords)
		seen := map[string]bool{}
		for _, m := range matches {
			key := fmt.Sprintf("%s@%d", m.Keyword, m.Position)
			assert.False(t, seen[key], "duplicate %s in %q", key, body)
			seen[key] = true
		}
	}
}

func TestDuplicateKeywordsCollapse(t *testing.T) {
	s := NewSearcher(DefaultOptions())
	matches := s.Search([]index.Entry{entry("a.txt", "цена")}, []string{"цена", "цена", " ", ""})
	assert.Len(t, matches, 1)
}

func TestCaseVariantKeywordsCollapse(t *testing.T) {
	s := NewSearcher(DefaultOptions())
	matches := s.Search([]index.Entry{entry("a.txt", "один договор тут")}, []string{"Договор", "договор", "ДОГОВОР"})

	require.Len(t, matches, 1)
	assert.Equal(t, "Договор", matches[0].Keyword)
	assert.Equal(t, 5, matches[0].Position)

	groups := Group(matches, 3)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Terms, 1)
	assert.Equal(t, 1, groups[0].Terms[0].Count)
	assert.Equal(t, []int{5}, groups[0].Terms[0].Positions)
	assert.Equal(t, 1, groups[0].Total)
}

func TestSnippetBounds(t *testing.T) {
	body := "0123456789abcdefghij"
	tests := []struct {
		keyword string
		ctx     int
		want    string
	}{
		{"0", 3, "0123"},
		{"j", 3, "ghij"},
		{"a", 2, "89abc"},
		{"a", 100, body},
		{"a", 0, "a"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.keyword, tt.ctx), func(t *testing.T) {
			s := NewSearcher(Options{Context: tt.ctx})
			matches := s.Search([]index.Entry{entry("a.txt", body)}, []string{tt.keyword})
			require.Len(t, matches, 1)
			assert.Equal(t, tt.want, matches[0].Snippet)
		})
	}
}

func TestSnippetBoundsProperty(t *testing.T) {
	body := "поставка бумаги: договор № 5, договор № 6; д-о-г-о-в-о-р"
	L := utf8.RuneCountInString(body)
	runes := []rune(body)

	for _, ctx := range []int{0, 1, 7, 50} {
		s := NewSearcher(Options{Context: ctx})
		for _, m := range s.Search([]index.Entry{entry("a.txt", body)}, []string{"договор", "№", "ги"}) {
			start := max(0, m.Position-ctx)
			end := min(L, m.Position+m.Length+ctx)
			assert.Equal(t, string(runes[start:end]), m.Snippet)
		}
	}
}

func TestSortOrder(t *testing.T) {
	entries := []index.Entry{
		entry("b.txt", "цена цена"),
		entry("a.txt", "Срок и цена"),
	}
	s := NewSearcher(Options{})
	matches := s.Search(entries, []string{"цена", "Срок"})

	var got []string
	for _, m := range matches {
		got = append(got, fmt.Sprintf("%s:%s:%d", m.Title, m.Keyword, m.Position))
	}
	assert.Equal(t, []string{
		"a.txt:Срок:0",
		"a.txt:цена:7",
		"b.txt:цена:0",
		"b.txt:цена:5",
	}, got)
}

func TestExcludeMode(t *testing.T) {
	entries := []index.Entry{
		entry("f1.txt", "проект договора"),
		entry("f2.txt", "государственный контракт"),
		entry("f3.txt", "счёт на оплату канцелярских товаров"),
		entry("f4.txt", "к о н т р а к т"),
		entry("f5.txt", ""),
	}
	s := NewSearcher(Options{Context: 5, ExcludeMode: true})

	matches := s.Search(entries, []string{"договор", "контракт"})

	require.Len(t, matches, 2)
	assert.Equal(t, "f3.txt", matches[0].Title)
	assert.Equal(t, "", matches[0].Keyword)
	assert.Equal(t, 0, matches[0].Position)
	assert.Equal(t, "счёт на оп", matches[0].Snippet)
	assert.Equal(t, "f5.txt", matches[1].Title)
	assert.Equal(t, "", matches[1].Snippet)
}

func TestSearchRegexMetacharacters(t *testing.T) {
	s := NewSearcher(DefaultOptions())
	matches := s.Search([]index.Entry{entry("a.txt", `шаблон \1 и $1 (a+b)*`)}, []string{`\1`, "$1", "(a+b)*"})
	require.Len(t, matches, 3)
	assert.Equal(t, "$1", matches[0].Keyword)
	assert.Equal(t, 12, matches[0].Position)
	assert.Equal(t, "(a+b)*", matches[1].Keyword)
	assert.Equal(t, 15, matches[1].Position)
	assert.Equal(t, `\1`, matches[2].Keyword)
	assert.Equal(t, 7, matches[2].Position)
}

func TestGroup(t *testing.T) {
	entries := []index.Entry{entry("a.txt", "цена цена цена цена срок"), entry("b.txt", "цена")}
	s := NewSearcher(Options{Context: 0})
	groups := Group(s.Search(entries, []string{"цена", "срок"}), 3)

	require.Len(t, groups, 2)
	a := groups[0]
	assert.Equal(t, "a.txt", a.Title)
	assert.Equal(t, 5, a.Total)
	require.Len(t, a.Terms, 2)
	assert.Equal(t, "срок", a.Terms[0].Keyword)
	assert.Equal(t, 1, a.Terms[0].Count)
	assert.Equal(t, "цена", a.Terms[1].Keyword)
	assert.Equal(t, 4, a.Terms[1].Count)
	assert.Equal(t, []int{0, 5, 10, 15}, a.Terms[1].Positions)
	assert.Len(t, a.Terms[1].Snippets, 3)

	assert.Equal(t, 1, groups[1].Total)
}

func TestGroupUnlimitedSnippets(t *testing.T) {
	s := NewSearcher(Options{})
	groups := Group(s.Search([]index.Entry{entry("a.txt", "x1 x1 x1 x1")}, []string{"x1"}), 0)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Terms[0].Snippets, 4)
}
