package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procdocs/config"
	"procdocs/index"
	"procdocs/procurement"
	"procdocs/search"
)

func resetFlags() {
	cfgFile, verbose = "", false
	rootFlag, artifactFlag = "", ""
	groupedFlag, storeFlag = false, false
	searchExclude, searchContext, searchJSON, searchFlat = false, -1, false, false
	extractAttempts, reconcileJSON, factsJSON = false, false, false
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func writeDocs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"contract.txt":    "Договор поставки №5 от 01.04.2024. Цена 2 500 руб. ИНН 7707083893",
		"sub/appendix.md": "Приложение к договору: 1. Бумага 2. Ручки",
		"notes.txt":       "Служебная записка",
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	t.Setenv("PROCDOCS_STORE_PATH", filepath.Join(t.TempDir(), "index.db"))
	return root
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"build", "search", "extract", "reconcile", "facts", "serve", "watch", "tui", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "procdocs version "+version)
}

func TestSearchCmd_RequiresKeyword(t *testing.T) {
	_, err := execute(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestSearchCmd_BeforeBuild(t *testing.T) {
	root := writeDocs(t)
	_, err := execute(t, "search", "--root", root, "договор")
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrArtifactNotFound)
	assert.Equal(t, 3, exitCode(err))
}

func TestBuildThenSearch(t *testing.T) {
	for _, withStore := range []bool{false, true} {
		t.Run(map[bool]string{false: "artifact", true: "store"}[withStore], func(t *testing.T) {
			root := writeDocs(t)
			args := []string{"build", "--root", root}
			if withStore {
				args = append(args, "--store")
			}
			out, err := execute(t, args...)
			require.NoError(t, err)
			assert.Contains(t, out, "Indexed 3 of 3 files")
			assert.FileExists(t, filepath.Join(root, config.DefaultArtifactName))

			args = []string{"search", "--root", root, "--json", "договор"}
			if withStore {
				args = append(args, "--store")
			}
			out, err = execute(t, args...)
			require.NoError(t, err)

			var matches []search.Match
			require.NoError(t, json.Unmarshal([]byte(out), &matches), out)
			require.Len(t, matches, 2)
			assert.Equal(t, "contract.txt", matches[0].Title)
			assert.Equal(t, "sub/appendix.md", matches[1].Title)
		})
	}
}

func TestSearchCmd_GroupedAndExcludeOutput(t *testing.T) {
	root := writeDocs(t)
	_, err := execute(t, "build", "--root", root)
	require.NoError(t, err)

	out, err := execute(t, "search", "--root", root, "договор")
	require.NoError(t, err)
	assert.Contains(t, out, "2 matches in 2 documents")
	assert.Contains(t, out, "contract.txt")

	out, err = execute(t, "search", "--root", root, "--exclude", "договор")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")
	assert.NotContains(t, out, "contract.txt")

	out, err = execute(t, "search", "--root", root, "--flat", "записка")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt:10 [записка]")
}

func TestFactsAndReconcileCmds(t *testing.T) {
	root := writeDocs(t)
	_, err := execute(t, "build", "--root", root)
	require.NoError(t, err)

	out, err := execute(t, "facts", "--root", root, "--json")
	require.NoError(t, err)
	var facts []procurement.EntryFacts
	require.NoError(t, json.Unmarshal([]byte(out), &facts), out)
	require.Len(t, facts, 2)
	assert.Equal(t, "contract.txt", facts[0].Title)
	assert.Equal(t, []string{"7707083893"}, facts[0].Facts.INNs)
	assert.Len(t, facts[1].Facts.Items, 2)

	out, err = execute(t, "reconcile", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "3 entries, no issues")

	require.NoError(t, os.Remove(filepath.Join(root, "notes.txt")))
	out, err = execute(t, "reconcile", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "[missing] notes.txt")
}

func TestExtractCmd(t *testing.T) {
	root := writeDocs(t)
	out, err := execute(t, "extract", "--root", root, filepath.Join(root, "notes.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, "Служебная записка")

	_, err = execute(t, "extract", "--root", root, filepath.Join(root, "image.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestBuildCmd_MissingRoot(t *testing.T) {
	_, err := execute(t, "build", "--root", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, index.ErrRootNotFound)
}

func TestBuildCmd_InvalidConfig(t *testing.T) {
	root := writeDocs(t)
	cfgPath := filepath.Join(t.TempDir(), "procdocs.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[extract]\npdf_page_cap = 0\n"), 0o644))

	_, err := execute(t, "build", "--root", root, "--config", cfgPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Equal(t, 2, exitCode(err))
}

func TestHighlightSnippet(t *testing.T) {
	assert.Equal(t, "без ключа", highlightSnippet("без ключа", ""))
	out := highlightSnippet("Договор и ДОГОВОР", "договор")
	assert.Contains(t, out, "Договор")
	assert.Contains(t, out, "ДОГОВОР")
	assert.Contains(t, out, " и ")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatFileSize(2<<20))
	assert.Equal(t, "0 B", formatFileSize(-1))
}

func TestModel_BuildDoneAndPaging(t *testing.T) {
	feed := &progressFeed{}
	m := newModel([]string{"договор"}, feed, func() tea.Msg { return nil })
	assert.Contains(t, m.View(), "Indexing...")

	feed.publish("FAST", 1, 3, "a.txt")
	next, _ := m.Update(progressTick{})
	m = next.(model)
	assert.Equal(t, "FAST", m.current.Stage)

	groups := []search.EntryGroup{
		{Title: "a.txt", Format: "txt", Total: 1, Terms: []search.TermGroup{{Keyword: "договор", Count: 1, Snippets: []string{"Договор поставки"}}}},
		{Title: "b.txt", Format: "txt", Total: 1, Terms: []search.TermGroup{{Keyword: "договор", Count: 1, Snippets: []string{"к договору"}}}},
	}
	next, _ = m.Update(buildDoneMsg{res: &index.BuildResult{Processed: 2, Indexed: 2}, groups: groups})
	m = next.(model)
	assert.False(t, m.loading)
	assert.Contains(t, m.View(), "a.txt")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	m = next.(model)
	assert.Equal(t, 1, m.currentPage)
	assert.Contains(t, m.View(), "b.txt")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	m = next.(model)
	assert.Equal(t, 1, m.currentPage)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
}
