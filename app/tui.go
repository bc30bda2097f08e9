package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"procdocs/config"
	"procdocs/index"
	"procdocs/search"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [keyword...]",
	Short: "Build the index with a live progress view, then browse matches",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

// progressMsg updates the progress line while the build runs.
// Format in View: "⏳ {Stage} [num/total]: filename"
type progressMsg struct {
	Stage string
	Count int
	Total int
	Path  string
}

// progressFeed hands the newest builder progress to the TUI. The builder
// runs in a command goroutine; the model polls on a tick.
type progressFeed struct {
	mu     sync.Mutex
	latest progressMsg
	have   bool
}

func (f *progressFeed) publish(stage string, processed, total int, path string) {
	f.mu.Lock()
	f.latest = progressMsg{Stage: stage, Count: processed, Total: total, Path: path}
	f.have = true
	f.mu.Unlock()
}

func (f *progressFeed) snapshot() (progressMsg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.have
}

type model struct {
	// Results and paging
	groups        []search.EntryGroup
	currentPage   int
	contentScroll int

	// Build outcome
	build    *index.BuildResult
	buildErr error
	issues   []index.Issue

	// Session and timing
	started  time.Time
	took     time.Duration
	quitting bool
	loading  bool

	// Window size
	width  int
	height int

	// Search parameters
	keywords []string

	// Background work
	feed         *progressFeed
	run          func() tea.Msg
	bar          progress.Model
	current      progressMsg
	memUsageText string // e.g., " • RAM: XXX MB • CPU: YY%"
}

// buildDoneMsg carries the finished build and, when keywords were given, the
// grouped matches.
type buildDoneMsg struct {
	res    *index.BuildResult
	groups []search.EntryGroup
	issues []index.Issue
	err    error
	took   time.Duration
}

type memUsageMsg struct {
	Text string
}

type progressTick struct{}

func newModel(keywords []string, feed *progressFeed, run func() tea.Msg) model {
	return model{
		keywords: keywords,
		feed:     feed,
		run:      run,
		bar:      progress.New(progress.WithDefaultGradient()),
		loading:  true,
		started:  time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(pollProgress(), m.run, memUsageTick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, min(80, msg.Width-8))
		return m, nil

	case tea.KeyMsg:
		// While loading, only allow quit
		if m.loading {
			switch msg.String() {
			case "q", "ctrl+c":
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "n", "right", "l", "enter", " ":
			if m.currentPage < len(m.groups)-1 {
				m.currentPage++
				m.contentScroll = 0
			}
		case "p", "left", "h":
			if m.currentPage > 0 {
				m.currentPage--
				m.contentScroll = 0
			}
		case "home":
			m.currentPage = 0
			m.contentScroll = 0
		case "end":
			m.currentPage = max(0, len(m.groups)-1)
			m.contentScroll = 0
		case "up", "k":
			m.contentScroll = max(0, m.contentScroll-1)
		case "down", "j":
			m.contentScroll++
		case "pgup":
			m.contentScroll = max(0, m.contentScroll-5)
		case "pgdown":
			m.contentScroll += 5
		}
		return m, nil

	case buildDoneMsg:
		m.loading = false
		m.build = msg.res
		m.buildErr = msg.err
		m.groups = msg.groups
		m.issues = msg.issues
		m.took = msg.took
		return m, nil

	case memUsageMsg:
		m.memUsageText = msg.Text
		return m, memUsageTick()

	case progressTick:
		if lp, ok := m.feed.snapshot(); ok {
			m.current = lp
		}
		if !m.loading {
			return m, nil
		}
		return m, pollProgress()
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	width := m.width
	height := m.height
	if width <= 0 {
		width = 120
	}
	if height <= 0 {
		height = 30
	}

	var headerLines []string
	headerLines = append(headerLines, "")
	headerLines = append(headerLines, headerStyle.Render("procdocs v"+version))
	headerLines = append(headerLines, "")
	if len(m.keywords) > 0 {
		var terms []string
		for _, w := range m.keywords {
			terms = append(terms, fmt.Sprintf("\"%s\"", w))
		}
		headerLines = append(headerLines, subHeaderStyle.Render(wrapTextWithIndent("🔍 Searching: ", strings.Join(terms, " "), width-4)))
	}
	targetStyled := lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	headerLines = append(headerLines, targetStyled.Render(wrapTextWithIndent("📁 Target: ", config.GetFileTypeDescription(), width-4)))

	engine := "⚙️ Engine:" + m.memUsageText
	headerLines = append(headerLines, lipgloss.NewStyle().Foreground(lipgloss.Color("#bb9af7")).Render(engine))

	elapsed := m.took
	if m.loading {
		elapsed = time.Since(m.started)
	}
	headerLines = append(headerLines, lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Render(
		fmt.Sprintf("⏱️ Elapsed: %s", elapsed.Round(100*time.Millisecond))))

	searchInfo := strings.Join(headerLines, "\n")
	headerHeight := strings.Count(searchInfo, "\n") + 1

	parts := []string{searchInfo}

	// Progress row is always reserved to keep the box position stable
	if m.loading {
		pct := 0.0
		if m.current.Total > 0 {
			pct = float64(m.current.Count) / float64(m.current.Total)
		}
		stage := m.current.Stage
		if stage == "" {
			stage = "discovery"
		}
		line := fmt.Sprintf("⏳ %s [%d/%d]: %s", stage, m.current.Count, m.current.Total, m.current.Path)
		parts = append(parts, m.bar.ViewAs(pct)+"  "+infoStyle.Render(line))
	} else {
		parts = append(parts, "")
	}

	boxContent := m.boxContent(width)

	boxOuterWidth := width - 4
	chromeHeight := 4
	contentHeight := height - headerHeight - 1 - 1 - chromeHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	lines := strings.Split(boxContent, "\n")
	maxStart := 0
	if len(lines) > contentHeight {
		maxStart = len(lines) - contentHeight
	}
	start := min(m.contentScroll, maxStart)
	end := min(start+contentHeight, len(lines))
	parts = append(parts, appStyle.Width(boxOuterWidth).Height(contentHeight).Render(strings.Join(lines[start:end], "\n")))

	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Render("🔚 'q' quit • n/→: next • p/←: previous • ↑/↓: scroll")
	parts = append(parts, footer)

	return strings.Join(parts, "\n")
}

func (m model) boxContent(width int) string {
	switch {
	case m.loading:
		return "Indexing..."
	case m.buildErr != nil:
		return errorStyle.Render("Error: " + m.buildErr.Error())
	}

	var b strings.Builder
	res := m.build
	b.WriteString(successStyle.Render(fmt.Sprintf("✅ Indexed %d of %d files", res.Indexed, res.Processed)))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf("empty: %d • errors: %d • unsupported: %d • %s", res.Empty, res.Failed, res.Unsupported, res.Artifact)))
	b.WriteString("\n\n")

	if len(m.keywords) == 0 {
		if len(m.issues) == 0 {
			b.WriteString("No reconciliation issues.")
			return b.String()
		}
		b.WriteString(warningStyle.Render(fmt.Sprintf("%d issues:", len(m.issues))))
		b.WriteString("\n")
		for _, is := range m.issues {
			fmt.Fprintf(&b, "[%s] %s\n", is.Kind, is.Title)
		}
		return b.String()
	}

	if len(m.groups) == 0 {
		b.WriteString("No results found.")
		return b.String()
	}

	g := m.groups[m.currentPage]
	b.WriteString(subHeaderStyle.Render(fmt.Sprintf("📄 %s (%s)", g.Title, g.Format)))
	b.WriteString("\n\n")
	innerWidth := max(10, width-10)
	for _, t := range g.Terms {
		b.WriteString(warningStyle.Render(fmt.Sprintf("«%s» × %d", t.Keyword, t.Count)))
		b.WriteString("\n")
		for i, s := range t.Snippets {
			label := subHeaderStyle.Render(fmt.Sprintf("Excerpt %d: ", i+1))
			b.WriteString(wrapTextWithIndent(label, highlightSnippet(s, t.Keyword), innerWidth))
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\nResult %d of %d", m.currentPage+1, len(m.groups))
	return b.String()
}

func pollProgress() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return progressTick{}
	})
}

func memUsageTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		mem, cpu := sampleMemoryAndCPU()
		return memUsageMsg{Text: fmt.Sprintf(" Heap %s • Max RSS %s • CPU %5.1f%%", formatBytes(mem.heap), formatBytes(mem.rss), cpu)}
	})
}

// buildCommand returns the background build for the TUI.
func (e *env) buildCommand(ctx context.Context, keywords []string, feed *progressFeed) func() tea.Msg {
	return func() tea.Msg {
		start := time.Now()
		e.builder.OnProgress = feed.publish

		res, err := e.build(ctx)
		if err != nil {
			return buildDoneMsg{err: err, took: time.Since(start)}
		}

		done := buildDoneMsg{res: res, took: time.Since(start)}
		if len(keywords) == 0 {
			done.issues = index.Reconcile(e.cfg.Root, res.Entries)
			return done
		}
		opts := e.searchOptions()
		matches := search.NewSearcher(opts).Search(res.Entries, keywords)
		done.groups = search.Group(matches, opts.MaxSnippetsPerTerm)
		return done
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	// Keep log lines from tearing the alt screen
	e.log.SetOutput(io.Discard)

	feed := &progressFeed{}
	m := newModel(args, feed, e.buildCommand(cmd.Context(), args, feed))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(model); ok && fm.buildErr != nil {
		return fm.buildErr
	}
	return nil
}
