package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"procdocs/config"
	"procdocs/extract"
	"procdocs/index"
	"procdocs/procurement"
	"procdocs/search"
)

var (
	searchExclude bool
	searchContext int
	searchJSON    bool
	searchFlat    bool

	extractAttempts bool

	reconcileJSON bool
	factsJSON     bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the consolidated index for the document folder",
	Args:  cobra.NoArgs,
	RunE:  runBuild,
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword> [keyword...]",
	Short: "Search the index for keywords",
	Long: `Searches every indexed document for each keyword, case-insensitively.
Keywords of 2 to 8 characters also match when the document text has spaces,
soft hyphens or zero-width characters inside the word.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the text extracted from one document",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "List index entries with no text or no file on disk",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

var factsCmd = &cobra.Command{
	Use:   "facts [title...]",
	Short: "Show prices, dates, INNs and item lists found in indexed documents",
	RunE:  runFacts,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("procdocs version %s\n", version)
	},
}

func init() {
	searchCmd.Flags().BoolVarP(&searchExclude, "exclude", "x", false, "list documents containing none of the keywords")
	searchCmd.Flags().IntVar(&searchContext, "context", -1, "snippet radius in characters (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output matches as JSON")
	searchCmd.Flags().BoolVar(&searchFlat, "flat", false, "one line per match instead of grouping by document")

	extractCmd.Flags().BoolVar(&extractAttempts, "attempts", false, "show PDF strategy diagnostics")

	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "output issues as JSON")
	factsCmd.Flags().BoolVar(&factsJSON, "json", false, "output facts as JSON")

	rootCmd.AddCommand(buildCmd, searchCmd, extractCmd, reconcileCmd, factsCmd, versionCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	e.builder.OnProgress = func(stage string, processed, total int, path string) {
		e.log.WithFields(logrus.Fields{"stage": stage, "n": processed, "total": total}).Debug(path)
	}

	res, err := e.build(cmd.Context())
	if err != nil {
		return err
	}
	printBuildSummary(cmd.OutOrStdout(), res)
	return nil
}

func printBuildSummary(w io.Writer, res *index.BuildResult) {
	took := res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond)
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("✅ Indexed %d of %d files → %s (%s)", res.Indexed, res.Processed, res.Artifact, took)))
	fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("   empty: %d • errors: %d • unsupported: %d", res.Empty, res.Failed, res.Unsupported)))
	if res.Unchanged {
		fmt.Fprintln(w, infoStyle.Render("   index content unchanged, file left as is"))
	}
	for _, f := range res.Files {
		if f.Status == index.StatusError || f.Status == index.StatusUnsupported {
			fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("   ⚠ %s: %s", f.Path, f.Error)))
		}
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	opts := e.searchOptions()
	opts.ExcludeMode = searchExclude
	if searchContext >= 0 {
		opts.Context = searchContext
	}

	matches, err := search.SearchSource(cmd.Context(), e.source(), args, opts)
	if err != nil {
		if errors.Is(err, search.ErrArtifactNotFound) {
			return fmt.Errorf("%w (run `procdocs build` first)", err)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		return writeJSON(out, matches)
	}
	if len(matches) == 0 {
		fmt.Fprintln(out, warningStyle.Render("🔍 No matches"))
		return nil
	}

	width := getTerminalWidth()
	switch {
	case opts.ExcludeMode:
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("📋 %d documents contain none of: %s", len(matches), strings.Join(args, ", "))))
		for _, m := range matches {
			fmt.Fprintln(out, subHeaderStyle.Render("📄 "+m.Title))
			fmt.Fprintln(out, wrapTextWithIndent("    ", m.Snippet, width-2))
		}
	case searchFlat:
		for _, m := range matches {
			fmt.Fprintf(out, "%s:%d [%s] %s\n", m.Title, m.Position, m.Keyword, highlightSnippet(m.Snippet, m.Keyword))
		}
	default:
		groups := search.Group(matches, opts.MaxSnippetsPerTerm)
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("📋 %d matches in %d documents", len(matches), len(groups))))
		fmt.Fprintln(out, separatorStyle.Render(createSeparator(width)))
		printGroups(out, groups, width)
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	path := args[0]
	out := cmd.OutOrStdout()
	format := config.FormatTag(path)

	ex, ok := e.reg.Get(format)
	if !ok {
		return fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}

	pdf, isPDF := ex.(*extract.PDFExtractor)
	if !isPDF || !extractAttempts {
		fmt.Fprintln(out, ex.ExtractText(path))
		return nil
	}

	if pages, err := extract.PageCount(path); err == nil {
		fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("pages: %d", pages)))
	} else {
		fmt.Fprintln(out, warningStyle.Render("pages: "+err.Error()))
	}
	fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("text layer: %t", pdf.HasTextLayer(path))))

	text, attempts := pdf.Extract(cmd.Context(), path)
	for _, a := range attempts {
		style := warningStyle
		if a.OK {
			style = successStyle
		}
		fmt.Fprintln(out, style.Render(a.String()))
	}
	fmt.Fprintln(out, separatorStyle.Render(createSeparator(getTerminalWidth())))
	fmt.Fprintln(out, text)
	return nil
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	entries, err := e.source().Entries(cmd.Context())
	if err != nil {
		return err
	}
	issues := index.Reconcile(e.cfg.Root, entries)

	out := cmd.OutOrStdout()
	if reconcileJSON {
		return writeJSON(out, issues)
	}
	if len(issues) == 0 {
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ %d entries, no issues", len(entries))))
		return nil
	}
	fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("⚠ %d issues in %d entries", len(issues), len(entries))))
	for _, is := range issues {
		fmt.Fprintf(out, "  [%s] %s", is.Kind, is.Title)
		if is.Detail != "" {
			fmt.Fprintf(out, ": %s", is.Detail)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runFacts(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	entries, err := e.source().Entries(cmd.Context())
	if err != nil {
		return err
	}
	if len(args) > 0 {
		wanted := make(map[string]bool, len(args))
		for _, a := range args {
			wanted[a] = true
		}
		var picked []index.Entry
		for _, en := range entries {
			if wanted[en.Title] {
				picked = append(picked, en)
			}
		}
		entries = picked
	}

	facts := procurement.FromEntries(entries)
	out := cmd.OutOrStdout()
	if factsJSON {
		if facts == nil {
			facts = []procurement.EntryFacts{}
		}
		return writeJSON(out, facts)
	}
	if len(facts) == 0 {
		fmt.Fprintln(out, warningStyle.Render("No facts found"))
		return nil
	}
	for _, ef := range facts {
		printFacts(out, ef)
	}
	return nil
}

func printFacts(w io.Writer, ef procurement.EntryFacts) {
	fmt.Fprintln(w, subHeaderStyle.Render("📄 "+ef.Title))
	f := ef.Facts
	if p, ok := f.MaxPrice(); ok {
		fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("   max price: %.2f ₽ (%s)", p.Rubles(), p.Raw)))
	}
	for _, d := range f.Dates {
		fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("   date: %s (%s)", d.Date.Format("2006-01-02"), d.Raw)))
	}
	if len(f.INNs) > 0 {
		fmt.Fprintln(w, infoStyle.Render("   INN: "+strings.Join(f.INNs, ", ")))
	}
	for _, it := range f.Items {
		fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("   %d. %s", it.Number, it.Text)))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
