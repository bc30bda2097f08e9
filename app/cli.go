// Package app wires configuration, logging and the index/search packages
// into the procdocs command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"procdocs/config"
	"procdocs/extract"
	"procdocs/index"
	"procdocs/search"
	"procdocs/store"
)

var version = "0.3"

var (
	cfgFile      string
	verbose      bool
	rootFlag     string
	artifactFlag string
	groupedFlag  bool
	storeFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "procdocs",
	Short: "Index and search procurement documents",
	Long: `procdocs extracts text from a folder of procurement documents
(PDF, DOCX, DOC, XLSX, XLS, TXT, HTML, EML, MBOX and ZIP archives), writes one
consolidated index file and searches it by keyword with snippets.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "path to a TOML config file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVarP(&rootFlag, "root", "r", "", "document folder (default from config, \".\")")
	pf.StringVar(&artifactFlag, "artifact", "", "index file, relative to the root unless absolute")
	pf.BoolVar(&groupedFlag, "grouped", false, "write the index grouped by speed tier")
	pf.BoolVar(&storeFlag, "store", false, "also keep the index in the SQLite store")
}

// Run executes the command line and returns a process exit code.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalid):
		return 2
	case errors.Is(err, index.ErrRootNotFound), errors.Is(err, search.ErrArtifactNotFound):
		return 3
	case errors.Is(err, index.ErrBuildLocked):
		return 4
	}
	return 1
}

// newLogger builds the process logger. Logs go to stderr so command output on
// stdout stays clean.
func newLogger(out io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// loadConfig reads the config file and environment, then applies flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Root = rootFlag
	}
	if flags.Changed("artifact") {
		cfg.Artifact = artifactFlag
	}
	if flags.Changed("grouped") {
		cfg.Grouped = groupedFlag
	}
	if flags.Changed("store") {
		cfg.Store.Enabled = storeFlag
	}
	return cfg, cfg.Validate()
}

// env is what every command needs: configuration, logging and the wired
// index components.
type env struct {
	cfg     *config.Config
	log     *logrus.Logger
	reg     *extract.Registry
	builder *index.Builder
	store   *store.Store
}

func newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := newLogger(cmd.ErrOrStderr(), verbose)

	caps := extract.Probe(cfg.Extract, nil)
	var ocr extract.OCRSource
	if caps.OCR {
		ocr = extract.NewCommandOCR(nil)
	}
	log.WithFields(logrus.Fields{
		"pdftotext":  caps.PDFToText,
		"ocr":        caps.OCR,
		"legacy_xls": caps.LegacyXLS,
	}).Debug("extraction capabilities")

	reg := extract.NewRegistry(extract.OptionsFromConfig(cfg.Extract), caps, nil, ocr, log.WithField("component", "extract"))
	b := index.NewBuilder(reg, cfg.Artifact, log.WithField("component", "index"))
	b.Grouped = cfg.Grouped

	e := &env{cfg: cfg, log: log, reg: reg, builder: b}
	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		e.store = st
	}
	return e, nil
}

func (e *env) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.log.WithError(err).Warn("closing store")
		}
	}
}

func (e *env) artifactPath() string {
	return e.builder.ArtifactPath(e.cfg.Root)
}

// source picks the SQLite index when enabled, else the artifact file.
func (e *env) source() search.Source {
	if e.store != nil {
		return store.IndexSource{Store: e.store, Owner: e.cfg.Owner}
	}
	return index.FileSource{Path: e.artifactPath()}
}

func (e *env) searchOptions() search.Options {
	return search.Options{
		Context:            e.cfg.Search.Context,
		GapMinLen:          e.cfg.Search.GapMinLen,
		GapMaxLen:          e.cfg.Search.GapMaxLen,
		MaxSnippetsPerTerm: e.cfg.Search.MaxSnippetsPerTerm,
	}
}

// build runs one build and mirrors it into the store when enabled.
func (e *env) build(ctx context.Context) (*index.BuildResult, error) {
	res, err := e.builder.Build(ctx, e.cfg.Root)
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		if err := e.store.Sync(ctx, e.cfg.Owner, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}
