package app

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"procdocs/api"
	"procdocs/watch"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the index over HTTP",
	Long: `Starts the JSON API:
  POST /api/v1/index/rebuild
  GET  /api/v1/search?q=word[,word]&exclude=&context=&grouped=
  GET  /api/v1/entries[?title=]
  GET  /api/v1/facts[?title=]
  GET  /api/v1/status
With --watch, document changes under the root trigger a rebuild.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild the index whenever documents change",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, \":8080\")")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "rebuild on document changes")
	rootCmd.AddCommand(serveCmd, watchCmd)
}

func (e *env) watcher(onChange func(ctx context.Context) error) *watch.Watcher {
	artifact := e.artifactPath()
	return &watch.Watcher{
		Root:     e.cfg.Root,
		Debounce: e.cfg.Server.WatchDebounce.Duration,
		Ignore:   []string{artifact, artifact + ".tmp", artifact + ".lock"},
		OnChange: onChange,
		Log:      e.log.WithField("component", "watch"),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	addr := e.cfg.Server.Addr
	if cmd.Flags().Changed("addr") {
		addr = serveAddr
	}

	srv := api.NewServer(e.builder, e.cfg.Root, e.store, e.cfg.Owner, e.searchOptions(), e.log.WithField("component", "api"))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return srv.Serve(ctx, addr)
	})
	if serveWatch {
		w := e.watcher(func(ctx context.Context) error {
			_, err := srv.Rebuild(ctx)
			return err
		})
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	return g.Wait()
}

func runWatch(cmd *cobra.Command, _ []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	out := cmd.OutOrStdout()
	rebuild := func(ctx context.Context) error {
		res, err := e.build(ctx)
		if err != nil {
			return err
		}
		printBuildSummary(out, res)
		return nil
	}

	if err := rebuild(cmd.Context()); err != nil {
		return err
	}
	return e.watcher(rebuild).Run(cmd.Context())
}
