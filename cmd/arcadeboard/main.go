// Command arcadeboard scores Arcade badge profiles.
//
// Usage:
//
//	arcadeboard leaderboard roster.csv [more.csv...]
//	arcadeboard profile https://www.cloudskillsboost.google/public_profiles/<id>
//	arcadeboard serve --addr :8080
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/arcade"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/catalog"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/fetch"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/leaderboard"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/metrics"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/rules"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/server"
)

// Version is set at build time.
var Version = "dev"

//nolint:govet // fieldalignment: intentional layout for readability
type options struct {
	rulesPath    string
	catalogPath  string
	logFormat    string
	debug        bool
	pageCacheTTL time.Duration
	batchSize    int
	batchPause   time.Duration
}

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "arcadeboard",
		Short:         "Score Arcade badge profiles and build leaderboards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.rulesPath, "rules", "", "season rules YAML (default: embedded rules)")
	f.StringVar(&opts.catalogPath, "catalog", "", "skill badge catalog JSON (default: embedded catalog)")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	f.BoolVarP(&opts.debug, "debug", "v", false, "enable debug logging")
	f.DurationVar(&opts.pageCacheTTL, "page-cache-ttl", 0, "cache fetched profile pages on disk for this long (0 disables)")
	f.IntVar(&opts.batchSize, "batch-size", leaderboard.DefaultBatchSize, "profiles fetched concurrently per batch")
	f.DurationVar(&opts.batchPause, "batch-pause", leaderboard.DefaultBatchPause, "minimum spacing between batches")

	cmd.AddCommand(leaderboardCmd(opts), profileCmd(opts), serveCmd(opts), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("arcadeboard %s (rules %s)\n", Version, rules.Default().Version)
		},
	})
	return cmd
}

func leaderboardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard FILE...",
		Short: "Rank the participants of one or more roster CSV files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tables [][]byte
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read roster: %w", err)
				}
				tables = append(tables, data)
			}

			logger := newLogger(opts)
			svc, cleanup, err := newService(opts, logger, nil, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			resp, err := svc.Leaderboard(cmd.Context(), tables...)
			if err != nil {
				return err
			}
			return outputJSON(resp)
		},
	}
}

func profileCmd(opts *options) *cobra.Command {
	var filter catalog.Filter
	cmd := &cobra.Command{
		Use:   "profile URL",
		Short: "Analyze a single public profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(opts)
			svc, cleanup, err := newService(opts, logger, nil, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			rep, err := svc.Profile(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			return outputJSON(rep)
		},
	}
	cmd.Flags().StringVar(&filter.Level, "level", "all", "missing badge level filter: all, Introductory or Intermediate")
	cmd.Flags().StringVar(&filter.Sort, "sort", catalog.SortName, "missing badge order: name, duration or labs")
	return cmd
}

func serveCmd(opts *options) *cobra.Command {
	var (
		addr       string
		watchRules bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(opts)
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m, err := metrics.New(reg)
			if err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}

			store, err := loadRules(opts)
			if err != nil {
				return err
			}
			if watchRules && opts.rulesPath != "" {
				go func() {
					if err := rules.Watch(ctx, opts.rulesPath, store, logger); err != nil {
						logger.WarnContext(ctx, "rules watcher stopped", "error", err)
					}
				}()
			}

			svc, cleanup, err := newService(opts, logger, m, store)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := &http.Server{
				Addr:              addr,
				Handler:           server.New(svc, reg, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.InfoContext(ctx, "listening", "addr", addr, "rules", store.Load().Version)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&watchRules, "watch-rules", false, "reload --rules when the file changes")
	return cmd
}

func newLogger(opts *options) *slog.Logger {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.logFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, hopts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, hopts))
}

func loadRules(opts *options) (*rules.Store, error) {
	if opts.rulesPath == "" {
		return rules.NewStore(rules.Default()), nil
	}
	r, err := rules.Load(opts.rulesPath)
	if err != nil {
		return nil, err
	}
	return rules.NewStore(r), nil
}

// loadCatalog never fails: a missing or corrupt catalog is logged and
// replaced by an empty one, so skill titles simply stop matching.
func loadCatalog(opts *options, logger *slog.Logger) *catalog.Catalog {
	if opts.catalogPath == "" {
		return catalog.Default()
	}
	c, err := catalog.Load(opts.catalogPath)
	if err != nil {
		logger.Error("skill badge catalog unavailable, no badge will classify as skill", "path", opts.catalogPath, "error", err)
		return catalog.Empty()
	}
	return c
}

func newService(opts *options, logger *slog.Logger, m *metrics.Metrics, store *rules.Store) (*arcade.Service, func(), error) {
	if store == nil {
		var err error
		if store, err = loadRules(opts); err != nil {
			return nil, nil, err
		}
	}

	svcOpts := []arcade.Option{
		arcade.WithLogger(logger),
		arcade.WithMetrics(m),
		arcade.WithRules(store),
		arcade.WithCatalog(loadCatalog(opts, logger)),
		arcade.WithBatchSize(opts.batchSize),
		arcade.WithBatchPause(opts.batchPause),
	}

	cleanup := func() {}
	if opts.pageCacheTTL > 0 {
		pc, err := fetch.NewPageCache(opts.pageCacheTTL)
		if err != nil {
			logger.Warn("failed to initialize page cache, continuing without cache", "error", err)
		} else {
			svcOpts = append(svcOpts, arcade.WithPageCache(pc))
			cleanup = func() {
				if err := pc.Close(); err != nil {
					logger.Warn("failed to close page cache", "error", err)
				}
			}
			logger.Debug("page cache initialized", "ttl", opts.pageCacheTTL.String())
		}
	}
	return arcade.New(svcOpts...), cleanup, nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
