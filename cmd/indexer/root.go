package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/corpora-indexer/internal/app"
	"github.com/markdave123-py/corpora-indexer/internal/config"
	"github.com/markdave123-py/corpora-indexer/internal/core/journal"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
	"github.com/markdave123-py/corpora-indexer/internal/telemetry"
)

const serviceName = "corpora-indexer"

var rootCmd = &cobra.Command{
	Use:          "indexer",
	Short:        "Keep a vector index in sync with the course file catalog",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the catalog and index changes until stopped",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			logger.Info("indexer is running")
			return a.Run(ctx)
		})
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single full sync pass and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			run, err := a.Loop.RunOnce(ctx, true)
			if err != nil {
				return err
			}
			cmd.Printf("Synced %d entries: %d processed, %d skipped, %d failed, %d chunks written.\n",
				run.Entries, run.Processed, run.Skipped, run.Failed, run.Chunks)
			return nil
		})
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the vector collection and payload indexes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger.Init(cfg.LogLevel, cfg.LogFormat)

		store, err := app.NewVectorStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.EnsureCollection(cmd.Context(), cfg.EmbedDim, true); err != nil {
			return err
		}
		cmd.Printf("Collection %q is ready.\n", cfg.Collection)
		return nil
	},
}

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync cycles from the journal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		j, err := journal.Open(config.LoadJournalPath())
		if err != nil {
			return err
		}
		defer j.Close()

		runs, err := j.Recent(cmd.Context(), statusLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			cmd.Println("No sync cycles recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tDURATION\tENTRIES\tCHANGED\tPROCESSED\tSKIPPED\tFAILED\tCHUNKS\tERROR")
		for _, r := range runs {
			duration := "running"
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%d\t%d\t%d\t%d\t%s\n",
				r.StartedAt.Format(time.RFC3339), duration, r.Entries, r.Changed,
				r.Processed, r.Skipped, r.Failed, r.Chunks, r.Error)
		}
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "number of cycles to show")
	rootCmd.AddCommand(runCmd, onceCmd, initCmd, statusCmd)
}

// withApp loads configuration, sets up logging and tracing, and hands a wired
// App to fn. Startup failures are fatal configuration errors.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	shutdown, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdown(shutdownCtx)
	}()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer application.Close()

	err = fn(ctx, application)
	logger.Info("shutting down")
	return err
}
