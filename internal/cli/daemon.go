package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jefeworks/jefe/internal/config"
	"github.com/jefeworks/jefe/internal/database"
	"github.com/jefeworks/jefe/internal/notify"
	"github.com/jefeworks/jefe/internal/runs"
	"github.com/jefeworks/jefe/internal/scheduler"
	"github.com/jefeworks/jefe/internal/server"
	"github.com/jefeworks/jefe/internal/workflow"
	"github.com/jefeworks/jefe/internal/workspace"
)

var daemonNoServer bool

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Aliases: []string{"start-daemon"},
	Short:   "Run the dispatch loop and dashboard API",
	Long: `Run the background daemon.

The daemon will:
  - Load the schedule table and recover interrupted runs
  - Poll for due workflows and run their agent pipelines
  - Record run history in SQLite and prune it on the retention schedule
  - Pick up schedule table changes made by the CLI while running
  - Serve the dashboard API unless --no-server is given`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonNoServer, "no-server", false, "disable the dashboard API")
	rootCmd.AddCommand(daemonCmd)
}

const pruneInterval = time.Hour

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLoggingConfig(&cfg.Logging)

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	runStore := runs.NewStore(db)

	registry := workflow.NewRegistry(workflow.RegistryOptions{
		DefaultTimeout: cfg.Pipeline.AgentTimeout,
		MaxOutputBytes: cfg.Pipeline.MaxOutputBytes,
	})
	if cfg.Pipeline.AgentsFile != "" {
		if err := registry.LoadFile(cfg.Pipeline.AgentsFile); err != nil {
			return err
		}
		log.Info().
			Strs("agents", registry.Names()).
			Str("file", cfg.Pipeline.AgentsFile).
			Msg("Agents loaded")
	} else {
		log.Warn().Msg("No agents file configured, workflows without agent_types will fail")
	}
	pipeline := workflow.NewPipeline(registry, registry.Names())

	store := scheduler.NewStore(cfg.Scheduler.StorePath)
	sched := scheduler.New(store, pipeline.Factory(), scheduler.Options{
		PollInterval: cfg.Scheduler.PollInterval,
		Workspaces:   workspace.NewManager(cfg.Workspaces.BaseDir),
		Runs:         runs.NewSink(runStore),
	})
	sched.LoadTable()
	sched.Start()
	defer sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Scheduler.WatchStore {
		go func() {
			if err := sched.WatchStore(ctx, cfg.Scheduler.WatchDebounce); err != nil {
				log.Warn().Err(err).Msg("Store watcher unavailable, CLI edits need a restart")
			}
		}()
	}

	if cfg.Runs.Retention > 0 {
		go prunePeriodically(ctx, runStore, &cfg.Runs)
	}

	if notifier := notify.New(&cfg.Notify, sched.Get); notifier != nil {
		events, _ := sched.Subscribe(64)
		go notifier.Run(ctx, events)
		log.Info().Str("webhook", cfg.Notify.WebhookURL).Msg("Notifications enabled")
	}

	var srv *server.Server
	errCh := make(chan error, 1)
	if cfg.Server.Enabled && !daemonNoServer {
		srv = server.New(cfg, sched, db, runStore, server.WithVersion(version))
		go func() {
			errCh <- srv.Start(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	cancel()
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Server shutdown error")
		}
	}
	return nil
}

// prunePeriodically applies the run retention policy once at startup and
// then hourly.
func prunePeriodically(ctx context.Context, store *runs.Store, cfg *config.RunsConfig) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		pruned, err := store.Prune(ctx, cfg.Retention, cfg.ArchiveDir)
		if err != nil {
			log.Warn().Err(err).Msg("Run pruning failed")
		} else if pruned > 0 {
			log.Info().Int("pruned", pruned).Msg("Old runs pruned")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
