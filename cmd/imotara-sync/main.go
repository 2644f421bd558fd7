// Command imotara-sync manages the local chat record store and its
// reconciliation with the imotara record service.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/soumenroys/imotara-mobile-sub000/internal/config"
	"github.com/soumenroys/imotara-mobile-sub000/internal/engine"
	"github.com/soumenroys/imotara-mobile-sub000/internal/remote"
	"github.com/soumenroys/imotara-mobile-sub000/internal/scheduler"
	"github.com/soumenroys/imotara-mobile-sub000/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "imotara-sync",
	Short: "Local-first chat record store with remote sync",
	Long: `imotara-sync keeps a local, offline-usable store of chat records and
reconciles it with the remote imotara record service.

Records created locally stay usable offline and are pushed in batches when
a sync runs. Records observed on the remote are normalized and merged into
the local store, deduplicated by id.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./imotara.yaml)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(daemonCmd)
}

// app bundles the wired components behind every command.
type app struct {
	cfg   *config.Config
	store *store.Store
	eng   *engine.Engine
	sched *scheduler.Scheduler
}

// openApp loads configuration and wires store, engine, and scheduler.
// The caller MUST call close() when done.
func openApp(logger *log.Logger) (*app, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	client := remote.NewClient(cfg.RemoteBaseURL, cfg.RequestTimeout, logger)
	eng := engine.New(st, client, logger)
	sched := scheduler.New(eng, st, &scheduler.Config{
		ThrottleWindow: cfg.ThrottleWindow,
		AutoSyncDelay:  scheduler.ClampDelay(cfg.AutoSyncDelaySeconds),
		Logger:         logger,
	})

	closeAll := func() {
		sched.Close()
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
		}
	}
	return &app{cfg: cfg, store: st, eng: eng, sched: sched}, closeAll, nil
}
