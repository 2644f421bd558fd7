package main

import (
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/soumenroys/imotara-mobile-sub000/internal/config"
	"github.com/soumenroys/imotara-mobile-sub000/internal/inbox"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch the inbox directory and sync in the background",
	Long: `Run the background ingestion and sync loop.

The daemon watches the inbox directory for record files dropped by the
application, adds them to the local store, and lets the scheduler push
them after the configured debounce delay. It exits cleanly on SIGINT or
SIGTERM; an in-flight push runs to completion first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logger := log.New(daemonLogWriter(cfg), "[daemon] ", log.LstdFlags)

		application, closeApp, err := openApp(logger)
		if err != nil {
			return err
		}
		defer closeApp()

		watcher, err := inbox.New(cfg.InboxDir, application.store, application.sched, &inbox.Config{
			DebounceInterval: inbox.DefaultConfig().DebounceInterval,
			Logger:           logger,
		})
		if err != nil {
			return err
		}

		// Anything unsynced from a previous run should get a timer now.
		application.sched.NotifyChanged()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Printf("Daemon starting (inbox=%s, remote=%s)", cfg.InboxDir, cfg.RemoteBaseURL)
		return watcher.Start(ctx)
	},
}

// daemonLogWriter sends daemon logs to a rotating file when one is
// configured, always mirroring to stderr.
func daemonLogWriter(cfg *config.Config) io.Writer {
	if cfg.LogFile == "" {
		return os.Stderr
	}
	return io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	})
}
