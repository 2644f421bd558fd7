package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soumenroys/imotara-mobile-sub000/internal/scheduler"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one manual sync (push unsynced records, fetch and merge remote ones)",
	Long: `Trigger one reconciliation attempt through the scheduler.

The attempt pushes all unsynced local records in a single batch, then
fetches the remote record list and merges anything new into the local
store. Triggers inside the throttle window, or while another attempt is
running, return without starting work.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, closeApp, err := openApp(nil)
		if err != nil {
			return err
		}
		defer closeApp()

		outcome := application.sched.Trigger(cmd.Context(), "manual")
		snap := application.sched.Status()

		switch outcome {
		case scheduler.OutcomeThrottled:
			fmt.Println("Sync requested too soon, please wait a moment.")
		case scheduler.OutcomeAlreadyRunning:
			fmt.Println("A sync is already in progress.")
		case scheduler.OutcomeFailed:
			fmt.Fprintf(os.Stderr, "Sync failed: %s\n", snap.LastSyncStatus)
			os.Exit(1)
		default:
			fmt.Println(snap.LastSyncStatus)
		}
		return nil
	},
}
