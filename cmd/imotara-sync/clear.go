package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all local records and reset sync state",
	Long: `Empty the local store, reset its persisted encoding, and clear the
sync session (an empty store has nothing pending and no sync history).

Unsynced records are lost. Asks for confirmation unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, closeApp, err := openApp(nil)
		if err != nil {
			return err
		}
		defer closeApp()

		count := application.store.Len()
		if count == 0 {
			fmt.Println("Store is already empty.")
			return nil
		}

		if !clearForce {
			confirmed := false
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Delete all %d local records?", count)).
					Description("Records not yet synced will be lost.").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := application.store.Clear(); err != nil {
			return err
		}
		application.sched.Reset()

		fmt.Printf("Deleted %d records.\n", count)
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVar(&clearForce, "force", false, "skip the confirmation prompt")
}
