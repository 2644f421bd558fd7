package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var (
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(16)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	attnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, closeApp, err := openApp(nil)
		if err != nil {
			return err
		}
		defer closeApp()

		// Plain output when the terminal has no color support.
		if termenv.EnvColorProfile() == termenv.Ascii {
			labelStyle = lipgloss.NewStyle().Width(16)
			okStyle, attnStyle, mutedStyle = lipgloss.NewStyle(), lipgloss.NewStyle(), lipgloss.NewStyle()
			headerStyle = lipgloss.NewStyle()
		}

		snap := application.sched.Status()
		unsynced := len(application.store.Unsynced())

		fmt.Println(headerStyle.Render("imotara sync status"))
		fmt.Printf("%s %d\n", labelStyle.Render("Records:"), application.store.Len())

		pending := okStyle.Render("none")
		if unsynced > 0 {
			pending = attnStyle.Render(fmt.Sprintf("%d pending", unsynced))
		}
		fmt.Printf("%s %s\n", labelStyle.Render("Unsynced:"), pending)

		syncing := "no"
		if snap.IsSyncing {
			syncing = "yes"
		}
		fmt.Printf("%s %s\n", labelStyle.Render("Syncing:"), syncing)

		lastStatus := snap.LastSyncStatus
		if lastStatus == "" {
			lastStatus = mutedStyle.Render("never synced")
		}
		fmt.Printf("%s %s\n", labelStyle.Render("Last status:"), lastStatus)

		if snap.LastSyncAt != nil {
			fmt.Printf("%s %s\n", labelStyle.Render("Last attempt:"), snap.LastSyncAt.Format(time.RFC3339))
		}
		return nil
	},
}
