package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soumenroys/imotara-mobile-sub000/internal/record"
)

var addSpeaker string

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a local record to the store",
	Long: `Add one chat record to the local store in the unsynced state.

The record is assigned a fresh id and the current timestamp, and the
auto-sync timer is armed so it gets pushed shortly.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		speaker := record.Speaker(strings.ToLower(addSpeaker))
		if speaker != record.SpeakerUser && speaker != record.SpeakerBot {
			return fmt.Errorf("invalid --speaker %q (want user or bot)", addSpeaker)
		}

		application, closeApp, err := openApp(nil)
		if err != nil {
			return err
		}
		defer closeApp()

		r := record.Record{
			ID:        uuid.NewString(),
			Text:      strings.Join(args, " "),
			Speaker:   speaker,
			Timestamp: time.Now().UnixMilli(),
			SyncState: record.StateLocal,
		}
		if err := application.store.Add(r); err != nil {
			return err
		}
		application.sched.NotifyChanged()

		if err := application.store.Flush(); err != nil {
			return fmt.Errorf("failed to persist record: %w", err)
		}
		fmt.Printf("Added record %s\n", r.ID)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addSpeaker, "speaker", "user", "speaker of the record (user or bot)")
}
