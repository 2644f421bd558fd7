package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/soumenroys/imotara-mobile-sub000/internal/record"
)

var listSince string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records in display order",
	Long: `Print the transcript in ascending timestamp order.

--since accepts natural language ("yesterday", "2 hours ago") as well as
plain dates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cutoff int64
		if listSince != "" {
			w := when.New(nil)
			w.Add(en.All...)
			w.Add(common.All...)
			result, err := w.Parse(listSince, time.Now())
			if err != nil || result == nil {
				return fmt.Errorf("could not understand --since %q", listSince)
			}
			cutoff = result.Time.UnixMilli()
		}

		application, closeApp, err := openApp(nil)
		if err != nil {
			return err
		}
		defer closeApp()

		records := application.store.Records()
		shown := 0
		for _, r := range records {
			if cutoff > 0 && r.Timestamp < cutoff {
				continue
			}
			marker := " "
			if r.SyncState == record.StateLocal {
				marker = "*"
			}
			ts := time.UnixMilli(r.Timestamp).Format("2006-01-02 15:04")
			fmt.Printf("%s %s  %-4s  %s\n", marker, ts, r.Speaker, r.Text)
			shown++
		}

		if shown == 0 {
			fmt.Println("No records.")
		} else {
			fmt.Printf("\n%d records (* = not yet synced)\n", shown)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listSince, "since", "", "only show records at or after this time")
}
