package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soumenroys/imotara-mobile-sub000/internal/export"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the transcript as JSON or YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, closeApp, err := openApp(nil)
		if err != nil {
			return err
		}
		defer closeApp()

		records := application.store.Records()
		switch exportFormat {
		case "json":
			return export.WriteJSON(os.Stdout, records)
		case "yaml":
			return export.WriteYAML(os.Stdout, records)
		default:
			return fmt.Errorf("unknown format %q (want json or yaml)", exportFormat)
		}
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format (json or yaml)")
}
