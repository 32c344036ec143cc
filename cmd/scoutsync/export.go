package main

import (
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/scoutsync/internal/models"
)

var exportCmd = &cobra.Command{
	Use:     "export <match|pit>",
	Short:   "Snapshot every local record of a type",
	Long:    `Export writes exports/<type>-<timestamp>.json and uploads it when export.s3_bucket is set.`,
	Example: `  scoutsync export match`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordType, err := models.ParseRecordType(args[0])
		if err != nil {
			return err
		}

		result, err := apiClient.Exporter.Export(cmd.Context(), recordType)
		if result == nil {
			return err
		}

		if jsonOutput {
			printJSON(result)
		} else {
			printSuccess("Exported %d records to %s", result.Count, result.Path)
			if result.Location != "" {
				printInfo("   Published: %s", result.Location)
			}
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
