package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/scoutsync/internal/models"
)

var saveCmd = &cobra.Command{
	Use:   "save <match|pit> <entity>",
	Short: "Save a scouting record",
	Long: `Save writes one record remote-then-local. When the remote is unreachable
the record is stored locally and queued for the next reconcile pass.`,
	Example: `  scoutsync save match 254 --payload '{"auto":12,"teleop":40}'
  scoutsync save pit 971 --file pit-971.json
  cat record.json | scoutsync save match 1678 --file -`,
	Args: cobra.ExactArgs(2),
	RunE: runSave,
}

var (
	savePayload string
	saveFile    string
	saveID      string
)

func init() {
	rootCmd.AddCommand(saveCmd)

	saveCmd.Flags().StringVarP(&savePayload, "payload", "p", "",
		"Record payload as JSON")
	saveCmd.Flags().StringVarP(&saveFile, "file", "f", "",
		"Read the payload from a file (- for stdin)")
	saveCmd.Flags().StringVar(&saveID, "id", "",
		"Use this identifier instead of generating one")

	saveCmd.MarkFlagsMutuallyExclusive("payload", "file")
}

func runSave(cmd *cobra.Command, args []string) error {
	recordType, err := models.ParseRecordType(args[0])
	if err != nil {
		return err
	}

	payload, err := readPayload()
	if err != nil {
		return err
	}

	rec := models.NewRecord(recordType, args[1], payload, time.Now())
	if saveID != "" {
		rec.ID = models.NormalizeID(saveID)
	}

	result, err := apiClient.Sync.Save(cmd.Context(), &rec)
	if err != nil {
		return err
	}
	apiClient.Sync.WaitAudits()

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"id":      rec.ID,
			"result":  result,
		})
		return nil
	}

	switch {
	case result.Remote && result.Local:
		printSuccess("Saved %s (synced)", rec.ID)
	case result.Queued:
		printWarning("Saved %s locally, queued for sync", rec.ID)
	case !result.Local:
		printWarning("Saved %s remotely, local copy failed", rec.ID)
	default:
		printWarning("Saved %s locally, not queued", rec.ID)
	}
	printInfo("   Path: %s", result.Path)

	return nil
}

func readPayload() (json.RawMessage, error) {
	var data []byte

	switch {
	case savePayload != "":
		data = []byte(savePayload)
	case saveFile == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		data = b
	case saveFile != "":
		b, err := os.ReadFile(saveFile)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		data = b
	default:
		data = []byte("{}")
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", models.ErrInvalidRecord)
	}
	return json.RawMessage(data), nil
}
