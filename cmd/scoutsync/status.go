package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and pending writes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status := apiClient.Sync.Status(cmd.Context())

		if jsonOutput {
			printJSON(status)
			return nil
		}

		if status.Online {
			printSuccess("%s", status)
		} else {
			printWarning("%s", status)
		}
		printInfo("   Backend: %s", status.Backend)
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List writes awaiting remote confirmation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := apiClient.Sync.Queue()

		if jsonOutput {
			printJSON(entries)
			return nil
		}

		if len(entries) == 0 {
			printSuccess("Nothing pending")
			return nil
		}

		fmt.Printf("%-6s %-24s %s\n", "TYPE", "QUEUED", "PATH")
		for _, e := range entries {
			fmt.Printf("%-6s %-24s %s\n", e.Type, e.Created().Format("2006-01-02 15:04:05"), e.RelativePath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queueCmd)
}
