package main

import (
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Retry every queued write now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiClient.Sync.Reconcile(cmd.Context())
		apiClient.Sync.WaitAudits()
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(result)
			return nil
		}

		if result.Remaining > 0 {
			printWarning("Reconciled %d, %d failed, %d still pending",
				result.Succeeded, result.Failed, result.Remaining)
		} else {
			printSuccess("Reconciled %d, nothing pending", result.Succeeded)
		}
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Merge the remote record set into local storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiClient.Sync.Pull(cmd.Context())

		if jsonOutput {
			out := map[string]interface{}{
				"success": err == nil,
				"result":  result,
			}
			if err != nil {
				out["error"] = err.Error()
			}
			printJSON(out)
			return err
		}

		printInfo("Fetched %d, inserted %d, updated %d",
			result.Fetched, result.Inserted, result.Updated)
		if err != nil {
			return err
		}
		printSuccess("Pull complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(pullCmd)
}
