package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/scoutsync/internal/client"
	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/events"
)

var (
	// Global flags
	cfgFile    string
	jsonOutput bool
	logLevel   string

	// Shared state built in PersistentPreRunE
	loader    *config.Loader
	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "scoutsync",
	Short: "Offline-first storage and sync for scouting records",
	Long: `scoutsync saves match and pit scouting records to durable local storage
and reconciles them with the remote record API whenever it is reachable.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file (default: ./scoutsync.yaml or ~/.config/scoutsync/scoutsync.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output JSON instead of text")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level override (debug, info, warn, error)")
}

// Execute runs the root command and releases the client whether or not the
// command failed. Cobra skips post-run hooks after a RunE error.
func Execute() error {
	err := rootCmd.Execute()
	teardown()
	return err
}

func setup(cmd *cobra.Command, args []string) error {
	loader = config.NewLoader(cfgFile)

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if jsonOutput || !cfg.Log.Color {
		color.NoColor = true
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	apiClient, err = client.New(cfg, logger)
	if err != nil {
		return err
	}

	return nil
}

func teardown() {
	if apiClient != nil {
		if err := apiClient.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close client")
		}
		apiClient = nil
	}
	if logger != nil {
		_ = logger.Close()
		logger = nil
	}
}

// Output helpers

func printSuccess(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(os.Stdout, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(os.Stdout, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(os.Stderr, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf(format, args...),
		})
		return
	}
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
