// Package commands provides the CLI commands for goose.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/goosehq/goose/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	logFile   bool
)

var rootCmd = &cobra.Command{
	Use:   "goose",
	Short: "goose - an AI agent on your machine",
	Long: `goose is an AI agent that runs on your machine, driving a language
model in a tool-using loop backed by pluggable extensions.

Run 'goose run -t "do something"' for a one-shot task, or
'goose schedule add' to run recipes on a cron.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A repo-local .env is convenient for API keys in development.
		_ = godotenv.Load()

		logCfg := logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			Pretty:    printLogs,
			LogToFile: logFile,
		}
		if !printLogs && !logFile {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Write logs to /tmp/goose-YYYYMMDD-HHMMSS.log")

	rootCmd.SetVersionTemplate(fmt.Sprintf("goose %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(schedServiceCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
