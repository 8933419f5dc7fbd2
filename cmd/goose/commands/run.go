package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goosehq/goose/internal/headless"
)

var (
	runPrompt       string
	runRecipe       string
	runParams       []string
	runSessionName  string
	runOutputFormat string
	runQuiet        bool
	runAutoApprove  bool
	runMaxTurns     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a prompt or recipe headlessly",
	Long: `Run executes one agent session without the interactive UI.

Examples:
  goose run -t "summarize the failing tests"
  goose run --recipe daily-report.yaml --param repo=goose
  goose run -t "fix the lint errors" --auto-approve --output jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := os.Getwd()
		if err != nil {
			return err
		}

		params := make(map[string]string, len(runParams))
		for _, kv := range runParams {
			if k, v, ok := splitKeyValue(kv); ok {
				params[k] = v
			}
		}

		runner := headless.NewRunner(&headless.Config{
			Prompt:       runPrompt,
			RecipePath:   runRecipe,
			Params:       params,
			WorkDir:      workDir,
			SessionName:  runSessionName,
			AutoApprove:  runAutoApprove,
			OutputFormat: headless.OutputFormat(runOutputFormat),
			Quiet:        runQuiet,
			MaxTurns:     runMaxTurns,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := runner.Run(ctx, os.Stdout)
		if err != nil {
			os.Exit(int(result.ExitCode))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runPrompt, "text", "t", "", "Prompt text to execute")
	runCmd.Flags().StringVar(&runRecipe, "recipe", "", "Recipe file to execute (YAML or JSON)")
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "Recipe parameter as key=value (repeatable)")
	runCmd.Flags().StringVar(&runSessionName, "name", "", "Session name (default: timestamp)")
	runCmd.Flags().StringVarP(&runOutputFormat, "output", "o", "text", "Output format: text, json, jsonl")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print assistant text")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve every tool call without asking")
	runCmd.Flags().IntVar(&runMaxTurns, "max-turns", 0, "Cap on model turns (0 = default)")
}

func splitKeyValue(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
