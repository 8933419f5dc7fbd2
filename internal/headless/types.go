package headless

import "github.com/goosehq/goose/pkg/types"

// OutputFormat defines the output format for headless mode.
type OutputFormat string

const (
	// OutputText is human-readable streaming text output.
	OutputText OutputFormat = "text"
	// OutputJSON is a final JSON result summary.
	OutputJSON OutputFormat = "json"
	// OutputJSONL is streaming JSONL events.
	OutputJSONL OutputFormat = "jsonl"
)

// ExitCode defines process exit codes for headless mode.
type ExitCode int

const (
	ExitSuccess      ExitCode = 0
	ExitError        ExitCode = 1
	ExitInvalidInput ExitCode = 5
)

// Config holds one headless run's parameters.
type Config struct {
	// Prompt is the instruction to execute. When it is empty, the
	// rendered prompt of the recipe at RecipePath is used.
	Prompt     string
	RecipePath string
	// Params are recipe parameter values.
	Params map[string]string

	WorkDir string

	// SessionName names the session file the run persists to; a
	// generated name is used when it is empty.
	SessionName string

	// AutoApprove answers every permission prompt with allow-once.
	AutoApprove bool

	OutputFormat OutputFormat
	Quiet        bool

	MaxTurns int
}

// Result summarizes a finished headless run.
type Result struct {
	Status    string          `json:"status"`
	ExitCode  ExitCode        `json:"exit_code"`
	FinalText string          `json:"final_text,omitempty"`
	Error     string          `json:"error,omitempty"`
	Messages  []types.Message `json:"messages,omitempty"`
}
