package agent

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const basePrompt = `You are goose, an AI agent from Block. You operate a computer on the user's behalf through the tools listed below.

Guidelines:
- Prefer taking action with tools over describing what you would do
- Report results faithfully, including failures
- Ask before destructive operations unless the user has pre-approved them`

// buildSystemPrompt assembles the system prompt from the base prompt,
// the active recipe's instructions, the running extensions'
// instructions, and environment context. Re-derived whenever the
// extension set changes mid-loop.
func (a *Agent) buildSystemPrompt(session *SessionConfig) string {
	var parts []string
	parts = append(parts, basePrompt)

	if recipe := a.activeRecipe(); recipe != nil && recipe.Instructions != "" {
		parts = append(parts, "# Task instructions\n"+recipe.Instructions)
	}

	if inst := a.extensions.Instructions(); inst != "" {
		parts = append(parts, "# Extensions\n"+inst)
	}

	parts = append(parts, a.environmentContext(session))

	return strings.Join(parts, "\n\n")
}

// environmentContext describes where and when the agent is running.
func (a *Agent) environmentContext(session *SessionConfig) string {
	workingDir := ""
	if session != nil {
		workingDir = session.WorkingDir
	}
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}

	return fmt.Sprintf("# Environment\nWorking directory: %s\nDate: %s\nHost: %s",
		workingDir,
		time.Now().Format("2006-01-02"),
		runtimeDescription(),
	)
}

func runtimeDescription() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown host"
	}
	return host
}
