package agent

import (
	"context"
	"os/exec"
	"runtime"
	"time"

	"github.com/goosehq/goose/internal/logging"
)

// successCheckTimeout bounds one declared success-check command.
const successCheckTimeout = 60 * time.Second

// shouldRetry runs the recipe's declared success checks after a turn
// that produced no tool call. It reports true when any check failed and
// the attempt budget still allows a retry; the loop then restores the
// initial messages snapshot and clears the final-output value.
func (a *Agent) shouldRetry(ctx context.Context, attempts int) bool {
	recipe := a.activeRecipe()
	if recipe == nil || recipe.Response == nil {
		return false
	}
	checks := recipe.Response.SuccessChecks
	maxRetries := recipe.Response.MaxRetries
	if len(checks) == 0 || maxRetries <= 0 || attempts >= maxRetries {
		return false
	}

	for _, check := range checks {
		if err := runSuccessCheck(ctx, check); err != nil {
			logging.Info().
				Str("check", check).
				Int("attempt", attempts+1).
				Err(err).
				Msg("success check failed; retrying from initial messages")
			return true
		}
	}
	return false
}

func runSuccessCheck(ctx context.Context, command string) error {
	checkCtx, cancel := context.WithTimeout(ctx, successCheckTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(checkCtx, "cmd.exe", "/c", command)
	} else {
		cmd = exec.CommandContext(checkCtx, "sh", "-c", command)
	}
	return cmd.Run()
}
