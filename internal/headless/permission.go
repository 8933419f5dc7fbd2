package headless

import (
	"github.com/goosehq/goose/internal/event"
	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/internal/permission"
)

// AutoApprove answers every permission prompt with allow-once. Headless
// runs have nobody to ask; the returned function unsubscribes.
func AutoApprove(checker *permission.Checker) func() {
	return event.Subscribe(event.PermissionRequired, func(e event.Event) {
		data, ok := e.Data.(event.PermissionRequiredData)
		if !ok {
			return
		}
		logging.Info().Str("tool", data.ToolName).Msg("auto-approving tool call")
		checker.Respond(data.ID, permission.DecisionAllowOnce)
	})
}
