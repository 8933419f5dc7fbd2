package permission

import (
	"github.com/goosehq/goose/pkg/types"
)

// GooseMode controls how tool requests are gated for a session.
type GooseMode string

const (
	ModeAuto         GooseMode = "auto"
	ModeApprove      GooseMode = "approve"
	ModeSmartApprove GooseMode = "smart_approve"
	ModeChat         GooseMode = "chat"
)

// ParseMode normalizes a mode string, defaulting to smart_approve.
func ParseMode(s string) GooseMode {
	switch GooseMode(s) {
	case ModeAuto, ModeApprove, ModeSmartApprove, ModeChat:
		return GooseMode(s)
	default:
		return ModeSmartApprove
	}
}

// ModeForExecution maps a scheduled execution mode to a goose mode:
// foreground jobs run unattended with full tool access, background jobs
// stay read-only conversational.
func ModeForExecution(mode types.ExecutionMode) GooseMode {
	if mode == types.ExecutionBackground {
		return ModeChat
	}
	return ModeAuto
}

// PartitionResult buckets one turn's tool requests by gate outcome.
type PartitionResult struct {
	Approved      []types.ToolRequestContent
	NeedsApproval []types.ToolRequestContent
	Denied        []types.ToolRequestContent
}

// Partition applies the non-interactive part of the permission policy:
// persisted user decisions first, then the mode default. Only
// smart_approve consults read-only annotations and the shell parser.
// Chat mode never reaches Partition; the loop short-circuits it earlier.
func Partition(mode GooseMode, store *Store, tools map[string]types.Tool, requests []types.ToolRequestContent) PartitionResult {
	var result PartitionResult

	for _, req := range requests {
		if req.Call == nil {
			result.Denied = append(result.Denied, req)
			continue
		}
		name := req.Call.Name

		if store != nil {
			if level, ok := store.Get(name); ok {
				switch level {
				case AlwaysAllow:
					result.Approved = append(result.Approved, req)
					continue
				case NeverAllow:
					result.Denied = append(result.Denied, req)
					continue
				case AskBefore:
					result.NeedsApproval = append(result.NeedsApproval, req)
					continue
				}
			}
		}

		switch mode {
		case ModeAuto:
			result.Approved = append(result.Approved, req)
		case ModeApprove:
			result.NeedsApproval = append(result.NeedsApproval, req)
		default: // smart_approve
			if isReadOnlyCall(tools, req) {
				result.Approved = append(result.Approved, req)
			} else {
				result.NeedsApproval = append(result.NeedsApproval, req)
			}
		}
	}
	return result
}

// isReadOnlyCall reports whether a call can run without asking in
// smart_approve mode: the tool is annotated read-only, or it is a shell
// call whose parsed commands are all on the read-only list.
func isReadOnlyCall(tools map[string]types.Tool, req types.ToolRequestContent) bool {
	tool, ok := tools[req.Call.Name]
	if !ok {
		return false
	}
	if tool.Annotations != nil && tool.Annotations.ReadOnlyHint {
		return true
	}

	_, bare := SplitToolName(req.Call.Name)
	if bare == "shell" {
		return IsReadOnlyShellCall(req.Call.Arguments)
	}
	return false
}
