// Package permission gates tool execution on user consent.
//
// Three pieces cooperate:
//
//   - Store persists per-tool decisions (always_allow, ask_before,
//     never_allow) to a YAML file so they survive restarts. Entries may
//     be glob patterns over the prefixed tool name ("developer__*").
//   - Partition applies the non-interactive policy for a turn's tool
//     requests: persisted decisions first, then the session's goose
//     mode (auto approves everything, approve asks for everything,
//     smart_approve asks only for calls that are not provably
//     read-only). Chat mode never reaches the partition step; the agent
//     loop short-circuits every call with a skipped response.
//   - Checker brokers the interactive prompts for the needs-approval
//     bucket: it publishes a permission.required event and blocks until
//     the UI responds with allow-once, always-allow, deny-once, or
//     cancel. Always-allow answers are written back to the Store.
//
// Shell calls get special treatment in smart_approve mode: the command
// line is parsed with mvdan.cc/sh and auto-approved only when every
// command in the pipeline is on the read-only list.
package permission
