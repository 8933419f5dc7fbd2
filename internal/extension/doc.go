/*
Package extension manages the lifecycle of tool-provider clients and
routes tool calls to them.

Four kinds of extension exist, mirroring the ExtensionConfig variants:

  - Stdio: a subprocess speaking newline-framed JSON-RPC. Requests are
    multiplexed by id, so concurrent dispatches to one client
    interleave; out-of-band notifications are routed back to the
    request they belong to (progress notifications by token, message
    notifications to the most recent in-flight request).
  - SSE: a server-sent-events endpoint driven through the mcp-go
    client.
  - Builtin: an in-process tool set (developer shell/editor, web
    fetch), no transport at all.
  - Frontend: a recorded tool list whose execution is delegated to the
    calling UI; the manager catalogues these but never dispatches them.

The agent-visible catalog prefixes every tool name "extension__tool";
dispatch right-splits on "__" to recover the owning client. Dispatch
returns a ToolCallResult: a lazy notification stream for the lifetime of
the call plus a one-shot result channel. Execution failures are packaged
into the result as ToolErrors, never raised — a failing tool must not
crash the agent.

Secrets named by an extension's env_keys are resolved from the config
store at start and merged with the inline env map. Start failures
surface as SetupError.
*/
package extension
