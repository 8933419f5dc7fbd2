/*
Package agent implements the reply loop: the cooperative state machine
that interleaves provider completions with tool dispatch.

One Reply invocation yields a lazy sequence of AgentEvents. Each loop
iteration is one model turn:

 1. Cancellation and the stored final output are checked first.
 2. The turn counter is bounded by max_turns.
 3. A provider completion is streamed. Pure text extends the history
    and the loop exits at end of stream; tool requests are gated by the
    permission engine, dispatched concurrently through the extension
    manager, and their responses collected into a single user message
    in the order each request id was first seen.
 4. Context-window exhaustion is trapped and surfaced as a
    ContextLengthExceeded message; the caller picks a recovery helper
    (ClearContext, TruncateContext, SummarizeContext) and re-enters.

Ordering guarantees per turn: the assistant message is yielded before
any dispatch begins, notifications for a request are yielded between the
assistant and user messages, and the user message is yielded after every
tool in the turn has finished or cancellation was observed.

Platform tools (manage_extensions, manage_schedule, resource access,
dynamic tasks, subagents, final_output, sub-recipes) are recognized by
fixed names and short-circuited before extension routing.

When a session id is configured, messages persist to the session file as
they are appended and token counters fold into its header after every
usage report.
*/
package agent
