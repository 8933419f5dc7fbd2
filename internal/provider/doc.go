// Package provider implements the uniform LLM completion contract over
// the Eino framework.
//
// Every backend reduces to:
//
//	Complete(ctx, system, messages, tools) -> (message, usage, error)
//
// with an optional Streamer variant the agent loop prefers. Anthropic
// Claude (direct or Bedrock), OpenAI (direct, Azure, or any compatible
// endpoint), and Volcengine ARK adapters are built on eino-ext chat
// models; all of them collate streamed fragments into a single assistant
// message before yielding, so the agent always sees whole messages.
//
// Errors carry a kind the agent loop dispatches on. Context-window
// exhaustion in particular is detected from backend messages and
// surfaced as ErrContextLengthExceeded so the loop can trap it and let
// the caller choose between clearing, truncating, or summarizing.
//
// A LeadWorkerProvider pairs a stronger lead model with a cheaper
// worker; usage reports name the active sub-model so the loop can emit
// ModelChange events when the pair hands off.
package provider
