// Package types holds the wire types shared between the agent loop, the
// extension manager, the session log, and the scheduler.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is an ordered sequence of Content produced by one role.
type Message struct {
	Role    Role      `json:"role"`
	Content []Content `json:"content"`
	Created time.Time `json:"created"`
}

// ContentKind discriminates the Content tagged union.
type ContentKind string

const (
	ContentText                  ContentKind = "text"
	ContentImage                 ContentKind = "image"
	ContentThinking              ContentKind = "thinking"
	ContentRedactedThinking      ContentKind = "redacted_thinking"
	ContentToolRequest           ContentKind = "tool_request"
	ContentToolResponse          ContentKind = "tool_response"
	ContentToolConfirmation      ContentKind = "tool_confirmation_request"
	ContentContextLengthExceeded ContentKind = "context_length_exceeded"
	ContentFrontendToolRequest   ContentKind = "frontend_tool_request"
)

// Content is the tagged variant described in spec §3. Exactly one of the
// payload fields is populated, selected by Kind. Unknown/opaque payloads
// (RedactedThinking) are preserved byte-for-byte so they round-trip even
// if this binary never interprets them.
type Content struct {
	Kind ContentKind `json:"kind"`

	Text *TextContent `json:"text,omitempty"`

	Image *ImageContent `json:"image,omitempty"`

	Thinking *ThinkingContent `json:"thinking,omitempty"`

	RedactedThinking *RedactedThinkingContent `json:"redactedThinking,omitempty"`

	ToolRequest *ToolRequestContent `json:"toolRequest,omitempty"`

	ToolResponse *ToolResponseContent `json:"toolResponse,omitempty"`

	ToolConfirmation *ToolConfirmationContent `json:"toolConfirmation,omitempty"`

	ContextLengthExceeded *ContextLengthExceededContent `json:"contextLengthExceeded,omitempty"`

	FrontendToolRequest *FrontendToolRequestContent `json:"frontendToolRequest,omitempty"`
}

// TextContent is plain text.
type TextContent struct {
	Text string `json:"text"`
}

// ImageContent is an inline base64-encoded image.
type ImageContent struct {
	MimeType string `json:"mimeType"`
	DataB64  string `json:"dataB64"`
}

// ThinkingContent is provider reasoning text that round-trips opaquely.
type ThinkingContent struct {
	Text      string `json:"text"`
	Signature string `json:"signature"`
}

// RedactedThinkingContent is an opaque, provider-encrypted reasoning blob.
// It is never interpreted, only preserved.
type RedactedThinkingContent struct {
	Data string `json:"data"`
}

// ToolCall is the name + arguments half of a tool request.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolRequestContent is a model-issued request to invoke a tool.
// Call holds the ToolCall in the normal case; Error is set instead when
// the model's own tool-call payload failed to parse.
type ToolRequestContent struct {
	ID    string     `json:"id"`
	Call  *ToolCall  `json:"call,omitempty"`
	Error *ToolError `json:"error,omitempty"`
}

// ToolResponseContent answers an earlier ToolRequestContent by ID.
type ToolResponseContent struct {
	ID      string     `json:"id"`
	Content []Content  `json:"content,omitempty"`
	Error   *ToolError `json:"error,omitempty"`
}

// ToolConfirmationContent is an internal UI signal never sent to a provider.
type ToolConfirmationContent struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Prompt    string          `json:"prompt"`
}

// ContextLengthExceededContent marks a provider-reported context overflow.
type ContextLengthExceededContent struct {
	Message string `json:"message"`
}

// FrontendToolRequestContent is a tool call delegated to the caller's UI.
type FrontendToolRequestContent struct {
	ID   string   `json:"id"`
	Call ToolCall `json:"call"`
}

// ToolError is the error shape packaged into a ToolResponse instead of
// being raised, per spec §4.4/§7.
type ToolError struct {
	Kind    ToolErrorKind `json:"kind"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// ToolErrorKind enumerates the *Tool* error taxonomy of spec §7.
type ToolErrorKind string

const (
	ToolErrNotFound          ToolErrorKind = "not_found"
	ToolErrInvalidParameters ToolErrorKind = "invalid_parameters"
	ToolErrExecutionError    ToolErrorKind = "execution_error"
)

// Constructors keep call sites terse and guarantee Kind/payload agreement.

func NewTextContent(text string) Content {
	return Content{Kind: ContentText, Text: &TextContent{Text: text}}
}

func NewImageContent(mimeType, dataB64 string) Content {
	return Content{Kind: ContentImage, Image: &ImageContent{MimeType: mimeType, DataB64: dataB64}}
}

func NewThinkingContent(text, signature string) Content {
	return Content{Kind: ContentThinking, Thinking: &ThinkingContent{Text: text, Signature: signature}}
}

func NewRedactedThinkingContent(data string) Content {
	return Content{Kind: ContentRedactedThinking, RedactedThinking: &RedactedThinkingContent{Data: data}}
}

func NewToolRequestContent(id string, call ToolCall) Content {
	return Content{Kind: ContentToolRequest, ToolRequest: &ToolRequestContent{ID: id, Call: &call}}
}

func NewToolRequestError(id string, toolErr *ToolError) Content {
	return Content{Kind: ContentToolRequest, ToolRequest: &ToolRequestContent{ID: id, Error: toolErr}}
}

func NewToolResponseContent(id string, content []Content) Content {
	return Content{Kind: ContentToolResponse, ToolResponse: &ToolResponseContent{ID: id, Content: content}}
}

func NewToolResponseError(id string, toolErr *ToolError) Content {
	return Content{Kind: ContentToolResponse, ToolResponse: &ToolResponseContent{ID: id, Error: toolErr}}
}

func NewToolConfirmationContent(id, name string, args json.RawMessage, prompt string) Content {
	return Content{Kind: ContentToolConfirmation, ToolConfirmation: &ToolConfirmationContent{
		ID: id, Name: name, Arguments: args, Prompt: prompt,
	}}
}

func NewContextLengthExceededContent(message string) Content {
	return Content{Kind: ContentContextLengthExceeded, ContextLengthExceeded: &ContextLengthExceededContent{Message: message}}
}

func NewFrontendToolRequestContent(id string, call ToolCall) Content {
	return Content{Kind: ContentFrontendToolRequest, FrontendToolRequest: &FrontendToolRequestContent{ID: id, Call: call}}
}

// ToolRequestIDs returns the ids of every ToolRequest content item in msg,
// in first-seen order, used to enforce invariant A.
func (m Message) ToolRequestIDs() []string {
	var ids []string
	for _, c := range m.Content {
		if c.Kind == ContentToolRequest && c.ToolRequest != nil {
			ids = append(ids, c.ToolRequest.ID)
		}
	}
	return ids
}

// ToolResponseIDs returns the ids of every ToolResponse content item in msg.
func (m Message) ToolResponseIDs() []string {
	var ids []string
	for _, c := range m.Content {
		if c.Kind == ContentToolResponse && c.ToolResponse != nil {
			ids = append(ids, c.ToolResponse.ID)
		}
	}
	return ids
}

// HasToolRequests reports whether msg carries any non-frontend tool request.
func (m Message) HasToolRequests() bool {
	for _, c := range m.Content {
		if c.Kind == ContentToolRequest {
			return true
		}
	}
	return false
}
