// Package provider provides the LLM provider abstraction over the Eino
// framework. Every backend is reduced to one contract: complete a
// (system, messages, tools) request into a single assistant message plus
// token usage, with an optional streaming variant.
package provider

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/goosehq/goose/pkg/types"
)

// Provider is the uniform completion contract of the agent loop.
type Provider interface {
	// Name identifies the provider (and its active model) for usage
	// accounting.
	Name() string

	// Complete runs one completion and returns the assistant message.
	// Context-window exhaustion must surface as a *Error with kind
	// ErrContextLengthExceeded so the agent loop can trap it.
	Complete(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*types.Message, types.ProviderUsage, error)
}

// Streamer is the optional streaming variant. The agent prefers it when
// available.
type Streamer interface {
	Provider

	// Stream starts a completion and returns a stream of items. The
	// final item carries the collated message and usage.
	Stream(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*Stream, error)
}

// StreamItem is one element of a completion stream. Either field may be
// nil; providers that deliver fragments collate them before yielding a
// message.
type StreamItem struct {
	Message *types.Message
	Usage   *types.ProviderUsage
}

// Stream delivers StreamItems until io.EOF.
type Stream struct {
	items <-chan StreamItem
	errCh <-chan error
	done  bool
}

// NewStream builds a stream from channels. The producer closes items
// then sends at most one error (or closes errCh) when finished.
func NewStream(items <-chan StreamItem, errCh <-chan error) *Stream {
	return &Stream{items: items, errCh: errCh}
}

// Recv returns the next item, io.EOF at end of stream, or the producer's
// terminal error.
func (s *Stream) Recv() (StreamItem, error) {
	if s.done {
		return StreamItem{}, io.EOF
	}
	item, ok := <-s.items
	if !ok {
		s.done = true
		if err, ok := <-s.errCh; ok && err != nil {
			return StreamItem{}, err
		}
		return StreamItem{}, io.EOF
	}
	return item, nil
}

// einoChatModel abstracts the slice of eino's chat model the adapters
// use, so tests can fake it.
type einoChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
	Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
	WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error)
}

// complete runs a non-streaming eino completion for an adapter.
func complete(ctx context.Context, chatModel einoChatModel, modelName, system string, messages []types.Message, tools []types.Tool) (*types.Message, types.ProviderUsage, error) {
	bound, err := bindTools(chatModel, tools)
	if err != nil {
		return nil, types.ProviderUsage{}, wrapError(modelName, err)
	}

	reply, err := bound.Generate(ctx, toEinoMessages(system, messages))
	if err != nil {
		return nil, types.ProviderUsage{}, wrapError(modelName, err)
	}

	msg := fromEinoMessage(reply)
	return &msg, usageFromMeta(modelName, reply.ResponseMeta), nil
}

// stream runs a streaming eino completion for an adapter, collating
// fragments into one final message.
func stream(ctx context.Context, chatModel einoChatModel, modelName, system string, messages []types.Message, tools []types.Tool) (*Stream, error) {
	bound, err := bindTools(chatModel, tools)
	if err != nil {
		return nil, wrapError(modelName, err)
	}

	reader, err := bound.Stream(ctx, toEinoMessages(system, messages))
	if err != nil {
		return nil, wrapError(modelName, err)
	}

	items := make(chan StreamItem, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errCh)
		defer reader.Close()

		collator := newCollator()
		for {
			chunk, err := reader.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				errCh <- wrapError(modelName, err)
				return
			}
			collator.add(chunk)
		}

		msg, usage := collator.finish(modelName)
		select {
		case items <- StreamItem{Message: &msg, Usage: &usage}:
		case <-ctx.Done():
		}
	}()

	return NewStream(items, errCh), nil
}

func bindTools(chatModel einoChatModel, tools []types.Tool) (einoChatModel, error) {
	if len(tools) == 0 {
		return chatModel, nil
	}
	bound, err := chatModel.WithTools(toEinoTools(tools))
	if err != nil {
		return nil, err
	}
	return bound, nil
}

// collator accumulates eino stream chunks: text and reasoning deltas
// concatenate, tool-call argument fragments append by index.
type collator struct {
	text      strings.Builder
	reasoning strings.Builder

	toolOrder []string
	toolCalls map[string]*schema.ToolCall
	toolArgs  map[string]*strings.Builder

	meta *schema.ResponseMeta
}

func newCollator() *collator {
	return &collator{
		toolCalls: make(map[string]*schema.ToolCall),
		toolArgs:  make(map[string]*strings.Builder),
	}
}

func (c *collator) add(chunk *schema.Message) {
	if chunk.Content != "" {
		// Some backends send accumulated content, others deltas.
		if strings.HasPrefix(chunk.Content, c.text.String()) && len(chunk.Content) > c.text.Len() && c.text.Len() > 0 {
			full := chunk.Content
			c.text.Reset()
			c.text.WriteString(full)
		} else {
			c.text.WriteString(chunk.Content)
		}
	}
	if chunk.ReasoningContent != "" {
		c.reasoning.WriteString(chunk.ReasoningContent)
	}

	for _, tc := range chunk.ToolCalls {
		key := tc.ID
		if key == "" && tc.Index != nil {
			for k, existing := range c.toolCalls {
				if existing.Index != nil && *existing.Index == *tc.Index {
					key = k
					break
				}
			}
		}
		if key == "" {
			continue
		}

		if _, ok := c.toolCalls[key]; !ok {
			copied := tc
			c.toolCalls[key] = &copied
			c.toolArgs[key] = &strings.Builder{}
			c.toolOrder = append(c.toolOrder, key)
		}
		if tc.Function.Name != "" {
			c.toolCalls[key].Function.Name = tc.Function.Name
		}
		if tc.Function.Arguments != "" {
			c.toolArgs[key].WriteString(tc.Function.Arguments)
		}
	}

	if chunk.ResponseMeta != nil {
		c.meta = chunk.ResponseMeta
	}
}

func (c *collator) finish(modelName string) (types.Message, types.ProviderUsage) {
	assembled := &schema.Message{
		Role:             schema.Assistant,
		Content:          c.text.String(),
		ReasoningContent: c.reasoning.String(),
	}
	for _, key := range c.toolOrder {
		tc := *c.toolCalls[key]
		tc.Function.Arguments = c.toolArgs[key].String()
		assembled.ToolCalls = append(assembled.ToolCalls, tc)
	}

	return fromEinoMessage(assembled), usageFromMeta(modelName, c.meta)
}

// toEinoMessages converts the session history into eino's message list.
// Internal-only content (confirmations, context markers, frontend
// requests) never reaches a provider.
func toEinoMessages(system string, messages []types.Message) []*schema.Message {
	out := []*schema.Message{{Role: schema.System, Content: system}}

	for _, msg := range messages {
		role := schema.User
		if msg.Role == types.RoleAssistant {
			role = schema.Assistant
		}

		var text strings.Builder
		var toolCalls []schema.ToolCall
		var toolResponses []*schema.Message

		for _, c := range msg.Content {
			switch c.Kind {
			case types.ContentText:
				text.WriteString(c.Text.Text)
			case types.ContentThinking:
				// Round-trip only; eino re-sends reasoning separately.
			case types.ContentToolRequest:
				if c.ToolRequest.Call != nil {
					toolCalls = append(toolCalls, schema.ToolCall{
						ID: c.ToolRequest.ID,
						Function: schema.FunctionCall{
							Name:      c.ToolRequest.Call.Name,
							Arguments: string(c.ToolRequest.Call.Arguments),
						},
					})
				}
			case types.ContentToolResponse:
				toolResponses = append(toolResponses, &schema.Message{
					Role:       schema.Tool,
					ToolCallID: c.ToolResponse.ID,
					Content:    toolResponseText(c.ToolResponse),
				})
			}
		}

		if text.Len() > 0 || len(toolCalls) > 0 {
			out = append(out, &schema.Message{
				Role:      role,
				Content:   text.String(),
				ToolCalls: toolCalls,
			})
		}
		out = append(out, toolResponses...)
	}

	return out
}

// toolResponseText flattens a tool response into the text form tool
// messages carry on the wire.
func toolResponseText(resp *types.ToolResponseContent) string {
	if resp.Error != nil {
		return "Error: " + resp.Error.Message
	}
	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Kind == types.ContentText && c.Text != nil {
			sb.WriteString(c.Text.Text)
		}
	}
	return sb.String()
}

// fromEinoMessage converts a completed eino assistant message into the
// session's message type.
func fromEinoMessage(msg *schema.Message) types.Message {
	out := types.Message{
		Role:    types.RoleAssistant,
		Created: time.Now(),
	}

	if msg.ReasoningContent != "" {
		out.Content = append(out.Content, types.NewThinkingContent(msg.ReasoningContent, ""))
	}
	if msg.Content != "" {
		out.Content = append(out.Content, types.NewTextContent(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = ulid.Make().String()
		}
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			out.Content = append(out.Content, types.NewToolRequestError(id, &types.ToolError{
				Kind:    types.ToolErrInvalidParameters,
				Message: "model produced unparseable tool arguments",
			}))
			continue
		}
		out.Content = append(out.Content, types.NewToolRequestContent(id, types.ToolCall{
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(args),
		}))
	}

	return out
}

func usageFromMeta(modelName string, meta *schema.ResponseMeta) types.ProviderUsage {
	usage := types.ProviderUsage{Model: modelName}
	if meta != nil && meta.Usage != nil {
		usage.Usage = types.Usage{
			InputTokens:  meta.Usage.PromptTokens,
			OutputTokens: meta.Usage.CompletionTokens,
			TotalTokens:  meta.Usage.TotalTokens,
		}
	}
	if usage.Usage.TotalTokens == 0 {
		usage.Usage.TotalTokens = usage.Usage.InputTokens + usage.Usage.OutputTokens
	}
	return usage
}

// toEinoTools converts the catalog to eino tool descriptors.
func toEinoTools(tools []types.Tool) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(parseJSONSchemaToParams(t.InputSchema)),
		}
	}
	return result
}

// parseJSONSchemaToParams converts JSON Schema to Eino ParameterInfo.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}

	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}

		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}

	return params
}
