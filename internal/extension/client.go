package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/goosehq/goose/pkg/types"
)

// defaultCallTimeout bounds a single tool call when the extension config
// carries no timeout.
const defaultCallTimeout = 300 * time.Second

// client is one running extension the manager can dispatch to.
type client interface {
	tools(ctx context.Context) ([]types.Tool, error)
	call(ctx context.Context, tool string, args json.RawMessage) ToolCallResult
	listResources(ctx context.Context) ([]Resource, error)
	readResource(ctx context.Context, uri string) (string, error)
	instructions() string
	close() error
}

// Resource is one readable resource an extension exposes.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ---- stdio ----

// stdioClient speaks the framed JSON-RPC protocol to a subprocess.
type stdioClient struct {
	transport          *stdioTransport
	timeout            time.Duration
	serverInstructions string
}

// wire shapes of the stdio protocol.
type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Annotations *struct {
		ReadOnlyHint    bool `json:"readOnlyHint,omitempty"`
		DestructiveHint bool `json:"destructiveHint,omitempty"`
		IdempotentHint  bool `json:"idempotentHint,omitempty"`
	} `json:"annotations,omitempty"`
}

type wireContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// newStdioClient starts the subprocess and performs the initialize
// handshake.
func newStdioClient(ctx context.Context, command string, args []string, env map[string]string, timeout time.Duration) (*stdioClient, error) {
	transport, err := newStdioTransport(context.Background(), command, args, env)
	if err != nil {
		return nil, err
	}

	c := &stdioClient{transport: transport, timeout: timeout}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := transport.send(initCtx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"clientInfo":      map[string]string{"name": "goose", "version": "1.0.0"},
		"capabilities":    map[string]any{},
	})
	if err != nil {
		transport.close()
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	var initResult struct {
		Instructions string `json:"instructions,omitempty"`
	}
	_ = json.Unmarshal(result, &initResult)
	c.serverInstructions = initResult.Instructions

	if err := transport.notify("notifications/initialized", nil); err != nil {
		transport.close()
		return nil, err
	}
	return c, nil
}

func (c *stdioClient) instructions() string { return c.serverInstructions }

func (c *stdioClient) tools(ctx context.Context) ([]types.Tool, error) {
	result, err := c.transport.send(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}

	var listed struct {
		Tools []wireTool `json:"tools"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, err
	}

	tools := make([]types.Tool, 0, len(listed.Tools))
	for _, wt := range listed.Tools {
		tool := types.Tool{
			Name:        wt.Name,
			Description: wt.Description,
			InputSchema: wt.InputSchema,
		}
		if wt.Annotations != nil {
			tool.Annotations = &types.ToolAnnotations{
				ReadOnlyHint:    wt.Annotations.ReadOnlyHint,
				DestructiveHint: wt.Annotations.DestructiveHint,
				IdempotentHint:  wt.Annotations.IdempotentHint,
			}
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

func (c *stdioClient) call(ctx context.Context, tool string, args json.RawMessage) ToolCallResult {
	arguments := args
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}

	id, pc, err := c.transport.call("tools/call", func(id int64) any {
		return map[string]any{
			"name":      tool,
			"arguments": arguments,
			"_meta":     map[string]any{"progressToken": id},
		}
	})
	if err != nil {
		return errorResult(types.ToolErrExecutionError, "failed to dispatch %s: %v", tool, err)
	}

	result := make(chan CallOutcome, 1)

	go func() {
		defer c.transport.finish(id)
		defer close(result)

		timeout := c.timeout
		if timeout <= 0 {
			timeout = defaultCallTimeout
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case resp, ok := <-pc.response:
			if !ok || resp == nil {
				result <- CallOutcome{Err: &types.ToolError{Kind: types.ToolErrExecutionError, Message: "extension connection closed"}}
				return
			}
			if resp.Error != nil {
				result <- CallOutcome{Err: &types.ToolError{
					Kind:    types.ToolErrExecutionError,
					Message: fmt.Sprintf("extension error %d: %s", resp.Error.Code, resp.Error.Message),
				}}
				return
			}
			result <- parseCallResult(resp.Result)
		case <-timer.C:
			result <- CallOutcome{Err: &types.ToolError{
				Kind:    types.ToolErrExecutionError,
				Message: fmt.Sprintf("tool %s timed out after %s", tool, timeout),
			}}
		case <-ctx.Done():
			result <- CallOutcome{Err: &types.ToolError{
				Kind:    types.ToolErrExecutionError,
				Message: "Tool call cancelled by user",
			}}
		}
	}()

	return ToolCallResult{Notifications: pc.notifications, Result: result}
}

// parseCallResult converts a tools/call response body.
func parseCallResult(raw json.RawMessage) CallOutcome {
	var body struct {
		Content []wireContent `json:"content"`
		IsError bool          `json:"isError,omitempty"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return CallOutcome{Err: &types.ToolError{
			Kind:    types.ToolErrExecutionError,
			Message: fmt.Sprintf("unparseable tool result: %v", err),
		}}
	}

	var content []types.Content
	var errText string
	for _, wc := range body.Content {
		switch wc.Type {
		case "text":
			content = append(content, types.NewTextContent(wc.Text))
			errText += wc.Text
		case "image":
			content = append(content, types.NewImageContent(wc.MimeType, wc.Data))
		}
	}

	if body.IsError {
		if errText == "" {
			errText = "tool execution failed"
		}
		return CallOutcome{Err: &types.ToolError{Kind: types.ToolErrExecutionError, Message: errText}}
	}
	return CallOutcome{Content: content}
}

func (c *stdioClient) listResources(ctx context.Context) ([]Resource, error) {
	result, err := c.transport.send(ctx, "resources/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var listed struct {
		Resources []Resource `json:"resources"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, err
	}
	return listed.Resources, nil
}

func (c *stdioClient) readResource(ctx context.Context, uri string) (string, error) {
	result, err := c.transport.send(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return "", err
	}
	var body struct {
		Contents []struct {
			Text string `json:"text,omitempty"`
			Blob string `json:"blob,omitempty"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return "", err
	}
	var out string
	for _, c := range body.Contents {
		if c.Text != "" {
			out += c.Text
		} else {
			out += c.Blob
		}
	}
	return out, nil
}

func (c *stdioClient) close() error { return c.transport.close() }

// ---- SSE ----

// sseClient connects to a server-sent-events endpoint through the
// mcp-go client.
type sseClient struct {
	client  *mcpclient.Client
	timeout time.Duration

	mu       sync.Mutex
	inFlight map[int64]chan JSONRPCMessage
	nextCall int64
}

// newSSEClient opens and initializes the SSE session.
func newSSEClient(ctx context.Context, uri string, timeout time.Duration) (*sseClient, error) {
	inner, err := mcpclient.NewSSEMCPClient(uri)
	if err != nil {
		return nil, err
	}

	c := &sseClient{client: inner, timeout: timeout, inFlight: make(map[int64]chan JSONRPCMessage)}

	if err := inner.Start(ctx); err != nil {
		return nil, err
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "goose", Version: "1.0.0"}
	if _, err := inner.Initialize(ctx, initReq); err != nil {
		inner.Close()
		return nil, err
	}

	// Fan incoming notifications out to every in-flight call; calls are
	// request-scoped in practice, so this is the originating request.
	inner.OnNotification(func(n mcp.JSONRPCNotification) {
		params, _ := json.Marshal(n.Params)
		msg := JSONRPCMessage{JSONRPC: "2.0", Method: n.Method, Params: params}

		c.mu.Lock()
		defer c.mu.Unlock()
		for _, ch := range c.inFlight {
			select {
			case ch <- msg:
			default:
			}
		}
	})

	return c, nil
}

func (c *sseClient) instructions() string { return "" }

func (c *sseClient) tools(ctx context.Context) ([]types.Tool, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	tools := make([]types.Tool, 0, len(result.Tools))
	for _, mt := range result.Tools {
		schemaJSON, _ := json.Marshal(mt.InputSchema)
		tool := types.Tool{
			Name:        mt.Name,
			Description: mt.Description,
			InputSchema: schemaJSON,
		}
		if mt.Annotations.ReadOnlyHint != nil || mt.Annotations.DestructiveHint != nil || mt.Annotations.IdempotentHint != nil {
			tool.Annotations = &types.ToolAnnotations{
				ReadOnlyHint:    mt.Annotations.ReadOnlyHint != nil && *mt.Annotations.ReadOnlyHint,
				DestructiveHint: mt.Annotations.DestructiveHint != nil && *mt.Annotations.DestructiveHint,
				IdempotentHint:  mt.Annotations.IdempotentHint != nil && *mt.Annotations.IdempotentHint,
			}
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

func (c *sseClient) call(ctx context.Context, tool string, args json.RawMessage) ToolCallResult {
	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return errorResult(types.ToolErrInvalidParameters, "failed to parse arguments: %v", err)
		}
	}

	notifications := make(chan JSONRPCMessage, 64)
	result := make(chan CallOutcome, 1)

	c.mu.Lock()
	c.nextCall++
	callID := c.nextCall
	c.inFlight[callID] = notifications
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.inFlight, callID)
			c.mu.Unlock()
			close(notifications)
			close(result)
		}()

		timeout := c.timeout
		if timeout <= 0 {
			timeout = defaultCallTimeout
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req := mcp.CallToolRequest{}
		req.Params.Name = tool
		req.Params.Arguments = arguments

		res, err := c.client.CallTool(callCtx, req)
		if err != nil {
			result <- CallOutcome{Err: &types.ToolError{Kind: types.ToolErrExecutionError, Message: err.Error()}}
			return
		}

		var content []types.Content
		var errText string
		for _, item := range res.Content {
			if tc, ok := mcp.AsTextContent(item); ok {
				content = append(content, types.NewTextContent(tc.Text))
				errText += tc.Text
			} else if ic, ok := mcp.AsImageContent(item); ok {
				content = append(content, types.NewImageContent(ic.MIMEType, ic.Data))
			}
		}
		if res.IsError {
			if errText == "" {
				errText = "tool execution failed"
			}
			result <- CallOutcome{Err: &types.ToolError{Kind: types.ToolErrExecutionError, Message: errText}}
			return
		}
		result <- CallOutcome{Content: content}
	}()

	return ToolCallResult{Notifications: notifications, Result: result}
}

func (c *sseClient) listResources(ctx context.Context) ([]Resource, error) {
	result, err := c.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, err
	}
	resources := make([]Resource, 0, len(result.Resources))
	for _, r := range result.Resources {
		resources = append(resources, Resource{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MimeType:    r.MIMEType,
		})
	}
	return resources, nil
}

func (c *sseClient) readResource(ctx context.Context, uri string) (string, error) {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	result, err := c.client.ReadResource(ctx, req)
	if err != nil {
		return "", err
	}
	var out string
	for _, item := range result.Contents {
		switch rc := item.(type) {
		case mcp.TextResourceContents:
			out += rc.Text
		case *mcp.TextResourceContents:
			out += rc.Text
		}
	}
	return out, nil
}

func (c *sseClient) close() error { return c.client.Close() }

// ---- builtin ----

// builtinClient runs an in-process extension.
type builtinClient struct {
	builtin *Builtin
	timeout time.Duration
}

func (c *builtinClient) instructions() string { return c.builtin.Instructions }

func (c *builtinClient) tools(ctx context.Context) ([]types.Tool, error) {
	tools := make([]types.Tool, 0, len(c.builtin.Tools))
	for _, bt := range c.builtin.Tools {
		tools = append(tools, bt.Tool)
	}
	return tools, nil
}

func (c *builtinClient) call(ctx context.Context, tool string, args json.RawMessage) ToolCallResult {
	var target *BuiltinTool
	for i := range c.builtin.Tools {
		if c.builtin.Tools[i].Tool.Name == tool {
			target = &c.builtin.Tools[i]
			break
		}
	}
	if target == nil {
		return errorResult(types.ToolErrNotFound, "unknown tool: %s", tool)
	}

	notifications := make(chan JSONRPCMessage, 64)
	result := make(chan CallOutcome, 1)

	notify := func(msg JSONRPCMessage) {
		select {
		case notifications <- msg:
		default:
		}
	}

	go func() {
		defer close(notifications)
		defer close(result)

		timeout := c.timeout
		if timeout <= 0 {
			timeout = defaultCallTimeout
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		content, err := target.Run(callCtx, args, notify)
		if err != nil {
			result <- CallOutcome{Err: &types.ToolError{Kind: types.ToolErrExecutionError, Message: err.Error()}}
			return
		}
		result <- CallOutcome{Content: content}
	}()

	return ToolCallResult{Notifications: notifications, Result: result}
}

func (c *builtinClient) listResources(ctx context.Context) ([]Resource, error) {
	return nil, nil
}

func (c *builtinClient) readResource(ctx context.Context, uri string) (string, error) {
	return "", fmt.Errorf("resource not found: %s", uri)
}

func (c *builtinClient) close() error { return nil }
