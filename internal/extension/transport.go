package extension

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/goosehq/goose/internal/logging"
)

// stdioTransport frames JSON-RPC over a subprocess's stdin/stdout, one
// JSON object per line. Requests are multiplexed by id so concurrent
// dispatches to the same client interleave safely; notifications are
// routed to the in-flight request they belong to.
type stdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	writeMu sync.Mutex
	nextID  int64

	mu      sync.Mutex
	pending map[int64]*pendingCall
	lastID  int64 // most recent in-flight request, for tokenless notifications
	closed  bool
}

// pendingCall tracks one in-flight request.
type pendingCall struct {
	response      chan *JSONRPCMessage
	notifications chan JSONRPCMessage
}

// newStdioTransport starts the subprocess and its read loop.
func newStdioTransport(ctx context.Context, command string, args []string, env map[string]string) (*stdioTransport, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stderr = nil

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	t := newStdioTransportFromPipes(stdin, stdout)
	t.cmd = cmd
	return t, nil
}

// newStdioTransportFromPipes wires a transport over arbitrary pipes.
// Tests use this with an in-process fake server.
func newStdioTransportFromPipes(stdin io.WriteCloser, stdout io.Reader) *stdioTransport {
	t := &stdioTransport{
		stdin:   stdin,
		stdout:  bufio.NewReaderSize(stdout, 1024*1024),
		pending: make(map[int64]*pendingCall),
	}
	go t.readLoop()
	return t
}

// readLoop reads frames until the pipe closes, routing responses by id
// and notifications to the call they belong to.
func (t *stdioTransport) readLoop() {
	for {
		line, err := t.stdout.ReadBytes('\n')
		if err != nil {
			t.failAll()
			return
		}

		var msg JSONRPCMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue // skip garbage lines
		}

		if msg.IsNotification() {
			t.routeNotification(msg)
			continue
		}
		if msg.ID == nil {
			continue
		}

		t.mu.Lock()
		call, ok := t.pending[*msg.ID]
		t.mu.Unlock()
		if ok {
			call.response <- &msg
		}
	}
}

// routeNotification delivers a notification to the owning in-flight
// call. Progress notifications carry the request id as their token;
// anything else goes to the most recent in-flight request, which is the
// originating one in practice.
func (t *stdioTransport) routeNotification(msg JSONRPCMessage) {
	var target int64 = -1

	if msg.Method == NotificationProgressMethod {
		var p ProgressNotification
		if err := json.Unmarshal(msg.Params, &p); err == nil {
			switch token := p.ProgressToken.(type) {
			case float64:
				target = int64(token)
			case string:
				fmt.Sscanf(token, "%d", &target)
			}
		}
	}

	t.mu.Lock()
	if target < 0 {
		target = t.lastID
	}
	call, ok := t.pending[target]
	t.mu.Unlock()

	if !ok {
		return
	}
	select {
	case call.notifications <- msg:
	default:
		// A slow consumer drops progress lines rather than blocking the
		// read loop.
		logging.Debug().Str("method", msg.Method).Msg("dropping unconsumed extension notification")
	}
}

// failAll closes every pending call after the pipe breaks.
func (t *stdioTransport) failAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, call := range t.pending {
		close(call.response)
		delete(t.pending, id)
	}
}

// call sends a request and returns its id plus the channels the caller
// consumes. paramsFn sees the assigned id so tool calls can thread it
// through as their progress token. finish must be called exactly once to
// release the id.
func (t *stdioTransport) call(method string, paramsFn func(id int64) any) (int64, *pendingCall, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, nil, fmt.Errorf("connection closed")
	}
	t.mu.Unlock()

	id := atomic.AddInt64(&t.nextID, 1)
	pc := &pendingCall{
		response:      make(chan *JSONRPCMessage, 1),
		notifications: make(chan JSONRPCMessage, 64),
	}

	t.mu.Lock()
	t.pending[id] = pc
	t.lastID = id
	t.mu.Unlock()

	req := JSONRPCMessage{JSONRPC: "2.0", ID: &id, Method: method}
	if paramsFn != nil {
		if params := paramsFn(id); params != nil {
			data, err := json.Marshal(params)
			if err != nil {
				t.finish(id)
				return 0, nil, err
			}
			req.Params = data
		}
	}

	if err := t.write(req); err != nil {
		t.finish(id)
		return 0, nil, err
	}
	return id, pc, nil
}

// finish removes a pending call and closes its notification stream.
func (t *stdioTransport) finish(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if call, ok := t.pending[id]; ok {
		close(call.notifications)
		delete(t.pending, id)
	}
}

// send performs a full request/response round trip.
func (t *stdioTransport) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id, pc, err := t.call(method, func(int64) any { return params })
	if err != nil {
		return nil, err
	}
	defer t.finish(id)

	select {
	case resp, ok := <-pc.response:
		if !ok || resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("extension error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// notify sends a fire-and-forget notification frame.
func (t *stdioTransport) notify(method string, params any) error {
	req := JSONRPCMessage{JSONRPC: "2.0", Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = data
	}
	return t.write(req)
}

// write frames one message as newline-delimited JSON.
func (t *stdioTransport) write(msg JSONRPCMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.stdin.Write(append(data, '\n'))
	return err
}

// close shuts the subprocess down.
func (t *stdioTransport) close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.stdin.Close()
	if t.cmd != nil && t.cmd.Process != nil {
		return t.cmd.Process.Kill()
	}
	return nil
}
