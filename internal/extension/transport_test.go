package extension

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeTransport wires a transport to an in-memory fake tool server
// standing in for a subprocess.
func newFakeTransport(t *testing.T, handler func(req JSONRPCMessage, reply func(JSONRPCMessage))) *stdioTransport {
	t.Helper()

	reqReader, reqWriter := io.Pipe()
	respReader, respWriter := io.Pipe()

	transport := newStdioTransportFromPipes(reqWriter, respReader)
	t.Cleanup(func() { transport.close() })

	reply := func(msg JSONRPCMessage) {
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		respWriter.Write(append(data, '\n'))
	}

	go func() {
		scanner := bufio.NewScanner(reqReader)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			var req JSONRPCMessage
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			handler(req, reply)
		}
	}()

	return transport
}

func result(id int64, body string) JSONRPCMessage {
	return JSONRPCMessage{JSONRPC: "2.0", ID: &id, Result: json.RawMessage(body)}
}

func TestStdioTransport_RoundTrip(t *testing.T) {
	transport := newFakeTransport(t, func(req JSONRPCMessage, reply func(JSONRPCMessage)) {
		if req.Method == "ping" {
			reply(result(*req.ID, `{"ok":true}`))
		}
	})

	raw, err := transport.send(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
}

func TestStdioTransport_MultiplexesByID(t *testing.T) {
	// Replies arrive in reverse order of the requests; each caller still
	// gets its own.
	var firstID *int64
	transport := newFakeTransport(t, func(req JSONRPCMessage, reply func(JSONRPCMessage)) {
		if firstID == nil {
			id := *req.ID
			firstID = &id
			return // hold the first reply
		}
		reply(result(*req.ID, `{"n":2}`))
		reply(result(*firstID, `{"n":1}`))
	})

	type outcome struct {
		raw json.RawMessage
		err error
	}
	results := make(chan outcome, 2)

	go func() {
		raw, err := transport.send(context.Background(), "slow", nil)
		results <- outcome{raw, err}
	}()
	time.Sleep(20 * time.Millisecond) // ensure the slow request is first
	go func() {
		raw, err := transport.send(context.Background(), "fast", nil)
		results <- outcome{raw, err}
	}()

	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			require.NoError(t, r.err)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for multiplexed responses")
		}
	}
}

func TestStdioTransport_NotificationsScopedToRequest(t *testing.T) {
	transport := newFakeTransport(t, func(req JSONRPCMessage, reply func(JSONRPCMessage)) {
		if req.Method != "tools/call" {
			return
		}
		progress, _ := json.Marshal(ProgressNotification{ProgressToken: *req.ID, Progress: 0.5})
		reply(JSONRPCMessage{JSONRPC: "2.0", Method: NotificationProgressMethod, Params: progress})
		reply(result(*req.ID, `{"content":[{"type":"text","text":"done"}]}`))
	})

	id, pc, err := transport.call("tools/call", func(id int64) any {
		return map[string]any{"name": "x", "_meta": map[string]any{"progressToken": id}}
	})
	require.NoError(t, err)
	defer transport.finish(id)

	select {
	case n := <-pc.notifications:
		assert.Equal(t, NotificationProgressMethod, n.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
	}

	select {
	case resp := <-pc.response:
		require.NotNil(t, resp)
		assert.Contains(t, string(resp.Result), "done")
	case <-time.After(2 * time.Second):
		t.Fatal("no response delivered")
	}
}

func TestStdioTransport_ErrorResponse(t *testing.T) {
	transport := newFakeTransport(t, func(req JSONRPCMessage, reply func(JSONRPCMessage)) {
		reply(JSONRPCMessage{JSONRPC: "2.0", ID: req.ID, Error: &JSONRPCError{Code: -32601, Message: "method not found"}})
	})

	_, err := transport.send(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestStdioTransport_ContextCancel(t *testing.T) {
	transport := newFakeTransport(t, func(req JSONRPCMessage, reply func(JSONRPCMessage)) {
		// never reply
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := transport.send(ctx, "hang", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStdioTransport_ClosedPipeFailsPending(t *testing.T) {
	reqReader, reqWriter := io.Pipe()
	respReader, respWriter := io.Pipe()
	go io.Copy(io.Discard, reqReader)

	transport := newStdioTransportFromPipes(reqWriter, respReader)

	go func() {
		time.Sleep(20 * time.Millisecond)
		respWriter.Close()
	}()

	_, err := transport.send(context.Background(), "ping", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}
