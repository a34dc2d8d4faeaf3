package tantra

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeServer answers JSON-RPC over in-memory pipes like a spawned MCP server.
type fakeServer struct {
	in  *io.PipeReader // client → server
	out *io.PipeWriter // server → client

	handle func(req *Request) (interface{}, *RPCError)
}

// startFakeServer wires pipes and returns the client-side transport.
func startFakeServer(handle func(req *Request) (interface{}, *RPCError)) *StdioTransport {
	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	srv := &fakeServer{in: clientToServerR, out: serverToClientW, handle: handle}
	go srv.loop()

	return NewStdioTransport(clientToServerW, serverToClientR)
}

func (s *fakeServer) loop() {
	reader := bufio.NewReader(s.in)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}
		if req.IsNotification() {
			continue
		}
		result, rpcErr := s.handle(&req)

		resp := Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		if rpcErr == nil {
			raw, _ := json.Marshal(result)
			resp.Result = raw
		}
		data, _ := json.Marshal(resp)
		data = append(data, '\n')
		_, _ = s.out.Write(data)
	}
}

func defaultHandler(req *Request) (interface{}, *RPCError) {
	switch req.Method {
	case MethodInitialize:
		return InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ClientInfo{Name: "fake-server", Version: "0.1"},
		}, nil
	case MethodToolsList:
		return ListToolsResult{Tools: []ToolDef{
			{Name: "echo", Description: "echoes its input"},
		}}, nil
	case MethodToolsCall:
		var params CallToolParams
		_ = req.ParseParams(&params)
		text, _ := params.Arguments["text"].(string)
		return CallToolResult{Content: []ContentPart{{Type: "text", Text: "echo: " + text}}}, nil
	default:
		return nil, &RPCError{Code: ErrMethodNotFound, Message: "no such method"}
	}
}

func testClient(t *testing.T, handle func(req *Request) (interface{}, *RPCError)) *Client {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	transport := startFakeServer(handle)
	c := NewClient("fake", transport, 2*time.Second, logger)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_ConnectHandshake(t *testing.T) {
	c := testClient(t, defaultHandler)

	if c.State() != StateDisconnected {
		t.Fatalf("initial state = %s", c.State())
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateConnected {
		t.Errorf("state after connect = %s", c.State())
	}
	if c.ServerInfo().Name != "fake-server" {
		t.Errorf("server info = %+v", c.ServerInfo())
	}
}

func TestClient_DiscoveryAndCall(t *testing.T) {
	c := testClient(t, defaultHandler)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	tools, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("tools = %+v", tools)
	}

	result, err := c.CallTool(context.Background(), "echo", map[string]any{"text": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "echo: hello" {
		t.Errorf("call result = %+v", result)
	}
}

func TestClient_RPCErrorSurface(t *testing.T) {
	c := testClient(t, defaultHandler)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := c.ReadResource(context.Background(), "file:///nope")
	if err == nil {
		t.Fatal("unknown method should error")
	}
	var rpcErr *RPCError
	if !asRPCError(err, &rpcErr) || rpcErr.Code != ErrMethodNotFound {
		t.Errorf("expected method-not-found, got %v", err)
	}
}

func asRPCError(err error, target **RPCError) bool {
	re, ok := err.(*RPCError)
	if ok {
		*target = re
	}
	return ok
}

func TestClient_RequestTimeout(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	transport := startFakeServer(func(req *Request) (interface{}, *RPCError) {
		if req.Method == MethodToolsList {
			time.Sleep(500 * time.Millisecond) // outlive the client timeout
		}
		return defaultHandler(req)
	})
	c := NewClient("slow", transport, 50*time.Millisecond, logger)
	defer c.Close()

	_, err := c.ListTools(context.Background())
	if err == nil {
		t.Fatal("slow server must time the request out")
	}
	if !strings.Contains(err.Error(), "request timed out after 50ms: tools/list") {
		t.Errorf("timeout message wrong: %v", err)
	}
}

func TestClient_NotificationDispatch(t *testing.T) {
	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()
	srv := &fakeServer{in: clientToServerR, out: serverToClientW, handle: defaultHandler}
	go srv.loop()

	logger, _ := zap.NewDevelopment()
	transport := NewStdioTransport(clientToServerW, serverToClientR)
	c := NewClient("notify", transport, time.Second, logger)
	defer c.Close()

	got := make(chan string, 1)
	c.OnNotification(NotifyToolsListChanged, func(req *Request) {
		got <- req.Method
	})

	// The server pushes an unsolicited notification.
	note, _ := NewNotification(NotifyToolsListChanged, nil)
	data, _ := json.Marshal(note)
	data = append(data, '\n')
	if _, err := serverToClientW.Write(data); err != nil {
		t.Fatal(err)
	}

	select {
	case method := <-got:
		if method != NotifyToolsListChanged {
			t.Errorf("method = %q", method)
		}
	case <-time.After(time.Second):
		t.Fatal("notification never dispatched")
	}
}
