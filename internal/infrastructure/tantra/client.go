package tantra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ClientState is the connection lifecycle.
type ClientState string

const (
	StateDisconnected ClientState = "disconnected"
	StateConnecting   ClientState = "connecting"
	StateConnected    ClientState = "connected"
	StateErrored      ClientState = "error"
)

// Client is one MCP server connection: handshake, discovery, execution and
// notification dispatch, with a per-request timeout.
type Client struct {
	name      string
	transport Transport
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.RWMutex
	state    ClientState
	server   ClientInfo
	handlers map[string][]func(req *Request)

	idCounter atomic.Int64
}

// NewClient wraps a transport. Connect must run before discovery calls.
func NewClient(name string, transport Transport, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		name:      name,
		transport: transport,
		timeout:   timeout,
		state:     StateDisconnected,
		handlers:  make(map[string][]func(req *Request)),
		logger:    logger.With(zap.String("component", "tantra-client"), zap.String("server", name)),
	}
	transport.OnNotification(c.dispatchNotification)
	return c
}

// State returns the connection state.
func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// ServerInfo returns the handshake server identity.
func (c *Client) ServerInfo() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Connect performs the initialize handshake and announces readiness.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	var result InitializeResult
	err := c.call(ctx, MethodInitialize, InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ClientInfo{Name: "chitragupta", Version: "1.0"},
	}, &result)
	if err != nil {
		c.setState(StateErrored)
		return err
	}

	note, err := NewNotification(MethodInitialized, nil)
	if err != nil {
		c.setState(StateErrored)
		return err
	}
	if err := c.transport.SendNotification(note); err != nil {
		c.setState(StateErrored)
		return err
	}

	c.mu.Lock()
	c.server = result.ServerInfo
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("MCP server connected",
		zap.String("protocol", result.ProtocolVersion),
		zap.String("server_name", result.ServerInfo.Name),
	)
	return nil
}

// ListTools discovers the server's tools.
func (c *Client) ListTools(ctx context.Context) ([]ToolDef, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodToolsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// ListResources discovers the server's resources.
func (c *Client) ListResources(ctx context.Context) ([]ResourceDef, error) {
	var result ListResourcesResult
	if err := c.call(ctx, MethodResourcesList, nil, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

// ListPrompts discovers the server's prompts.
func (c *Client) ListPrompts(ctx context.Context) ([]PromptDef, error) {
	var result ListPromptsResult
	if err := c.call(ctx, MethodPromptsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Prompts, nil
}

// CallTool invokes one tool.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	var result CallToolResult
	if err := c.call(ctx, MethodToolsCall, CallToolParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadResource reads one resource.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	var result ReadResourceResult
	if err := c.call(ctx, MethodResourcesRead, map[string]string{"uri": uri}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPrompt fetches one prompt template.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]any) (*GetPromptResult, error) {
	var result GetPromptResult
	params := map[string]any{"name": name}
	if len(args) > 0 {
		params["arguments"] = args
	}
	if err := c.call(ctx, MethodPromptsGet, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// OnNotification subscribes to a server notification method.
func (c *Client) OnNotification(method string, handler func(req *Request)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = append(c.handlers[method], handler)
}

// Close tears the transport down.
func (c *Client) Close() error {
	c.setState(StateDisconnected)
	return c.transport.Close()
}

func (c *Client) dispatchNotification(req *Request) {
	c.mu.RLock()
	handlers := append([]func(req *Request){}, c.handlers[req.Method]...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(req)
	}
}

// call wraps one request/response exchange in the per-request timeout.
func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	id := int(c.idCounter.Add(1))
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.transport.Send(callCtx, req)
	if err != nil {
		var te *TransportError
		if asTransportError(err, &te) && te.Cancelled && ctx.Err() == nil {
			// Our own deadline fired, not the caller's.
			return fmt.Errorf("request timed out after %dms: %s", c.timeout.Milliseconds(), method)
		}
		c.logger.Warn("MCP call failed",
			zap.String("method", method),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	if resp.JSONRPC != jsonRPCVersion {
		return &ProtocolError{Detail: fmt.Sprintf("bad jsonrpc version %q in %s response", resp.JSONRPC, method)}
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out != nil {
		if err := resp.ParseResult(out); err != nil {
			return &ProtocolError{Detail: fmt.Sprintf("malformed %s result: %v", method, err)}
		}
	}
	return nil
}

func asTransportError(err error, target **TransportError) bool {
	return errors.As(err, target)
}
