package tantra

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// SSETransport posts client→server JSON to {base}/message and reads the
// server→client channel from a long-lived SSE GET on the base URL.
// Connection loss surfaces as TransportError; reconnects belong to the
// caller.
type SSETransport struct {
	baseURL string
	client  *http.Client

	pending       map[interface{}]chan *Response
	mu            sync.Mutex
	notifyHandler func(req *Request)
	done          chan struct{}
	cancelStream  context.CancelFunc
	closeOnce     sync.Once
}

// DialSSE opens the event stream and returns a ready transport.
func DialSSE(ctx context.Context, baseURL string, client *http.Client) (*SSETransport, error) {
	if client == nil {
		client = http.DefaultClient
	}
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, baseURL, nil)
	if err != nil {
		cancel()
		return nil, &TransportError{Cause: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, &TransportError{Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &TransportError{Cause: fmt.Errorf("event stream returned %d", resp.StatusCode)}
	}

	t := &SSETransport{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		pending:      make(map[interface{}]chan *Response),
		done:         make(chan struct{}),
		cancelStream: cancel,
	}
	go t.readLoop(resp.Body)
	return t, nil
}

// readLoop parses "event: message\ndata: {...}\n\n" frames.
func (t *SSETransport) readLoop(body io.ReadCloser) {
	defer close(t.done)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		case line == "":
			if len(data) > 0 {
				t.dispatch(data)
				data = nil
			}
		}
		// "event:" and comment lines need no handling; every MCP frame is
		// event: message.
	}
}

func (t *SSETransport) dispatch(data []byte) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err == nil && resp.ID != nil && (resp.Result != nil || resp.Error != nil) {
		t.mu.Lock()
		ch, exists := t.pending[normalizeID(resp.ID)]
		if exists {
			delete(t.pending, normalizeID(resp.ID))
		}
		t.mu.Unlock()
		if ch != nil {
			ch <- &resp
		}
		return
	}

	var req Request
	if err := json.Unmarshal(data, &req); err == nil && req.Method != "" {
		if t.notifyHandler != nil {
			go t.notifyHandler(&req)
		}
	}
}

// Send POSTs the request and waits for the response on the event stream.
func (t *SSETransport) Send(ctx context.Context, req *Request) (*Response, error) {
	ch := make(chan *Response, 1)

	t.mu.Lock()
	t.pending[normalizeID(req.ID)] = ch
	t.mu.Unlock()

	if err := t.post(ctx, req); err != nil {
		t.mu.Lock()
		delete(t.pending, normalizeID(req.ID))
		t.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, normalizeID(req.ID))
		t.mu.Unlock()
		return nil, &TransportError{Cancelled: true, Cause: ctx.Err()}
	case <-t.done:
		return nil, &TransportError{Cause: io.ErrUnexpectedEOF}
	}
}

// SendNotification POSTs without waiting for a reply.
func (t *SSETransport) SendNotification(req *Request) error {
	return t.post(context.Background(), req)
}

// OnNotification registers the inbound handler.
func (t *SSETransport) OnNotification(handler func(req *Request)) {
	t.notifyHandler = handler
}

// Close tears down the event stream.
func (t *SSETransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancelStream()
	})
	return nil
}

func (t *SSETransport) post(ctx context.Context, msg interface{}) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/message", bytes.NewReader(body))
	if err != nil {
		return &TransportError{Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return &TransportError{Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &TransportError{Cause: fmt.Errorf("message post returned %d", resp.StatusCode)}
	}
	return nil
}
