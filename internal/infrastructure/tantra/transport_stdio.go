package tantra

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"
)

// Transport is the wire layer under the MCP client.
type Transport interface {
	// Send writes a request and waits for its correlated response.
	Send(ctx context.Context, req *Request) (*Response, error)
	// SendNotification writes a request with no response expected.
	SendNotification(req *Request) error
	// OnNotification registers the handler for server-initiated requests.
	OnNotification(handler func(req *Request))
	Close() error
}

// StdioTransport speaks newline-delimited UTF-8 JSON over the stdin/stdout
// of a spawned child process, the default MCP convention.
type StdioTransport struct {
	cmd    *exec.Cmd // nil when wrapping raw pipes
	stdin  io.WriteCloser
	stdout io.ReadCloser
	reader *bufio.Reader

	pending       map[interface{}]chan *Response
	mu            sync.Mutex
	notifyHandler func(req *Request)
	done          chan struct{}
	closeOnce     sync.Once
}

// SpawnStdioTransport starts the server process and wires its pipes.
func SpawnStdioTransport(command string, args ...string) (*StdioTransport, error) {
	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &TransportError{Cause: err}
	}

	t := newStdioTransport(stdin, stdout)
	t.cmd = cmd
	return t, nil
}

// NewStdioTransport wraps existing pipes (tests use in-memory pipes).
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) *StdioTransport {
	return newStdioTransport(stdin, stdout)
}

func newStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) *StdioTransport {
	t := &StdioTransport{
		stdin:   stdin,
		stdout:  stdout,
		reader:  bufio.NewReaderSize(stdout, 64*1024),
		pending: make(map[interface{}]chan *Response),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *StdioTransport) readLoop() {
	defer close(t.done)

	for {
		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			return
		}

		// Responses carry an id and either result or error.
		var resp Response
		if err := json.Unmarshal(line, &resp); err == nil && resp.ID != nil && (resp.Result != nil || resp.Error != nil) {
			t.mu.Lock()
			ch, exists := t.pending[normalizeID(resp.ID)]
			if exists {
				delete(t.pending, normalizeID(resp.ID))
			}
			t.mu.Unlock()

			if ch != nil {
				ch <- &resp
			}
			continue
		}

		// Anything else with a method is a server notification or request.
		var req Request
		if err := json.Unmarshal(line, &req); err == nil && req.Method != "" {
			if t.notifyHandler != nil {
				go t.notifyHandler(&req)
			}
		}
	}
}

// Send writes a request and waits for the correlated response.
func (t *StdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	ch := make(chan *Response, 1)

	t.mu.Lock()
	t.pending[normalizeID(req.ID)] = ch
	t.mu.Unlock()

	if err := t.write(req); err != nil {
		t.mu.Lock()
		delete(t.pending, normalizeID(req.ID))
		t.mu.Unlock()
		return nil, &TransportError{Cause: err}
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
		return nil, &TransportError{Cause: io.ErrClosedPipe}
	}
}

// SendNotification writes without waiting.
func (t *StdioTransport) SendNotification(req *Request) error {
	if err := t.write(req); err != nil {
		return &TransportError{Cause: err}
	}
	return nil
}

// OnNotification registers the inbound handler.
func (t *StdioTransport) OnNotification(handler func(req *Request)) {
	t.notifyHandler = handler
}

// Close shuts the transport and reaps a spawned child.
func (t *StdioTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.stdin.Close()
		if t.cmd != nil {
			_ = t.cmd.Wait()
		}
	})
	return err
}

func (t *StdioTransport) write(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.stdin.Write(data)
	return err
}

// normalizeID keeps pending-map keys stable: JSON numbers decode as float64.
func normalizeID(id interface{}) interface{} {
	if f, ok := id.(float64); ok {
		return int(f)
	}
	return id
}
