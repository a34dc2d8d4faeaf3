package tantra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// sseTestServer answers POSTed JSON-RPC requests over its event stream.
func sseTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	frames := make(chan []byte, 16)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		flusher.Flush()

		for {
			select {
			case frame := <-frames:
				fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		if req.IsNotification() {
			return
		}

		resp := Response{JSONRPC: "2.0", ID: req.ID}
		switch req.Method {
		case "ping":
			resp.Result = json.RawMessage(`{"pong":true}`)
		default:
			resp.Error = &RPCError{Code: ErrMethodNotFound, Message: "unknown"}
		}
		data, _ := json.Marshal(resp)
		frames <- data
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSSETransport_RoundTrip(t *testing.T) {
	srv := sseTestServer(t)

	transport, err := DialSSE(context.Background(), srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	defer transport.Close()

	req, _ := NewRequest(1, "ping", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := transport.Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	var result struct {
		Pong bool `json:"pong"`
	}
	if err := resp.ParseResult(&result); err != nil || !result.Pong {
		t.Errorf("round trip failed: %v %+v", err, result)
	}
}

func TestSSETransport_ErrorResponse(t *testing.T) {
	srv := sseTestServer(t)
	transport, err := DialSSE(context.Background(), srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	defer transport.Close()

	req, _ := NewRequest(2, "no-such-method", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := transport.Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != ErrMethodNotFound {
		t.Errorf("expected method-not-found, got %+v", resp)
	}
}

func TestDialSSE_ConnectFailure(t *testing.T) {
	if _, err := DialSSE(context.Background(), "http://127.0.0.1:1", nil); err == nil {
		t.Fatal("dead endpoint must fail the dial")
	}
}
