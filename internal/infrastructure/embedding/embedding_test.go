package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(0)
	a, _ := e.Embed(context.Background(), "the quick brown fox")
	b, _ := e.Embed(context.Background(), "the quick brown fox")

	if len(a) != 384 {
		t.Fatalf("default dimension should be 384, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestHashEmbedder_Normalized(t *testing.T) {
	e := NewHashEmbedder(384)
	vec, _ := e.Embed(context.Background(), "normalize me")
	norm := 0.0
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-3 {
		t.Errorf("vector should be l2-normalized, |v|^2 = %f", norm)
	}
}

func TestHashEmbedder_DistinctTexts(t *testing.T) {
	e := NewHashEmbedder(384)
	a, _ := e.Embed(context.Background(), "alpha beta")
	b, _ := e.Embed(context.Background(), "beta alpha")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("reordered text should produce a different vector")
	}
}

func TestHashEmbedder_OverlapBeatsDisjoint(t *testing.T) {
	e := NewHashEmbedder(384)
	ctx := context.Background()
	base, _ := e.Embed(ctx, "exponential retry budget for the provider client")
	related, _ := e.Embed(ctx, "wire the retry budget into the provider")
	unrelated, _ := e.Embed(ctx, "tomato seedlings need repotting today")

	cos := func(a, b []float32) float64 {
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return dot // inputs are unit vectors
	}
	if cos(base, related) <= cos(base, unrelated) {
		t.Errorf("token overlap must raise similarity: related %f, unrelated %f",
			cos(base, related), cos(base, unrelated))
	}
}

func TestCachedProvider_SingleComputation(t *testing.T) {
	var calls int64
	inner := &countingProvider{calls: &calls}
	c := NewCachedProvider(inner, 10)

	for i := 0; i < 5; i++ {
		if _, err := c.Embed(context.Background(), "repeated"); err != nil {
			t.Fatal(err)
		}
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Errorf("inner provider should compute once, got %d calls", calls)
	}
}

type countingProvider struct{ calls *int64 }

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(p.calls, 1)
	return []float32{1, 0}, nil
}
func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = p.Embed(ctx, texts[i])
	}
	return out, nil
}
func (p *countingProvider) Dimension() int { return 2 }

func TestHTTPEmbedder_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(embedResponse{
			Model:      "test-model",
			Embeddings: [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(srv.URL, "test-model", 5*time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimension() != 3 {
		t.Errorf("probed dimension = %d, want 3", e.Dimension())
	}

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestHTTPEmbedder_ErrorSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewHTTPEmbedder(srv.URL, "missing", time.Second, nil); err == nil {
		t.Error("construction should fail when the probe fails")
	}
}
