package vectorstore

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/smriti/consolidate"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/smriti/graph"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/persistence/models"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/vectorstore/codec"
)

// RecallOptions filter a recall query.
type RecallOptions struct {
	TopK         int     // default 10
	Threshold    float64 // minimum cosine similarity, default 0.3
	DateFrom     string  // inclusive "2025-01-01"
	DateTo       string  // inclusive
	TagFilter    []string
	DeviceFilter string
}

// RecallResult is one recalled memory.
type RecallResult struct {
	SessionID      string  `json:"sessionId"`
	Title          string  `json:"title"`
	Relevance      float64 `json:"relevance"`
	Summary        string  `json:"summary"`
	Source         string  `json:"source"`
	MatchedContent string  `json:"matchedContent"` // <= 1000 chars
}

const matchedContentCap = 1000

// Recall embeds the query, scores every entry by cosine similarity, applies
// the filters, deduplicates by source id and returns the top K. Data-layer
// failures degrade to the legacy JSON file when present — recall never
// propagates storage errors to the model.
func (ix *Index) Recall(ctx context.Context, query string, opts RecallOptions) []RecallResult {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.3
	}

	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		ix.logger.Warn("Query embedding failed", zap.Error(err))
		return nil
	}

	rows, err := ix.repo.All()
	if err != nil {
		rows = ix.legacyRows()
		if rows == nil {
			ix.logger.Warn("Recall degraded to empty result", zap.Error(err))
			return nil
		}
	}

	type scored struct {
		row   models.EmbeddingModel
		meta  entryMeta
		score float64
	}
	var candidates []scored
	for _, row := range rows {
		vec, err := codec.Decode(row.Vector)
		if err != nil || len(vec) != len(queryVec) {
			continue
		}
		score := cosine(queryVec, vec)
		if score < opts.Threshold {
			continue
		}

		var meta entryMeta
		_ = json.Unmarshal([]byte(row.Metadata), &meta)

		if opts.DateFrom != "" && meta.Date != "" && meta.Date < opts.DateFrom {
			continue
		}
		if opts.DateTo != "" && meta.Date != "" && meta.Date > opts.DateTo {
			continue
		}
		if opts.DeviceFilter != "" && meta.DeviceID != "" && meta.DeviceID != opts.DeviceFilter {
			continue
		}
		if len(opts.TagFilter) > 0 && !hasAnyTag(meta.Tags, opts.TagFilter) {
			continue
		}

		candidates = append(candidates, scored{row: row, meta: meta, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	seen := make(map[string]bool)
	var out []RecallResult
	for _, c := range candidates {
		if seen[c.row.SourceID] {
			continue
		}
		seen[c.row.SourceID] = true
		out = append(out, RecallResult{
			SessionID:      c.row.SourceID,
			Title:          c.meta.Title,
			Relevance:      c.score,
			Summary:        c.meta.Summary,
			Source:         c.row.SourceType,
			MatchedContent: capText(c.row.Text, matchedContentCap),
		})
		if len(out) == opts.TopK {
			break
		}
	}
	return out
}

// legacyRows reads entries from the pre-migration JSON file, the read path
// of last resort when the database is unavailable.
func (ix *Index) legacyRows() []models.EmbeddingModel {
	for _, name := range []string{"embeddings.json", "embeddings.json.bak"} {
		data, err := os.ReadFile(filepath.Join(legacyHome, name))
		if err != nil {
			continue
		}
		var entries []struct {
			ID         string    `json:"id"`
			Vector     []float32 `json:"vector"`
			Text       string    `json:"text"`
			SourceType string    `json:"source"`
			SourceID   string    `json:"sourceId"`
			Metadata   json.RawMessage
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			continue
		}
		rows := make([]models.EmbeddingModel, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, models.EmbeddingModel{
				ID: e.ID, Vector: codec.Encode(e.Vector), Text: e.Text,
				SourceType: e.SourceType, SourceID: e.SourceID,
				Metadata: string(e.Metadata),
			})
		}
		return rows
	}
	return nil
}

// legacyHome is set by the application wiring to the smriti home directory.
var legacyHome string

// SetLegacyHome points the read-only JSON fallback at the smriti home.
func SetLegacyHome(dir string) { legacyHome = dir }

// hybrid search weights.
const (
	cosineWeight   = 0.7
	pageRankWeight = 0.3
)

// GraphResult is one hybrid search hit.
type GraphResult struct {
	NodeID    string  `json:"nodeId"`
	Score     float64 `json:"score"`
	Cosine    float64 `json:"cosine"`
	GraphRank float64 `json:"graphRank"`
}

// Search combines embedding cosine with PageRank over the knowledge graph:
// 0.7 * cosine + 0.3 * (rank / max rank).
func (ix *Index) Search(ctx context.Context, query string, nodes []graph.Node, edges []graph.Edge, topK int) ([]GraphResult, error) {
	if topK <= 0 {
		topK = 10
	}
	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	ranks := graph.PageRank(nodes, edges)
	maxRank := 0.0
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}

	var out []GraphResult
	for _, node := range nodes {
		if len(node.Embedding) == 0 || len(node.Embedding) != len(queryVec) {
			continue
		}
		cos := cosine(queryVec, node.Embedding)
		rel := 0.0
		if maxRank > 0 {
			rel = ranks[node.ID] / maxRank
		}
		out = append(out, GraphResult{
			NodeID:    node.ID,
			Score:     cosineWeight*cos + pageRankWeight*rel,
			Cosine:    cos,
			GraphRank: rel,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// SearchSummaries implements consolidate.SummaryIndex over the embeddings
// table.
func (ix *Index) SearchSummaries(query string, level consolidate.Level, periodPrefix, project string, limit int) ([]consolidate.SummaryHit, error) {
	if limit <= 0 {
		limit = 5
	}
	queryVec, err := ix.embedder.Embed(context.Background(), query)
	if err != nil {
		return nil, err
	}
	rows, err := ix.repo.BySourceType(level.SourceType())
	if err != nil {
		return nil, err
	}

	var hits []consolidate.SummaryHit
	for _, row := range rows {
		var meta entryMeta
		_ = json.Unmarshal([]byte(row.Metadata), &meta)

		if periodPrefix != "" && !strings.HasPrefix(meta.Period, periodPrefix) {
			continue
		}
		if project != "" && meta.Project != "" && meta.Project != project {
			continue
		}
		vec, err := codec.Decode(row.Vector)
		if err != nil || len(vec) != len(queryVec) {
			continue
		}
		score := cosine(queryVec, vec)
		if score <= 0 {
			continue
		}
		hits = append(hits, consolidate.SummaryHit{
			Level:   level,
			Period:  meta.Period,
			Project: meta.Project,
			Score:   score,
			Snippet: capText(row.Text, 300),
			Date:    meta.Date,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosine(a []float32, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func hasAnyTag(tags, wanted []string) bool {
	for _, w := range wanted {
		for _, t := range tags {
			if strings.EqualFold(t, w) {
				return true
			}
		}
	}
	return false
}
