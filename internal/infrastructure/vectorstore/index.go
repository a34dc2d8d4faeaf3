// Package vectorstore is the embedding index over vectors.db: chunked session
// indexing, stream and consolidation-summary entries, cosine recall with
// filters and hybrid PageRank scoring.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/smriti/consolidate"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/embedding"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/persistence"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/persistence/models"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/vectorstore/codec"
	"github.com/chitragupta/chitragupta/gateway/internal/util/fnv"
)

// Source types persisted in the source_type column.
const (
	SourceSession = "session"
	SourceStream  = "stream"
)

// entryMeta is the metadata JSON attached to each embedding row.
type entryMeta struct {
	Title    string   `json:"title,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Date     string   `json:"date,omitempty"`
	DeviceID string   `json:"deviceId,omitempty"`
	Project  string   `json:"project,omitempty"`
	Period   string   `json:"period,omitempty"`
	Level    string   `json:"level,omitempty"`
}

// SessionDoc is the indexable view of one session.
type SessionDoc struct {
	ID      string
	Project string
	Title   string
	Date    string // "2025-06-12"
	Turns   []TurnText
}

// TurnText is one turn's text for indexing.
type TurnText struct {
	Role    string
	Content string
}

const (
	chunkSize     = 4000
	chunkOverlap  = 500
	streamTextCap = 8000
	entryTextCap  = 5000
)

// Index owns indexing and recall.
type Index struct {
	repo     *persistence.EmbeddingRepository
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewIndex wires the repository and embedding provider. The provider is
// expected to be the cached chain ending in the hash fallback, so Embed
// never hard-fails for lack of an external service.
func NewIndex(repo *persistence.EmbeddingRepository, embedder embedding.Provider, logger *zap.Logger) *Index {
	return &Index{
		repo:     repo,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "vectorstore")),
	}
}

// IndexSession chunks the session transcript into overlapping windows and
// replaces any prior entries for the same session.
func (ix *Index) IndexSession(ctx context.Context, doc SessionDoc) error {
	text := ""
	for _, turn := range doc.Turns {
		text += turn.Role + ": " + turn.Content + "\n"
	}
	if text == "" {
		return nil
	}

	if err := ix.repo.DeleteBySource(doc.ID); err != nil {
		return fmt.Errorf("clear prior session entries: %w", err)
	}

	chunks := chunkText(text, chunkSize, chunkOverlap)
	meta := entryMeta{Title: doc.Title, Date: doc.Date, Project: doc.Project}
	metaJSON, _ := json.Marshal(meta)

	rows := make([]models.EmbeddingModel, 0, len(chunks))
	nowMs := time.Now().UnixMilli()
	for i, chunk := range chunks {
		vec, err := ix.embedder.Embed(ctx, chunk)
		if err != nil {
			return fmt.Errorf("embed session chunk: %w", err)
		}
		rows = append(rows, models.EmbeddingModel{
			ID:         fmt.Sprintf("%s-c%d", doc.ID, i),
			Vector:     codec.Encode(vec),
			Text:       capText(chunk, entryTextCap),
			SourceType: SourceSession,
			SourceID:   doc.ID,
			Dimensions: len(vec),
			Metadata:   string(metaJSON),
			CreatedAt:  nowMs,
		})
	}
	if err := ix.repo.BatchInsert(rows); err != nil {
		return err
	}
	ix.logger.Debug("Session indexed",
		zap.String("session", doc.ID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// IndexStream indexes the first 8k chars of one memory stream.
func (ix *Index) IndexStream(ctx context.Context, streamType, content, deviceID string) error {
	content = capText(content, streamTextCap)
	if content == "" {
		return nil
	}
	vec, err := ix.embedder.Embed(ctx, content)
	if err != nil {
		return err
	}

	meta := entryMeta{DeviceID: deviceID}
	metaJSON, _ := json.Marshal(meta)
	id := "stream-" + streamType
	if deviceID != "" {
		id += "-" + deviceID
	}
	return ix.repo.Upsert(models.EmbeddingModel{
		ID:         id,
		Vector:     codec.Encode(vec),
		Text:       capText(content, entryTextCap),
		SourceType: SourceStream,
		SourceID:   streamType,
		Dimensions: len(vec),
		Metadata:   string(metaJSON),
		CreatedAt:  time.Now().UnixMilli(),
	})
}

// IndexConsolidationSummary extracts the level's high-signal text and upserts
// it under a stable id, so re-running consolidation refreshes in place.
func (ix *Index) IndexConsolidationSummary(ctx context.Context, level consolidate.Level, period, markdown, project string) error {
	signal := consolidate.ExtractSignal(level, markdown)
	if signal == "" {
		return nil
	}
	vec, err := ix.embedder.Embed(ctx, signal)
	if err != nil {
		return err
	}

	meta := entryMeta{Period: period, Level: string(level), Project: project}
	if level == consolidate.LevelDaily {
		meta.Date = period
	}
	metaJSON, _ := json.Marshal(meta)

	return ix.repo.Upsert(models.EmbeddingModel{
		ID:         fnv.SumParts(string(level), period, project),
		Vector:     codec.Encode(vec),
		Text:       capText(signal, entryTextCap),
		SourceType: level.SourceType(),
		SourceID:   period,
		Dimensions: len(vec),
		Metadata:   string(metaJSON),
		CreatedAt:  time.Now().UnixMilli(),
	})
}

// chunkText splits text into windows of at most size chars with the given
// overlap between consecutive windows.
func chunkText(text string, size, overlap int) []string {
	if len(text) <= size {
		return []string{text}
	}
	var chunks []string
	step := size - overlap
	for start := 0; start < len(text); start += step {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

func capText(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
