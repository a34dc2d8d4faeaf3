package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/service"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/smriti/akasha"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/smriti/consolidate"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/vectorstore"
)

// LocalDeps feeds the skipLLM handlers.
type LocalDeps struct {
	Index            *vectorstore.Index
	Field            *akasha.Field
	WorkingDirectory string
	Logger           *zap.Logger
}

// NewLocalHandlers builds the handler map for the skipLLM task types.
// Handlers never fail hard: the orchestrator turns their errors into
// explanatory results.
func NewLocalHandlers(deps LocalDeps) map[service.TaskType]service.LocalHandler {
	return map[service.TaskType]service.LocalHandler{
		service.TaskSearch: searchHandler(deps),
		service.TaskMemory: memoryHandler(deps),
		service.TaskFileOp: fileOpHandler(deps),
	}
}

// searchHandler recalls indexed sessions with stigmergic boosting.
func searchHandler(deps LocalDeps) service.LocalHandler {
	return func(ctx context.Context, query string) (string, error) {
		if deps.Index == nil {
			return "", fmt.Errorf("vector index unavailable")
		}
		results := deps.Index.Recall(ctx, query, vectorstore.RecallOptions{TopK: 5})
		if len(results) == 0 {
			return "No indexed memory matches that query.", nil
		}

		if deps.Field != nil {
			boostable := make([]akasha.BoostableResult, len(results))
			for i, r := range results {
				boostable[i] = akasha.BoostableResult{ID: r.SessionID, Text: r.MatchedContent, Score: r.Relevance}
			}
			boosted := deps.Field.BoostResults(boostable, query)
			sort.SliceStable(boosted, func(i, j int) bool { return boosted[i].Score > boosted[j].Score })

			byID := make(map[string]vectorstore.RecallResult, len(results))
			for _, r := range results {
				byID[r.SessionID] = r
			}
			reordered := make([]vectorstore.RecallResult, 0, len(results))
			for _, b := range boosted {
				r := byID[b.ID]
				r.Relevance = b.Score
				reordered = append(reordered, r)
			}
			results = reordered
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Found %d matches:\n", len(results))
		for _, r := range results {
			title := r.Title
			if title == "" {
				title = r.SessionID
			}
			fmt.Fprintf(&b, "- [%.2f] %s (%s): %s\n", r.Relevance, title, r.Source, firstSentence(r.MatchedContent))
		}
		return b.String(), nil
	}
}

// memoryHandler answers from the consolidation hierarchy, falling back to
// plain recall.
func memoryHandler(deps LocalDeps) service.LocalHandler {
	return func(ctx context.Context, query string) (string, error) {
		if deps.Index == nil {
			return "", fmt.Errorf("vector index unavailable")
		}

		hits, err := consolidate.HierarchicalTemporalSearch(deps.Index, query, consolidate.SearchOptions{Limit: 5})
		if err == nil && len(hits) > 0 {
			var b strings.Builder
			b.WriteString("From consolidated memory:\n")
			for _, h := range hits {
				fmt.Fprintf(&b, "- [%s %s] %s\n", h.Level, h.Period, h.Snippet)
			}
			return b.String(), nil
		}

		results := deps.Index.Recall(ctx, query, vectorstore.RecallOptions{TopK: 5})
		if len(results) == 0 {
			return "Nothing in memory matches that.", nil
		}
		var b strings.Builder
		b.WriteString("From session memory:\n")
		for _, r := range results {
			fmt.Fprintf(&b, "- [%.2f] %s: %s\n", r.Relevance, r.Title, firstSentence(r.MatchedContent))
		}
		return b.String(), nil
	}
}

// fileOpHandler serves read-only file questions inside the working
// directory. Mutating operations stay with the real tool registry and its
// invariant checks.
func fileOpHandler(deps LocalDeps) service.LocalHandler {
	return func(_ context.Context, query string) (string, error) {
		root := deps.WorkingDirectory
		if root == "" {
			root, _ = os.Getwd()
		}

		lower := strings.ToLower(query)
		if strings.Contains(lower, "list") || strings.Contains(lower, "directory") || strings.Contains(lower, "files") {
			entries, err := os.ReadDir(root)
			if err != nil {
				return "", err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return fmt.Sprintf("%s:\n%s", root, strings.Join(names, "\n")), nil
		}

		// Any path-looking token gets a stat.
		for _, token := range strings.Fields(query) {
			if !strings.ContainsAny(token, "./") {
				continue
			}
			full := filepath.Join(root, filepath.Clean(token))
			if !strings.HasPrefix(full, root) {
				continue // stay inside the working directory
			}
			if info, err := os.Stat(full); err == nil {
				return fmt.Sprintf("%s: %d bytes, modified %s", token, info.Size(), info.ModTime().Format("2006-01-02 15:04")), nil
			}
		}
		return "Tell me the file or directory you mean and I'll look.", nil
	}
}

func firstSentence(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if idx := strings.IndexAny(s, ".!?"); idx > 0 && idx < 160 {
		return s[:idx+1]
	}
	if len(s) > 160 {
		return s[:160] + "…"
	}
	return s
}
