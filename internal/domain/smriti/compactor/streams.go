package compactor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StreamEntry is one append-log entry of a memory stream.
type StreamEntry struct {
	Text   string `json:"text"`
	Pinned bool   `json:"pinned,omitempty"`
	At     int64  `json:"at"` // epoch ms
}

// Tokens estimates the entry's token cost (~4 chars/token).
func (e StreamEntry) Tokens() int {
	n := len(e.Text) / 4
	if n == 0 && len(e.Text) > 0 {
		n = 1
	}
	return n
}

// StreamDoc is the in-memory form of one stream file.
type StreamDoc struct {
	Name    string        `json:"name"`
	Entries []StreamEntry `json:"entries"`
}

// TokenCount sums the entry estimates.
func (d *StreamDoc) TokenCount() int {
	total := 0
	for _, e := range d.Entries {
		total += e.Tokens()
	}
	return total
}

// Trim drops the oldest unpinned entries until the document fits the budget.
// Pinned entries always survive.
func (d *StreamDoc) Trim(budget int) int {
	dropped := 0
	for d.TokenCount() > budget {
		idx := -1
		for i, e := range d.Entries {
			if !e.Pinned {
				idx = i
				break
			}
		}
		if idx < 0 {
			break // only pinned entries left
		}
		d.Entries = append(d.Entries[:idx], d.Entries[idx+1:]...)
		dropped++
	}
	return dropped
}

// Signal is one extracted memory signal bound for a stream.
type Signal struct {
	Stream int    `json:"stream"`
	Text   string `json:"text"`
}

// ExtractSignals classifies lines of turn content into streams with keyword
// heuristics. Unmatched substantive lines flow into the per-device stream.
func ExtractSignals(text string) []Signal {
	var signals []Signal
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 8 {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "i prefer") || strings.Contains(lower, "always use") ||
			strings.Contains(lower, "never use") || strings.Contains(lower, "my name") ||
			strings.Contains(lower, "i work"):
			signals = append(signals, Signal{Stream: StreamIdentity, Text: line})
		case strings.Contains(lower, "project") || strings.Contains(lower, "repo") ||
			strings.Contains(lower, "architecture") || strings.Contains(lower, "codebase"):
			signals = append(signals, Signal{Stream: StreamProjects, Text: line})
		case strings.Contains(lower, "todo") || strings.Contains(lower, "task") ||
			strings.Contains(lower, "need to") || strings.Contains(lower, "next step") ||
			strings.Contains(lower, "blocked"):
			signals = append(signals, Signal{Stream: StreamTasks, Text: line})
		default:
			signals = append(signals, Signal{Stream: StreamFlow, Text: line})
		}
	}
	return signals
}

// Manager owns the stream files under <home>/streams and the compaction
// sidecars under <home>/compaction. identity/projects/tasks are shared and
// append-only; flow is per-device and replaced atomically each turn.
type Manager struct {
	home     string
	deviceID string
	budget   int // total token budget across the four streams
	docs     [streamCount]*StreamDoc
	logger   *zap.Logger
}

// NewManager loads (or creates) the stream documents.
func NewManager(home, deviceID string, totalBudget int, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		home:     home,
		deviceID: deviceID,
		budget:   totalBudget,
		logger:   logger.With(zap.String("component", "compactor")),
	}
	for _, dir := range []string{"streams", "compaction", "deltas"} {
		if err := os.MkdirAll(filepath.Join(home, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	for i := 0; i < streamCount; i++ {
		doc, err := m.load(i)
		if err != nil {
			return nil, err
		}
		m.docs[i] = doc
	}
	return m, nil
}

func (m *Manager) fileName(stream int) string {
	name := StreamNames[stream]
	if stream == StreamFlow {
		name = "flow-" + m.deviceID
	}
	return filepath.Join(m.home, "streams", name+".md")
}

// load parses a stream markdown file back into entries. Each entry is one
// "- " bullet; a trailing " 📌" marks it pinned.
func (m *Manager) load(stream int) (*StreamDoc, error) {
	doc := &StreamDoc{Name: StreamNames[stream]}
	data, err := os.ReadFile(m.fileName(stream))
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		text := strings.TrimPrefix(line, "- ")
		pinned := false
		if strings.HasSuffix(text, " 📌") {
			pinned = true
			text = strings.TrimSuffix(text, " 📌")
		}
		doc.Entries = append(doc.Entries, StreamEntry{Text: text, Pinned: pinned})
	}
	return doc, nil
}

func (m *Manager) render(stream int) string {
	var b strings.Builder
	name := StreamNames[stream]
	fmt.Fprintf(&b, "# %s%s\n\n", strings.ToUpper(name[:1]), name[1:])
	for _, e := range m.docs[stream].Entries {
		b.WriteString("- " + e.Text)
		if e.Pinned {
			b.WriteString(" 📌")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// flush writes a stream file; flow is replaced via atomic rename.
func (m *Manager) flush(stream int) error {
	path := m.fileName(stream)
	content := m.render(stream)
	if stream == StreamFlow {
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, path)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// Append adds an entry to a stream without flushing.
func (m *Manager) Append(stream int, text string, pinned bool) {
	m.docs[stream].Entries = append(m.docs[stream].Entries, StreamEntry{
		Text:   text,
		Pinned: pinned,
		At:     time.Now().UnixMilli(),
	})
}

// Doc exposes a stream document (primarily for recall and tests).
func (m *Manager) Doc(stream int) *StreamDoc { return m.docs[stream] }

// Sidecar is the compaction audit record written per session.
type Sidecar struct {
	SessionID    string                            `json:"sessionId"`
	Timestamp    int64                             `json:"timestamp"` // epoch ms
	Streams      []SidecarStream                   `json:"streams"`
	MixingMatrix [streamCount][streamCount]float64 `json:"mixingMatrix"`
	SignalCounts [streamCount]int                  `json:"signalCounts"`
	Signals      []Signal                          `json:"signals"` // first 10
	Converged    bool                              `json:"converged"`
}

// SidecarStream summarizes one stream's state after compaction.
type SidecarStream struct {
	Name    string `json:"name"`
	Budget  int    `json:"budget"`
	Tokens  int    `json:"tokens"`
	Entries int    `json:"entries"`
	Dropped int    `json:"dropped"`
}

// Compact routes the session's signals into the streams, computes the
// Sinkhorn budgets, trims each stream to its budget and writes the files and
// the audit sidecar.
func (m *Manager) Compact(sessionID string, signals []Signal) (*Sidecar, error) {
	var counts [streamCount]int
	for _, s := range signals {
		if s.Stream < 0 || s.Stream >= streamCount {
			continue
		}
		counts[s.Stream]++
		m.Append(s.Stream, s.Text, false)
	}

	res := Sinkhorn(BuildAffinity(counts))
	budgets := AllocateBudgets(m.budget, res.Matrix)

	sidecar := &Sidecar{
		SessionID:    sessionID,
		Timestamp:    time.Now().UnixMilli(),
		MixingMatrix: res.Matrix,
		SignalCounts: counts,
		Converged:    res.Converged,
	}
	if len(signals) > 10 {
		sidecar.Signals = signals[:10]
	} else {
		sidecar.Signals = signals
	}

	for i := 0; i < streamCount; i++ {
		dropped := m.docs[i].Trim(budgets[i])
		if err := m.flush(i); err != nil {
			return nil, fmt.Errorf("flush stream %s: %w", StreamNames[i], err)
		}
		sidecar.Streams = append(sidecar.Streams, SidecarStream{
			Name:    StreamNames[i],
			Budget:  budgets[i],
			Tokens:  m.docs[i].TokenCount(),
			Entries: len(m.docs[i].Entries),
			Dropped: dropped,
		})
	}

	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return nil, err
	}
	sidecarPath := filepath.Join(m.home, "compaction", sessionID+".json")
	if err := os.WriteFile(sidecarPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write sidecar: %w", err)
	}

	m.logger.Info("Streams compacted",
		zap.String("session", sessionID),
		zap.Int("signals", len(signals)),
		zap.Bool("converged", res.Converged),
	)
	return sidecar, nil
}
