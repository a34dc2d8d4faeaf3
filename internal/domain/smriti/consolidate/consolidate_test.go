package consolidate

import (
	"strings"
	"testing"
)

func TestExtractSignal_Daily(t *testing.T) {
	markdown := `# Daily Summary 2025-06-12

## Facts
- Fact: the retry budget defaults to three attempts
- Decision: vectors move to sqlite blobs
- random chatter about lunch

## Topics
- Topic: bandit reward shaping
`
	out := ExtractSignal(LevelDaily, markdown)

	for _, want := range []string{
		"Daily Summary 2025-06-12",
		"retry budget defaults",
		"vectors move to sqlite",
		"bandit reward shaping",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("extraction missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "lunch") {
		t.Error("unmarked chatter should be filtered out")
	}
}

func TestExtractSignal_MonthlyAndYearly(t *testing.T) {
	monthly := `# June

- Metric: 214 sessions indexed
- Vasana: reaches for grep before reading files
- Recommendation: consolidate flaky test notes
- assorted noise line
`
	out := ExtractSignal(LevelMonthly, monthly)
	if !strings.Contains(out, "214 sessions") || !strings.Contains(out, "grep before reading") {
		t.Errorf("monthly extraction wrong:\n%s", out)
	}
	if strings.Contains(out, "assorted noise") {
		t.Error("noise line survived monthly extraction")
	}

	yearly := `# 2025

Annual summary: the assistant shifted toward multi-agent dispatch.

- Trend: memory recall precision improved quarter over quarter
`
	out = ExtractSignal(LevelYearly, yearly)
	if !strings.Contains(out, "multi-agent dispatch") || !strings.Contains(out, "recall precision") {
		t.Errorf("yearly extraction wrong:\n%s", out)
	}
}

// fakeIndex serves canned hits per level.
type fakeIndex struct {
	hits map[Level][]SummaryHit
	// record of periodPrefix arguments per level
	prefixes map[Level][]string
}

func (f *fakeIndex) SearchSummaries(query string, level Level, periodPrefix, project string, limit int) ([]SummaryHit, error) {
	if f.prefixes == nil {
		f.prefixes = make(map[Level][]string)
	}
	f.prefixes[level] = append(f.prefixes[level], periodPrefix)

	var out []SummaryHit
	for _, h := range f.hits[level] {
		if periodPrefix != "" && !strings.HasPrefix(h.Period, periodPrefix) {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func TestHierarchicalSearch_DrillsDown(t *testing.T) {
	idx := &fakeIndex{hits: map[Level][]SummaryHit{
		LevelYearly: {{Level: LevelYearly, Period: "2025", Score: 0.9, Snippet: "year"}},
		LevelMonthly: {
			{Level: LevelMonthly, Period: "2025-06", Score: 0.8, Snippet: "june"},
			{Level: LevelMonthly, Period: "2024-01", Score: 0.9, Snippet: "stale"},
		},
		LevelDaily: {{Level: LevelDaily, Period: "2025-06-12", Score: 0.7, Snippet: "day"}},
	}}

	hits, err := HierarchicalTemporalSearch(idx, "retry budget", SearchOptions{Limit: 5})
	if err != nil {
		t.Fatal(err)
	}

	byKey := map[string]SummaryHit{}
	for _, h := range hits {
		byKey[string(h.Level)+"|"+h.Period] = h
	}
	if _, ok := byKey["monthly|2024-01"]; ok {
		t.Error("months outside the yearly hit must not appear")
	}

	y := byKey["yearly|2025"]
	m := byKey["monthly|2025-06"]
	d := byKey["daily|2025-06-12"]
	if y.Score != 0.9*yearlyBoost {
		t.Errorf("yearly boost wrong: %f", y.Score)
	}
	if m.Score != 0.8*monthlyBoost {
		t.Errorf("monthly boost wrong: %f", m.Score)
	}
	if d.Score != 0.7*dailyBoost {
		t.Errorf("daily boost wrong: %f", d.Score)
	}
	if d.Date != "2025-06-12" {
		t.Errorf("daily hit must carry its date, got %q", d.Date)
	}
}

func TestHierarchicalSearch_FallsBackWhenTiersEmpty(t *testing.T) {
	idx := &fakeIndex{hits: map[Level][]SummaryHit{
		LevelDaily: {{Level: LevelDaily, Period: "2025-06-12", Score: 0.5, Snippet: "only day"}},
	}}
	hits, err := HierarchicalTemporalSearch(idx, "anything", SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Level != LevelDaily {
		t.Fatalf("expected direct daily fallback, got %+v", hits)
	}
	// Daily tier must have been queried without a month prefix.
	last := idx.prefixes[LevelDaily][len(idx.prefixes[LevelDaily])-1]
	if last != "" {
		t.Errorf("fallback should query daily unprefixed, got %q", last)
	}
}

func TestHierarchicalSearch_LimitAndSnippet(t *testing.T) {
	var daily []SummaryHit
	long := strings.Repeat("s", 500)
	for _, p := range []string{"2025-06-01", "2025-06-02", "2025-06-03", "2025-06-04", "2025-06-05", "2025-06-06"} {
		daily = append(daily, SummaryHit{Level: LevelDaily, Period: p, Score: 0.5, Snippet: long})
	}
	idx := &fakeIndex{hits: map[Level][]SummaryHit{LevelDaily: daily}}

	hits, err := HierarchicalTemporalSearch(idx, "q", SearchOptions{Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 5 {
		t.Errorf("limit 5 not honored, got %d", len(hits))
	}
	for _, h := range hits {
		if len(h.Snippet) > 300 {
			t.Errorf("snippet exceeds 300 chars: %d", len(h.Snippet))
		}
	}
}
