package vidhi

import (
	"math/rand"
	"strings"
	"sync"
)

// Matcher selects the best procedure for a query by combining trigger
// Jaccard similarity with a Thompson sample of the procedure's track record.
type Matcher struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMatcher seeds the sampler.
func NewMatcher(seed int64) *Matcher {
	return &Matcher{rng: rand.New(rand.NewSource(seed))}
}

const minTriggerJaccard = 0.15

// Match returns the best-scoring vidhi for the query, or nil when no
// candidate clears the similarity floor. Score is
// 0.7*jaccard + 0.3*Beta(successes+1, failures+1) sample.
func (m *Matcher) Match(vidhis []Vidhi, query string) *Vidhi {
	queryTokens := matchTokens(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var best *Vidhi
	bestScore := -1.0

	for i := range vidhis {
		v := &vidhis[i]

		triggerTokens := make(map[string]bool)
		for _, trigger := range v.Triggers {
			for t := range matchTokens(trigger) {
				triggerTokens[t] = true
			}
		}
		sim := jaccard(queryTokens, triggerTokens)
		if sim < minTriggerJaccard {
			continue
		}

		m.mu.Lock()
		sample := sampleBeta(m.rng, float64(v.SuccessCount+1), float64(v.FailureCount+1))
		m.mu.Unlock()

		score := 0.7*sim + 0.3*sample
		if score > bestScore {
			best, bestScore = v, score
		}
	}

	return best
}

func matchTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		token := strings.TrimFunc(raw, func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
		})
		if len(token) <= 1 || triggerStopwords[token] {
			continue
		}
		tokens[token] = true
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
