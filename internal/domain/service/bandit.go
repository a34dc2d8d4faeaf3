package service

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// BanditMode selects the exploration algorithm.
type BanditMode string

const (
	BanditUCB1     BanditMode = "ucb1"
	BanditThompson BanditMode = "thompson"
	BanditLinUCB   BanditMode = "linucb"
)

const contextDim = 5 // [taskComplexity, agentCount, memoryPressure, avgLatency, errorRate]

// armState is the per-strategy learning state.
type armState struct {
	Plays       int     `json:"plays"`
	TotalReward float64 `json:"totalReward"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`

	// LinUCB accumulators: A = I + sum(x x^T), B = sum(reward * x).
	A [contextDim][contextDim]float64 `json:"a"`
	B [contextDim]float64             `json:"b"`
}

// StrategyBandit adapts strategy choice over time. Rewards land in [0,1] and
// are interpreted two ways at once: thresholded at 0.5 into Beta
// success/failure counts (Thompson) and accumulated at full magnitude into
// the running mean (UCB1). The two views never mix within one mode's score.
type StrategyBandit struct {
	mu sync.Mutex

	mode         BanditMode
	explorationC float64 // UCB1 exploration constant
	alpha        float64 // LinUCB confidence width
	arms         map[string]*armState
	totalPlays   int
	rng          *rand.Rand
}

// banditState is the serialized form.
type banditState struct {
	Mode         BanditMode           `json:"mode"`
	ExplorationC float64              `json:"explorationC"`
	Alpha        float64              `json:"alpha"`
	Arms         map[string]*armState `json:"arms"`
	TotalPlays   int                  `json:"totalPlays"`
}

// NewStrategyBandit creates a bandit over the six strategies.
func NewStrategyBandit(mode BanditMode, seed int64) *StrategyBandit {
	b := &StrategyBandit{
		mode:         mode,
		explorationC: math.Sqrt2,
		alpha:        1.0,
		arms:         make(map[string]*armState, len(AllStrategies)),
		rng:          rand.New(rand.NewSource(seed)),
	}
	for _, s := range AllStrategies {
		b.arms[s] = newArm()
	}
	return b
}

func newArm() *armState {
	arm := &armState{}
	for i := 0; i < contextDim; i++ {
		arm.A[i][i] = 1 // identity prior
	}
	return arm
}

// Select picks a strategy. ctx is the LinUCB context vector; UCB1 and
// Thompson ignore it.
func (b *StrategyBandit) Select(ctx [contextDim]float64) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.mode {
	case BanditThompson:
		return b.selectThompson()
	case BanditLinUCB:
		return b.selectLinUCB(ctx)
	default:
		return b.selectUCB1()
	}
}

func (b *StrategyBandit) selectUCB1() string {
	best, bestScore := "", math.Inf(-1)
	for _, name := range AllStrategies {
		arm := b.arms[name]
		if arm.Plays == 0 {
			return name // unplayed arms have infinite score
		}
		mean := arm.TotalReward / float64(arm.Plays)
		score := mean + b.explorationC*math.Sqrt(math.Log(float64(b.totalPlays))/float64(arm.Plays))
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	return best
}

func (b *StrategyBandit) selectThompson() string {
	best, bestSample := "", -1.0
	for _, name := range AllStrategies {
		arm := b.arms[name]
		sample := sampleBetaBandit(b.rng, float64(arm.Successes+1), float64(arm.Failures+1))
		if sample > bestSample {
			best, bestSample = name, sample
		}
	}
	return best
}

func (b *StrategyBandit) selectLinUCB(x [contextDim]float64) string {
	best, bestScore := "", math.Inf(-1)
	for _, name := range AllStrategies {
		arm := b.arms[name]
		inv, ok := invert(arm.A)
		if !ok {
			return name // A starts at identity; only a corrupt restored state is singular
		}
		theta := matVec(inv, arm.B)
		mean := dot(theta, x)
		width := math.Sqrt(math.Max(0, dot(matVec(inv, x), x)))
		score := mean + b.alpha*width
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	return best
}

// Update folds one observed reward in [0,1] for a strategy.
func (b *StrategyBandit) Update(strategy string, reward float64, ctx [contextDim]float64) {
	if reward < 0 {
		reward = 0
	}
	if reward > 1 {
		reward = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	arm, ok := b.arms[strategy]
	if !ok {
		arm = newArm()
		b.arms[strategy] = arm
	}

	arm.Plays++
	b.totalPlays++
	arm.TotalReward += reward
	if reward >= 0.5 {
		arm.Successes++
	} else {
		arm.Failures++
	}

	for i := 0; i < contextDim; i++ {
		for j := 0; j < contextDim; j++ {
			arm.A[i][j] += ctx[i] * ctx[j]
		}
		arm.B[i] += reward * ctx[i]
	}
}

// Plays returns a strategy's play count.
func (b *StrategyBandit) Plays(strategy string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if arm, ok := b.arms[strategy]; ok {
		return arm.Plays
	}
	return 0
}

// Serialize dumps the full state.
func (b *StrategyBandit) Serialize() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return json.Marshal(banditState{
		Mode:         b.mode,
		ExplorationC: b.explorationC,
		Alpha:        b.alpha,
		Arms:         b.arms,
		TotalPlays:   b.totalPlays,
	})
}

// Deserialize restores a dumped state.
func (b *StrategyBandit) Deserialize(data []byte) error {
	var st banditState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode bandit state: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = st.Mode
	if st.ExplorationC > 0 {
		b.explorationC = st.ExplorationC
	}
	if st.Alpha > 0 {
		b.alpha = st.Alpha
	}
	b.totalPlays = st.TotalPlays
	b.arms = st.Arms
	for _, s := range AllStrategies {
		if _, ok := b.arms[s]; !ok {
			b.arms[s] = newArm()
		}
	}
	return nil
}

// ── small dense linear algebra over the fixed 5x5 shape ──

// invert computes the inverse via Gauss-Jordan with partial pivoting.
func invert(a [contextDim][contextDim]float64) ([contextDim][contextDim]float64, bool) {
	var aug [contextDim][2 * contextDim]float64
	for i := 0; i < contextDim; i++ {
		for j := 0; j < contextDim; j++ {
			aug[i][j] = a[i][j]
		}
		aug[i][contextDim+i] = 1
	}

	for col := 0; col < contextDim; col++ {
		pivot := col
		for row := col + 1; row < contextDim; row++ {
			if math.Abs(aug[row][col]) > math.Abs(aug[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return [contextDim][contextDim]float64{}, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		p := aug[col][col]
		for j := 0; j < 2*contextDim; j++ {
			aug[col][j] /= p
		}
		for row := 0; row < contextDim; row++ {
			if row == col {
				continue
			}
			factor := aug[row][col]
			for j := 0; j < 2*contextDim; j++ {
				aug[row][j] -= factor * aug[col][j]
			}
		}
	}

	var inv [contextDim][contextDim]float64
	for i := 0; i < contextDim; i++ {
		for j := 0; j < contextDim; j++ {
			inv[i][j] = aug[i][contextDim+j]
		}
	}
	return inv, true
}

func matVec(m [contextDim][contextDim]float64, v [contextDim]float64) [contextDim]float64 {
	var out [contextDim]float64
	for i := 0; i < contextDim; i++ {
		for j := 0; j < contextDim; j++ {
			out[i] += m[i][j] * v[j]
		}
	}
	return out
}

func dot(a, b [contextDim]float64) float64 {
	sum := 0.0
	for i := 0; i < contextDim; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// sampleBetaBandit draws from Beta(a, b): gamma ratio, Marsaglia-Tsang for
// shape >= 1, boost transform below. Degenerate sums return 0.5.
func sampleBetaBandit(rng *rand.Rand, a, b float64) float64 {
	x := sampleGammaBandit(rng, a)
	y := sampleGammaBandit(rng, b)
	if x+y == 0 || math.IsNaN(x+y) {
		return 0.5
	}
	return x / (x + y)
}

func sampleGammaBandit(rng *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		return sampleGammaBandit(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*x*x*x*x {
			return d * v
		}
		if u > 0 && math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}
