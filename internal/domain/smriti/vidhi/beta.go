package vidhi

import (
	"math"
	"math/rand"
)

// sampleBeta draws from Beta(a, b) via the gamma-ratio method. Degenerate
// numerics (sum underflow) return the neutral 0.5.
func sampleBeta(rng *rand.Rand, a, b float64) float64 {
	x := sampleGamma(rng, a)
	y := sampleGamma(rng, b)
	if x+y == 0 || math.IsNaN(x+y) {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1). Marsaglia-Tsang for shape >= 1,
// the boost transform Gamma(a) = Gamma(a+1) * U^(1/a) below that.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
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
