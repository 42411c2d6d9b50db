// Package traffic replays corpus questions against the cache service at a
// fixed rate, choosing questions from a configurable distribution.
package traffic

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Pair is one corpus row.
type Pair struct {
	Question string
	Answer   string
}

// Distribution names a sampling strategy.
type Distribution string

const (
	Uniform  Distribution = "uniform"
	Gaussian Distribution = "gaussian"
	Poisson  Distribution = "poisson"
)

// DefaultLambda is the mean number of questions per Poisson tick.
const DefaultLambda = 2.0

// ParseDistribution accepts the names above in any case. Unknown names are
// an error rather than a silent fallback.
func ParseDistribution(s string) (Distribution, error) {
	switch d := Distribution(strings.ToLower(strings.TrimSpace(s))); d {
	case Uniform, Gaussian, Poisson:
		return d, nil
	case "":
		return Poisson, nil
	default:
		return "", fmt.Errorf("traffic: unknown distribution %q", s)
	}
}

// Sampler picks corpus indices for one tick.
type Sampler struct {
	dist   Distribution
	lambda float64
	rnd    *rand.Rand
}

// NewSampler builds a sampler. A nil rnd uses a time-seeded source.
func NewSampler(dist Distribution, lambda float64, rnd *rand.Rand) *Sampler {
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Sampler{dist: dist, lambda: lambda, rnd: rnd}
}

// Next returns the indices to emit this tick, each in [0, n). Poisson ticks
// may return none.
func (s *Sampler) Next(n int) []int {
	if n <= 0 {
		return nil
	}
	switch s.dist {
	case Gaussian:
		std := math.Max(1, float64(n/4))
		return []int{s.boundedGaussian(n, float64(n/2), std)}
	case Poisson:
		k := s.poisson()
		if k > n {
			k = n
		}
		out := make([]int, k)
		for i := range out {
			out[i] = s.rnd.Intn(n)
		}
		return out
	default:
		return []int{s.rnd.Intn(n)}
	}
}

// boundedGaussian resamples until the rounded draw lands inside the corpus.
func (s *Sampler) boundedGaussian(n int, mean, std float64) int {
	for {
		u1 := 1 - s.rnd.Float64()
		u2 := 1 - s.rnd.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
		idx := int(math.Round(z*std + mean))
		if idx >= 0 && idx < n {
			return idx
		}
	}
}

// poisson draws k using Knuth's multiplication method.
func (s *Sampler) poisson() int {
	limit := math.Exp(-s.lambda)
	k := 0
	p := 1.0
	for {
		k++
		p *= s.rnd.Float64()
		if p <= limit {
			return k - 1
		}
	}
}
