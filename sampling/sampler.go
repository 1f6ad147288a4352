// Package sampling implements the positive/negative product sampling policy
// used by the plan datasets. A sampler draws representative products for a
// plan either deterministically (sequential), uniformly (random) or
// proportionally to a target score (weighted), with complementary
// inverse-weighted negatives for multi-item draws.
package sampling

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Strategy selects how products are drawn from a plan group.
type Strategy string

const (
	// Sequential ranks by target score descending; single draws tie-break
	// uniformly among rows sharing the maximum score.
	Sequential Strategy = "sequential"

	// Random draws uniformly without replacement.
	Random Strategy = "random"

	// Weighted draws proportionally to the jittered target score, with
	// inverse-weighted negatives for multi-item draws.
	Weighted Strategy = "weighted"
)

// ParseStrategy validates a strategy name coming from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Sequential, Random, Weighted:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("sampling strategy must be one of %q, %q, %q; got %q",
		Weighted, Random, Sequential, s)
}

const (
	// weightJitterScale scales the uniform noise added to scores so weighted
	// draws never see duplicate weights from identical scores.
	weightJitterScale = 1e-8

	// singleDrawCount is the number of weighted draws behind a single-item
	// selection; see WeightedArgmaxSample.
	singleDrawCount = 7

	// positiveDrawCount is the number of weighted draws behind the positive
	// of a multi-item selection.
	positiveDrawCount = 5
)

// Item is one product row as seen by the sampler: a handle into the backing
// metadata table plus the row's target score.
type Item struct {
	Row   int
	Score float64
}

// Sampler draws product items from a plan group. It holds its own random
// source behind a mutex so a shared instance is safe to use from concurrent
// dataset workers; it never mutates the group slice passed in.
type Sampler struct {
	strategy Strategy

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a sampler with the given strategy seeded from the clock.
func New(strategy Strategy) (*Sampler, error) {
	return NewSeeded(strategy, time.Now().UnixNano())
}

// NewSeeded creates a sampler with an explicit seed so draws are
// reproducible in tests.
func NewSeeded(strategy Strategy, seed int64) (*Sampler, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	return &Sampler{
		strategy: strategy,
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// Strategy returns the configured strategy.
func (s *Sampler) Strategy() Strategy { return s.strategy }

// Sample draws n items from one plan group.
//
// n == -1 returns the whole group sorted by score descending. n == 1 draws a
// single representative product per the strategy. n > 1 draws a positive plus
// n-1 complementary negatives (weighted), a uniform subset (random) or the
// top-n (sequential); when the group size equals n sampling is skipped and
// the sorted group is returned as-is.
func (s *Sampler) Sample(group []Item, n int) ([]Item, error) {
	if len(group) == 0 {
		return nil, fmt.Errorf("cannot sample from an empty plan group")
	}

	switch {
	case n == -1:
		return sortByScoreDesc(group), nil

	case n == 1:
		it, err := s.sampleOne(group)
		if err != nil {
			return nil, err
		}
		return []Item{it}, nil

	case n > 1:
		return s.sampleMany(group, n)
	}
	return nil, fmt.Errorf("sample count must be -1, 1 or greater; got %d", n)
}

func (s *Sampler) sampleOne(group []Item) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.strategy {
	case Random:
		return group[s.rng.Intn(len(group))], nil

	case Weighted:
		weights := s.jitteredWeights(group)
		idx := WeightedArgmaxSample(s.rng, weights, singleDrawCount)
		return group[idx], nil

	case Sequential:
		// Uniform choice among the rows tied for the maximum score.
		maxScore := group[0].Score
		for _, it := range group[1:] {
			if it.Score > maxScore {
				maxScore = it.Score
			}
		}
		var top []int
		for i, it := range group {
			if it.Score == maxScore {
				top = append(top, i)
			}
		}
		return group[top[s.rng.Intn(len(top))]], nil
	}
	return Item{}, fmt.Errorf("unknown sampling strategy %q", s.strategy)
}

func (s *Sampler) sampleMany(group []Item, n int) ([]Item, error) {
	if n > len(group) {
		return nil, fmt.Errorf("plan group has %d products, cannot sample %d", len(group), n)
	}
	// Small plans: the whole group already is the sample.
	if n == len(group) {
		return sortByScoreDesc(group), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.strategy {
	case Random:
		perm := s.rng.Perm(len(group))
		picked := make([]Item, n)
		for i := range picked {
			picked[i] = group[perm[i]]
		}
		// The target score travels with every item, so the drawn subset is
		// always re-ranked by it.
		sort.SliceStable(picked, func(i, j int) bool { return picked[i].Score > picked[j].Score })
		return picked, nil

	case Weighted:
		return s.samplePositiveNegativesLocked(group, n), nil

	case Sequential:
		return sortByScoreDesc(group)[:n], nil
	}
	return nil, fmt.Errorf("unknown sampling strategy %q", s.strategy)
}

// samplePositiveNegativesLocked draws one positive via the repeated-draw
// argmax procedure and n-1 negatives from the remainder, weighted by how far
// each row's weight sits below the remainder's maximum (low scorers are
// preferred as negatives). The result is ordered by jittered weight
// descending, positive first with high probability.
func (s *Sampler) samplePositiveNegativesLocked(group []Item, n int) []Item {
	weights := s.jitteredWeights(group)

	posIdx := WeightedArgmaxSample(s.rng, weights, positiveDrawCount)

	restIdx := make([]int, 0, len(group)-1)
	maxRest := 0.0
	for i := range group {
		if i == posIdx {
			continue
		}
		restIdx = append(restIdx, i)
		if len(restIdx) == 1 || weights[i] > maxRest {
			maxRest = weights[i]
		}
	}

	negWeights := make([]float64, len(restIdx))
	for i, gi := range restIdx {
		negWeights[i] = maxRest - weights[gi]
	}
	// After jitter the remainder cannot tie exactly, so the complementary
	// weights only sum to zero for degenerate single-row remainders; the
	// draw falls back to uniform in that case.
	negPicks := drawWeightedWithoutReplacement(s.rng, negWeights, n-1)

	picked := make([]Item, 0, n)
	pickedWeights := make([]float64, 0, n)
	picked = append(picked, group[posIdx])
	pickedWeights = append(pickedWeights, weights[posIdx])
	for _, pi := range negPicks {
		gi := restIdx[pi]
		picked = append(picked, group[gi])
		pickedWeights = append(pickedWeights, weights[gi])
	}

	order := make([]int, len(picked))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return pickedWeights[order[i]] > pickedWeights[order[j]]
	})
	out := make([]Item, len(picked))
	for i, oi := range order {
		out[i] = picked[oi]
	}
	return out
}

// jitteredWeights builds the per-call weight slice: score plus uniform noise
// in [0, weightJitterScale). The slice is local to the call so concurrent
// samplers over the same group never observe each other's weights.
func (s *Sampler) jitteredWeights(group []Item) []float64 {
	weights := make([]float64, len(group))
	for i, it := range group {
		weights[i] = it.Score + s.rng.Float64()*weightJitterScale
	}
	return weights
}

// WeightedArgmaxSample draws k items without replacement proportionally to
// weights, keeps the drawn items tied for the maximum drawn weight and
// chooses uniformly among those, returning the chosen index.
//
// Drawing k times and keeping the argmax concentrates the selection on the
// highest-weighted item far more than a single weighted draw would; the
// datasets rely on that exact shape for their positive draws, so this must
// not be collapsed into a direct top-1 weighted draw. k is clamped to
// len(weights).
func WeightedArgmaxSample(rng *rand.Rand, weights []float64, k int) int {
	drawn := drawWeightedWithoutReplacement(rng, weights, k)

	maxW := weights[drawn[0]]
	for _, i := range drawn[1:] {
		if weights[i] > maxW {
			maxW = weights[i]
		}
	}
	var tied []int
	for _, i := range drawn {
		if weights[i] == maxW {
			tied = append(tied, i)
		}
	}
	return tied[rng.Intn(len(tied))]
}

// drawWeightedWithoutReplacement draws k distinct indices with probability
// proportional to their weights. Non-positive weights carry no probability
// mass; once the remaining mass is exhausted the remaining picks are uniform
// over whatever is left. k is clamped to len(weights).
func drawWeightedWithoutReplacement(rng *rand.Rand, weights []float64, k int) []int {
	n := len(weights)
	if k > n {
		k = n
	}

	taken := make([]bool, n)
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}

	chosen := make([]int, 0, k)
	for len(chosen) < k {
		pick := -1
		if total > 0 {
			r := rng.Float64() * total
			acc := 0.0
			for i, w := range weights {
				if taken[i] || w <= 0 {
					continue
				}
				acc += w
				if r < acc {
					pick = i
					break
				}
			}
			if pick == -1 {
				// Float accumulation can land r a hair past the final bucket.
				for i := n - 1; i >= 0; i-- {
					if !taken[i] && weights[i] > 0 {
						pick = i
						break
					}
				}
			}
		}
		if pick == -1 {
			pick = uniformUntaken(rng, taken, n-len(chosen))
		}

		taken[pick] = true
		if weights[pick] > 0 {
			total -= weights[pick]
			if total < 0 {
				total = 0
			}
		}
		chosen = append(chosen, pick)
	}
	return chosen
}

func uniformUntaken(rng *rand.Rand, taken []bool, remaining int) int {
	target := rng.Intn(remaining)
	seen := 0
	for i, t := range taken {
		if t {
			continue
		}
		if seen == target {
			return i
		}
		seen++
	}
	// Unreachable while remaining matches the untaken count.
	for i := len(taken) - 1; i >= 0; i-- {
		if !taken[i] {
			return i
		}
	}
	return 0
}

func sortByScoreDesc(group []Item) []Item {
	out := make([]Item, len(group))
	copy(out, group)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
