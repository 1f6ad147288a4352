package datasets

import (
	"io"
	"math/rand"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// This file adapts the dataset variants to the gomlx train.Dataset surface
// (Name / Yield / Reset) so they plug straight into a gomlx training loop.
// Each Yield produces one plan's example; io.EOF signals the end of an
// epoch and Reset starts the next one, reshuffling when enabled.

// epochWalker iterates plan ids, optionally reshuffled per epoch.
type epochWalker struct {
	mu    sync.Mutex
	plans []string
	pos   int
	rng   *rand.Rand
}

func newEpochWalker(plans []string, shuffleSeed int64) *epochWalker {
	w := &epochWalker{plans: append([]string(nil), plans...)}
	if shuffleSeed != 0 {
		w.rng = rand.New(rand.NewSource(shuffleSeed))
		w.shuffleLocked()
	}
	return w
}

func (w *epochWalker) next() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pos >= len(w.plans) {
		return "", false
	}
	planID := w.plans[w.pos]
	w.pos++
	return planID, true
}

func (w *epochWalker) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pos = 0
	if w.rng != nil {
		w.shuffleLocked()
	}
}

func (w *epochWalker) shuffleLocked() {
	w.rng.Shuffle(len(w.plans), func(i, j int) {
		w.plans[i], w.plans[j] = w.plans[j], w.plans[i]
	})
}

// MatchingSource exposes a SemanticMatching dataset as a gomlx
// train.Dataset. Inputs per step: token ids and one image tensor; the
// matching task is contrastive, so there are no labels.
type MatchingSource struct {
	ds     *SemanticMatching
	walker *epochWalker
}

// NewMatchingSource wraps the dataset; shuffleSeed != 0 reshuffles the plan
// order every epoch.
func NewMatchingSource(ds *SemanticMatching, shuffleSeed int64) *MatchingSource {
	return &MatchingSource{ds: ds, walker: newEpochWalker(ds.Plans(), shuffleSeed)}
}

// Name implements train.Dataset.
func (s *MatchingSource) Name() string { return "SemanticMatching" }

// Reset implements train.Dataset.
func (s *MatchingSource) Reset() { s.walker.reset() }

// Yield implements train.Dataset.
func (s *MatchingSource) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	planID, ok := s.walker.next()
	if !ok {
		return nil, nil, nil, io.EOF
	}
	content, img, err := s.ds.Get(planID)
	if err != nil {
		return nil, nil, nil, err
	}
	imgT, err := img.ToGomlx()
	if err != nil {
		return nil, nil, nil, err
	}
	inputs = []*tensors.Tensor{tensors.FromAnyValue(content.Tokens), imgT}
	return nil, inputs, nil, nil
}

// DiscrimSource exposes a ScoredDiscrim dataset as a gomlx train.Dataset.
// Inputs per step: token ids and the stacked image tensor; labels: the
// parallel target scores.
type DiscrimSource struct {
	ds     *ScoredDiscrim
	walker *epochWalker
}

// NewDiscrimSource wraps the dataset; shuffleSeed != 0 reshuffles the plan
// order every epoch.
func NewDiscrimSource(ds *ScoredDiscrim, shuffleSeed int64) *DiscrimSource {
	return &DiscrimSource{ds: ds, walker: newEpochWalker(ds.Plans(), shuffleSeed)}
}

// Name implements train.Dataset.
func (s *DiscrimSource) Name() string { return "ScoredDiscrim" }

// Reset implements train.Dataset.
func (s *DiscrimSource) Reset() { s.walker.reset() }

// Yield implements train.Dataset.
func (s *DiscrimSource) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	planID, ok := s.walker.next()
	if !ok {
		return nil, nil, nil, io.EOF
	}
	content, stacked, scores, err := s.ds.Get(planID)
	if err != nil {
		return nil, nil, nil, err
	}
	stackedT, err := stacked.ToGomlx()
	if err != nil {
		return nil, nil, nil, err
	}
	scoreVec := make([]float32, len(scores))
	for i, v := range scores {
		scoreVec[i] = float32(v)
	}
	inputs = []*tensors.Tensor{tensors.FromAnyValue(content.Tokens), stackedT}
	labels = []*tensors.Tensor{tensors.FromAnyValue(scoreVec)}
	return nil, inputs, labels, nil
}
