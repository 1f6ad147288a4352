package datasets

import (
	"fmt"

	"github.com/shoprank/planfeed/imaging"
	"github.com/shoprank/planfeed/sampling"
	"github.com/shoprank/planfeed/textproc"
)

// DefaultDiscrimSize is the default product-group size for the preference
// discrimination task.
const DefaultDiscrimSize = 30

// PreferenceDiscrim pairs a plan's text with a fixed-size group of product
// images for the preference discrimination task: one positive drawn toward
// high target scores plus complementary negatives.
type PreferenceDiscrim struct {
	base        *planBase
	discrimSize int
}

// NewPreferenceDiscrim builds the discrimination dataset. The default
// sampling strategy is weighted; discrimSize must be at least 2.
func NewPreferenceDiscrim(cfg Config, discrimSize int) (*PreferenceDiscrim, error) {
	if discrimSize < 2 {
		return nil, fmt.Errorf("discrimination group size must be at least 2, got %d", discrimSize)
	}
	base, err := newPlanBase(cfg, sampling.Weighted, false)
	if err != nil {
		return nil, err
	}
	return &PreferenceDiscrim{base: base, discrimSize: discrimSize}, nil
}

// Len returns the number of unique plans.
func (d *PreferenceDiscrim) Len() int { return d.base.NumPlans() }

// Plans returns the plan ids this dataset can be iterated over.
func (d *PreferenceDiscrim) Plans() []string { return d.base.Plans() }

// Get returns the plan's text content and the stacked image tensor of the
// sampled product group, shape [discrimSize, 3, size, size].
func (d *PreferenceDiscrim) Get(planID string) (*textproc.Content, *imaging.Tensor, error) {
	content, _, _, stacked, err := d.sampleGroup(planID)
	if err != nil {
		return nil, nil, err
	}
	return content, stacked, nil
}

// sampleGroup does the shared work of the discrimination variants: plan text
// from the group head, a discrimSize product sample, and the per-product
// image tensors stacked into one batch.
func (d *PreferenceDiscrim) sampleGroup(planID string) (*textproc.Content, map[string]string, []sampling.Item, *imaging.Tensor, error) {
	group, err := d.base.group(planID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	// Plan attributes repeat on every row of the group; the head row is the
	// canonical source.
	content, rawAttrs, err := d.base.planText(group[0].Row)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	picked, err := d.base.sampler.Sample(group, d.discrimSize)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	images := make([]*imaging.Tensor, len(picked))
	for i, it := range picked {
		img, _, err := d.base.image(it.Row)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		images[i] = img
	}
	stacked, err := imaging.Stack(images)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return content, rawAttrs, picked, stacked, nil
}

// ScoredDiscrim is PreferenceDiscrim plus the parallel target-score list,
// used by the score-supervised ablation of the discrimination task.
type ScoredDiscrim struct {
	inner *PreferenceDiscrim
}

// NewScoredDiscrim builds the score-supervised discrimination dataset.
func NewScoredDiscrim(cfg Config, discrimSize int) (*ScoredDiscrim, error) {
	inner, err := NewPreferenceDiscrim(cfg, discrimSize)
	if err != nil {
		return nil, err
	}
	return &ScoredDiscrim{inner: inner}, nil
}

// Len returns the number of unique plans.
func (d *ScoredDiscrim) Len() int { return d.inner.Len() }

// Plans returns the plan ids this dataset can be iterated over.
func (d *ScoredDiscrim) Plans() []string { return d.inner.Plans() }

// Get returns text, stacked images and the sampled products' target scores,
// parallel to the image stack order.
func (d *ScoredDiscrim) Get(planID string) (*textproc.Content, *imaging.Tensor, []float64, error) {
	content, _, picked, stacked, err := d.inner.sampleGroup(planID)
	if err != nil {
		return nil, nil, nil, err
	}
	scores := make([]float64, len(picked))
	for i, it := range picked {
		scores[i] = it.Score
	}
	return content, stacked, scores, nil
}

// PreferenceDiscrimEval is the evaluation twin of PreferenceDiscrim: every
// group carries a provenance descriptor with parallel id, score and image
// path slices.
type PreferenceDiscrimEval struct {
	inner *PreferenceDiscrim
}

// NewPreferenceDiscrimEval builds the evaluation discrimination dataset.
func NewPreferenceDiscrimEval(cfg Config, discrimSize int) (*PreferenceDiscrimEval, error) {
	inner, err := NewPreferenceDiscrim(cfg, discrimSize)
	if err != nil {
		return nil, err
	}
	return &PreferenceDiscrimEval{inner: inner}, nil
}

// Len returns the number of unique plans.
func (d *PreferenceDiscrimEval) Len() int { return d.inner.Len() }

// Plans returns the plan ids this dataset can be iterated over.
func (d *PreferenceDiscrimEval) Plans() []string { return d.inner.Plans() }

// RankedGroup exposes the full score-ranked product group of a plan.
func (d *PreferenceDiscrimEval) RankedGroup(planID string) ([]sampling.Item, error) {
	return d.inner.base.RankedGroup(planID)
}

// Get returns text, stacked images and the group descriptor.
func (d *PreferenceDiscrimEval) Get(planID string) (*textproc.Content, *imaging.Tensor, *GroupDescriptor, error) {
	content, rawAttrs, picked, stacked, err := d.inner.sampleGroup(planID)
	if err != nil {
		return nil, nil, nil, err
	}

	base := d.inner.base
	desc := &GroupDescriptor{
		PlanID:     planID,
		PlanAttrs:  rawAttrs,
		IDs:        make([]string, len(picked)),
		ProdIDs:    make([]string, len(picked)),
		Scores:     make([]float64, len(picked)),
		ImagePaths: make([]string, len(picked)),
	}
	for i, it := range picked {
		desc.IDs[i] = base.table.ID(it.Row)
		desc.ProdIDs[i] = base.table.ProdID(it.Row)
		desc.Scores[i] = it.Score
		desc.ImagePaths[i] = base.store.Path(base.table.ProdID(it.Row))
	}
	return content, stacked, desc, nil
}
