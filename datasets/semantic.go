package datasets

import (
	"fmt"

	"github.com/shoprank/planfeed/imaging"
	"github.com/shoprank/planfeed/sampling"
	"github.com/shoprank/planfeed/textproc"
)

// DefaultTextAugProb is the default probability of swapping the plan text
// for the sampled product's own text.
const DefaultTextAugProb = 0.3

// SemanticMatching pairs one sampled product image with text for the
// text/image matching task. With probability pTextAug the text comes from
// the sampled product's own attributes instead of the plan's, a cheap text
// augmentation that exposes the model to both phrasings of the same item.
type SemanticMatching struct {
	base     *planBase
	pTextAug float64
}

// NewSemanticMatching builds the matching dataset. The default sampling
// strategy is random; pTextAug must lie in [0, 1].
func NewSemanticMatching(cfg Config, pTextAug float64) (*SemanticMatching, error) {
	if pTextAug < 0 || pTextAug > 1 {
		return nil, fmt.Errorf("text augmentation probability must be in [0, 1], got %v", pTextAug)
	}
	base, err := newPlanBase(cfg, sampling.Random, true)
	if err != nil {
		return nil, err
	}
	return &SemanticMatching{base: base, pTextAug: pTextAug}, nil
}

// Len returns the number of verified metadata rows.
func (d *SemanticMatching) Len() int { return d.base.NumRows() }

// Plans returns the plan ids this dataset can be iterated over.
func (d *SemanticMatching) Plans() []string { return d.base.Plans() }

// Get samples one product for the plan and returns the text content and the
// transformed product image.
func (d *SemanticMatching) Get(planID string) (*textproc.Content, *imaging.Tensor, error) {
	group, err := d.base.group(planID)
	if err != nil {
		return nil, nil, err
	}
	picked, err := d.base.sampler.Sample(group, 1)
	if err != nil {
		return nil, nil, err
	}
	row := picked[0].Row

	var content *textproc.Content
	if len(d.base.prodAttrs) > 0 && d.base.coin(d.pTextAug) {
		content, _, err = d.base.prodText(row)
	} else {
		content, _, err = d.base.planText(row)
	}
	if err != nil {
		return nil, nil, err
	}

	img, _, err := d.base.image(row)
	if err != nil {
		return nil, nil, err
	}
	return content, img, nil
}

// SemanticMatchingEval is the evaluation twin of SemanticMatching: text
// always comes from the plan attributes and every item carries a provenance
// descriptor.
type SemanticMatchingEval struct {
	base *planBase
}

// NewSemanticMatchingEval builds the evaluation matching dataset; the
// default sampling strategy is random.
func NewSemanticMatchingEval(cfg Config) (*SemanticMatchingEval, error) {
	base, err := newPlanBase(cfg, sampling.Random, true)
	if err != nil {
		return nil, err
	}
	return &SemanticMatchingEval{base: base}, nil
}

// Len returns the number of verified metadata rows.
func (d *SemanticMatchingEval) Len() int { return d.base.NumRows() }

// Plans returns the plan ids this dataset can be iterated over.
func (d *SemanticMatchingEval) Plans() []string { return d.base.Plans() }

// RankedGroup exposes the full score-ranked product group of a plan.
func (d *SemanticMatchingEval) RankedGroup(planID string) ([]sampling.Item, error) {
	return d.base.RankedGroup(planID)
}

// Get samples one product and returns text, image and its descriptor.
func (d *SemanticMatchingEval) Get(planID string) (*textproc.Content, *imaging.Tensor, *Descriptor, error) {
	group, err := d.base.group(planID)
	if err != nil {
		return nil, nil, nil, err
	}
	picked, err := d.base.sampler.Sample(group, 1)
	if err != nil {
		return nil, nil, nil, err
	}
	row := picked[0].Row

	content, rawAttrs, err := d.base.planText(row)
	if err != nil {
		return nil, nil, nil, err
	}
	img, path, err := d.base.image(row)
	if err != nil {
		return nil, nil, nil, err
	}

	desc := &Descriptor{
		ID:        d.base.table.ID(row),
		PlanID:    planID,
		ProdID:    d.base.table.ProdID(row),
		Score:     picked[0].Score,
		ImagePath: path,
		PlanAttrs: rawAttrs,
	}
	return content, img, desc, nil
}
