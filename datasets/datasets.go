// Package datasets exposes the plan/product dataset variants that feed the
// ranking model training loop.
//
// Every variant shares the same base: a validated, image-verified metadata
// table with a per-plan index, a product sampler, an image store plus
// transform pipeline, and a text preprocessor. Variants differ only in which
// attributes they request, how many products they sample per plan and
// whether they attach an evaluation descriptor. Item access is keyed by plan
// id and is safe to call from concurrent iteration workers.
package datasets

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shoprank/planfeed/imaging"
	"github.com/shoprank/planfeed/meta"
	"github.com/shoprank/planfeed/sampling"
	"github.com/shoprank/planfeed/textproc"
)

// Config carries the collaborators and parameters shared by all variants.
type Config struct {
	// Meta is the raw metadata table; it is projected and image-verified at
	// construction and not touched afterwards.
	Meta *meta.Table

	// Target names the numeric column used as the sampling score, e.g.
	// "ctr" or "prod_review_cnt".
	Target string

	// ImageDir is the product image directory ({dir}/{prod_id}.jpg).
	ImageDir string

	// Transform converts decoded images into fixed-shape tensors.
	Transform *imaging.Transform

	// Preprocessor turns remapped attribute maps into text content.
	Preprocessor textproc.Preprocessor

	// PlanAttrs and ProdAttrs select the attribute columns; nil selects the
	// defaults from the metadata export.
	PlanAttrs []string
	ProdAttrs []string

	// Sampling picks the product sampling strategy; empty selects the
	// variant's default.
	Sampling sampling.Strategy

	// Seed fixes all random draws (sampling and text augmentation) for
	// reproducible runs; 0 seeds from the clock.
	Seed int64
}

// planBase holds the shared state behind every dataset variant.
type planBase struct {
	table   *meta.Table
	index   *meta.PlanIndex
	groups  map[string][]sampling.Item
	store   *imaging.Store
	tf      *imaging.Transform
	preproc textproc.Preprocessor
	sampler *sampling.Sampler

	planAttrs []string
	prodAttrs []string
	target    string

	mu  sync.Mutex
	rng *rand.Rand
}

func newPlanBase(cfg Config, defaultStrategy sampling.Strategy, wantProdAttrs bool) (*planBase, error) {
	if cfg.Meta == nil {
		return nil, fmt.Errorf("metadata table is required")
	}
	if cfg.Target == "" {
		return nil, fmt.Errorf("target column name is required")
	}
	if cfg.Transform == nil {
		return nil, fmt.Errorf("image transform is required")
	}
	if cfg.Preprocessor == nil {
		return nil, fmt.Errorf("text preprocessor is required")
	}

	strategy := cfg.Sampling
	if strategy == "" {
		strategy = defaultStrategy
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sampler, err := sampling.NewSeeded(strategy, seed)
	if err != nil {
		return nil, err
	}

	planAttrs := cfg.PlanAttrs
	if planAttrs == nil {
		planAttrs = meta.DefaultPlanAttrs
	}
	var prodAttrs []string
	if wantProdAttrs {
		prodAttrs = cfg.ProdAttrs
		if prodAttrs == nil {
			prodAttrs = meta.DefaultProdAttrs
		}
	}

	table := cfg.Meta
	if err := table.RequireColumns([]string{cfg.Target}); err != nil {
		return nil, err
	}
	if err := table.RequireColumns(planAttrs); err != nil {
		return nil, fmt.Errorf("plan attributes: %w", err)
	}
	if err := table.RequireColumns(prodAttrs); err != nil {
		return nil, fmt.Errorf("product attributes: %w", err)
	}

	// Project the table down to the columns this dataset actually uses.
	keep := append([]string{cfg.Target}, planAttrs...)
	keep = append(keep, prodAttrs...)
	table, err = table.Select(keep)
	if err != nil {
		return nil, err
	}

	store, err := imaging.NewStore(cfg.ImageDir)
	if err != nil {
		return nil, err
	}
	table = meta.VerifyImages(table, store)
	if table.Len() == 0 {
		return nil, fmt.Errorf("no metadata rows left after image verification")
	}

	index := meta.BuildPlanIndex(table)
	groups := make(map[string][]sampling.Item, index.NumPlans())
	for _, planID := range index.Plans() {
		rows, _ := index.Rows(planID)
		items := make([]sampling.Item, len(rows))
		for i, row := range rows {
			score, err := table.Float(row, cfg.Target)
			if err != nil {
				return nil, fmt.Errorf("target column %q: %w", cfg.Target, err)
			}
			items[i] = sampling.Item{Row: row, Score: score}
		}
		groups[planID] = items
	}

	return &planBase{
		table:     table,
		index:     index,
		groups:    groups,
		store:     store,
		tf:        cfg.Transform,
		preproc:   cfg.Preprocessor,
		sampler:   sampler,
		planAttrs: planAttrs,
		prodAttrs: prodAttrs,
		target:    cfg.Target,
		rng:       rand.New(rand.NewSource(seed + 1)),
	}, nil
}

// group returns the sampling items of one plan, failing fast on unknown ids.
func (b *planBase) group(planID string) ([]sampling.Item, error) {
	items, ok := b.groups[planID]
	if !ok {
		return nil, fmt.Errorf("there is no plan id %q in the metadata", planID)
	}
	return items, nil
}

// Plans returns the plan ids in first-appearance order.
func (b *planBase) Plans() []string { return b.index.Plans() }

// NumRows returns the verified row count.
func (b *planBase) NumRows() int { return b.table.Len() }

// NumPlans returns the unique plan count.
func (b *planBase) NumPlans() int { return b.index.NumPlans() }

// RankedGroup returns a plan's full product group sorted by target score
// descending. Evaluation tooling uses this as the ground-truth ranking.
func (b *planBase) RankedGroup(planID string) ([]sampling.Item, error) {
	items, err := b.group(planID)
	if err != nil {
		return nil, err
	}
	return b.sampler.Sample(items, -1)
}

// planText preprocesses one row's plan attributes, returning the content and
// the raw remapped attribute map for descriptors.
func (b *planBase) planText(row int) (*textproc.Content, map[string]string, error) {
	raw := textproc.RemapPlanKeys(b.table.Attrs(row, b.planAttrs))
	content, err := b.preproc.Process(raw)
	if err != nil {
		return nil, nil, err
	}
	return content, raw, nil
}

// prodText preprocesses one row's product attributes.
func (b *planBase) prodText(row int) (*textproc.Content, map[string]string, error) {
	raw := textproc.RemapProdKeys(b.table.Attrs(row, b.prodAttrs))
	content, err := b.preproc.Process(raw)
	if err != nil {
		return nil, nil, err
	}
	return content, raw, nil
}

// image loads and transforms one row's product image.
func (b *planBase) image(row int) (*imaging.Tensor, string, error) {
	img, path, err := b.store.LoadRGB(b.table.ProdID(row))
	if err != nil {
		return nil, "", err
	}
	return b.tf.Apply(img), path, nil
}

// coin flips the text-augmentation coin with probability p.
func (b *planBase) coin(p float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Float64() < p
}

// Descriptor is the evaluation provenance record for one sampled product.
type Descriptor struct {
	ID        string
	PlanID    string
	ProdID    string
	Score     float64
	ImagePath string
	PlanAttrs map[string]string
}

// GroupDescriptor is the evaluation provenance record for a sampled product
// group; the slices are parallel.
type GroupDescriptor struct {
	PlanID     string
	PlanAttrs  map[string]string
	IDs        []string
	ProdIDs    []string
	Scores     []float64
	ImagePaths []string
}
