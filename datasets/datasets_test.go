package datasets

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shoprank/planfeed/imaging"
	"github.com/shoprank/planfeed/meta"
	"github.com/shoprank/planfeed/sampling"
	"github.com/shoprank/planfeed/textproc"
)

// fixture bundles a synthetic metadata table with matching on-disk images.
type fixture struct {
	table  *meta.Table
	imgDir string
}

// newFixture builds two plans (4 and 5 products) with distinct scores and a
// jpeg per product.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	cols := []string{"id", "plan_id", "prod_id", "ctr", "plan_name", "plan_kwds", "prod_name", "prod_text"}
	records := [][]string{
		{"1", "100", "7001", "0.40", "summer sale", "beach,sun", "sandals", "leather beach sandals"},
		{"2", "100", "7002", "0.20", "summer sale", "beach,sun", "sunscreen", "spf fifty sunscreen"},
		{"3", "100", "7003", "0.10", "summer sale", "beach,sun", "towel", "oversized beach towel"},
		{"4", "100", "7004", "0.05", "summer sale", "beach,sun", "cooler", "portable drink cooler"},
		{"5", "200", "7005", "0.90", "camping week", "outdoor,tent", "tent", "two person dome tent"},
		{"6", "200", "7006", "0.30", "camping week", "outdoor,tent", "stove", "gas camping stove"},
		{"7", "200", "7007", "0.25", "camping week", "outdoor,tent", "lantern", "led camping lantern"},
		{"8", "200", "7008", "0.15", "camping week", "outdoor,tent", "sleeping bag", "warm sleeping bag"},
		{"9", "200", "7009", "0.02", "camping week", "outdoor,tent", "mosquito net", "fine mesh mosquito net"},
	}
	table, err := meta.NewTable(cols, records)
	if err != nil {
		t.Fatalf("NewTable error: %v", err)
	}

	dir := t.TempDir()
	for _, rec := range records {
		writeJPEG(t, filepath.Join(dir, rec[2]+".jpg"))
	}
	return &fixture{table: table, imgDir: dir}
}

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 120, G: 60, B: 30, A: 255})
		}
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer file.Close()
	if err := jpeg.Encode(file, img, nil); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func (f *fixture) config(t *testing.T) Config {
	t.Helper()
	tf, err := imaging.NewTransform(imaging.TransformConfig{Size: 8, Seed: 1})
	if err != nil {
		t.Fatalf("NewTransform error: %v", err)
	}
	tok, err := textproc.NewTokenizer(nil, 16)
	if err != nil {
		t.Fatalf("NewTokenizer error: %v", err)
	}
	return Config{
		Meta:         f.table,
		Target:       "ctr",
		ImageDir:     f.imgDir,
		Transform:    tf,
		Preprocessor: tok,
		PlanAttrs:    []string{"plan_name", "plan_kwds"},
		ProdAttrs:    []string{"prod_name", "prod_text"},
		Seed:         42,
	}
}

func TestSemanticMatchingGet(t *testing.T) {
	f := newFixture(t)
	ds, err := NewSemanticMatching(f.config(t), 0)
	if err != nil {
		t.Fatalf("NewSemanticMatching error: %v", err)
	}

	if ds.Len() != 9 {
		t.Fatalf("Len = %d, want 9 rows", ds.Len())
	}
	if len(ds.Plans()) != 2 {
		t.Fatalf("Plans = %v, want 2 plans", ds.Plans())
	}

	content, img, err := ds.Get("100")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if content == nil || content.Text == "" {
		t.Fatalf("empty text content")
	}
	if len(img.Shape) != 3 || img.Shape[0] != 3 || img.Shape[1] != 8 || img.Shape[2] != 8 {
		t.Fatalf("image shape %v, want [3 8 8]", img.Shape)
	}

	if _, _, err := ds.Get("999"); err == nil {
		t.Fatalf("expected error for unknown plan id")
	}
}

func TestSemanticMatchingTextAugmentation(t *testing.T) {
	f := newFixture(t)

	// p=0: text always from the plan attributes.
	planOnly, err := NewSemanticMatching(f.config(t), 0)
	if err != nil {
		t.Fatalf("NewSemanticMatching error: %v", err)
	}
	for i := 0; i < 20; i++ {
		content, _, err := planOnly.Get("100")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if !strings.Contains(content.Text, "summer sale") {
			t.Fatalf("p=0 text should come from plan attributes, got %q", content.Text)
		}
	}

	// p=1: text always from the sampled product's own attributes.
	prodOnly, err := NewSemanticMatching(f.config(t), 1)
	if err != nil {
		t.Fatalf("NewSemanticMatching error: %v", err)
	}
	for i := 0; i < 20; i++ {
		content, _, err := prodOnly.Get("100")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if strings.Contains(content.Text, "summer sale") {
			t.Fatalf("p=1 text should come from product attributes, got %q", content.Text)
		}
	}

	if _, err := NewSemanticMatching(f.config(t), 1.5); err == nil {
		t.Fatalf("expected error for out-of-range augmentation probability")
	}
}

func TestSemanticMatchingEvalDescriptor(t *testing.T) {
	f := newFixture(t)
	ds, err := NewSemanticMatchingEval(f.config(t))
	if err != nil {
		t.Fatalf("NewSemanticMatchingEval error: %v", err)
	}

	content, img, desc, err := ds.Get("200")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if content == nil || img == nil {
		t.Fatalf("missing content or image")
	}
	if desc.PlanID != "200" {
		t.Fatalf("descriptor plan id %q", desc.PlanID)
	}
	if !strings.HasSuffix(desc.ImagePath, desc.ProdID+".jpg") {
		t.Fatalf("descriptor image path %q does not match product %q", desc.ImagePath, desc.ProdID)
	}
	if !strings.HasPrefix(desc.ProdID, "700") {
		t.Fatalf("descriptor product id %q not from fixture", desc.ProdID)
	}
	if desc.PlanAttrs[textproc.KeyName] != "camping week" {
		t.Fatalf("descriptor plan attrs %v", desc.PlanAttrs)
	}

	ranked, err := ds.RankedGroup("200")
	if err != nil {
		t.Fatalf("RankedGroup error: %v", err)
	}
	if len(ranked) != 5 {
		t.Fatalf("ranked group size %d, want 5", len(ranked))
	}
	if ranked[0].Score != 0.90 {
		t.Fatalf("ranked head score %v, want 0.90", ranked[0].Score)
	}
}

func TestPreferenceDiscrimGet(t *testing.T) {
	f := newFixture(t)
	ds, err := NewPreferenceDiscrim(f.config(t), 3)
	if err != nil {
		t.Fatalf("NewPreferenceDiscrim error: %v", err)
	}

	if ds.Len() != 2 {
		t.Fatalf("Len = %d, want 2 plans", ds.Len())
	}

	content, stacked, err := ds.Get("200")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !strings.Contains(content.Text, "camping week") {
		t.Fatalf("plan text %q", content.Text)
	}
	want := []int{3, 3, 8, 8}
	if len(stacked.Shape) != 4 {
		t.Fatalf("stacked shape %v, want rank 4", stacked.Shape)
	}
	for i, d := range want {
		if stacked.Shape[i] != d {
			t.Fatalf("stacked shape %v, want %v", stacked.Shape, want)
		}
	}

	// Group size equal to the requested size returns the whole plan.
	full, err := NewPreferenceDiscrim(f.config(t), 4)
	if err != nil {
		t.Fatalf("NewPreferenceDiscrim error: %v", err)
	}
	_, stacked4, err := full.Get("100")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if stacked4.Shape[0] != 4 {
		t.Fatalf("full-group stack has %d images, want 4", stacked4.Shape[0])
	}

	// Requesting more products than the plan has is an item-access error.
	big, err := NewPreferenceDiscrim(f.config(t), 6)
	if err != nil {
		t.Fatalf("NewPreferenceDiscrim error: %v", err)
	}
	if _, _, err := big.Get("100"); err == nil {
		t.Fatalf("expected error when group size exceeds plan size")
	}
}

func TestScoredDiscrimScoresParallel(t *testing.T) {
	f := newFixture(t)
	ds, err := NewScoredDiscrim(f.config(t), 3)
	if err != nil {
		t.Fatalf("NewScoredDiscrim error: %v", err)
	}

	_, stacked, scores, err := ds.Get("200")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if len(scores) != 3 || stacked.Shape[0] != 3 {
		t.Fatalf("scores (%d) and images (%d) not parallel", len(scores), stacked.Shape[0])
	}
	// Weighted samples are ordered by jittered weight descending, so the
	// score list never increases.
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[i-1] {
			t.Fatalf("scores not ordered descending: %v", scores)
		}
	}
}

func TestPreferenceDiscrimEvalDescriptor(t *testing.T) {
	f := newFixture(t)
	ds, err := NewPreferenceDiscrimEval(f.config(t), 3)
	if err != nil {
		t.Fatalf("NewPreferenceDiscrimEval error: %v", err)
	}

	_, stacked, desc, err := ds.Get("200")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	n := stacked.Shape[0]
	if len(desc.IDs) != n || len(desc.ProdIDs) != n || len(desc.Scores) != n || len(desc.ImagePaths) != n {
		t.Fatalf("descriptor slices not parallel to the image stack: %+v", desc)
	}
	for i, prodID := range desc.ProdIDs {
		if !strings.HasSuffix(desc.ImagePaths[i], prodID+".jpg") {
			t.Fatalf("image path %q does not match product %q", desc.ImagePaths[i], prodID)
		}
	}
	if desc.PlanAttrs[textproc.KeyName] != "camping week" {
		t.Fatalf("descriptor plan attrs %v", desc.PlanAttrs)
	}
}

func TestConstructionValidation(t *testing.T) {
	f := newFixture(t)

	cfg := f.config(t)
	cfg.Target = "review_cnt"
	if _, err := NewSemanticMatching(cfg, 0); err == nil {
		t.Fatalf("expected error for absent target column")
	}

	cfg = f.config(t)
	cfg.PlanAttrs = []string{"plan_name", "plan_theme"}
	if _, err := NewSemanticMatching(cfg, 0); err == nil {
		t.Fatalf("expected error for absent plan attribute column")
	}

	cfg = f.config(t)
	cfg.Sampling = sampling.Strategy("roundrobin")
	if _, err := NewSemanticMatching(cfg, 0); err == nil {
		t.Fatalf("expected error for unknown sampling strategy")
	}

	cfg = f.config(t)
	cfg.ImageDir = filepath.Join(t.TempDir(), "absent")
	if _, err := NewSemanticMatching(cfg, 0); err == nil {
		t.Fatalf("expected error for missing image directory")
	}

	if _, err := NewPreferenceDiscrim(f.config(t), 1); err == nil {
		t.Fatalf("expected error for too-small discrimination size")
	}
}

func TestConstructionDropsRowsWithMissingImages(t *testing.T) {
	f := newFixture(t)
	// Remove one product image; its row must be dropped at construction.
	if err := os.Remove(filepath.Join(f.imgDir, "7003.jpg")); err != nil {
		t.Fatalf("remove image: %v", err)
	}

	ds, err := NewSemanticMatching(f.config(t), 0)
	if err != nil {
		t.Fatalf("NewSemanticMatching error: %v", err)
	}
	if ds.Len() != 8 {
		t.Fatalf("Len = %d after drop, want 8", ds.Len())
	}

	// The dropped product can never be sampled.
	eval := mustEval(t, f)
	for i := 0; i < 100; i++ {
		_, _, desc, err := eval.Get("100")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if desc.ProdID == "7003" {
			t.Fatalf("dropped product was sampled")
		}
	}
}

func mustEval(t *testing.T, f *fixture) *SemanticMatchingEval {
	t.Helper()
	ds, err := NewSemanticMatchingEval(f.config(t))
	if err != nil {
		t.Fatalf("NewSemanticMatchingEval error: %v", err)
	}
	return ds
}
