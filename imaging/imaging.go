// Package imaging provides the product image store and the augmentation
// pipeline the plan datasets feed their image branch with.
//
// Images live on disk as {dir}/{prodID}.jpg. A missing file is a
// construction-time data-quality issue (the metadata verification pass drops
// such rows); per-item loads therefore treat absence as a hard error.
package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Store resolves product ids to decoded RGB images on disk.
type Store struct {
	dir string
}

// NewStore opens an image store rooted at dir.
func NewStore(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open image directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("image path %s is not a directory", dir)
	}
	return &Store{dir: dir}, nil
}

// Path returns the absolute file path for a product image.
func (s *Store) Path(prodID string) string {
	abs, err := filepath.Abs(filepath.Join(s.dir, prodID+".jpg"))
	if err != nil {
		return filepath.Join(s.dir, prodID+".jpg")
	}
	return abs
}

// Has reports whether the product image file exists. Used by the metadata
// verification pass; satisfies meta.ImageChecker.
func (s *Store) Has(prodID string) bool {
	info, err := os.Stat(filepath.Join(s.dir, prodID+".jpg"))
	return err == nil && !info.IsDir()
}

// LoadRGB decodes the product image and returns it together with the file
// path it was read from.
func (s *Store) LoadRGB(prodID string) (image.Image, string, error) {
	path := s.Path(prodID)
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open product image %s: %w", path, err)
	}
	defer file.Close()

	img, err := jpeg.Decode(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode product image %s: %w", path, err)
	}
	return img, path, nil
}

// Default channel statistics used for normalization.
var (
	DefaultMean = [3]float32{0.485, 0.456, 0.406}
	DefaultStd  = [3]float32{0.229, 0.224, 0.225}
)

// minCropScale bounds the area kept by the random crop during augmentation.
const minCropScale = 0.8

// TransformConfig configures an image transform pipeline.
type TransformConfig struct {
	// Size is the output side length; output is always [3, Size, Size].
	Size int

	// Augment enables the random horizontal flip and random scaled crop.
	Augment bool

	// Mean and Std are per-channel normalization statistics; zero values
	// fall back to DefaultMean/DefaultStd.
	Mean [3]float32
	Std  [3]float32

	// Seed fixes the augmentation random source; 0 seeds from the clock.
	Seed int64
}

// Transform converts decoded images into normalized CHW float32 tensors of a
// fixed shape, regardless of input size. Augmentation randomness sits behind
// a mutex so one transform may serve concurrent dataset workers.
type Transform struct {
	size int
	aug  bool
	mean [3]float32
	std  [3]float32

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTransform builds a transform pipeline from its configuration.
func NewTransform(cfg TransformConfig) (*Transform, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("transform output size must be positive, got %d", cfg.Size)
	}
	mean, std := cfg.Mean, cfg.Std
	if mean == ([3]float32{}) {
		mean = DefaultMean
	}
	if std == ([3]float32{}) {
		std = DefaultStd
	}
	for c := 0; c < 3; c++ {
		if std[c] == 0 {
			return nil, fmt.Errorf("normalization std for channel %d is zero", c)
		}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Transform{
		size: cfg.Size,
		aug:  cfg.Augment,
		mean: mean,
		std:  std,
		rng:  rand.New(rand.NewSource(seed)),
	}, nil
}

// OutputShape returns the shape every Apply call produces.
func (t *Transform) OutputShape() []int { return []int{3, t.size, t.size} }

// Apply runs the pipeline on one decoded image: optional flip and scaled
// crop, resize to the fixed output size, then mean/std normalization into a
// CHW float32 tensor.
func (t *Transform) Apply(img image.Image) *Tensor {
	var flip bool
	crop := img.Bounds()
	if t.aug {
		t.mu.Lock()
		flip = t.rng.Float64() < 0.5
		crop = t.randomCropLocked(img.Bounds())
		t.mu.Unlock()
	}

	dst := image.NewRGBA(image.Rect(0, 0, t.size, t.size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, xdraw.Src, nil)

	data := make([]float32, 3*t.size*t.size)
	plane := t.size * t.size
	for y := 0; y < t.size; y++ {
		for x := 0; x < t.size; x++ {
			sx := x
			if flip {
				sx = t.size - 1 - x
			}
			off := dst.PixOffset(sx, y)
			pos := y*t.size + x
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[off+c]) / 255.0
				data[c*plane+pos] = (v - t.mean[c]) / t.std[c]
			}
		}
	}
	return &Tensor{Data: data, Shape: []int{3, t.size, t.size}}
}

// randomCropLocked picks a crop window covering at least minCropScale of each
// side, uniformly positioned. Caller holds the rng mutex.
func (t *Transform) randomCropLocked(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	scale := minCropScale + t.rng.Float64()*(1-minCropScale)
	cw := int(float64(w) * scale)
	ch := int(float64(h) * scale)
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}
	dx, dy := 0, 0
	if w > cw {
		dx = t.rng.Intn(w - cw + 1)
	}
	if h > ch {
		dy = t.rng.Intn(h - ch + 1)
	}
	return image.Rect(b.Min.X+dx, b.Min.Y+dy, b.Min.X+dx+cw, b.Min.Y+dy+ch)
}
