package meta

import (
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// ImageChecker reports whether the image for a product exists in the store.
type ImageChecker interface {
	Has(prodID string) bool
}

// VerifyImages drops rows whose product image cannot be found, returning the
// filtered table. Missing images are a data-quality issue handled once here
// at construction time, not a per-item error path; a non-fatal warning
// reports the before/after row counts.
func VerifyImages(t *Table, store ImageChecker) *Table {
	filtered := t.Filter(func(row int) bool {
		return store.Has(t.ProdID(row))
	})
	if filtered.Len() < t.Len() {
		klog.Warningf(
			"there are samples whose images are not found; dropped them to train properly. Data size: %s -> %s",
			humanize.Comma(int64(t.Len())), humanize.Comma(int64(filtered.Len())))
	}
	return filtered
}
