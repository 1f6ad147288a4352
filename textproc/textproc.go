// Package textproc turns plan or product attribute maps into the text
// representation the model's text branch consumes.
//
// Plan-sourced and product-sourced attributes use different column names for
// the same concepts (plan_name vs prod_name, plan_kwds vs prod_text, ...).
// The remap step folds both onto one canonical key set so a single
// preprocessor serves either source.
package textproc

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Canonical attribute keys produced by the remap step.
const (
	KeyName      = "name"
	KeyDate      = "date"
	KeyCategory1 = "category1"
	KeyCategory2 = "category2"
	KeyCategory3 = "category3"
	KeyCategory4 = "category4"
	KeyKeywords  = "keywords"
	KeyBody      = "body"
	KeyPageTitle = "page_title"
)

var planKeyMap = map[string]string{
	"plan_name":      KeyName,
	"plan_startdate": KeyDate,
	"plan_cat1":      KeyCategory1,
	"plan_cat2":      KeyCategory2,
	"plan_kwds":      KeyKeywords,
}

var prodKeyMap = map[string]string{
	"prod_name":       KeyName,
	"prod_text":       KeyBody,
	"prod_opendate":   KeyDate,
	"prod_cat1":       KeyCategory1,
	"prod_cat2":       KeyCategory2,
	"prod_cat3":       KeyCategory3,
	"prod_cat4":       KeyCategory4,
	"prod_page_title": KeyPageTitle,
}

// RemapPlanKeys renames plan-sourced attribute columns onto the canonical
// keys. Unknown columns pass through unchanged.
func RemapPlanKeys(attrs map[string]string) map[string]string {
	return remap(attrs, planKeyMap)
}

// RemapProdKeys renames product-sourced attribute columns onto the canonical
// keys. Unknown columns pass through unchanged.
func RemapProdKeys(attrs map[string]string) map[string]string {
	return remap(attrs, prodKeyMap)
}

func remap(attrs map[string]string, keyMap map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if canon, ok := keyMap[k]; ok {
			out[canon] = v
		} else {
			out[k] = v
		}
	}
	return out
}

// keyOrder fixes the order attribute values are joined in, so the same
// attribute map always yields the same text.
var keyOrder = []string{
	KeyName,
	KeyCategory1,
	KeyCategory2,
	KeyCategory3,
	KeyCategory4,
	KeyKeywords,
	KeyPageTitle,
	KeyBody,
	KeyDate,
}

// Content is the processed text representation handed to the model: the
// joined raw text plus its token ids.
type Content struct {
	Text   string
	Tokens []int32
}

// Preprocessor converts a canonical attribute map into model-ready Content.
type Preprocessor interface {
	Process(attrs map[string]string) (*Content, error)
}

// Tokenizer is the default Preprocessor: it joins attribute values in the
// canonical key order, lowercases, splits on non-letter/non-digit runes and
// maps tokens through an optional vocabulary.
//
// Token id 0 is padding, id 1 is the unknown token; vocabulary entries start
// at 2. With a nil vocabulary every in-length token maps to the unknown id,
// which keeps the output shape contract intact for smoke-testing without a
// trained vocabulary file.
type Tokenizer struct {
	vocab  map[string]int32
	maxLen int
}

const (
	PadID     int32 = 0
	UnknownID int32 = 1
)

// NewTokenizer builds a tokenizer with a fixed output length. words lists
// the vocabulary in id order; it may be nil.
func NewTokenizer(words []string, maxLen int) (*Tokenizer, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("tokenizer max length must be positive, got %d", maxLen)
	}
	var vocab map[string]int32
	if len(words) > 0 {
		vocab = make(map[string]int32, len(words))
		for i, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				continue
			}
			if _, dup := vocab[w]; dup {
				return nil, fmt.Errorf("duplicate vocabulary word %q", w)
			}
			vocab[w] = UnknownID + 1 + int32(i)
		}
	}
	return &Tokenizer{vocab: vocab, maxLen: maxLen}, nil
}

// MaxLen returns the fixed token-sequence length.
func (t *Tokenizer) MaxLen() int { return t.maxLen }

// Process implements Preprocessor.
func (t *Tokenizer) Process(attrs map[string]string) (*Content, error) {
	if len(attrs) == 0 {
		return nil, fmt.Errorf("cannot preprocess an empty attribute map")
	}

	parts := make([]string, 0, len(attrs))
	seen := make(map[string]bool, len(attrs))
	for _, key := range keyOrder {
		if v, ok := attrs[key]; ok {
			seen[key] = true
			if s := strings.TrimSpace(v); s != "" {
				parts = append(parts, s)
			}
		}
	}
	// Pass-through keys (not canonical) join last, in name order.
	var rest []string
	for k := range attrs {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		if s := strings.TrimSpace(attrs[k]); s != "" {
			parts = append(parts, s)
		}
	}

	text := strings.Join(parts, " ")
	tokens := make([]int32, t.maxLen)
	for i, word := range splitWords(text) {
		if i >= t.maxLen {
			break
		}
		id := UnknownID
		if t.vocab != nil {
			if v, ok := t.vocab[word]; ok {
				id = v
			}
		}
		tokens[i] = id
	}
	return &Content{Text: text, Tokens: tokens}, nil
}

// splitWords lowercases and splits on anything that is not a letter or digit.
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
