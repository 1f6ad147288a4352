package datasets

import (
	"errors"
	"io"
	"testing"
)

func TestMatchingSourceYieldsOnePlanPerStep(t *testing.T) {
	f := newFixture(t)
	ds, err := NewSemanticMatching(f.config(t), DefaultTextAugProb)
	if err != nil {
		t.Fatalf("NewSemanticMatching error: %v", err)
	}
	src := NewMatchingSource(ds, 0)

	steps := 0
	for {
		_, inputs, labels, err := src.Yield()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Yield error: %v", err)
		}
		if len(inputs) != 2 {
			t.Fatalf("want 2 input tensors (tokens, image), got %d", len(inputs))
		}
		if len(labels) != 0 {
			t.Fatalf("matching task should not yield labels, got %d", len(labels))
		}
		steps++
	}
	if steps != len(ds.Plans()) {
		t.Fatalf("yielded %d steps, want one per plan (%d)", steps, len(ds.Plans()))
	}

	// Reset starts the next epoch.
	src.Reset()
	if _, _, _, err := src.Yield(); err != nil {
		t.Fatalf("Yield after Reset error: %v", err)
	}
}

func TestDiscrimSourceYieldsLabels(t *testing.T) {
	f := newFixture(t)
	ds, err := NewScoredDiscrim(f.config(t), 3)
	if err != nil {
		t.Fatalf("NewScoredDiscrim error: %v", err)
	}
	src := NewDiscrimSource(ds, 7)

	steps := 0
	for {
		_, inputs, labels, err := src.Yield()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Yield error: %v", err)
		}
		if len(inputs) != 2 || len(labels) != 1 {
			t.Fatalf("want 2 inputs and 1 label tensor, got %d/%d", len(inputs), len(labels))
		}
		steps++
	}
	if steps != ds.Len() {
		t.Fatalf("yielded %d steps, want %d", steps, ds.Len())
	}

	// Exhausted source keeps returning EOF until reset.
	if _, _, _, err := src.Yield(); !errors.Is(err, io.EOF) {
		t.Fatalf("want io.EOF from exhausted source, got %v", err)
	}
	src.Reset()
	if _, _, _, err := src.Yield(); err != nil {
		t.Fatalf("Yield after Reset error: %v", err)
	}
}
