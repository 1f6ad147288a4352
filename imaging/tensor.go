package imaging

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Tensor is a flat float32 buffer with shape metadata, the same contiguous
// layout the batch helpers elsewhere in this module use. Conversion to gomlx
// tensors is a small final step so the rest of the pipeline stays independent
// of the tensor backend.
type Tensor struct {
	Data  []float32
	Shape []int
}

// NumElements returns the product of the shape dimensions.
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Stack combines equal-shape tensors into one tensor with a new leading
// batch dimension, e.g. n images of [3,H,W] become [n,3,H,W].
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("cannot stack zero tensors")
	}
	shape := ts[0].Shape
	elems := ts[0].NumElements()
	for i, t := range ts[1:] {
		if !sameShape(t.Shape, shape) {
			return nil, fmt.Errorf("inconsistent shapes: tensor 0 has shape %v, tensor %d has shape %v",
				shape, i+1, t.Shape)
		}
	}

	flat := make([]float32, len(ts)*elems)
	for i, t := range ts {
		if len(t.Data) != elems {
			return nil, fmt.Errorf("tensor %d has %d elements, shape %v wants %d", i, len(t.Data), t.Shape, elems)
		}
		copy(flat[i*elems:], t.Data)
	}

	outShape := append([]int{len(ts)}, shape...)
	return &Tensor{Data: flat, Shape: outShape}, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ToGomlx converts the tensor into a gomlx tensor by reshaping the flat
// buffer into nested slices. Ranks 1 through 4 cover everything the datasets
// produce (token vectors, score vectors, CHW images, NCHW stacks).
func (t *Tensor) ToGomlx() (*tensors.Tensor, error) {
	if len(t.Data) != t.NumElements() {
		return nil, fmt.Errorf("tensor has %d elements but shape %v wants %d", len(t.Data), t.Shape, t.NumElements())
	}
	switch len(t.Shape) {
	case 1:
		return tensors.FromAnyValue(t.Data), nil
	case 2:
		rows := make([][]float32, t.Shape[0])
		stride := t.Shape[1]
		for i := range rows {
			rows[i] = t.Data[i*stride : (i+1)*stride]
		}
		return tensors.FromAnyValue(rows), nil
	case 3:
		out := make([][][]float32, t.Shape[0])
		stride := t.Shape[2]
		idx := 0
		for i := range out {
			out[i] = make([][]float32, t.Shape[1])
			for j := range out[i] {
				out[i][j] = t.Data[idx : idx+stride]
				idx += stride
			}
		}
		return tensors.FromAnyValue(out), nil
	case 4:
		out := make([][][][]float32, t.Shape[0])
		stride := t.Shape[3]
		idx := 0
		for i := range out {
			out[i] = make([][][]float32, t.Shape[1])
			for j := range out[i] {
				out[i][j] = make([][]float32, t.Shape[2])
				for k := range out[i][j] {
					out[i][j][k] = t.Data[idx : idx+stride]
					idx += stride
				}
			}
		}
		return tensors.FromAnyValue(out), nil
	}
	return nil, fmt.Errorf("unsupported tensor rank %d", len(t.Shape))
}
