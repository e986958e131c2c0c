// Package topology provides structured multi-patch topologies over
// tensor-product bases: box-component enumeration, interface gluing, and
// construction of the global dof mappers consumed by the ieti engine.
package topology

import (
	"fmt"
)

// DimSpec restricts one parametric dimension of a patch component.
type DimSpec uint8

const (
	Full DimSpec = iota // the whole extent of the dimension
	Low                 // fixed at the low end
	High                // fixed at the high end
)

// BoxComponent restricts each dimension of a patch's parameter box. The
// component's dimension is the number of Full entries: all Full is the
// patch interior, one fixed dimension is a side, all fixed is a corner.
type BoxComponent []DimSpec

// Dim returns the component's dimension.
func (bc BoxComponent) Dim() int {
	d := 0
	for _, s := range bc {
		if s == Full {
			d++
		}
	}
	return d
}

// Side identifies one side of a patch's parameter box.
type Side struct {
	Dim  int  // the fixed dimension
	High bool // fixed at the high end
}

// Component returns the box component describing the side on a patch of
// the given dimension.
func (s Side) Component(dim int) BoxComponent {
	bc := make(BoxComponent, dim)
	if s.High {
		bc[s.Dim] = High
	} else {
		bc[s.Dim] = Low
	}
	return bc
}

// PatchSide names one side of one patch.
type PatchSide struct {
	Patch int
	Side  Side
}

// TensorBasis is a tensor-product basis on one patch: a number of basis
// functions per parametric dimension, plus the integral of each 1D basis
// function, from which component moments of the constant function one are
// assembled as products.
//
// Basis functions are numbered with dimension 0 running fastest:
// flat = i0 + n0*(i1 + n1*i2 + ...).
type TensorBasis struct {
	sizes   []int
	moments [][]float64
}

// NewTensorBasis creates a tensor-product basis from per-dimension sizes
// and per-dimension 1D basis integrals.
func NewTensorBasis(sizes []int, moments [][]float64) (*TensorBasis, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("topology: basis needs at least one dimension")
	}
	if len(moments) != len(sizes) {
		return nil, fmt.Errorf("topology: got moments for %d dimensions, basis has %d",
			len(moments), len(sizes))
	}
	for b, n := range sizes {
		if n < 2 {
			return nil, fmt.Errorf("topology: dimension %d has %d basis functions, need at least 2", b, n)
		}
		if len(moments[b]) != n {
			return nil, fmt.Errorf("topology: dimension %d has %d moments for %d basis functions",
				b, len(moments[b]), n)
		}
	}
	tb := &TensorBasis{
		sizes:   append([]int{}, sizes...),
		moments: make([][]float64, len(moments)),
	}
	for b := range moments {
		tb.moments[b] = append([]float64{}, moments[b]...)
	}
	return tb, nil
}

// Dim returns the parametric dimension.
func (tb *TensorBasis) Dim() int { return len(tb.sizes) }

// Size returns the total number of basis functions.
func (tb *TensorBasis) Size() int {
	n := 1
	for _, s := range tb.sizes {
		n *= s
	}
	return n
}

// SizeInDim returns the number of basis functions along dimension b.
func (tb *TensorBasis) SizeInDim(b int) int { return tb.sizes[b] }

// CornerIndex returns the flat index of the basis function at corner c,
// a bitmask with bit b selecting the high end of dimension b.
func (tb *TensorBasis) CornerIndex(c int) int {
	if c < 0 || c >= 1<<len(tb.sizes) {
		panic(fmt.Sprintf("topology: corner %d out of range [0,%d)", c, 1<<len(tb.sizes)))
	}
	flat, stride := 0, 1
	for b, n := range tb.sizes {
		if c&(1<<b) != 0 {
			flat += stride * (n - 1)
		}
		stride *= n
	}
	return flat
}

// Restrict returns the flat indices of the basis functions supported on
// the component, in increasing order, together with the moments of the
// constant function one against the restricted basis (products of the 1D
// integrals over the component's Full dimensions; fixed dimensions
// contribute a factor of one).
func (tb *TensorBasis) Restrict(bc BoxComponent) (indices []int, moments []float64, err error) {
	if len(bc) != len(tb.sizes) {
		return nil, nil, fmt.Errorf("topology: component has %d dimensions, basis has %d",
			len(bc), len(tb.sizes))
	}

	count := 1
	for b, s := range bc {
		if s == Full {
			count *= tb.sizes[b]
		}
	}
	indices = make([]int, 0, count)
	moments = make([]float64, 0, count)

	// Odometer over the component's positions, dimension 0 fastest, which
	// emits flat indices in increasing order.
	pos := make([]int, len(bc))
	for b, s := range bc {
		if s == High {
			pos[b] = tb.sizes[b] - 1
		}
	}
	for {
		flat, stride := 0, 1
		moment := 1.0
		for b, i := range pos {
			flat += stride * i
			stride *= tb.sizes[b]
			if bc[b] == Full {
				moment *= tb.moments[b][i]
			}
		}
		indices = append(indices, flat)
		moments = append(moments, moment)

		b := 0
		for ; b < len(bc); b++ {
			if bc[b] != Full {
				continue
			}
			pos[b]++
			if pos[b] < tb.sizes[b] {
				break
			}
			pos[b] = 0
		}
		if b == len(bc) {
			return indices, moments, nil
		}
	}
}

// SideIndices returns the flat indices of the basis functions on a side,
// in increasing order.
func (tb *TensorBasis) SideIndices(s Side) []int {
	indices, _, err := tb.Restrict(s.Component(tb.Dim()))
	if err != nil {
		panic(err) // side component always matches the basis dimension
	}
	return indices
}
