package ieti

import (
	"github.com/james-bowman/sparse"
)

// MultiBasis describes the native discretization of each patch. It is the
// engine's view of the basis side of the problem; assembly of operators
// against the basis happens elsewhere.
type MultiBasis interface {
	// NumPatches returns the number of patches.
	NumPatches() int

	// Dim returns the parametric dimension, shared by all patches.
	Dim() int

	// PatchSize returns the number of native basis functions on patch k,
	// excluding any artificial dofs the dof mapper may carry.
	PatchSize(k int) int

	// CornerIndex returns the local index of the basis function attached
	// to a corner of patch k's parameter box. Corner c is a bitmask over
	// dimensions: bit b set selects the high end of dimension b, so c
	// ranges over [0, 1<<Dim()).
	CornerIndex(k, c int) int
}

// Topology enumerates the maximal connected components of a multi-patch
// geometry, grouped so that a component shared by several patches appears
// once with one side per touching patch.
type Topology interface {
	AllComponents() []Component
}

// Component is one maximal connected topological component (vertex, edge,
// face, or patch interior) of the multi-patch geometry.
type Component interface {
	// Dim returns the component's dimension: 0 for vertices up to the
	// ambient dimension for patch interiors.
	Dim() int

	// Sides returns the component's restriction to each touching patch.
	Sides() []Side
}

// Side is the restriction of a component to one touching patch.
type Side interface {
	// Patch returns the index of the touching patch.
	Patch() int

	// Moments returns the local indices of the basis functions supported
	// on the component together with the moments of the constant function
	// one against the restricted basis. Both slices have equal length and
	// indices are strictly increasing.
	Moments() (indices []int, moments []float64)
}

// CustomConstraint is one caller-supplied primal constraint vector over a
// patch's local free dof space.
type CustomConstraint struct {
	Patch  int
	Vector *sparse.Vector
}
