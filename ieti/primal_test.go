package ieti_test

import (
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"

	"github.com/notargets/substruct/ieti"
)

// constraintSupport returns the nonzero indices and values of a constraint.
func constraintSupport(v *sparse.Vector) (indices []int, values []float64) {
	v.DoNonZero(func(i, j int, val float64) {
		indices = append(indices, i)
		values = append(values, val)
	})
	return indices, values
}

// primalGroups counts the constraints belonging to each primal dof,
// across all patches.
func primalGroups(m *ieti.Mapper, nPatches int) map[int]int {
	groups := make(map[int]int)
	for k := 0; k < nPatches; k++ {
		for _, idx := range m.PrimalDofIndices(k) {
			groups[idx]++
		}
	}
	return groups
}

func TestCornersCollapseAcrossPatches(t *testing.T) {
	m, _, gm := initConforming(t, nil)

	if err := m.CornersAsPrimals(); err != nil {
		t.Fatalf("CornersAsPrimals failed: %v", err)
	}

	// 8 patch corners, 2 pairs coincide on the shared edge
	assert.Equal(t, 6, m.NPrimalDofs())
	assert.Len(t, m.PrimalConstraints(0), 4)
	assert.Len(t, m.PrimalConstraints(1), 4)

	// Every constraint is a unit vector, and each primal dof corresponds
	// to exactly one global dof.
	primalToGlobal := make(map[int]int)
	for k := 0; k < 2; k++ {
		for c, constr := range m.PrimalConstraints(k) {
			indices, values := constraintSupport(constr)
			assert.Len(t, indices, 1)
			assert.Equal(t, 1.0, values[0])

			// no Dirichlet dofs here, so local free index == raw slot
			g := gm.Index(k, indices[0])
			primal := m.PrimalDofIndices(k)[c]
			if prev, seen := primalToGlobal[primal]; seen {
				assert.Equal(t, prev, g)
			} else {
				primalToGlobal[primal] = g
			}
		}
	}
	assert.Len(t, primalToGlobal, 6)

	// The two shared corners carry two constraints each
	shared := 0
	for _, count := range primalGroups(m, 2) {
		if count == 2 {
			shared++
		}
	}
	assert.Equal(t, 2, shared)
}

func TestCornersSkipEliminated(t *testing.T) {
	m, _, _ := initConforming(t, outerDirichlet())

	if err := m.CornersAsPrimals(); err != nil {
		t.Fatalf("CornersAsPrimals failed: %v", err)
	}

	// every corner lies on the Dirichlet boundary
	assert.Equal(t, 0, m.NPrimalDofs())
	assert.Empty(t, m.PrimalConstraints(0))
	assert.Empty(t, m.PrimalConstraints(1))
}

func TestCornersSecondCallFails(t *testing.T) {
	m, _, _ := initConforming(t, nil)
	if err := m.CornersAsPrimals(); err != nil {
		t.Fatalf("CornersAsPrimals failed: %v", err)
	}
	assert.ErrorIs(t, m.CornersAsPrimals(), ieti.ErrAlreadyCompleted)
}

func TestEdgeAveragesKeepOnlySharedComponents(t *testing.T) {
	m, mp, _ := initConforming(t, nil)

	if err := m.InterfaceAveragesAsPrimals(mp, 1); err != nil {
		t.Fatalf("InterfaceAveragesAsPrimals failed: %v", err)
	}

	// 7 edges in total; only the glued one is shared
	assert.Equal(t, 1, m.NPrimalDofs())
	assert.Len(t, m.PrimalConstraints(0), 1)
	assert.Len(t, m.PrimalConstraints(1), 1)
	assert.Equal(t, []int{0}, m.PrimalDofIndices(0))
	assert.Equal(t, []int{0}, m.PrimalDofIndices(1))

	// Patch 0's edge average lives on its high dim-0 side, normalized to 1
	indices, values := constraintSupport(m.PrimalConstraints(0)[0])
	assert.Equal(t, []int{1, 3, 5, 7}, indices)
	assert.InDeltaSlice(t, []float64{1. / 6, 1. / 3, 1. / 3, 1. / 6}, values, 1e-14)
}

func TestInteriorAveragesAlwaysKept(t *testing.T) {
	m, mp, _ := initConforming(t, nil)

	if err := m.InterfaceAveragesAsPrimals(mp, 2); err != nil {
		t.Fatalf("InterfaceAveragesAsPrimals failed: %v", err)
	}

	// One interior average per patch, kept although unshared
	assert.Equal(t, 2, m.NPrimalDofs())
	for k := 0; k < 2; k++ {
		assert.Len(t, m.PrimalConstraints(k), 1)
		_, values := constraintSupport(m.PrimalConstraints(k)[0])
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-14)
	}
}

func TestAveragesRestrictToFreeDofs(t *testing.T) {
	m, mp, _ := initConforming(t, outerDirichlet())

	if err := m.InterfaceAveragesAsPrimals(mp, 1); err != nil {
		t.Fatalf("InterfaceAveragesAsPrimals failed: %v", err)
	}

	// Shared edge survives; its corner moments drop out and the two
	// interior moments renormalize to 1/2 each.
	assert.Equal(t, 1, m.NPrimalDofs())
	indices, values := constraintSupport(m.PrimalConstraints(0)[0])
	assert.Equal(t, []int{0, 1}, indices)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, values, 1e-14)
}

func TestAveragesPhaseAndDimensionChecks(t *testing.T) {
	m, mp, _ := initConforming(t, nil)

	assert.ErrorIs(t, m.InterfaceAveragesAsPrimals(mp, 0), ieti.ErrDimensionOutOfRange)
	assert.ErrorIs(t, m.InterfaceAveragesAsPrimals(mp, 3), ieti.ErrDimensionOutOfRange)

	if err := m.InterfaceAveragesAsPrimals(mp, 1); err != nil {
		t.Fatalf("InterfaceAveragesAsPrimals failed: %v", err)
	}
	assert.ErrorIs(t, m.InterfaceAveragesAsPrimals(mp, 1), ieti.ErrAlreadyCompleted)

	// A different dimension is an independent phase
	if err := m.InterfaceAveragesAsPrimals(mp, 2); err != nil {
		t.Fatalf("InterfaceAveragesAsPrimals(2) failed: %v", err)
	}
}

func TestCustomConstraintsTieOnePrimalDof(t *testing.T) {
	m, _, _ := initConforming(t, nil)

	entries := []ieti.CustomConstraint{
		{Patch: 0, Vector: sparse.NewVector(8, []int{1, 3}, []float64{0.5, 0.5})},
		{Patch: 1, Vector: sparse.NewVector(8, []int{0, 2}, []float64{0.5, 0.5})},
	}
	if err := m.CustomPrimalConstraints(entries); err != nil {
		t.Fatalf("CustomPrimalConstraints failed: %v", err)
	}

	assert.Equal(t, 1, m.NPrimalDofs())
	assert.Equal(t, []int{0}, m.PrimalDofIndices(0))
	assert.Equal(t, []int{0}, m.PrimalDofIndices(1))

	// Repeat calls create further primal dofs
	if err := m.CustomPrimalConstraints(entries[:1]); err != nil {
		t.Fatalf("CustomPrimalConstraints failed: %v", err)
	}
	assert.Equal(t, 2, m.NPrimalDofs())
	assert.Equal(t, []int{0, 1}, m.PrimalDofIndices(0))
}

func TestCustomConstraintsShapeChecks(t *testing.T) {
	m, _, _ := initConforming(t, nil)

	err := m.CustomPrimalConstraints([]ieti.CustomConstraint{
		{Patch: 7, Vector: sparse.NewVector(8, []int{0}, []float64{1})},
	})
	assert.ErrorIs(t, err, ieti.ErrShapeMismatch)

	err = m.CustomPrimalConstraints([]ieti.CustomConstraint{
		{Patch: 0, Vector: sparse.NewVector(3, []int{0}, []float64{1})},
	})
	assert.ErrorIs(t, err, ieti.ErrShapeMismatch)
	assert.Equal(t, 0, m.NPrimalDofs())
}
