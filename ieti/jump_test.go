package ieti_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/substruct/dofmap"
	"github.com/notargets/substruct/ieti"
)

// rowEntry is one nonzero of a multiplier row, tagged with its patch.
type rowEntry struct {
	patch int
	value float64
}

// collectRows gathers the nonzeros of all patches' jump matrices by row.
func collectRows(m *ieti.Mapper, nPatches int) map[int][]rowEntry {
	rows := make(map[int][]rowEntry)
	for k := 0; k < nPatches; k++ {
		patch := k
		m.JumpMatrix(k).DoNonZero(func(i, j int, v float64) {
			rows[i] = append(rows[i], rowEntry{patch: patch, value: v})
		})
	}
	return rows
}

// checkRowStructure verifies that every multiplier row has exactly one +1
// and one -1, in two different patches' matrices.
func checkRowStructure(t *testing.T, m *ieti.Mapper, nPatches int) {
	t.Helper()
	rows := collectRows(m, nPatches)
	assert.Len(t, rows, m.NLagrangeMultipliers())
	for r, entries := range rows {
		if len(entries) != 2 {
			t.Fatalf("row %d has %d nonzeros, want 2", r, len(entries))
		}
		assert.Equal(t, 0.0, entries[0].value+entries[1].value, "row %d must hold +1 and -1", r)
		assert.Equal(t, 1.0, entries[0].value*entries[0].value, "row %d entries must be unit", r)
		assert.NotEqual(t, entries[0].patch, entries[1].patch, "row %d couples a patch with itself", r)
	}
}

func TestJumpMatricesMinimal(t *testing.T) {
	m, _, _ := initConforming(t, nil)

	if err := m.ComputeJumpMatrices(false, false); err != nil {
		t.Fatalf("ComputeJumpMatrices failed: %v", err)
	}

	// 4 coupled dofs on the shared edge, each held by 2 patches
	assert.Equal(t, 4, m.NLagrangeMultipliers())
	checkRowStructure(t, m, 2)

	for k := 0; k < 2; k++ {
		r, c := m.JumpMatrix(k).Dims()
		assert.Equal(t, m.NLagrangeMultipliers(), r)
		assert.Equal(t, m.LocalFreeSize(k), c)
	}
}

func TestJumpMatricesExcludeCorners(t *testing.T) {
	m, _, _ := initConforming(t, nil)

	if err := m.ComputeJumpMatrices(false, true); err != nil {
		t.Fatalf("ComputeJumpMatrices failed: %v", err)
	}

	// the two edge endpoints are patch corners and contribute no rows
	assert.Equal(t, 2, m.NLagrangeMultipliers())
	checkRowStructure(t, m, 2)
}

func TestJumpMatricesSecondCallFails(t *testing.T) {
	m, _, _ := initConforming(t, nil)
	if err := m.ComputeJumpMatrices(false, false); err != nil {
		t.Fatalf("ComputeJumpMatrices failed: %v", err)
	}
	assert.ErrorIs(t, m.ComputeJumpMatrices(true, false), ieti.ErrAlreadyCompleted)
}

// lineBasis is a chain of 1D two-function patches, used to build dofs with
// more than two occurrences.
type lineBasis struct {
	patches int
}

func (b lineBasis) NumPatches() int   { return b.patches }
func (b lineBasis) Dim() int          { return 1 }
func (b lineBasis) PatchSize(int) int { return 2 }

func (b lineBasis) CornerIndex(_, c int) int {
	return c // corner 0 is slot 0, corner 1 is slot 1
}

// tripleSharedDof matches one dof into three 1D patches.
func tripleSharedDof(t *testing.T) (*ieti.Mapper, *dofmap.Mapper) {
	t.Helper()
	gm, err := dofmap.NewMapper([]int{2, 2, 2})
	if err != nil {
		t.Fatalf("NewMapper failed: %v", err)
	}
	_ = gm.MatchDofs(0, 1, 1, 0)
	_ = gm.MatchDofs(0, 1, 2, 0)
	if err := gm.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	var m ieti.Mapper
	if err := m.Init(lineBasis{patches: 3}, gm, nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return &m, gm
}

func TestJumpMatricesMinimalIsStarShaped(t *testing.T) {
	m, _ := tripleSharedDof(t)

	if err := m.ComputeJumpMatrices(false, false); err != nil {
		t.Fatalf("ComputeJumpMatrices failed: %v", err)
	}

	// one dof with 3 occurrences: occurrence 0 paired with each other one
	assert.Equal(t, 2, m.NLagrangeMultipliers())
	checkRowStructure(t, m, 3)

	rows := collectRows(m, 3)
	for r, entries := range rows {
		positive := entries[0]
		if positive.value < 0 {
			positive = entries[1]
		}
		assert.Equal(t, 0, positive.patch, "row %d must anchor at the first occurrence", r)
	}
}

func TestJumpMatricesFullyRedundantEmitsAllPairs(t *testing.T) {
	m, _ := tripleSharedDof(t)

	if err := m.ComputeJumpMatrices(true, false); err != nil {
		t.Fatalf("ComputeJumpMatrices failed: %v", err)
	}

	// 3 occurrences yield 3 choose 2 rows
	assert.Equal(t, 3, m.NLagrangeMultipliers())
	checkRowStructure(t, m, 3)
}

func TestJumpMatricesExcludeCornersStripsAll(t *testing.T) {
	m, _ := tripleSharedDof(t)

	// the shared dof sits at patch corners, so nothing remains
	if err := m.ComputeJumpMatrices(false, true); err != nil {
		t.Fatalf("ComputeJumpMatrices failed: %v", err)
	}
	assert.Equal(t, 0, m.NLagrangeMultipliers())

	// stripped dofs still yield well-formed zero-row matrices
	for k := 0; k < 3; k++ {
		r, c := m.JumpMatrix(k).Dims()
		assert.Equal(t, 0, r)
		assert.Equal(t, m.LocalFreeSize(k), c)
	}
}

func TestFixedPartNilWithoutBoundary(t *testing.T) {
	m, _ := tripleSharedDof(t)
	assert.Nil(t, m.FixedPart(0))
}
