package ieti

import (
	"fmt"

	"github.com/james-bowman/sparse"
)

// ComputeJumpMatrices builds the signed Lagrange-multiplier incidence
// structure tying duplicated interface dofs together. Every coupled global
// dof with n occurrences across patches contributes n-1 rows pairing the
// first occurrence with each of the others, or n*(n-1)/2 rows over all
// pairs when fullyRedundant is set. Each row carries +1 at the first
// occurrence and -1 at the second, in the two patches' matrices.
//
// With excludeCorners, coupled dofs sitting at a patch corner contribute
// no rows; continuity there is enforced by CornersAsPrimals instead.
func (m *Mapper) ComputeJumpMatrices(fullyRedundant, excludeCorners bool) error {
	if err := m.requireInit("ComputeJumpMatrices"); err != nil {
		return err
	}
	if m.done(phaseTag{kind: phaseJumpMatrices}) {
		return fmt.Errorf("%w: ComputeJumpMatrices", ErrAlreadyCompleted)
	}
	m.markDone(phaseTag{kind: phaseJumpMatrices})

	nPatches := m.global.NumPatches()
	coupledSize := m.global.CoupledSize()

	type occurrence struct {
		patch      int
		localIndex int
	}

	// Group the occurrences of every coupled dof, in (patch, slot) order
	coupling := make([][]occurrence, coupledSize)
	for k := 0; k < nPatches; k++ {
		patchSize := m.global.PatchSize(k)
		for i := 0; i < patchSize; i++ {
			if !m.global.IsCoupled(k, i) {
				continue
			}
			c := m.global.CIndex(k, i)
			coupling[c] = append(coupling[c], occurrence{
				patch:      k,
				localIndex: m.local[k].Index(0, i),
			})
		}
	}

	if excludeCorners {
		dim := m.basis.Dim()
		for k := 0; k < nPatches; k++ {
			for c := 0; c < 1<<dim; c++ {
				idx := m.basis.CornerIndex(k, c)
				if m.global.IsCoupled(k, idx) {
					coupling[m.global.CIndex(k, idx)] = nil
				}
			}
		}
	}

	// Precompute the expected multiplier count
	numMultipliers := 0
	for c := 0; c < coupledSize; c++ {
		n := len(coupling[c])
		switch {
		case n == 0 && excludeCorners:
			// stripped corner dof, contributes no rows
		case n <= 1:
			// a coupled group holds at least two slots, so a finalized
			// mapper can never get here without stripping
			return fmt.Errorf("%w: coupled dof %d has %d occurrences",
				ErrInternalConsistency, c, n)
		case fullyRedundant:
			numMultipliers += n * (n - 1) / 2
		default:
			numMultipliers += n - 1
		}
	}

	entries := make([]*sparse.DOK, nPatches)
	for k := 0; k < nPatches; k++ {
		entries[k] = sparse.NewDOK(numMultipliers, m.local[k].FreeSize())
	}

	multiplier := 0
	for c := 0; c < coupledSize; c++ {
		n := len(coupling[c])
		if n == 0 {
			continue
		}
		maxFirst := 1
		if fullyRedundant {
			maxFirst = n - 1
		}
		for j1 := 0; j1 < maxFirst; j1++ {
			for j2 := j1 + 1; j2 < n; j2++ {
				o1, o2 := coupling[c][j1], coupling[c][j2]
				entries[o1.patch].Set(multiplier, o1.localIndex, 1)
				entries[o2.patch].Set(multiplier, o2.localIndex, -1)
				multiplier++
			}
		}
	}
	if multiplier != numMultipliers {
		return fmt.Errorf("%w: emitted %d multipliers, expected %d",
			ErrInternalConsistency, multiplier, numMultipliers)
	}

	m.nMultipliers = numMultipliers
	m.jumpMatrices = make([]*sparse.CSR, nPatches)
	for k := 0; k < nPatches; k++ {
		m.jumpMatrices[k] = entries[k].ToCSR()
	}
	return nil
}
