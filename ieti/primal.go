package ieti

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/floats"
)

// dofOccurrence is one (patch, local free index) appearance of a global dof.
type dofOccurrence struct {
	globalIndex int
	patch       int
	localIndex  int
}

// CornersAsPrimals turns every non-eliminated patch corner into a primal
// dof. Corners with the same global index, whether shared between patches
// or aliased through artificial dofs, collapse into a single primal dof;
// each occurrence contributes one unit constraint vector on its patch.
func (m *Mapper) CornersAsPrimals() error {
	if err := m.requireInit("CornersAsPrimals"); err != nil {
		return err
	}
	if m.done(phaseTag{kind: phaseCorners}) {
		return fmt.Errorf("%w: CornersAsPrimals", ErrAlreadyCompleted)
	}
	m.markDone(phaseTag{kind: phaseCorners})

	nPatches := m.global.NumPatches()
	dim := m.basis.Dim()

	corners := make([]dofOccurrence, 0, (1<<dim)*nPatches)
	for k := 0; k < nPatches; k++ {
		for c := 0; c < 1<<dim; c++ {
			idx := m.basis.CornerIndex(k, c)
			g := m.global.Index(k, idx)
			if !m.global.IsFreeIndex(g) {
				continue
			}
			if m.artificial != nil {
				// Collect every aliased appearance of the corner as well
				for _, pre := range m.global.PreImage(g) {
					corners = append(corners, dofOccurrence{
						globalIndex: g,
						patch:       pre.Patch,
						localIndex:  m.local[pre.Patch].Index(0, pre.Index),
					})
				}
			} else {
				corners = append(corners, dofOccurrence{
					globalIndex: g,
					patch:       k,
					localIndex:  m.local[k].Index(0, idx),
				})
			}
		}
	}

	sort.Slice(corners, func(i, j int) bool {
		a, b := corners[i], corners[j]
		if a.globalIndex != b.globalIndex {
			return a.globalIndex < b.globalIndex
		}
		if a.patch != b.patch {
			return a.patch < b.patch
		}
		return a.localIndex < b.localIndex
	})

	lastIndex := -1
	for i, corner := range corners {
		// A shared corner's preimage is visible from every patch corner
		// mapping to it; each distinct (dof, patch, slot) occurrence
		// contributes exactly one constraint.
		if i > 0 && corner == corners[i-1] {
			continue
		}
		if corner.globalIndex != lastIndex {
			lastIndex = corner.globalIndex
			m.nPrimalDofs++
		}
		constr := sparse.NewVector(m.local[corner.patch].FreeSize(),
			[]int{corner.localIndex}, []float64{1})
		m.primalConstraints[corner.patch] = append(m.primalConstraints[corner.patch], constr)
		m.primalDofIndices[corner.patch] = append(m.primalDofIndices[corner.patch], m.nPrimalDofs-1)
	}
	return nil
}

// constraintEntry pairs an assembled average constraint with the sorted
// global indices of its support, the canonical key used to collapse
// constraints that describe the same physical average on several patches.
type constraintEntry struct {
	fingerprint []int
	indices     []int // local free indices, strictly increasing
	values      []float64
	patch       int
}

// fingerprintLess orders fingerprints by length first, then elementwise.
func fingerprintLess(a, b []int) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func fingerprintEqual(a, b []int) bool {
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

// assembleAverage builds the weighted-average constraint of a component
// side over patch k's local free dofs: the moments of the constant
// function one against the restricted basis, dropped on eliminated dofs
// and normalized to sum one. Returns nil index slices when the support is
// fully eliminated.
func (m *Mapper) assembleAverage(k int, side Side) (indices []int, values []float64, err error) {
	rawIndices, moments := side.Moments()
	if len(rawIndices) != len(moments) {
		return nil, nil, fmt.Errorf("%w: component side on patch %d has %d indices but %d moments",
			ErrShapeMismatch, k, len(rawIndices), len(moments))
	}
	lm := m.local[k]
	for i, raw := range rawIndices {
		if raw < 0 || raw >= lm.PatchSize(0) {
			return nil, nil, fmt.Errorf("%w: component index %d out of range on patch %d",
				ErrShapeMismatch, raw, k)
		}
		if lm.IsFree(0, raw) {
			indices = append(indices, lm.Index(0, raw))
			values = append(values, moments[i])
		}
	}
	if len(indices) == 0 {
		return nil, nil, nil
	}
	floats.Scale(1/floats.Sum(values), values)
	return indices, values, nil
}

// InterfaceAveragesAsPrimals creates one primal dof per maximal connected
// component of dimension d that is shared between patches (or, for d equal
// to the ambient dimension, per patch interior). Each touching patch
// contributes its weighted-average constraint; when artificial dofs exist
// the constraint is also replicated onto every patch whose aliased copies
// fully cover its support. Constraints are collapsed by their fingerprint,
// the sorted list of global dof indices they touch.
func (m *Mapper) InterfaceAveragesAsPrimals(topo Topology, d int) error {
	if err := m.requireInit("InterfaceAveragesAsPrimals"); err != nil {
		return err
	}
	dim := m.basis.Dim()
	if d < 1 || d > dim {
		return fmt.Errorf("%w: component dimension %d, ambient dimension %d",
			ErrDimensionOutOfRange, d, dim)
	}
	tag := phaseTag{kind: phaseAverages, dim: d}
	if m.done(tag) {
		return fmt.Errorf("%w: InterfaceAveragesAsPrimals(d=%d)", ErrAlreadyCompleted, d)
	}
	m.markDone(tag)

	for _, comp := range topo.AllComponents() {
		if comp.Dim() != d {
			continue
		}
		sides := comp.Sides()
		entries := make([]constraintEntry, 0, len(sides))

		for _, side := range sides {
			k := side.Patch()
			if k < 0 || k >= m.global.NumPatches() {
				return fmt.Errorf("%w: component side on patch %d, have %d patches",
					ErrShapeMismatch, k, m.global.NumPatches())
			}
			indices, values, err := m.assembleAverage(k, side)
			if err != nil {
				return err
			}
			if len(indices) == 0 {
				continue
			}

			fingerprint := make([]int, len(indices))
			for i, li := range indices {
				fingerprint[i] = m.global.Index(k, m.localInverse[k][li])
			}
			sort.Ints(fingerprint)

			// Replicate onto patches whose aliased copies cover the support
			if m.artificial != nil {
				for _, peer := range m.artificial.peers(k) {
					peerIndices := make([]int, 0, len(indices))
					covered := true
					for _, li := range indices {
						slot, ok := m.artificial.peerSlot(k, peer, li)
						if !ok {
							covered = false
							break
						}
						peerIndices = append(peerIndices, m.local[peer].Index(0, slot))
					}
					if !covered {
						continue
					}
					peerValues := append([]float64{}, values...)
					sortPairs(peerIndices, peerValues)
					entries = append(entries, constraintEntry{
						fingerprint: fingerprint,
						indices:     peerIndices,
						values:      peerValues,
						patch:       peer,
					})
				}
			}

			entries = append(entries, constraintEntry{
				fingerprint: fingerprint,
				indices:     indices,
				values:      values,
				patch:       k,
			})
		}

		sort.Slice(entries, func(i, j int) bool {
			if !fingerprintEqual(entries[i].fingerprint, entries[j].fingerprint) {
				return fingerprintLess(entries[i].fingerprint, entries[j].fingerprint)
			}
			return entries[i].patch < entries[j].patch
		})

		// Partition into runs of equal fingerprint; a run becomes a primal
		// dof only if it is shared, or if it is the interior average.
		for start := 0; start < len(entries); {
			end := start + 1
			for end < len(entries) && fingerprintEqual(entries[start].fingerprint, entries[end].fingerprint) {
				end++
			}
			if end-start > 1 || d == dim {
				m.nPrimalDofs++
				for _, e := range entries[start:end] {
					constr := sparse.NewVector(m.local[e.patch].FreeSize(), e.indices, e.values)
					m.primalConstraints[e.patch] = append(m.primalConstraints[e.patch], constr)
					m.primalDofIndices[e.patch] = append(m.primalDofIndices[e.patch], m.nPrimalDofs-1)
				}
			}
			start = end
		}
	}
	return nil
}

// sortPairs sorts indices ascending, permuting values alongside.
func sortPairs(indices []int, values []float64) {
	order := make([]int, len(indices))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return indices[order[a]] < indices[order[b]] })
	sortedIdx := make([]int, len(indices))
	sortedVal := make([]float64, len(values))
	for i, o := range order {
		sortedIdx[i] = indices[o]
		sortedVal[i] = values[o]
	}
	copy(indices, sortedIdx)
	copy(values, sortedVal)
}

// CustomPrimalConstraints declares all given constraint vectors to be tied
// together as one new shared primal dof. No geometric consistency between
// the vectors is checked; the caller is trusted that they describe the
// same physical quantity on each patch. May be called repeatedly, once
// per primal dof to create.
func (m *Mapper) CustomPrimalConstraints(entries []CustomConstraint) error {
	if err := m.requireInit("CustomPrimalConstraints"); err != nil {
		return err
	}
	for _, e := range entries {
		if e.Patch < 0 || e.Patch >= m.global.NumPatches() {
			return fmt.Errorf("%w: constraint on patch %d, have %d patches",
				ErrShapeMismatch, e.Patch, m.global.NumPatches())
		}
		if e.Vector.Len() != m.local[e.Patch].FreeSize() {
			return fmt.Errorf("%w: constraint on patch %d has length %d, local free size is %d",
				ErrShapeMismatch, e.Patch, e.Vector.Len(), m.local[e.Patch].FreeSize())
		}
	}
	for _, e := range entries {
		m.primalConstraints[e.Patch] = append(m.primalConstraints[e.Patch], e.Vector)
		m.primalDofIndices[e.Patch] = append(m.primalDofIndices[e.Patch], m.nPrimalDofs)
	}
	m.nPrimalDofs++
	return nil
}
