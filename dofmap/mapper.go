// Package dofmap provides degree-of-freedom numberings over multi-patch
// discretizations: patch-local dof slots are matched into shared global
// dofs, Dirichlet slots are eliminated, and the finalized numbering exposes
// compact secondary numberings for boundary and coupled dofs.
package dofmap

import (
	"fmt"
)

// DofRef identifies one (patch, local index) slot of a mapper.
type DofRef struct {
	Patch int
	Index int
}

// Mapper numbers the dofs of a multi-patch discretization.
//
// Construction happens in two stages: before Finalize, MatchDofs declares
// two slots to be the same global dof and EliminateDof marks a slot as a
// Dirichlet (boundary) dof; Finalize then assigns the global numbering.
// Queries are only valid on a finalized mapper and panic otherwise.
//
// The finalized index space is laid out as
//
//	[0, FreeSize-CoupledSize)        uncoupled free dofs
//	[FreeSize-CoupledSize, FreeSize) coupled free dofs (shared by >=2 slots)
//	[FreeSize, TotalSize)            eliminated (boundary) dofs
//
// so BIndex(k,i) = Index(k,i) - FreeSize() and CIndex(k,i) = Index(k,i) -
// (FreeSize() - CoupledSize()) are compact numberings of the boundary and
// coupled dofs respectively.
type Mapper struct {
	patchSizes []int
	offsets    []int // slot offset per patch, len = nPatches+1

	// Pre-finalize state
	parent     []int  // union-find parent per slot
	eliminated []bool // per slot; a group is eliminated if any member is

	// Post-finalize state
	finalized    bool
	index        []int // global index per slot
	freeSize     int
	coupledSize  int
	boundarySize int
	preImages    [][]DofRef // per global index, slots in (patch, index) order
}

// NewMapper creates a mapper with the given number of local dof slots per
// patch. Initially every slot is its own free global dof.
func NewMapper(patchSizes []int) (*Mapper, error) {
	if len(patchSizes) == 0 {
		return nil, fmt.Errorf("dofmap: need at least one patch")
	}
	offsets := make([]int, len(patchSizes)+1)
	for k, sz := range patchSizes {
		if sz <= 0 {
			return nil, fmt.Errorf("dofmap: patch %d has invalid size %d", k, sz)
		}
		offsets[k+1] = offsets[k] + sz
	}
	total := offsets[len(patchSizes)]
	m := &Mapper{
		patchSizes: append([]int{}, patchSizes...),
		offsets:    offsets,
		parent:     make([]int, total),
		eliminated: make([]bool, total),
	}
	for i := range m.parent {
		m.parent[i] = i
	}
	return m, nil
}

// NumPatches returns the number of patches covered by the mapper.
func (m *Mapper) NumPatches() int { return len(m.patchSizes) }

// PatchSize returns the number of local dof slots of patch k.
func (m *Mapper) PatchSize(k int) int {
	m.checkPatch(k)
	return m.patchSizes[k]
}

func (m *Mapper) checkPatch(k int) {
	if k < 0 || k >= len(m.patchSizes) {
		panic(fmt.Sprintf("dofmap: patch %d out of range [0,%d)", k, len(m.patchSizes)))
	}
}

func (m *Mapper) slot(k, i int) int {
	m.checkPatch(k)
	if i < 0 || i >= m.patchSizes[k] {
		panic(fmt.Sprintf("dofmap: local index %d out of range [0,%d) on patch %d",
			i, m.patchSizes[k], k))
	}
	return m.offsets[k] + i
}

func (m *Mapper) find(s int) int {
	for m.parent[s] != s {
		m.parent[s] = m.parent[m.parent[s]]
		s = m.parent[s]
	}
	return s
}

// MatchDofs declares slot (k1,i1) and slot (k2,i2) to be the same global
// dof. Matching is transitive. Must be called before Finalize.
func (m *Mapper) MatchDofs(k1, i1, k2, i2 int) error {
	if m.finalized {
		return fmt.Errorf("dofmap: MatchDofs called on finalized mapper")
	}
	r1 := m.find(m.slot(k1, i1))
	r2 := m.find(m.slot(k2, i2))
	if r1 != r2 {
		// Root at the smaller slot so numbering stays deterministic
		if r2 < r1 {
			r1, r2 = r2, r1
		}
		m.parent[r2] = r1
	}
	return nil
}

// EliminateDof marks slot (k,i) as an eliminated (Dirichlet boundary) dof.
// Elimination spreads to every slot matched with it. Must be called before
// Finalize.
func (m *Mapper) EliminateDof(k, i int) error {
	if m.finalized {
		return fmt.Errorf("dofmap: EliminateDof called on finalized mapper")
	}
	m.eliminated[m.slot(k, i)] = true
	return nil
}

// Finalize assigns the global numbering. Uncoupled free dofs are numbered
// first in slot order, coupled free dofs next, eliminated dofs last.
func (m *Mapper) Finalize() error {
	if m.finalized {
		return fmt.Errorf("dofmap: mapper already finalized")
	}
	total := m.offsets[len(m.patchSizes)]

	groupSize := make(map[int]int, total)
	groupElim := make(map[int]bool, total)
	for s := 0; s < total; s++ {
		r := m.find(s)
		groupSize[r]++
		if m.eliminated[s] {
			groupElim[r] = true
		}
	}

	nFree, nCoupled, nBoundary := 0, 0, 0
	for r, sz := range groupSize {
		switch {
		case groupElim[r]:
			nBoundary++
		case sz >= 2:
			nCoupled++
		default:
			nFree++
		}
	}

	// Number group representatives in slot order within each class.
	groupIndex := make(map[int]int, len(groupSize))
	nextFree, nextCoupled, nextBoundary := 0, nFree, nFree+nCoupled
	for s := 0; s < total; s++ {
		r := m.find(s)
		if r != s {
			continue // representative is the smallest slot of its group
		}
		switch {
		case groupElim[r]:
			groupIndex[r] = nextBoundary
			nextBoundary++
		case groupSize[r] >= 2:
			groupIndex[r] = nextCoupled
			nextCoupled++
		default:
			groupIndex[r] = nextFree
			nextFree++
		}
	}

	m.index = make([]int, total)
	for s := 0; s < total; s++ {
		m.index[s] = groupIndex[m.find(s)]
	}

	m.freeSize = nFree + nCoupled
	m.coupledSize = nCoupled
	m.boundarySize = nBoundary

	m.preImages = make([][]DofRef, m.freeSize+m.boundarySize)
	for k := 0; k < len(m.patchSizes); k++ {
		for i := 0; i < m.patchSizes[k]; i++ {
			g := m.index[m.offsets[k]+i]
			m.preImages[g] = append(m.preImages[g], DofRef{Patch: k, Index: i})
		}
	}

	m.finalized = true
	return nil
}

func (m *Mapper) checkFinalized() {
	if !m.finalized {
		panic("dofmap: mapper not finalized")
	}
}

// Index returns the global index of slot (k,i).
func (m *Mapper) Index(k, i int) int {
	m.checkFinalized()
	return m.index[m.slot(k, i)]
}

// FreeSize returns the number of free global dofs (coupled ones included).
func (m *Mapper) FreeSize() int {
	m.checkFinalized()
	return m.freeSize
}

// CoupledSize returns the number of global dofs shared by two or more slots.
func (m *Mapper) CoupledSize() int {
	m.checkFinalized()
	return m.coupledSize
}

// BoundarySize returns the number of eliminated global dofs.
func (m *Mapper) BoundarySize() int {
	m.checkFinalized()
	return m.boundarySize
}

// TotalSize returns the total number of distinct global dofs.
func (m *Mapper) TotalSize() int {
	m.checkFinalized()
	return m.freeSize + m.boundarySize
}

// IsFreeIndex reports whether global index g refers to a free dof.
func (m *Mapper) IsFreeIndex(g int) bool {
	m.checkFinalized()
	return g >= 0 && g < m.freeSize
}

// IsBoundaryIndex reports whether global index g refers to an eliminated dof.
func (m *Mapper) IsBoundaryIndex(g int) bool {
	m.checkFinalized()
	return g >= m.freeSize && g < m.freeSize+m.boundarySize
}

// IsCoupledIndex reports whether global index g refers to a coupled dof.
func (m *Mapper) IsCoupledIndex(g int) bool {
	m.checkFinalized()
	return g >= m.freeSize-m.coupledSize && g < m.freeSize
}

// IsFree reports whether slot (k,i) maps to a free dof.
func (m *Mapper) IsFree(k, i int) bool { return m.IsFreeIndex(m.Index(k, i)) }

// IsBoundary reports whether slot (k,i) maps to an eliminated dof.
func (m *Mapper) IsBoundary(k, i int) bool { return m.IsBoundaryIndex(m.Index(k, i)) }

// IsCoupled reports whether slot (k,i) maps to a coupled dof.
func (m *Mapper) IsCoupled(k, i int) bool { return m.IsCoupledIndex(m.Index(k, i)) }

// BIndex returns the compact boundary index of slot (k,i), which must map
// to an eliminated dof.
func (m *Mapper) BIndex(k, i int) int {
	g := m.Index(k, i)
	if !m.IsBoundaryIndex(g) {
		panic(fmt.Sprintf("dofmap: BIndex of non-boundary slot (%d,%d)", k, i))
	}
	return g - m.freeSize
}

// CIndex returns the compact coupled index of slot (k,i), which must map
// to a coupled dof.
func (m *Mapper) CIndex(k, i int) int {
	g := m.Index(k, i)
	if !m.IsCoupledIndex(g) {
		panic(fmt.Sprintf("dofmap: CIndex of non-coupled slot (%d,%d)", k, i))
	}
	return g - (m.freeSize - m.coupledSize)
}

// PreImage returns all slots mapping to global index g, ordered by
// (patch, local index). The returned slice is shared; callers must not
// modify it.
func (m *Mapper) PreImage(g int) []DofRef {
	m.checkFinalized()
	if g < 0 || g >= len(m.preImages) {
		panic(fmt.Sprintf("dofmap: global index %d out of range [0,%d)", g, len(m.preImages)))
	}
	return m.preImages[g]
}
