// Package ieti builds the dof mapping and constraint structures required
// by dual-primal substructuring (IETI / FETI-DP) solvers: per-patch local
// dof numberings, primal constraints with cross-patch deduplication, and
// the signed jump matrices that tie duplicated interface dofs together.
package ieti

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/substruct/dofmap"
)

type phaseKind uint8

const (
	phaseInit phaseKind = iota
	phaseCorners
	phaseAverages // one tag per component dimension
	phaseJumpMatrices
)

// phaseTag identifies one phase of the one-shot setup sequence. dim is
// only meaningful for phaseAverages.
type phaseTag struct {
	kind phaseKind
	dim  int
}

// Mapper is the dof-mapping engine of an IETI setup. The zero value is
// ready for Init; every phase (Init, each primal constraint generator,
// ComputeJumpMatrices) runs at most once per instance and the whole
// object is single-threaded.
type Mapper struct {
	basis  MultiBasis
	global *dofmap.Mapper

	local     []*dofmap.Mapper
	fixedPart []*mat.VecDense

	// localInverse[k] maps patch k's local free index back to the raw
	// local slot it was numbered from.
	localInverse [][]int

	// nil unless some patch's index space exceeds its native basis size
	artificial *artificialDofIndex

	nPrimalDofs       int
	primalConstraints [][]*sparse.Vector
	primalDofIndices  [][]int

	nMultipliers int
	jumpMatrices []*sparse.CSR

	completed map[phaseTag]bool
}

func (m *Mapper) done(t phaseTag) bool { return m.completed[t] }

func (m *Mapper) markDone(t phaseTag) {
	if m.completed == nil {
		m.completed = make(map[phaseTag]bool)
	}
	m.completed[t] = true
}

func (m *Mapper) requireInit(op string) error {
	if !m.done(phaseTag{kind: phaseInit}) {
		return fmt.Errorf("%w: %s requires Init", ErrNotInitialized, op)
	}
	return nil
}

// Init builds the local dof numberings. For every patch it derives an
// identity-with-eliminations local mapper from the global one, extracts
// the patch's prescribed boundary values from fixedValues (indexed by the
// global mapper's compact boundary numbering), and detects artificial
// dofs: patches whose index space in the global mapper exceeds the native
// basis size.
func (m *Mapper) Init(basis MultiBasis, global *dofmap.Mapper, fixedValues *mat.VecDense) error {
	if m.done(phaseTag{kind: phaseInit}) {
		return fmt.Errorf("%w: Init", ErrAlreadyCompleted)
	}

	nPatches := global.NumPatches()
	if nPatches != basis.NumPatches() {
		return fmt.Errorf("%w: dof mapper covers %d patches, basis has %d",
			ErrShapeMismatch, nPatches, basis.NumPatches())
	}
	fixedLen := 0
	if fixedValues != nil {
		fixedLen = fixedValues.Len()
	}
	if fixedLen != global.BoundarySize() {
		return fmt.Errorf("%w: fixed values have length %d, boundary size is %d",
			ErrShapeMismatch, fixedLen, global.BoundarySize())
	}

	m.basis = basis
	m.global = global
	m.local = make([]*dofmap.Mapper, nPatches)
	m.fixedPart = make([]*mat.VecDense, nPatches)
	m.localInverse = make([][]int, nPatches)
	m.primalConstraints = make([][]*sparse.Vector, nPatches)
	m.primalDofIndices = make([][]int, nPatches)

	hasArtificial := false
	for k := 0; k < nPatches; k++ {
		nDofs := global.PatchSize(k)
		if nDofs < basis.PatchSize(k) {
			return fmt.Errorf("%w: patch %d has %d dofs in the mapper but %d basis functions",
				ErrShapeMismatch, k, nDofs, basis.PatchSize(k))
		}
		if nDofs > basis.PatchSize(k) {
			hasArtificial = true
		}

		lm, err := dofmap.NewMapper([]int{nDofs})
		if err != nil {
			return err
		}
		for i := 0; i < nDofs; i++ {
			if global.IsBoundary(k, i) {
				if err := lm.EliminateDof(0, i); err != nil {
					return err
				}
			}
		}
		if err := lm.Finalize(); err != nil {
			return err
		}
		m.local[k] = lm

		inv := make([]int, lm.FreeSize())
		fixed := make([]float64, lm.BoundarySize())
		for i := 0; i < nDofs; i++ {
			if global.IsBoundary(k, i) {
				fixed[lm.BIndex(0, i)] = fixedValues.AtVec(global.BIndex(k, i))
			} else {
				inv[lm.Index(0, i)] = i
			}
		}
		if len(fixed) > 0 {
			m.fixedPart[k] = mat.NewVecDense(len(fixed), fixed)
		}
		m.localInverse[k] = inv
	}

	if hasArtificial {
		art, err := buildArtificialDofIndex(basis, global, m.local)
		if err != nil {
			return err
		}
		m.artificial = art
	}

	m.markDone(phaseTag{kind: phaseInit})
	return nil
}

// HasArtificialDofs reports whether any patch's index space exceeds its
// native basis size.
func (m *Mapper) HasArtificialDofs() bool { return m.artificial != nil }

// GlobalMapper returns the global dof mapper the engine was initialized with.
func (m *Mapper) GlobalMapper() *dofmap.Mapper { return m.global }

// LocalMapper returns patch k's identity-with-eliminations local mapper.
func (m *Mapper) LocalMapper(k int) *dofmap.Mapper { return m.local[k] }

// LocalFreeSize returns the number of free dofs in patch k's local numbering.
func (m *Mapper) LocalFreeSize(k int) int { return m.local[k].FreeSize() }

// FixedPart returns the prescribed values on patch k's eliminated dofs,
// indexed by the local mapper's compact boundary numbering. It is nil when
// the patch has no eliminated dofs.
func (m *Mapper) FixedPart(k int) *mat.VecDense { return m.fixedPart[k] }

// NPrimalDofs returns the number of primal dofs created so far.
func (m *Mapper) NPrimalDofs() int { return m.nPrimalDofs }

// PrimalConstraints returns patch k's primal constraint vectors, each over
// the patch's local free dof space, in the order they were generated.
func (m *Mapper) PrimalConstraints(k int) []*sparse.Vector { return m.primalConstraints[k] }

// PrimalDofIndices returns, for each of patch k's primal constraints, the
// global primal dof it belongs to.
func (m *Mapper) PrimalDofIndices(k int) []int { return m.primalDofIndices[k] }

// NLagrangeMultipliers returns the total number of multipliers emitted by
// ComputeJumpMatrices, or 0 before that phase ran.
func (m *Mapper) NLagrangeMultipliers() int { return m.nMultipliers }

// JumpMatrix returns patch k's jump matrix (rows = total multiplier count,
// columns = local free dof count), or nil before ComputeJumpMatrices ran.
func (m *Mapper) JumpMatrix(k int) *sparse.CSR {
	if m.jumpMatrices == nil {
		return nil
	}
	return m.jumpMatrices[k]
}

// SkeletonDofs returns the local free indices of patch k's coupled dofs,
// in increasing raw local order. These are the dofs living on the
// interface skeleton, needed e.g. for scaled-Dirichlet preconditioning.
func (m *Mapper) SkeletonDofs(k int) ([]int, error) {
	if err := m.requireInit("SkeletonDofs"); err != nil {
		return nil, err
	}
	if k < 0 || k >= m.global.NumPatches() {
		return nil, fmt.Errorf("%w: patch %d out of range [0,%d)",
			ErrShapeMismatch, k, m.global.NumPatches())
	}
	var result []int
	for i := 0; i < m.global.PatchSize(k); i++ {
		if m.global.IsCoupled(k, i) {
			result = append(result, m.local[k].Index(0, i))
		}
	}
	return result, nil
}

// ConstructGlobalSolutionFromLocalSolutions assembles the global solution
// from per-patch local contributions, one matrix per patch with rows =
// that patch's local free dof count. Only native (non-artificial) free
// dofs are written; if several patches hold the same global dof natively,
// the patch with the highest index wins.
func (m *Mapper) ConstructGlobalSolutionFromLocalSolutions(contribs []*mat.Dense) (*mat.Dense, error) {
	if err := m.requireInit("ConstructGlobalSolutionFromLocalSolutions"); err != nil {
		return nil, err
	}
	nPatches := m.global.NumPatches()
	if len(contribs) != nPatches {
		return nil, fmt.Errorf("%w: got %d local contributions for %d patches",
			ErrShapeMismatch, len(contribs), nPatches)
	}
	_, nCols := contribs[0].Dims()
	for k := 0; k < nPatches; k++ {
		r, c := contribs[k].Dims()
		if r != m.local[k].FreeSize() || c != nCols {
			return nil, fmt.Errorf("%w: contribution %d is %dx%d, want %dx%d",
				ErrShapeMismatch, k, r, c, m.local[k].FreeSize(), nCols)
		}
	}

	result := mat.NewDense(m.global.FreeSize(), nCols, nil)
	for k := 0; k < nPatches; k++ {
		sz := m.basis.PatchSize(k) // artificial dofs are never extracted
		for i := 0; i < sz; i++ {
			if m.local[k].IsFree(0, i) && m.global.IsFree(k, i) {
				g := m.global.Index(k, i)
				li := m.local[k].Index(0, i)
				for c := 0; c < nCols; c++ {
					result.Set(g, c, contribs[k].At(li, c))
				}
			}
		}
	}
	return result, nil
}
