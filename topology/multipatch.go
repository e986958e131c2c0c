package topology

import (
	"fmt"

	"github.com/notargets/substruct/dofmap"
	"github.com/notargets/substruct/ieti"
)

// Interface glues one side of patch P1 to one side of patch P2 with
// identity orientation: the side dofs correspond in increasing flat order
// over the remaining dimensions.
type Interface struct {
	P1 int
	S1 Side
	P2 int
	S2 Side
}

// MultiPatch is a structured multi-patch geometry: tensor-product patches
// of a common parametric dimension glued along axis-aligned interfaces.
// It implements both the basis and the topology surface of the ieti
// engine.
type MultiPatch struct {
	Patches    []*TensorBasis
	Interfaces []Interface
}

// NewMultiPatch validates patch dimensions and interface compatibility.
func NewMultiPatch(patches []*TensorBasis, interfaces []Interface) (*MultiPatch, error) {
	if len(patches) == 0 {
		return nil, fmt.Errorf("topology: need at least one patch")
	}
	dim := patches[0].Dim()
	for k, p := range patches {
		if p.Dim() != dim {
			return nil, fmt.Errorf("topology: patch %d has dimension %d, patch 0 has %d",
				k, p.Dim(), dim)
		}
	}
	for n, iface := range interfaces {
		for _, side := range []struct {
			patch int
			s     Side
		}{{iface.P1, iface.S1}, {iface.P2, iface.S2}} {
			if side.patch < 0 || side.patch >= len(patches) {
				return nil, fmt.Errorf("topology: interface %d references patch %d, have %d patches",
					n, side.patch, len(patches))
			}
			if side.s.Dim < 0 || side.s.Dim >= dim {
				return nil, fmt.Errorf("topology: interface %d fixes dimension %d, patches have dimension %d",
					n, side.s.Dim, dim)
			}
		}
		rem1 := remainingDims(dim, iface.S1.Dim)
		rem2 := remainingDims(dim, iface.S2.Dim)
		for j := range rem1 {
			n1 := patches[iface.P1].SizeInDim(rem1[j])
			n2 := patches[iface.P2].SizeInDim(rem2[j])
			if n1 != n2 {
				return nil, fmt.Errorf("topology: interface %d glues sides of incompatible sizes %d and %d",
					n, n1, n2)
			}
		}
	}
	return &MultiPatch{Patches: patches, Interfaces: interfaces}, nil
}

func remainingDims(dim, fixed int) []int {
	dims := make([]int, 0, dim-1)
	for b := 0; b < dim; b++ {
		if b != fixed {
			dims = append(dims, b)
		}
	}
	return dims
}

// NumPatches returns the number of patches.
func (mp *MultiPatch) NumPatches() int { return len(mp.Patches) }

// Dim returns the common parametric dimension.
func (mp *MultiPatch) Dim() int { return mp.Patches[0].Dim() }

// PatchSize returns the number of native basis functions on patch k.
func (mp *MultiPatch) PatchSize(k int) int { return mp.Patches[k].Size() }

// CornerIndex returns the local index of patch k's basis function at
// corner c (bitmask, bit b = high end of dimension b).
func (mp *MultiPatch) CornerIndex(k, c int) int { return mp.Patches[k].CornerIndex(c) }

// Box components are encoded as ternary numbers, digit b holding the
// DimSpec of dimension b.

func encodeComponent(bc BoxComponent) int {
	id, stride := 0, 1
	for _, s := range bc {
		id += int(s) * stride
		stride *= 3
	}
	return id
}

func decodeComponent(id, dim int) BoxComponent {
	bc := make(BoxComponent, dim)
	for b := 0; b < dim; b++ {
		bc[b] = DimSpec(id % 3)
		id /= 3
	}
	return bc
}

// AllComponents enumerates the maximal connected topological components of
// the multi-patch geometry. Box components glued across interfaces are
// collected into one component with one side per touching patch; unglued
// boundary components form components of their own. The result covers all
// dimensions from vertices up to patch interiors.
func (mp *MultiPatch) AllComponents() []ieti.Component {
	dim := mp.Dim()
	nComps := 1
	for b := 0; b < dim; b++ {
		nComps *= 3
	}
	node := func(patch, id int) int { return patch*nComps + id }

	parent := make([]int, len(mp.Patches)*nComps)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(s int) int {
		for parent[s] != s {
			parent[s] = parent[parent[s]]
			s = parent[s]
		}
		return s
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	// Identify sub-components across every glued interface: fix the
	// interface dimension on both sides, carry every assignment of the
	// remaining dimensions over in order.
	for _, iface := range mp.Interfaces {
		rem1 := remainingDims(dim, iface.S1.Dim)
		rem2 := remainingDims(dim, iface.S2.Dim)
		nSub := 1
		for range rem1 {
			nSub *= 3
		}
		for sub := 0; sub < nSub; sub++ {
			bc1 := iface.S1.Component(dim)
			bc2 := iface.S2.Component(dim)
			v := sub
			for j := range rem1 {
				spec := DimSpec(v % 3)
				v /= 3
				bc1[rem1[j]] = spec
				bc2[rem2[j]] = spec
			}
			union(node(iface.P1, encodeComponent(bc1)), node(iface.P2, encodeComponent(bc2)))
		}
	}

	groups := make(map[int][]boxComp)
	var order []int
	for k := range mp.Patches {
		for id := 0; id < nComps; id++ {
			r := find(node(k, id))
			if _, seen := groups[r]; !seen {
				order = append(order, r)
			}
			groups[r] = append(groups[r], boxComp{patch: k, id: id})
		}
	}

	components := make([]ieti.Component, 0, len(order))
	for _, r := range order {
		members := groups[r]
		spec := decodeComponent(members[0].id, dim)
		comp := &multiPatchComponent{dim: spec.Dim()}
		for _, m := range members {
			comp.sides = append(comp.sides, &componentSide{
				mp:    mp,
				patch: m.patch,
				spec:  decodeComponent(m.id, dim),
			})
		}
		components = append(components, comp)
	}
	return components
}

type boxComp struct {
	patch int
	id    int
}

type multiPatchComponent struct {
	dim   int
	sides []*componentSide
}

func (c *multiPatchComponent) Dim() int { return c.dim }

func (c *multiPatchComponent) Sides() []ieti.Side {
	sides := make([]ieti.Side, len(c.sides))
	for i, s := range c.sides {
		sides[i] = s
	}
	return sides
}

type componentSide struct {
	mp    *MultiPatch
	patch int
	spec  BoxComponent
}

func (s *componentSide) Patch() int { return s.patch }

func (s *componentSide) Moments() ([]int, []float64) {
	indices, moments, err := s.mp.Patches[s.patch].Restrict(s.spec)
	if err != nil {
		panic(err) // component was decoded against this basis
	}
	return indices, moments
}

// BuildConformingMapper builds the global dof mapper of a conforming
// discretization: dofs on glued sides are matched pairwise and the dofs on
// the given Dirichlet sides are eliminated.
func (mp *MultiPatch) BuildConformingMapper(dirichlet []PatchSide) (*dofmap.Mapper, error) {
	sizes := make([]int, len(mp.Patches))
	for k, p := range mp.Patches {
		sizes[k] = p.Size()
	}
	m, err := dofmap.NewMapper(sizes)
	if err != nil {
		return nil, err
	}
	for _, iface := range mp.Interfaces {
		a := mp.Patches[iface.P1].SideIndices(iface.S1)
		b := mp.Patches[iface.P2].SideIndices(iface.S2)
		for j := range a {
			if err := m.MatchDofs(iface.P1, a[j], iface.P2, b[j]); err != nil {
				return nil, err
			}
		}
	}
	if err := mp.eliminateSides(m, dirichlet); err != nil {
		return nil, err
	}
	if err := m.Finalize(); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildDecoupledMapper builds the global dof mapper of a fully decoupled
// (discontinuous at interfaces) discretization: no native dofs are shared;
// instead each patch's index space is extended with artificial copies of
// the neighbor's dofs on every glued interface, and each copy is matched
// with the native dof it aliases. The resulting mapper drives the ieti
// engine's artificial-dof machinery.
func (mp *MultiPatch) BuildDecoupledMapper(dirichlet []PatchSide) (*dofmap.Mapper, error) {
	sizes := make([]int, len(mp.Patches))
	for k, p := range mp.Patches {
		sizes[k] = p.Size()
	}
	next := make([]int, len(mp.Patches))
	copy(next, sizes)
	for _, iface := range mp.Interfaces {
		sizes[iface.P1] += len(mp.Patches[iface.P2].SideIndices(iface.S2))
		sizes[iface.P2] += len(mp.Patches[iface.P1].SideIndices(iface.S1))
	}

	m, err := dofmap.NewMapper(sizes)
	if err != nil {
		return nil, err
	}
	for _, iface := range mp.Interfaces {
		a := mp.Patches[iface.P1].SideIndices(iface.S1)
		b := mp.Patches[iface.P2].SideIndices(iface.S2)
		for _, j := range b {
			if err := m.MatchDofs(iface.P1, next[iface.P1], iface.P2, j); err != nil {
				return nil, err
			}
			next[iface.P1]++
		}
		for _, j := range a {
			if err := m.MatchDofs(iface.P2, next[iface.P2], iface.P1, j); err != nil {
				return nil, err
			}
			next[iface.P2]++
		}
	}
	if err := mp.eliminateSides(m, dirichlet); err != nil {
		return nil, err
	}
	if err := m.Finalize(); err != nil {
		return nil, err
	}
	return m, nil
}

func (mp *MultiPatch) eliminateSides(m *dofmap.Mapper, dirichlet []PatchSide) error {
	for _, ps := range dirichlet {
		if ps.Patch < 0 || ps.Patch >= len(mp.Patches) {
			return fmt.Errorf("topology: Dirichlet side on patch %d, have %d patches",
				ps.Patch, len(mp.Patches))
		}
		for _, idx := range mp.Patches[ps.Patch].SideIndices(ps.Side) {
			if err := m.EliminateDof(ps.Patch, idx); err != nil {
				return err
			}
		}
	}
	return nil
}
