package ieti

import (
	"fmt"
	"sort"

	"github.com/notargets/substruct/dofmap"
)

// artificialDofIndex records the aliasing between artificial dofs and the
// patches that natively own them. An artificial dof is a slot beyond a
// patch's native basis size whose global dof is owned by another patch.
//
// aliases[owner][peer] maps the owner's local free index of a dof onto the
// raw local slot the peer's aliased copy lives in. Absence of a key means
// the peer carries no copy of that dof; index 0 is a valid value on both
// sides, so presence is tracked by map membership, never by a sentinel.
type artificialDofIndex struct {
	aliases []map[int]map[int]int
}

// buildArtificialDofIndex resolves, for every artificial slot, the patch
// natively owning its global dof. Every native free dof must be claimed by
// exactly one (patch, local index) pair.
func buildArtificialDofIndex(basis MultiBasis, global *dofmap.Mapper, local []*dofmap.Mapper) (*artificialDofIndex, error) {
	nPatches := global.NumPatches()

	type owner struct {
		patch     int
		freeIndex int // owner's local free index
	}
	owners := make([]*owner, global.FreeSize())

	for k := 0; k < nPatches; k++ {
		sz := basis.PatchSize(k) // native slots only
		for i := 0; i < sz; i++ {
			g := global.Index(k, i)
			if !global.IsFreeIndex(g) {
				continue
			}
			if prev := owners[g]; prev != nil {
				return nil, fmt.Errorf("%w: global dof %d natively claimed by both (%d,%d) and patch %d",
					ErrInternalConsistency, g, prev.patch, prev.freeIndex, k)
			}
			owners[g] = &owner{patch: k, freeIndex: local[k].Index(0, i)}
		}
	}

	art := &artificialDofIndex{aliases: make([]map[int]map[int]int, nPatches)}
	for k := 0; k < nPatches; k++ {
		sz := basis.PatchSize(k)
		sz2 := global.PatchSize(k)
		for i := sz; i < sz2; i++ {
			g := global.Index(k, i)
			if !global.IsFreeIndex(g) {
				continue
			}
			own := owners[g]
			if own == nil {
				return nil, fmt.Errorf("%w: artificial dof (%d,%d) has no native owner",
					ErrInternalConsistency, k, i)
			}
			if art.aliases[own.patch] == nil {
				art.aliases[own.patch] = make(map[int]map[int]int)
			}
			peer := art.aliases[own.patch][k]
			if peer == nil {
				peer = make(map[int]int)
				art.aliases[own.patch][k] = peer
			}
			peer[own.freeIndex] = i
		}
	}
	return art, nil
}

// peers returns the patches holding aliased copies of dofs owned by patch
// k, in increasing order.
func (a *artificialDofIndex) peers(k int) []int {
	var result []int
	for peer := range a.aliases[k] {
		result = append(result, peer)
	}
	sort.Ints(result)
	return result
}

// peerSlot returns the raw local slot on peer that aliases the dof with
// the given local free index on the owning patch k, if any.
func (a *artificialDofIndex) peerSlot(k, peer, freeIndex int) (int, bool) {
	table := a.aliases[k][peer]
	if table == nil {
		return 0, false
	}
	slot, ok := table[freeIndex]
	return slot, ok
}
