package basin

import (
	"github.com/basin-systems/gobasin/gobasin"
)

// SubtreeSizes returns, for every non-cycle member, the number of
// basin members at or below it in the reverse forest (itself
// included).  Computed by one pass from the deepest layer inward,
// accumulating counts along the parents recorded during mapping.
func SubtreeSizes(b *gobasin.Basin) map[gobasin.PageID]int64 {
	sizes := make(map[gobasin.PageID]int64, b.TreeSize())

	maxDepth := uint32(len(b.LayerCounts)) - 1
	byDepth := make([][]gobasin.PageID, maxDepth+1)
	for id, m := range b.Members {
		if m.Depth > 0 {
			byDepth[m.Depth] = append(byDepth[m.Depth], id)
			sizes[id] = 1
		}
	}

	for depth := maxDepth; depth >= 2; depth-- {
		for _, id := range byDepth[depth] {
			sizes[b.Members[id].Parent] += sizes[id]
		}
	}
	return sizes
}

// childrenOf builds the reverse-forest child index from recorded
// parents.  Cycle members' children are the depth-1 entry nodes.
func childrenOf(b *gobasin.Basin) map[gobasin.PageID][]gobasin.PageID {
	children := make(map[gobasin.PageID][]gobasin.PageID)
	for id, m := range b.Members {
		if m.Depth > 0 {
			children[m.Parent] = append(children[m.Parent], id)
		}
	}
	return children
}
