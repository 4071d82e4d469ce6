package basin

import (
	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/basin-systems/gobasin/gobasin"
)

// AnalyzeBranches partitions a basin's non-cycle members by their
// depth-1 entry node and ranks the branches by subtree size
// descending (entry id ascending on ties).
//
// Only complete basins can be analyzed; a truncated basin returns
// ErrBasinTruncated.
func AnalyzeBranches(b *gobasin.Basin) (gobasin.BranchSummary, error) {
	out := gobasin.BranchSummary{
		Rule:  b.Rule,
		Cycle: b.Cycle,
	}
	if b.Truncated {
		return out, gobasin.ErrBasinTruncated
	}

	counts := make(map[gobasin.PageID]int64)
	for _, m := range b.Members {
		if m.Depth > 0 {
			counts[m.Entry]++
		}
	}

	total := int64(b.TreeSize())
	if total == 0 {
		return out, nil
	}

	ranked := redblacktree.NewWith(branchComparator)
	for entry, size := range counts {
		ranked.Put(gobasin.Branch{Entry: entry, SubtreeSize: size}, nil)
	}

	out.Branches = make([]gobasin.Branch, 0, ranked.Size())
	sumSquares := 0.0
	for it := ranked.Iterator(); it.Next(); {
		br := it.Key().(gobasin.Branch)
		out.Branches = append(out.Branches, br)
		share := float64(br.SubtreeSize) / float64(total)
		sumSquares += share * share
	}

	out.Top1Share = float64(out.Branches[0].SubtreeSize) / float64(total)
	out.EffectiveBranches = 1.0 / sumSquares
	return out, nil
}

// branchComparator orders branches by subtree size descending, then
// entry id ascending so rankings are stable across runs.
func branchComparator(a, b interface{}) int {
	ba, bb := a.(gobasin.Branch), b.(gobasin.Branch)
	if ba.SubtreeSize != bb.SubtreeSize {
		if ba.SubtreeSize > bb.SubtreeSize {
			return -1
		}
		return 1
	}
	if ba.Entry != bb.Entry {
		if ba.Entry < bb.Entry {
			return -1
		}
		return 1
	}
	return 0
}
