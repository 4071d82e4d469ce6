package basin

import (
	"github.com/basin-systems/gobasin/gobasin"
)

// TrunkOpts bounds a trunk chase.  Both stop rules are always active
// and are reported separately: the share threshold is checked first on
// every hop, then the hop budget.
type TrunkOpts struct {
	MinShare  float64 // stop when the dominant child's basin share drops below this (0 = 0.05)
	HopBudget int     // stop after this many hops (0 = 64)
}

// TrunkStop names which rule ended the chase.
type TrunkStop byte

const (
	StopExhausted TrunkStop = iota // dominant node has no children
	StopShare                      // dominant child share fell below MinShare
	StopBudget                     // hop budget exhausted
)

func (s TrunkStop) String() string {
	switch s {
	case StopShare:
		return "share"
	case StopBudget:
		return "budget"
	}
	return "exhausted"
}

// TrunkHop is one step of a chase: the node holding the dominant
// share, its subtree size, and that size as a share of the basin's
// non-cycle mass.
type TrunkHop struct {
	Node    gobasin.PageID
	Depth   uint32
	Subtree int64
	Share   float64
}

// TrunkResult is a completed chase with its explicit stop reason.
type TrunkResult struct {
	Hops []TrunkHop
	Stop TrunkStop
}

// ChaseTrunk iteratively follows whichever child branch holds the
// largest subtree, starting from the basin's dominant depth-1 entry.
// Shares are measured against the whole basin's non-cycle mass, not
// the parent subtree, so a chase reads as "how deep does the bulk of
// the basin funnel through a single path".
func ChaseTrunk(b *gobasin.Basin, opts TrunkOpts) (TrunkResult, error) {
	if b.Truncated {
		return TrunkResult{}, gobasin.ErrBasinTruncated
	}

	minShare := opts.MinShare
	if minShare <= 0 {
		minShare = 0.05
	}
	hopBudget := opts.HopBudget
	if hopBudget <= 0 {
		hopBudget = 64
	}

	total := int64(b.TreeSize())
	if total == 0 {
		return TrunkResult{Stop: StopExhausted}, nil
	}

	sizes := SubtreeSizes(b)
	children := childrenOf(b)

	// The chase starts at the dominant entry branch.
	var at gobasin.PageID
	best := int64(-1)
	for id, m := range b.Members {
		if m.Depth != 1 {
			continue
		}
		if sizes[id] > best || (sizes[id] == best && id < at) {
			at, best = id, sizes[id]
		}
	}

	result := TrunkResult{}
	for {
		result.Hops = append(result.Hops, TrunkHop{
			Node:    at,
			Depth:   b.Members[at].Depth,
			Subtree: sizes[at],
			Share:   float64(sizes[at]) / float64(total),
		})

		kids := children[at]
		if len(kids) == 0 {
			result.Stop = StopExhausted
			return result, nil
		}

		var next gobasin.PageID
		best = int64(-1)
		for _, kid := range kids {
			if sizes[kid] > best || (sizes[kid] == best && kid < next) {
				next, best = kid, sizes[kid]
			}
		}

		if float64(best)/float64(total) < minShare {
			result.Stop = StopShare
			return result, nil
		}
		if len(result.Hops) >= hopBudget {
			result.Stop = StopBudget
			return result, nil
		}
		at = next
	}
}
