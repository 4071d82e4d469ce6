package multiplex

import (
	"github.com/basin-systems/gobasin/gobasin"
)

// DetectTunnels scans the table for pages whose basin membership
// differs across analyzed rules.
//
// Only pages assigned at two or more rules are judged: a page analyzed
// at a single N is never a tunnel candidate by construction, and is
// omitted from the result.  Rows come back page-ascending.
//
// Shape: progressive when the basin key sequence across increasing N
// changes at most once (a monotone split into at most two contiguous
// N ranges); alternating when it changes more than once.
func DetectTunnels(t *Table) []gobasin.TunnelNode {
	var nodes []gobasin.TunnelNode

	t.forEachPage(func(page gobasin.PageID, rows []gobasin.Assignment) {
		if len(rows) < 2 {
			return
		}

		byRule := make(map[gobasin.NRule]gobasin.CycleKey, len(rows))
		distinct := make(map[gobasin.CycleKey]bool, len(rows))
		changes := 0
		for i, row := range rows {
			byRule[row.Rule] = row.Cycle
			distinct[row.Cycle] = true
			if i > 0 && row.Cycle != rows[i-1].Cycle {
				changes++
			}
		}

		node := gobasin.TunnelNode{
			Page:           page,
			ByRule:         byRule,
			DistinctBasins: len(distinct),
			IsTunnel:       len(distinct) > 1,
		}
		switch {
		case changes == 0:
			node.Shape = gobasin.ShapeNone
		case changes == 1:
			node.Shape = gobasin.ShapeProgressive
		default:
			node.Shape = gobasin.ShapeAlternating
		}

		nodes = append(nodes, node)
	})

	return nodes
}

// Tunnels filters a DetectTunnels result down to actual tunnel nodes.
func Tunnels(nodes []gobasin.TunnelNode) []gobasin.TunnelNode {
	var out []gobasin.TunnelNode
	for _, n := range nodes {
		if n.IsTunnel {
			out = append(out, n)
		}
	}
	return out
}
