// Package export writes the derived tables as columnar CSV for the
// downstream consumers (report generation, dashboards, packaging).
// Every row carries the parameters that produced it — snapshot, run
// tag, rule, cycle key — so artifacts from different runs coexist
// without overwriting each other.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin/multiplex"
)

// WriteBasin emits one row per basin member: depth-ascending, then id-ascending.
func WriteBasin(w io.Writer, runTag string, b *gobasin.Basin) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_tag", "snapshot", "n", "cycle_key", "page_id", "depth", "parent", "entry"}); err != nil {
		return err
	}

	ids := make([]gobasin.PageID, 0, len(b.Members))
	for id := range b.Members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		mi, mj := b.Members[ids[i]], b.Members[ids[j]]
		if mi.Depth != mj.Depth {
			return mi.Depth < mj.Depth
		}
		return ids[i] < ids[j]
	})

	key := b.Cycle.Key().String()
	for _, id := range ids {
		m := b.Members[id]
		err := cw.Write([]string{
			runTag, b.Snapshot, itoa(int64(b.Rule)), key,
			itoa(int64(id)), itoa(int64(m.Depth)), itoa(int64(m.Parent)), itoa(int64(m.Entry)),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBranches emits a basin's ranked entry branches with the
// concentration metrics repeated per row.
func WriteBranches(w io.Writer, runTag string, bs gobasin.BranchSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_tag", "n", "cycle_key", "rank", "entry_id", "subtree_size", "top1_share", "effective_branches"}); err != nil {
		return err
	}
	key := bs.Cycle.Key().String()
	for rank, br := range bs.Branches {
		err := cw.Write([]string{
			runTag, itoa(int64(bs.Rule)), key,
			itoa(int64(rank + 1)), itoa(int64(br.Entry)), itoa(br.SubtreeSize),
			ftoa(bs.Top1Share), ftoa(bs.EffectiveBranches),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAssignments emits the multiplex table.
func WriteAssignments(w io.Writer, t *multiplex.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_tag", "snapshot", "page_id", "n", "cycle_key", "depth"}); err != nil {
		return err
	}
	for _, row := range t.Rows {
		err := cw.Write([]string{
			t.RunTag, t.Snapshot,
			itoa(int64(row.Page)), itoa(int64(row.Rule)), row.Cycle.String(), itoa(int64(row.Depth)),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTunnels emits one row per judged page, with one basin column
// per analyzed rule (empty where the page had no assignment).
func WriteTunnels(w io.Writer, t *multiplex.Table, nodes []gobasin.TunnelNode) error {
	cw := csv.NewWriter(w)

	header := []string{"run_tag", "page_id"}
	for _, n := range t.Rules {
		header = append(header, fmt.Sprintf("basin_at_n%d", n))
	}
	header = append(header, "n_distinct_basins", "is_tunnel", "shape")
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, 0, len(header))
	for _, node := range nodes {
		row = row[:0]
		row = append(row, t.RunTag, itoa(int64(node.Page)))
		for _, n := range t.Rules {
			if key, ok := node.ByRule[n]; ok {
				row = append(row, key.String())
			} else {
				row = append(row, "")
			}
		}
		row = append(row, itoa(int64(node.DistinctBasins)), fmt.Sprintf("%t", node.IsTunnel), node.Shape.String())
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTransitions emits classified tunnel transitions.
func WriteTransitions(w io.Writer, runTag string, transitions []multiplex.Transition) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_tag", "page_id", "n_low", "n_high", "mechanism"}); err != nil {
		return err
	}
	for _, tr := range transitions {
		err := cw.Write([]string{
			runTag, itoa(int64(tr.Page)), itoa(int64(tr.Low)), itoa(int64(tr.High)), tr.Mechanism.String(),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStability emits per-cycle stability scores.
func WriteStability(w io.Writer, t *multiplex.Table, scores []gobasin.StabilityScore) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_tag", "cycle_key", "persistence", "mean_jaccard", "stability_class"}); err != nil {
		return err
	}
	for _, s := range scores {
		err := cw.Write([]string{
			t.RunTag, s.Cycle.String(), ftoa(s.Persistence), ftoa(s.MeanJaccard), s.Class.String(),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func itoa(v int64) string   { return fmt.Sprintf("%d", v) }
func ftoa(v float64) string { return fmt.Sprintf("%.6f", v) }
