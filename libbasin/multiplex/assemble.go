// Package multiplex unions basin assignments computed independently at
// several rules into one page-indexed table, then derives tunnel
// nodes, transition mechanisms and basin stability from it.
package multiplex

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/basin-systems/gobasin/gobasin"
)

// Table is the multiplex assignment table: one row per (page, rule)
// pair for which the page was a member of an analyzed basin at that
// rule.  Immutable once assembled; derived tables are recomputed from
// it, never mutated into it.
type Table struct {
	RunTag   string
	Snapshot string
	Rules    []gobasin.NRule // analyzed rules, ascending
	Rows     []gobasin.Assignment

	// Cycles resolves the interned keys in Rows back to full ids.
	Cycles map[gobasin.CycleKey]gobasin.CycleID
}

// Assemble unions the given basins into one table.  All basins must
// come from the same snapshot, must be complete (not truncated), and
// basins at the same rule must be disjoint — overlap means the caller
// mapped overlapping cycles, which functional determinism forbids.
func Assemble(runTag string, basins []*gobasin.Basin) (*Table, error) {
	t := &Table{
		RunTag: runTag,
		Cycles: make(map[gobasin.CycleKey]gobasin.CycleID),
	}

	seenRules := make(map[gobasin.NRule]bool)
	seenAt := make(map[gobasin.Assignment]bool) // zero-depth probe for overlap detection

	for _, b := range basins {
		if b.Truncated {
			return nil, errors.Wrapf(gobasin.ErrBasinTruncated, "basin %s n=%d", b.Cycle, b.Rule)
		}
		if t.Snapshot == "" {
			t.Snapshot = b.Snapshot
		} else if b.Snapshot != t.Snapshot {
			return nil, errors.Wrapf(gobasin.ErrSnapshotMismatch, "basin %s built from %q, table from %q",
				b.Cycle, b.Snapshot, t.Snapshot)
		}

		key := b.Cycle.Key()
		t.Cycles[key] = b.Cycle
		if !seenRules[b.Rule] {
			seenRules[b.Rule] = true
			t.Rules = append(t.Rules, b.Rule)
		}

		for id, m := range b.Members {
			probe := gobasin.Assignment{Page: id, Rule: b.Rule}
			if seenAt[probe] {
				return nil, errors.Wrapf(gobasin.ErrBasinOverlap, "page %d assigned twice at n=%d", id, b.Rule)
			}
			seenAt[probe] = true
			t.Rows = append(t.Rows, gobasin.Assignment{
				Page:  id,
				Rule:  b.Rule,
				Cycle: key,
				Depth: m.Depth,
			})
		}
	}

	gobasin.SortRules(t.Rules)
	sort.Slice(t.Rows, func(i, j int) bool {
		if t.Rows[i].Page != t.Rows[j].Page {
			return t.Rows[i].Page < t.Rows[j].Page
		}
		return t.Rows[i].Rule < t.Rows[j].Rule
	})
	return t, nil
}

// MembersOf returns the set of pages assigned to cycle at rule n.
func (t *Table) MembersOf(cycle gobasin.CycleKey, n gobasin.NRule) map[gobasin.PageID]bool {
	members := make(map[gobasin.PageID]bool)
	for _, row := range t.Rows {
		if row.Cycle == cycle && row.Rule == n {
			members[row.Page] = true
		}
	}
	return members
}

// forEachPage walks Rows grouped by page; rows arrive rule-ascending.
func (t *Table) forEachPage(fn func(page gobasin.PageID, rows []gobasin.Assignment)) {
	start := 0
	for i := 1; i <= len(t.Rows); i++ {
		if i == len(t.Rows) || t.Rows[i].Page != t.Rows[start].Page {
			fn(t.Rows[start].Page, t.Rows[start:i])
			start = i
		}
	}
}
