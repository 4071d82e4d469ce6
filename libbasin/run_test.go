package libbasin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin"
	"github.com/basin-systems/gobasin/libbasin/store"
)

// pipelineStore has two 2-cycles closed under both n=1 and n=2, a
// tail that switches basins between the rules, and a fragile 2-cycle
// that only exists at n=1.
//
//	X: 1 <-> 2    Y: 3 <-> 4
//	5 -> [1 3]    8 -> [9 9]    9 -> [1 3]    7 -> [1]
//	Z: 10 <-> 11  (single links: halts at n=2)
//	6 has no links and halts under every rule.
func pipelineStore() *store.MemStore {
	ms := store.NewMemStore("pipeline-test")
	for id := gobasin.PageID(1); id <= 11; id++ {
		ms.AddPage(id, "")
	}
	ms.SetLinks(1, 2, 2)
	ms.SetLinks(2, 1, 1)
	ms.SetLinks(3, 4, 4)
	ms.SetLinks(4, 3, 3)
	ms.SetLinks(5, 1, 3)
	ms.SetLinks(7, 1)
	ms.SetLinks(8, 9, 9)
	ms.SetLinks(9, 1, 3)
	ms.SetLinks(10, 11)
	ms.SetLinks(11, 10)
	return ms
}

func TestRunPipeline(t *testing.T) {
	ms := pipelineStore()
	runner := libbasin.Runner{Store: ms, RunTag: "run1"}

	plan, err := libbasin.ParsePlan("n = 1 to 2; cycle 1 2; cycle 3 4; cycle 10 11")
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), plan)
	require.NoError(t, err)

	// cycle 10<->11 is not closed at n=2 and is skipped there,
	// so the run yields 3 basins at n=1 and 2 at n=2
	require.Len(t, result.Basins, 5)
	for i := 1; i < len(result.Basins); i++ {
		prev, cur := result.Basins[i-1], result.Basins[i]
		require.True(t, prev.Rule < cur.Rule ||
			(prev.Rule == cur.Rule && prev.Cycle.Key() < cur.Cycle.Key()))
	}

	sizeOf := func(n gobasin.NRule, members ...gobasin.PageID) {
		cycle := gobasin.NewCycleID(members[:2])
		for _, b := range result.Basins {
			if b.Rule == n && b.Cycle.Equal(cycle) {
				require.Equal(t, len(members), b.Size(), "basin %s n=%d", cycle, n)
				return
			}
		}
		t.Fatalf("no basin of %v at n=%d", members[:2], n)
	}
	sizeOf(1, 1, 2, 5, 7, 8, 9)
	sizeOf(1, 3, 4)
	sizeOf(1, 10, 11)
	sizeOf(2, 1, 2)
	sizeOf(2, 3, 4, 5, 8, 9)

	require.Len(t, result.Branches, 5)

	require.Equal(t, "pipeline-test", result.Table.Snapshot)
	require.Equal(t, []gobasin.NRule{1, 2}, result.Table.Rules)

	// pages 5, 8 and 9 defect from X to Y between the rules
	var tunnelPages []gobasin.PageID
	for _, node := range result.Tunnels {
		if node.IsTunnel {
			tunnelPages = append(tunnelPages, node.Page)
		}
	}
	gobasin.SortPageIDs(tunnelPages)
	require.Equal(t, []gobasin.PageID{5, 8, 9}, tunnelPages)

	wantMechs := map[gobasin.PageID]gobasin.Mechanism{
		5: gobasin.MechDegreeShift,
		8: gobasin.MechPathDivergence,
		9: gobasin.MechDegreeShift,
	}
	require.Len(t, result.Transitions, len(wantMechs))
	for _, tr := range result.Transitions {
		require.Equal(t, wantMechs[tr.Page], tr.Mechanism, "page %d", tr.Page)
	}

	// Z only exists at n=1: all its pages vanish from the table at
	// n=2, which the persistence rule treats as absence, not defection
	require.Len(t, result.Scores, 3)
	byCycle := make(map[gobasin.CycleKey]gobasin.StabilityScore)
	for _, s := range result.Scores {
		byCycle[s.Cycle] = s
	}
	scoreZ := byCycle[gobasin.NewCycleID([]gobasin.PageID{10, 11}).Key()]
	require.InDelta(t, 1.0, scoreZ.Persistence, 1e-9)
	require.InDelta(t, 0.0, scoreZ.MeanJaccard, 1e-9)
}

func TestRunWithSampling(t *testing.T) {
	ms := pipelineStore()
	runner := libbasin.Runner{Store: ms, RunTag: "sampled"}

	// sampling every page finds all three cycles without naming any
	plan, err := libbasin.ParsePlan("n = 1; sample seed = 3 count = 11 top = 8")
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, result.Basins, 3)

	total := 0
	for _, b := range result.Basins {
		total += b.Size()
	}
	// every page except the linkless page 6 reaches some cycle at n=1
	require.Equal(t, 10, total)
}

func TestRunDepthBudgetExcludesTruncated(t *testing.T) {
	ms := pipelineStore()
	runner := libbasin.Runner{Store: ms, RunTag: "budgeted"}

	// X's basin at n=1 has members at depth 2 (page 8); a depth budget
	// of 1 truncates it, and the run must keep it out of derived tables
	plan, err := libbasin.ParsePlan("n = 1; cycle 1 2; cycle 3 4; budget depth = 1")
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, result.Basins, 2)

	var truncated, complete int
	for _, b := range result.Basins {
		if b.Truncated {
			truncated++
		} else {
			complete++
		}
	}
	require.Equal(t, 1, truncated)
	require.Equal(t, 1, complete)

	// only the complete basin contributes rows and branches
	require.Len(t, result.Branches, 1)
	for _, row := range result.Table.Rows {
		require.True(t, row.Cycle == gobasin.NewCycleID([]gobasin.PageID{3, 4}).Key())
	}
}

func TestRunContext(t *testing.T) {
	rc := libbasin.NewRunContext(pipelineStore())
	require.Nil(t, rc.Index(1))

	select {
	case <-rc.Done():
		t.Fatal("context reported done before Close")
	default:
	}

	require.NoError(t, rc.Close())
	<-rc.Done()
	require.NoError(t, rc.Close(), "Close is idempotent")
}
