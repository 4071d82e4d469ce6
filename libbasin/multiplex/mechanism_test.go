package multiplex_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin/multiplex"
	"github.com/basin-systems/gobasin/libbasin/store"
	"github.com/basin-systems/gobasin/libbasin/walk"
)

// mechanismStore has two 2-cycles closed under both n=1 and n=2 and
// probe pages exhibiting each transition mechanism:
//
//	X: 1 <-> 2     Y: 3 <-> 4     (both links of each member stay inside)
//	5 -> [1 3]     degree shift: n selects a different basin directly
//	7 -> [1]       halt creation: no second link to follow
//	8 -> [9 9]     path divergence: both rules pass through 9 first
//	9 -> [1 3]
func mechanismStore() *store.MemStore {
	ms := store.NewMemStore("mechanism-test")
	for id := gobasin.PageID(1); id <= 9; id++ {
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
	return ms
}

func TestClassifyTransition(t *testing.T) {
	c := multiplex.Classifier{Eval: walk.Evaluator{Store: mechanismStore()}}

	mech, err := c.ClassifyTransition(5, 1, 2)
	require.NoError(t, err)
	require.Equal(t, gobasin.MechDegreeShift, mech)

	mech, err = c.ClassifyTransition(7, 1, 2)
	require.NoError(t, err)
	require.Equal(t, gobasin.MechHaltCreation, mech)

	mech, err = c.ClassifyTransition(8, 1, 2)
	require.NoError(t, err)
	require.Equal(t, gobasin.MechPathDivergence, mech)

	// rule order is normalized before classification
	mech, err = c.ClassifyTransition(5, 2, 1)
	require.NoError(t, err)
	require.Equal(t, gobasin.MechDegreeShift, mech)

	_, err = c.ClassifyTransition(5, 0, 2)
	require.ErrorIs(t, err, gobasin.ErrBadRule)
}

func TestClassifyTransitionUnresolved(t *testing.T) {
	// page 1's walks under n=1 and n=2 stay in lockstep forever
	c := multiplex.Classifier{
		Eval: walk.Evaluator{Store: mechanismStore()},
		Opts: multiplex.MechanismOpts{ProbeSteps: 4},
	}
	mech, err := c.ClassifyTransition(1, 1, 2)
	require.NoError(t, err)
	require.Equal(t, gobasin.MechUnresolved, mech)
}

func TestClassifyTunnels(t *testing.T) {
	// basins as they actually fall out at n=1 and n=2 over mechanismStore
	table, err := multiplex.Assemble("run1", []*gobasin.Basin{
		{
			Rule: 1, Snapshot: "mechanism-test", Cycle: cycleX,
			Members: map[gobasin.PageID]gobasin.Member{
				1: {}, 2: {}, 5: {Depth: 1}, 7: {Depth: 1}, 9: {Depth: 1}, 8: {Depth: 2},
			},
		},
		{
			Rule: 1, Snapshot: "mechanism-test", Cycle: cycleY,
			Members: map[gobasin.PageID]gobasin.Member{3: {}, 4: {}},
		},
		{
			Rule: 2, Snapshot: "mechanism-test", Cycle: cycleX,
			Members: map[gobasin.PageID]gobasin.Member{1: {}, 2: {}},
		},
		{
			Rule: 2, Snapshot: "mechanism-test", Cycle: cycleY,
			Members: map[gobasin.PageID]gobasin.Member{
				3: {}, 4: {}, 5: {Depth: 1}, 9: {Depth: 1}, 8: {Depth: 2},
			},
		},
	})
	require.NoError(t, err)

	nodes := multiplex.DetectTunnels(table)
	c := multiplex.Classifier{Eval: walk.Evaluator{Store: mechanismStore()}}

	transitions, err := c.ClassifyTunnels(table, nodes)
	require.NoError(t, err)

	want := map[gobasin.PageID]gobasin.Mechanism{
		5: gobasin.MechDegreeShift,
		8: gobasin.MechPathDivergence,
		9: gobasin.MechDegreeShift,
	}
	require.Len(t, transitions, len(want))
	for _, tr := range transitions {
		require.Equal(t, gobasin.NRule(1), tr.Low)
		require.Equal(t, gobasin.NRule(2), tr.High)
		require.Equal(t, want[tr.Page], tr.Mechanism, "page %d", tr.Page)
	}
}
