package basin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin/basin"
	"github.com/basin-systems/gobasin/libbasin/rindex"
	"github.com/basin-systems/gobasin/libbasin/store"
)

// sixNodeStore is the canonical small scenario: a four-node cycle with
// a two-node tail feeding it.
//
//	1 -> 2 -> 3 -> 4 -> 1,  5 -> 1,  6 -> 5
func sixNodeStore() *store.MemStore {
	ms := store.NewMemStore("basin-test")
	for id := gobasin.PageID(1); id <= 6; id++ {
		ms.AddPage(id, "")
	}
	ms.SetLinks(1, 2)
	ms.SetLinks(2, 3)
	ms.SetLinks(3, 4)
	ms.SetLinks(4, 1)
	ms.SetLinks(5, 1)
	ms.SetLinks(6, 5)
	return ms
}

func indexOf(t *testing.T, ms *store.MemStore, n gobasin.NRule) *rindex.Index {
	ix, err := rindex.Materialize(context.Background(), ms, n, gobasin.IndexOpts{})
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

var fourCycle = gobasin.NewCycleID([]gobasin.PageID{1, 2, 3, 4})

func TestMapBasin(t *testing.T) {
	ix := indexOf(t, sixNodeStore(), 1)
	m := &basin.Mapper{Index: ix}

	b, err := m.MapBasin(context.Background(), fourCycle)
	require.NoError(t, err)

	require.Equal(t, gobasin.NRule(1), b.Rule)
	require.Equal(t, "basin-test", b.Snapshot)
	require.False(t, b.Truncated)
	require.Equal(t, 6, b.Size())
	require.Equal(t, 2, b.TreeSize())
	require.Equal(t, []int64{4, 1, 1}, b.LayerCounts)

	wantDepths := map[gobasin.PageID]uint32{1: 0, 2: 0, 3: 0, 4: 0, 5: 1, 6: 2}
	for id, depth := range wantDepths {
		m, ok := b.Members[id]
		require.True(t, ok, "page %d missing", id)
		require.Equal(t, depth, m.Depth, "page %d", id)
	}

	// the whole tail descends from the single entry node 5
	require.Equal(t, gobasin.PageID(5), b.Members[5].Entry)
	require.Equal(t, gobasin.PageID(5), b.Members[6].Entry)
	require.Equal(t, gobasin.PageID(1), b.Members[5].Parent)
	require.Equal(t, gobasin.PageID(5), b.Members[6].Parent)

	require.Equal(t, []gobasin.PageID{1, 2, 3, 4}, b.MembersAt(0))
	require.Equal(t, []gobasin.PageID{6}, b.MembersAt(2))
}

func TestMapBasinIdempotent(t *testing.T) {
	ix := indexOf(t, sixNodeStore(), 1)
	m := &basin.Mapper{Index: ix}
	ctx := context.Background()

	first, err := m.MapBasin(ctx, fourCycle)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := m.MapBasin(ctx, fourCycle)
		require.NoError(t, err)
		require.Equal(t, first.Members, again.Members)
		require.Equal(t, first.LayerCounts, again.LayerCounts)
	}
}

func TestMapBasinTruncation(t *testing.T) {
	ix := indexOf(t, sixNodeStore(), 1)
	m := &basin.Mapper{Index: ix}

	b, err := m.MapBasinOpts(context.Background(), fourCycle, basin.MapOpts{MaxDepth: 1})
	require.NoError(t, err)
	require.True(t, b.Truncated)
	require.Equal(t, uint32(1), b.LastDepth)
	require.Equal(t, 5, b.Size()) // node 6 at depth 2 was never reached

	_, err = basin.AnalyzeBranches(b)
	require.ErrorIs(t, err, gobasin.ErrBasinTruncated)
	_, err = basin.ChaseTrunk(b, basin.TrunkOpts{})
	require.ErrorIs(t, err, gobasin.ErrBasinTruncated)
}

func TestMapBasinEmptyCycle(t *testing.T) {
	ix := indexOf(t, sixNodeStore(), 1)
	m := &basin.Mapper{Index: ix}

	_, err := m.MapBasin(context.Background(), gobasin.CycleID{})
	require.ErrorIs(t, err, gobasin.ErrEmptyCycle)
}

// Two cycles at the same rule never share a member: each page has
// exactly one successor, so reverse reachability partitions the graph.
func TestBasinsDisjoint(t *testing.T) {
	ms := sixNodeStore()
	for id := gobasin.PageID(10); id <= 12; id++ {
		ms.AddPage(id, "")
	}
	ms.SetLinks(10, 11)
	ms.SetLinks(11, 10)
	ms.SetLinks(12, 10)

	ix := indexOf(t, ms, 1)
	m := &basin.Mapper{Index: ix}
	ctx := context.Background()

	first, err := m.MapBasin(ctx, fourCycle)
	require.NoError(t, err)
	second, err := m.MapBasin(ctx, gobasin.NewCycleID([]gobasin.PageID{10, 11}))
	require.NoError(t, err)

	require.Equal(t, 6, first.Size())
	require.Equal(t, 3, second.Size())
	for id := range second.Members {
		_, overlap := first.Members[id]
		require.False(t, overlap, "page %d in both basins", id)
	}
}

func TestAnalyzeBranches(t *testing.T) {
	// Three entries of unequal mass:
	//   entry 5 carries {5 6 7}, entry 8 carries {8 9}, entry 10 carries {10}
	ms := store.NewMemStore("branch-test")
	for id := gobasin.PageID(1); id <= 10; id++ {
		ms.AddPage(id, "")
	}
	ms.SetLinks(1, 2)
	ms.SetLinks(2, 1)
	ms.SetLinks(5, 1)
	ms.SetLinks(6, 5)
	ms.SetLinks(7, 5)
	ms.SetLinks(8, 2)
	ms.SetLinks(9, 8)
	ms.SetLinks(10, 1)

	ix := indexOf(t, ms, 1)
	m := &basin.Mapper{Index: ix}
	cycle := gobasin.NewCycleID([]gobasin.PageID{1, 2})

	b, err := m.MapBasin(context.Background(), cycle)
	require.NoError(t, err)
	require.Equal(t, 8, b.Size())

	summary, err := basin.AnalyzeBranches(b)
	require.NoError(t, err)
	require.Equal(t, []gobasin.Branch{
		{Entry: 5, SubtreeSize: 3},
		{Entry: 8, SubtreeSize: 2},
		{Entry: 10, SubtreeSize: 1},
	}, summary.Branches)

	// branch masses partition the non-cycle members
	sum := int64(0)
	for _, br := range summary.Branches {
		sum += br.SubtreeSize
	}
	require.Equal(t, int64(b.TreeSize()), sum)

	require.InDelta(t, 0.5, summary.Top1Share, 1e-9)
	// shares 3/6, 2/6, 1/6 => 1 / (9+4+1)/36 = 36/14
	require.InDelta(t, 36.0/14.0, summary.EffectiveBranches, 1e-9)
}

func TestAnalyzeBranchesSingleEntry(t *testing.T) {
	ix := indexOf(t, sixNodeStore(), 1)
	m := &basin.Mapper{Index: ix}

	b, err := m.MapBasin(context.Background(), fourCycle)
	require.NoError(t, err)

	summary, err := basin.AnalyzeBranches(b)
	require.NoError(t, err)
	require.Len(t, summary.Branches, 1)
	require.Equal(t, gobasin.PageID(5), summary.Branches[0].Entry)
	require.Equal(t, int64(2), summary.Branches[0].SubtreeSize)
	require.InDelta(t, 1.0, summary.Top1Share, 1e-9)
	require.InDelta(t, 1.0, summary.EffectiveBranches, 1e-9)
}

func TestSubtreeSizes(t *testing.T) {
	ix := indexOf(t, sixNodeStore(), 1)
	m := &basin.Mapper{Index: ix}

	b, err := m.MapBasin(context.Background(), fourCycle)
	require.NoError(t, err)

	sizes := basin.SubtreeSizes(b)
	require.Equal(t, int64(2), sizes[5])
	require.Equal(t, int64(1), sizes[6])
	_, hasCycleNode := sizes[1]
	require.False(t, hasCycleNode)
}

func TestChaseTrunk(t *testing.T) {
	// A deep spine with small side twigs:
	//   1 <-> 2 cycle;  5 -> 1;  6 -> 5;  7 -> 6;  8 -> 6 (twig)
	ms := store.NewMemStore("trunk-test")
	for id := gobasin.PageID(1); id <= 8; id++ {
		ms.AddPage(id, "")
	}
	ms.SetLinks(1, 2)
	ms.SetLinks(2, 1)
	ms.SetLinks(5, 1)
	ms.SetLinks(6, 5)
	ms.SetLinks(7, 6)
	ms.SetLinks(8, 6)

	ix := indexOf(t, ms, 1)
	m := &basin.Mapper{Index: ix}

	b, err := m.MapBasin(context.Background(), gobasin.NewCycleID([]gobasin.PageID{1, 2}))
	require.NoError(t, err)

	result, err := basin.ChaseTrunk(b, basin.TrunkOpts{})
	require.NoError(t, err)

	var nodes []gobasin.PageID
	for _, hop := range result.Hops {
		nodes = append(nodes, hop.Node)
	}
	// 5 holds the whole tree (4), 6 holds 3, then the chase picks the
	// lower-id leaf 7 and stops with nothing below it.
	require.Equal(t, []gobasin.PageID{5, 6, 7}, nodes)
	require.Equal(t, basin.StopExhausted, result.Stop)
	require.InDelta(t, 1.0, result.Hops[0].Share, 1e-9)
	require.InDelta(t, 0.75, result.Hops[1].Share, 1e-9)

	// a tight share threshold stops before descending into the leaves
	result, err = basin.ChaseTrunk(b, basin.TrunkOpts{MinShare: 0.5})
	require.NoError(t, err)
	require.Equal(t, basin.StopShare, result.Stop)
	require.Len(t, result.Hops, 2)

	// a one-hop budget stops immediately after the entry
	result, err = basin.ChaseTrunk(b, basin.TrunkOpts{HopBudget: 1})
	require.NoError(t, err)
	require.Equal(t, basin.StopBudget, result.Stop)
	require.Len(t, result.Hops, 1)
}
