package gobasin_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basin-systems/gobasin/gobasin"
)

func TestCycleIDCanonicalization(t *testing.T) {
	a := gobasin.NewCycleID([]gobasin.PageID{880, 1487, 2201})
	b := gobasin.NewCycleID([]gobasin.PageID{2201, 880, 1487})
	c := gobasin.NewCycleID([]gobasin.PageID{1487, 2201, 880, 1487}) // rotation closing on its start

	require.True(t, a.Equal(b), "rotations of the same member set must compare equal")
	require.True(t, a.Equal(c), "a repeated start node must dedupe away")
	require.Equal(t, a.Key(), b.Key())
	require.Equal(t, a.Key(), c.Key())

	require.Equal(t, []gobasin.PageID{880, 1487, 2201}, a.Members())
	require.Equal(t, 3, a.Len())
	require.False(t, a.IsNil())
	require.True(t, gobasin.CycleID{}.IsNil())
}

func TestCycleIDContains(t *testing.T) {
	c := gobasin.NewCycleID([]gobasin.PageID{5, 9, 12, 40})

	for _, id := range c.Members() {
		require.True(t, c.Contains(id))
	}
	for _, id := range []gobasin.PageID{0, 4, 6, 13, 41} {
		require.False(t, c.Contains(id))
	}
}

func TestCycleIDLSMRoundTrip(t *testing.T) {
	cases := [][]gobasin.PageID{
		{1},
		{1, 2, 3, 4},
		{880, 1487, 2201},
		{0, 1, 4294967295},
	}
	for _, members := range cases {
		orig := gobasin.NewCycleID(members)
		enc := orig.AppendLSM(nil)

		var decoded gobasin.CycleID
		require.NoError(t, decoded.InitFromLSM(enc))
		require.True(t, orig.Equal(decoded), "members %v", members)
		require.Equal(t, orig.Key(), decoded.Key())
	}

	var bad gobasin.CycleID
	require.ErrorIs(t, bad.InitFromLSM(nil), gobasin.ErrUnmarshal)
	require.Error(t, bad.InitFromLSM([]byte{3, 1})) // count says 3, one delta present
}

func TestCycleKeyDistinguishesSets(t *testing.T) {
	a := gobasin.NewCycleID([]gobasin.PageID{1, 2, 3})
	b := gobasin.NewCycleID([]gobasin.PageID{1, 2, 4})
	require.NotEqual(t, a.Key(), b.Key())
}

func TestRotationOf(t *testing.T) {
	tr := &gobasin.Trace{
		Start:    6,
		Rule:     1,
		Path:     []gobasin.PageID{6, 5, 1, 2, 3, 4},
		Terminal: gobasin.TerminalCycle,
		Cycle:    gobasin.NewCycleID([]gobasin.PageID{1, 2, 3, 4}),
	}
	require.Equal(t, []gobasin.PageID{1, 2, 3, 4}, gobasin.RotationOf(tr))
	require.Equal(t, 5, tr.Steps())

	halted := &gobasin.Trace{Terminal: gobasin.TerminalHalt, Path: []gobasin.PageID{6}}
	require.Nil(t, gobasin.RotationOf(halted))
	require.True(t, gobasin.CycleFromTrace(halted).IsNil())
}
