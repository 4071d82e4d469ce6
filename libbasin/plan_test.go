package libbasin_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin"
)

func TestParsePlan(t *testing.T) {
	plan, err := libbasin.ParsePlan("n = 4 to 6; cycle 1487 2201 880; sample seed = 42 count = 200 top = 5; budget steps = 1000 depth = 40")
	require.NoError(t, err)

	require.Equal(t, []gobasin.NRule{4, 5, 6}, plan.Rules)
	require.Equal(t, [][]gobasin.PageID{{1487, 2201, 880}}, plan.Cycles)

	require.NotNil(t, plan.Sample)
	require.Equal(t, int64(42), plan.Sample.Seed)
	require.Equal(t, 200, plan.Sample.Count)
	require.Equal(t, 5, plan.Sample.Top)

	require.Equal(t, 1000, plan.MaxSteps)
	require.Equal(t, uint32(40), plan.MaxDepth)
}

func TestParsePlanSingleRule(t *testing.T) {
	plan, err := libbasin.ParsePlan("n = 3; cycle 1 2")
	require.NoError(t, err)
	require.Equal(t, []gobasin.NRule{3}, plan.Rules)
	require.Nil(t, plan.Sample)
	require.Equal(t, 0, plan.MaxSteps)
	require.Equal(t, uint32(0), plan.MaxDepth)
}

func TestParsePlanRepeatedStatements(t *testing.T) {
	plan, err := libbasin.ParsePlan("n = 2; n = 1 to 3; cycle 1 2; cycle 3 4")
	require.NoError(t, err)
	require.Equal(t, []gobasin.NRule{1, 2, 3}, plan.Rules, "rules dedupe and sort")
	require.Len(t, plan.Cycles, 2)
}

func TestParsePlanSampleDefaults(t *testing.T) {
	plan, err := libbasin.ParsePlan("n = 1; sample seed = 7")
	require.NoError(t, err)
	require.NotNil(t, plan.Sample)
	require.Equal(t, int64(7), plan.Sample.Seed)
	require.Equal(t, 64, plan.Sample.Count)
	require.Equal(t, 8, plan.Sample.Top)
}

func TestParsePlanRejections(t *testing.T) {
	bad := []string{
		"",                          // empty
		"cycle 1 2",                 // no rules
		"n = 1",                     // no cycles, no sampling
		"n = 0; cycle 1 2",          // rule below 1
		"n = 5 to 3; cycle 1 2",     // inverted range
		"n = 1; sample speed = 42",  // unknown sample param
		"n = 1; cycle 1; budget x = 2", // unknown budget param
		"frobnicate; n = 1",         // not in the grammar
	}
	for _, src := range bad {
		_, err := libbasin.ParsePlan(src)
		require.ErrorIs(t, err, gobasin.ErrBadPlan, "plan %q", src)
	}
}
