package multiplex

import (
	"sort"

	"github.com/basin-systems/gobasin/gobasin"
)

// StabilityOpts holds the classification thresholds.  These are policy
// constants, not derived values; they are surfaced as configuration.
type StabilityOpts struct {
	StableMin   float64 // both metrics at or above this => stable (0 = 0.8)
	ModerateMin float64 // either metric at or above this => moderate (0 = 0.5)
}

func (o StabilityOpts) withDefaults() StabilityOpts {
	if o.StableMin <= 0 {
		o.StableMin = 0.8
	}
	if o.ModerateMin <= 0 {
		o.ModerateMin = 0.5
	}
	return o
}

// ScoreStability computes one cycle's cross-rule persistence.
//
// Persistence counts a page as persistent iff it sits in this cycle's
// basin at EVERY analyzed rule at which the page has any assignment at
// all; rules where the page fell outside every analyzed basin are
// ignored.  The denominator is the set of pages that touch this
// cycle's basin at one or more rules.  This modeling choice is fixed
// here; do not vary it silently.
//
// MeanJaccard averages |B_n ∩ B_n'| / |B_n ∪ B_n'| over adjacent
// analyzed rule pairs; pairs where both memberships are empty are
// skipped.
func ScoreStability(t *Table, cycle gobasin.CycleKey, opts StabilityOpts) gobasin.StabilityScore {
	opts = opts.withDefaults()
	score := gobasin.StabilityScore{Cycle: cycle}

	touched := 0
	persistent := 0
	t.forEachPage(func(page gobasin.PageID, rows []gobasin.Assignment) {
		inCycle := false
		always := true
		for _, row := range rows {
			if row.Cycle == cycle {
				inCycle = true
			} else {
				always = false
			}
		}
		if inCycle {
			touched++
			if always {
				persistent++
			}
		}
	})
	if touched > 0 {
		score.Persistence = float64(persistent) / float64(touched)
	}

	pairs := 0
	sum := 0.0
	for i := 1; i < len(t.Rules); i++ {
		prev := t.MembersOf(cycle, t.Rules[i-1])
		cur := t.MembersOf(cycle, t.Rules[i])
		union := len(prev)
		inter := 0
		for id := range cur {
			if prev[id] {
				inter++
			} else {
				union++
			}
		}
		if union == 0 {
			continue
		}
		sum += float64(inter) / float64(union)
		pairs++
	}
	if pairs > 0 {
		score.MeanJaccard = sum / float64(pairs)
	}

	switch {
	case score.Persistence >= opts.StableMin && score.MeanJaccard >= opts.StableMin:
		score.Class = gobasin.StabilityStable
	case score.Persistence >= opts.ModerateMin || score.MeanJaccard >= opts.ModerateMin:
		score.Class = gobasin.StabilityModerate
	default:
		score.Class = gobasin.StabilityFragile
	}
	return score
}

// ScoreAll scores every cycle present in the table, ordered by cycle key.
func ScoreAll(t *Table, opts StabilityOpts) []gobasin.StabilityScore {
	keys := make([]gobasin.CycleKey, 0, len(t.Cycles))
	for key := range t.Cycles {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	scores := make([]gobasin.StabilityScore, 0, len(keys))
	for _, key := range keys {
		scores = append(scores, ScoreStability(t, key, opts))
	}
	return scores
}
