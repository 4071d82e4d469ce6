package walk

import (
	"context"
	"math/rand"
	"sort"

	"github.com/plan-systems/klog"

	"github.com/basin-systems/gobasin/gobasin"
)

// SampleOpts configures cycle discovery by sampled forward traces.
// Sampling is the only randomized concern in the system and is always
// explicitly seeded; the rule itself is deterministic.
type SampleOpts struct {
	Seed     int64
	Count    int // start nodes to sample
	MaxSteps int // per-trace budget (0 = DefaultMaxSteps)
}

// CycleHit is one distinct terminal cycle found by sampling, with the
// number of sampled start nodes whose trace reached it.
type CycleHit struct {
	Cycle gobasin.CycleID
	Hits  int
}

// SampleStats tallies the non-cycle outcomes of a sampling pass.
type SampleStats struct {
	Sampled  int
	Halted   int
	Dangling int
	Aborted  int
}

// DiscoverCycles samples Count start pages (reservoir sampling over
// the identity table, so the choice is reproducible from Seed against
// a fixed snapshot), traces each under f_N, and returns the distinct
// terminal cycles ranked by hit count descending.
func (tr Tracer) DiscoverCycles(ctx context.Context, n gobasin.NRule, opts SampleOpts) ([]CycleHit, SampleStats, error) {
	stats := SampleStats{}
	if opts.Count <= 0 {
		opts.Count = 64
	}

	starts, err := samplePages(ctx, tr.Eval.Store, opts.Seed, opts.Count)
	if err != nil {
		return nil, stats, err
	}

	hits := make(map[gobasin.CycleKey]*CycleHit)
	for _, start := range starts {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		trace, err := tr.Trace(start, n, TraceOpts{MaxSteps: opts.MaxSteps})
		if err != nil {
			return nil, stats, err
		}
		stats.Sampled++

		switch trace.Terminal {
		case gobasin.TerminalHalt:
			stats.Halted++
		case gobasin.TerminalDangling:
			stats.Dangling++
		case gobasin.TerminalAborted:
			stats.Aborted++
		case gobasin.TerminalCycle:
			key := trace.Cycle.Key()
			if hit, ok := hits[key]; ok {
				hit.Hits++
			} else {
				hits[key] = &CycleHit{Cycle: trace.Cycle, Hits: 1}
			}
		}
	}

	ranked := make([]CycleHit, 0, len(hits))
	for _, hit := range hits {
		ranked = append(ranked, *hit)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Hits != ranked[j].Hits {
			return ranked[i].Hits > ranked[j].Hits
		}
		return ranked[i].Cycle.Key() < ranked[j].Cycle.Key()
	})

	klog.V(2).Infof("sampling n=%d: %d starts, %d cycles, %d halted, %d dangling, %d aborted",
		n, stats.Sampled, len(ranked), stats.Halted, stats.Dangling, stats.Aborted)
	return ranked, stats, nil
}

// VerifyCycle checks that the given members are closed under f_N:
// every member's successor is again a member.  Returns the canonical
// CycleID on success, ErrNotACycle otherwise.
func (tr Tracer) VerifyCycle(members []gobasin.PageID, n gobasin.NRule) (gobasin.CycleID, error) {
	if len(members) == 0 {
		return gobasin.CycleID{}, gobasin.ErrEmptyCycle
	}
	cycle := gobasin.NewCycleID(members)
	for _, id := range cycle.Members() {
		next, kind, err := tr.Eval.Successor(id, n)
		if err != nil {
			return gobasin.CycleID{}, err
		}
		if kind != gobasin.StepNext || !cycle.Contains(next) {
			return gobasin.CycleID{}, gobasin.ErrNotACycle
		}
	}
	return cycle, nil
}

// samplePages reservoir-samples count page ids in identity-table order.
func samplePages(ctx context.Context, st gobasin.SequenceStore, seed int64, count int) ([]gobasin.PageID, error) {
	rng := rand.New(rand.NewSource(seed))
	reservoir := make([]gobasin.PageID, 0, count)

	seen := 0
	err := st.ScanPages(ctx, func(p gobasin.Page) error {
		if len(reservoir) < count {
			reservoir = append(reservoir, p.ID)
		} else if j := rng.Intn(seen + 1); j < count {
			reservoir[j] = p.ID
		}
		seen++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservoir, nil
}
