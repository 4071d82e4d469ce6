// Package basin maps basins of attraction: the complete
// reverse-reachable set of a terminal cycle under f_N, decomposed by
// depth and entry branch.
package basin

import (
	"context"
	"runtime"
	"sort"

	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"golang.org/x/sync/errgroup"

	"github.com/basin-systems/gobasin/gobasin"
)

// Levels narrower than this are expanded sequentially; the goroutine
// handoff costs more than it saves on small frontiers.
const kParallelThreshold = 32

// Workers are capped regardless of CPU count: the traversal is
// index-I/O bound.
const kMaxWorkers = 8

// Mapper computes basins over a materialized reverse index.
type Mapper struct {
	Index gobasin.ReverseIndex

	// Workers bounds intra-layer parallelism (0 = min(GOMAXPROCS, 8)).
	// Layers themselves are strictly ordered: layer k+1 depends on
	// layer k's frontier.
	Workers int
}

// MapOpts bounds one basin mapping run.
type MapOpts struct {
	MaxDepth uint32 // 0 = unbounded: run to exhaustion
}

type found struct {
	pred   gobasin.PageID
	parent gobasin.PageID
}

// MapBasin runs an unbounded layered reverse BFS from the cycle.
func (m *Mapper) MapBasin(ctx context.Context, cycle gobasin.CycleID) (*gobasin.Basin, error) {
	return m.MapBasinOpts(ctx, cycle, MapOpts{})
}

// MapBasinOpts computes the basin of the given cycle.
//
// Frontier expansion excludes nodes already assigned a depth; since
// every node has exactly one successor, this rule alone guarantees
// each node one unique depth, termination, and disjointness between
// basins of distinct cycles at the same N.
//
// If MaxDepth is hit with a non-empty frontier the result is marked
// Truncated with the last completed layer recorded; a truncated basin
// must never be reported as complete.
func (m *Mapper) MapBasinOpts(ctx context.Context, cycle gobasin.CycleID, opts MapOpts) (*gobasin.Basin, error) {
	if cycle.Len() == 0 {
		return nil, gobasin.ErrEmptyCycle
	}

	b := &gobasin.Basin{
		Rule:     m.Index.Rule(),
		Snapshot: m.Index.Snapshot(),
		Cycle:    cycle,
		Members:  make(map[gobasin.PageID]gobasin.Member, 4*cycle.Len()),
	}

	frontier := make([]gobasin.PageID, cycle.Len())
	copy(frontier, cycle.Members())
	for _, id := range frontier {
		b.Members[id] = gobasin.Member{}
	}
	b.LayerCounts = append(b.LayerCounts, int64(cycle.Len()))

	for depth := uint32(1); len(frontier) > 0; depth++ {
		if opts.MaxDepth > 0 && depth > opts.MaxDepth {
			b.Truncated = true
			break
		}

		hits, err := m.expand(ctx, frontier)
		if err != nil {
			// Fatal run failure: report the last completed layer so the
			// caller can resume with a narrower scope instead of rerunning.
			return nil, errors.Wrapf(err, "basin mapping failed at layer %d (last completed %d)", depth, b.LastDepth)
		}

		next := frontier[:0]
		for _, f := range hits {
			if _, assigned := b.Members[f.pred]; assigned {
				continue // cycle members re-appear as their own predecessors
			}
			entry := f.pred
			if depth > 1 {
				entry = b.Members[f.parent].Entry
			}
			b.Members[f.pred] = gobasin.Member{
				Depth:  depth,
				Parent: f.parent,
				Entry:  entry,
			}
			next = append(next, f.pred)
		}

		// Ascending order keeps layer contents, logs and exports
		// byte-identical across runs.
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		frontier = next

		if len(frontier) > 0 {
			b.LayerCounts = append(b.LayerCounts, int64(len(frontier)))
			b.LastDepth = depth
			klog.V(2).Infof("basin %s n=%d: layer %d holds %d nodes (%d total)",
				b.Cycle, b.Rule, depth, len(frontier), len(b.Members))
		}
	}

	return b, nil
}

// expand collects the predecessors of every frontier node.  The
// frontier is partitioned across workers; writes are disjoint by
// construction (each discovered node has exactly one successor, which
// lives in exactly one partition).
func (m *Mapper) expand(ctx context.Context, frontier []gobasin.PageID) ([]found, error) {
	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > kMaxWorkers {
		workers = kMaxWorkers
	}
	if len(frontier) < kParallelThreshold || workers < 2 {
		return m.expandChunk(ctx, frontier, nil)
	}

	chunkLen := (len(frontier) + workers - 1) / workers
	results := make([][]found, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunkLen
		if lo >= len(frontier) {
			break
		}
		hi := lo + chunkLen
		if hi > len(frontier) {
			hi = len(frontier)
		}
		w := w
		chunk := frontier[lo:hi]
		g.Go(func() error {
			hits, err := m.expandChunk(gctx, chunk, nil)
			results[w] = hits
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []found
	for _, hits := range results {
		merged = append(merged, hits...)
	}
	return merged, nil
}

func (m *Mapper) expandChunk(ctx context.Context, chunk []gobasin.PageID, out []found) ([]found, error) {
	for _, node := range chunk {
		node := node
		err := m.Index.Predecessors(ctx, node, func(pred gobasin.PageID) error {
			out = append(out, found{pred: pred, parent: node})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
