package libbasin

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"golang.org/x/sync/errgroup"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin/basin"
	"github.com/basin-systems/gobasin/libbasin/multiplex"
	"github.com/basin-systems/gobasin/libbasin/rindex"
	"github.com/basin-systems/gobasin/libbasin/walk"
)

// Runner executes a Plan end to end: materialize a reverse index per
// rule, resolve and map every cycle's basin, analyze branches, and
// derive the multiplex, tunnel, mechanism and stability tables.
type Runner struct {
	Store    gobasin.SequenceStore
	RunTag   string
	IndexDir string // "" = in-memory reverse indexes
	Mode     gobasin.EvalMode
	Workers  int // intra-layer BFS parallelism per basin

	Stability multiplex.StabilityOpts
	Mechanism multiplex.MechanismOpts
}

// RunResult is everything one run produced.  All fields are immutable
// derived tables; a rerun replaces them wholesale.
type RunResult struct {
	Plan        Plan
	Basins      []*gobasin.Basin // complete and truncated, rule-ascending
	Branches    []gobasin.BranchSummary
	Table       *multiplex.Table
	Tunnels     []gobasin.TunnelNode
	Transitions []multiplex.Transition
	Scores      []gobasin.StabilityScore
}

// Run executes the plan.  Basin computations at different rules have
// no data dependency on one another and run as parallel tasks, each
// owning its own materializer output.
func (r *Runner) Run(ctx context.Context, plan Plan) (*RunResult, error) {
	rc := NewRunContext(r.Store)
	defer rc.Close()

	perRule := make([][]*gobasin.Basin, len(plan.Rules))

	g, gctx := errgroup.WithContext(ctx)
	for i, n := range plan.Rules {
		i, n := i, n
		g.Go(func() error {
			basins, err := r.runRule(gctx, rc, plan, n)
			perRule[i] = basins
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &RunResult{Plan: plan}
	for _, basins := range perRule {
		result.Basins = append(result.Basins, basins...)
	}
	sort.SliceStable(result.Basins, func(i, j int) bool {
		bi, bj := result.Basins[i], result.Basins[j]
		if bi.Rule != bj.Rule {
			return bi.Rule < bj.Rule
		}
		return bi.Cycle.Key() < bj.Cycle.Key()
	})

	// Truncated basins are reported but never analyzed as complete.
	var complete []*gobasin.Basin
	for _, b := range result.Basins {
		if b.Truncated {
			klog.Warningf("basin %s n=%d truncated at layer %d; excluded from derived tables", b.Cycle, b.Rule, b.LastDepth)
			continue
		}
		complete = append(complete, b)

		summary, err := basin.AnalyzeBranches(b)
		if err != nil {
			return nil, err
		}
		result.Branches = append(result.Branches, summary)
	}

	table, err := multiplex.Assemble(r.RunTag, complete)
	if err != nil {
		return nil, err
	}
	result.Table = table

	result.Tunnels = multiplex.DetectTunnels(table)

	classifier := multiplex.Classifier{
		Eval: walk.Evaluator{Store: r.Store, Mode: r.Mode},
		Opts: r.Mechanism,
	}
	result.Transitions, err = classifier.ClassifyTunnels(table, result.Tunnels)
	if err != nil {
		return nil, err
	}

	result.Scores = multiplex.ScoreAll(table, r.Stability)
	return result, nil
}

// runRule materializes rule n's reverse index, resolves the plan's
// cycles at that rule, and maps each basin.
func (r *Runner) runRule(ctx context.Context, rc *RunContext, plan Plan, n gobasin.NRule) ([]*gobasin.Basin, error) {
	ixOpts := gobasin.IndexOpts{Mode: r.Mode}
	if len(r.IndexDir) > 0 {
		ixOpts.DbPathName = filepath.Join(r.IndexDir, fmt.Sprintf("rindex-n%03d", n))
	}
	ix, err := rindex.Materialize(ctx, r.Store, n, ixOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "materializing n=%d", n)
	}
	rc.AttachIndex(ix)

	cycles, err := r.resolveCycles(ctx, plan, n)
	if err != nil {
		return nil, err
	}

	mapper := &basin.Mapper{Index: ix, Workers: r.Workers}
	basins := make([]*gobasin.Basin, 0, len(cycles))
	for _, cycle := range cycles {
		b, err := mapper.MapBasinOpts(ctx, cycle, basin.MapOpts{MaxDepth: plan.MaxDepth})
		if err != nil {
			return nil, errors.Wrapf(err, "mapping basin %s n=%d", cycle, n)
		}
		basins = append(basins, b)
	}
	return basins, nil
}

// resolveCycles verifies the plan's explicit cycles at rule n and runs
// sampling discovery when requested.  An explicit member set that is
// not closed under f_n is skipped at that rule with a warning: the
// same canonical cycle need not exist at every analyzed N.
func (r *Runner) resolveCycles(ctx context.Context, plan Plan, n gobasin.NRule) ([]gobasin.CycleID, error) {
	tracer := walk.Tracer{Eval: walk.Evaluator{Store: r.Store, Mode: r.Mode}}

	var cycles []gobasin.CycleID
	seen := make(map[gobasin.CycleKey]bool)

	for _, members := range plan.Cycles {
		cycle, err := tracer.VerifyCycle(members, n)
		if errors.Cause(err) == gobasin.ErrNotACycle {
			klog.Warningf("members %v are not closed under n=%d; skipped at this rule", members, n)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !seen[cycle.Key()] {
			seen[cycle.Key()] = true
			cycles = append(cycles, cycle)
		}
	}

	if plan.Sample != nil {
		hits, _, err := tracer.DiscoverCycles(ctx, n, walk.SampleOpts{
			Seed:     plan.Sample.Seed,
			Count:    plan.Sample.Count,
			MaxSteps: plan.MaxSteps,
		})
		if err != nil {
			return nil, err
		}
		kept := 0
		for _, hit := range hits {
			if kept >= plan.Sample.Top {
				break
			}
			if !seen[hit.Cycle.Key()] {
				seen[hit.Cycle.Key()] = true
				cycles = append(cycles, hit.Cycle)
				kept++
			}
		}
	}

	return cycles, nil
}
