package walk

import (
	"github.com/basin-systems/gobasin/gobasin"
)

// DefaultMaxSteps bounds a trace when the caller gives no budget.
const DefaultMaxSteps = 1 << 16

// TraceOpts bounds a single forward trace.
type TraceOpts struct {
	MaxSteps int // 0 means DefaultMaxSteps
}

// Tracer iterates an Evaluator from a start node until the walk closes
// a cycle, halts, hits a dangling link, or exhausts its step budget.
type Tracer struct {
	Eval Evaluator
}

// Trace classifies the terminal behavior of start under f_N.
//
// The returned path holds each visited node exactly once.  A budget
// overrun yields TerminalAborted, which callers must treat as
// unresolved, never as HALT.
func (tr Tracer) Trace(start gobasin.PageID, n gobasin.NRule, opts TraceOpts) (gobasin.Trace, error) {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	out := gobasin.Trace{
		Start: start,
		Rule:  n,
		Path:  []gobasin.PageID{start},
	}
	seenAt := map[gobasin.PageID]int{start: 0}

	at := start
	for step := 0; step < maxSteps; step++ {
		next, kind, err := tr.Eval.Successor(at, n)
		if err != nil {
			return out, err
		}

		switch kind {
		case gobasin.StepHalt:
			out.Terminal = gobasin.TerminalHalt
			return out, nil
		case gobasin.StepDangling:
			out.Terminal = gobasin.TerminalDangling
			return out, nil
		}

		if firstIdx, seen := seenAt[next]; seen {
			out.Terminal = gobasin.TerminalCycle
			out.Cycle = gobasin.NewCycleID(out.Path[firstIdx:])
			return out, nil
		}

		seenAt[next] = len(out.Path)
		out.Path = append(out.Path, next)
		at = next
	}

	out.Terminal = gobasin.TerminalAborted
	return out, nil
}
