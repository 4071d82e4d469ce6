// Package walk implements the functional graph evaluator and the
// forward trace classifier for the N-th link rule f_N.
package walk

import (
	"github.com/pkg/errors"

	"github.com/basin-systems/gobasin/gobasin"
)

// Evaluator applies f_N: from a page, follow its N-th outgoing link.
//
// Successor is a pure function of the store: identical (id, n) inputs
// always yield identical results against an unchanged snapshot.
type Evaluator struct {
	Store gobasin.SequenceStore
	Mode  gobasin.EvalMode
}

// Successor returns the N-th link target of id.
//
// StepHalt is a legitimate rule outcome (out_degree < n), not an
// error.  StepDangling means the selected target id is absent from the
// page table: a snapshot data-quality issue, surfaced distinctly from
// HALT.  The error return is reserved for store failures.
func (ev Evaluator) Successor(id gobasin.PageID, n gobasin.NRule) (gobasin.PageID, gobasin.StepKind, error) {
	if n < 1 {
		return 0, gobasin.StepHalt, errors.Wrapf(gobasin.ErrBadRule, "n=%d", n)
	}

	links, err := ev.Store.Links(id)
	if err != nil {
		return 0, gobasin.StepHalt, err
	}

	idx, ok := ev.Mode.LinkIndex(n, len(links))
	if !ok {
		return 0, gobasin.StepHalt, nil
	}

	next := links[idx]
	ok, err = ev.Store.HasPage(next)
	if err != nil {
		return 0, gobasin.StepHalt, err
	}
	if !ok {
		return next, gobasin.StepDangling, nil
	}
	return next, gobasin.StepNext, nil
}
