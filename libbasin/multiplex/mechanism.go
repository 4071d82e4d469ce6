package multiplex

import (
	"github.com/pkg/errors"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin/walk"
)

// MechanismOpts bounds the forward divergence probe.
type MechanismOpts struct {
	ProbeSteps int // 0 = 64
}

// Classifier attributes the cause of a basin transition between two
// rules by inspecting the underlying link targets.  Deterministic and
// side-effect free; the only knob is the fixed probe length.
type Classifier struct {
	Eval walk.Evaluator
	Opts MechanismOpts
}

// Transition is one classified (page, rule pair) row.
type Transition struct {
	Page      gobasin.PageID
	Low, High gobasin.NRule
	Mechanism gobasin.Mechanism
}

// ClassifyTransition attributes why page's basin differs between nLow
// and nHigh:
//
//   - halt_creation: out_degree < nHigh, so the higher rule halts the page;
//   - degree_shift: the two rules select different immediate targets;
//   - path_divergence: same immediate target, but bounded forward
//     traces under the two rules diverge downstream;
//   - unresolved: the probe budget elapsed with the two traces still
//     in lockstep.  Callers must not fold this into path_divergence.
func (c Classifier) ClassifyTransition(page gobasin.PageID, nLow, nHigh gobasin.NRule) (gobasin.Mechanism, error) {
	if nLow < 1 || nHigh < 1 {
		return gobasin.MechNone, errors.Wrapf(gobasin.ErrBadRule, "nLow=%d nHigh=%d", nLow, nHigh)
	}
	if nLow > nHigh {
		nLow, nHigh = nHigh, nLow
	}

	deg, err := c.Eval.Store.OutDegree(page)
	if err != nil {
		return gobasin.MechNone, err
	}
	if c.Eval.Mode != gobasin.EvalWrap && deg < int(nHigh) {
		return gobasin.MechHaltCreation, nil
	}

	sLow, kLow, err := c.Eval.Successor(page, nLow)
	if err != nil {
		return gobasin.MechNone, err
	}
	sHigh, kHigh, err := c.Eval.Successor(page, nHigh)
	if err != nil {
		return gobasin.MechNone, err
	}
	if kLow != kHigh || sLow != sHigh {
		return gobasin.MechDegreeShift, nil
	}
	if kLow != gobasin.StepNext {
		// Both rules halt or dangle identically: no forward paths to compare.
		return gobasin.MechUnresolved, nil
	}

	return c.probeDivergence(sLow, nLow, nHigh)
}

// probeDivergence walks the shared successor forward under both rules
// in lockstep and reports the first step at which the paths differ.
func (c Classifier) probeDivergence(from gobasin.PageID, nLow, nHigh gobasin.NRule) (gobasin.Mechanism, error) {
	steps := c.Opts.ProbeSteps
	if steps <= 0 {
		steps = 64
	}

	atLow, atHigh := from, from
	for i := 0; i < steps; i++ {
		nextLow, kindLow, err := c.Eval.Successor(atLow, nLow)
		if err != nil {
			return gobasin.MechNone, err
		}
		nextHigh, kindHigh, err := c.Eval.Successor(atHigh, nHigh)
		if err != nil {
			return gobasin.MechNone, err
		}

		if kindLow != kindHigh || (kindLow == gobasin.StepNext && nextLow != nextHigh) {
			return gobasin.MechPathDivergence, nil
		}
		if kindLow != gobasin.StepNext {
			// Both walks ended identically without diverging.
			return gobasin.MechUnresolved, nil
		}
		atLow, atHigh = nextLow, nextHigh
	}
	return gobasin.MechUnresolved, nil
}

// ClassifyTunnels classifies every adjacent-rule basin change of every
// tunnel node, producing one Transition row per (page, adjacent rule
// pair) whose basin keys differ.
func (c Classifier) ClassifyTunnels(t *Table, nodes []gobasin.TunnelNode) ([]Transition, error) {
	var out []Transition
	for _, node := range nodes {
		if !node.IsTunnel {
			continue
		}
		for i := 1; i < len(t.Rules); i++ {
			nLow, nHigh := t.Rules[i-1], t.Rules[i]
			keyLow, okLow := node.ByRule[nLow]
			keyHigh, okHigh := node.ByRule[nHigh]
			if !okLow || !okHigh || keyLow == keyHigh {
				continue
			}
			mech, err := c.ClassifyTransition(node.Page, nLow, nHigh)
			if err != nil {
				return nil, errors.Wrapf(err, "classifying page %d %d->%d", node.Page, nLow, nHigh)
			}
			out = append(out, Transition{
				Page:      node.Page,
				Low:       nLow,
				High:      nHigh,
				Mechanism: mech,
			})
		}
	}
	return out, nil
}
