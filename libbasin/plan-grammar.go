// Package libbasin drives full analysis runs: it parses run plans,
// bundles the read-only inputs of a run, and orchestrates the
// materialize -> map -> assemble -> classify pipeline.
package libbasin

import (
	"github.com/alecthomas/participle/v2"
	"github.com/pkg/errors"

	"github.com/basin-systems/gobasin/gobasin"
)

// A run plan is a compact expression naming the rules to analyze, the
// cycles to map (explicit member ids and/or seeded sampling), and the
// per-operation budgets:
//
//	n = 4 to 6; cycle 1487 2201 880; sample seed = 42 count = 200; budget depth = 40
//
// Statements may repeat; "cycle" may appear once per explicit cycle.

type PlanExpr struct {
	Stmts []*PlanStmt `parser:"(@@ (';' @@)*)?"`
}

type PlanStmt struct {
	Rules  *RuleRange  `parser:"  'n' '=' @@"`
	Cycle  *CycleStmt  `parser:"| 'cycle' @@"`
	Sample *SampleStmt `parser:"| 'sample' @@"`
	Budget *BudgetStmt `parser:"| 'budget' @@"`
}

type RuleRange struct {
	Lo int  `parser:"@Int"`
	Hi *int `parser:"('to' @Int)?"`
}

type CycleStmt struct {
	IDs []int64 `parser:"@Int+"`
}

type SampleStmt struct {
	Params []*Param `parser:"@@*"`
}

type BudgetStmt struct {
	Params []*Param `parser:"@@*"`
}

type Param struct {
	Key string `parser:"@Ident '='"`
	Val int64  `parser:"@Int"`
}

var parsePlanExpr = participle.MustBuild[PlanExpr]()

// Plan is a resolved, validated run plan.
type Plan struct {
	Rules    []gobasin.NRule
	Cycles   [][]gobasin.PageID
	Sample   *SamplePlan
	MaxSteps int    // per-trace step budget (0 = walk.DefaultMaxSteps)
	MaxDepth uint32 // per-basin depth budget (0 = unbounded)
}

// SamplePlan configures cycle discovery by seeded sampling.
type SamplePlan struct {
	Seed  int64
	Count int
	Top   int // distinct cycles to keep, ranked by hit count
}

// ParsePlan parses and validates a run plan expression.
func ParsePlan(src string) (Plan, error) {
	expr, err := parsePlanExpr.ParseString("", src)
	if err != nil {
		return Plan{}, errors.Wrap(gobasin.ErrBadPlan, err.Error())
	}

	var plan Plan
	seenRules := make(map[gobasin.NRule]bool)

	for _, stmt := range expr.Stmts {
		switch {
		case stmt.Rules != nil:
			lo, hi := stmt.Rules.Lo, stmt.Rules.Lo
			if stmt.Rules.Hi != nil {
				hi = *stmt.Rules.Hi
			}
			if lo < 1 || hi < lo {
				return Plan{}, errors.Wrapf(gobasin.ErrBadPlan, "bad rule range %d to %d", lo, hi)
			}
			for n := lo; n <= hi; n++ {
				if !seenRules[gobasin.NRule(n)] {
					seenRules[gobasin.NRule(n)] = true
					plan.Rules = append(plan.Rules, gobasin.NRule(n))
				}
			}

		case stmt.Cycle != nil:
			members := make([]gobasin.PageID, 0, len(stmt.Cycle.IDs))
			for _, id := range stmt.Cycle.IDs {
				if id < 0 {
					return Plan{}, errors.Wrapf(gobasin.ErrBadPlan, "bad page id %d", id)
				}
				members = append(members, gobasin.PageID(id))
			}
			plan.Cycles = append(plan.Cycles, members)

		case stmt.Sample != nil:
			sp := &SamplePlan{Count: 64, Top: 8}
			for _, p := range stmt.Sample.Params {
				switch p.Key {
				case "seed":
					sp.Seed = p.Val
				case "count":
					sp.Count = int(p.Val)
				case "top":
					sp.Top = int(p.Val)
				default:
					return Plan{}, errors.Wrapf(gobasin.ErrBadPlan, "unknown sample param %q", p.Key)
				}
			}
			plan.Sample = sp

		case stmt.Budget != nil:
			for _, p := range stmt.Budget.Params {
				switch p.Key {
				case "steps":
					plan.MaxSteps = int(p.Val)
				case "depth":
					plan.MaxDepth = uint32(p.Val)
				default:
					return Plan{}, errors.Wrapf(gobasin.ErrBadPlan, "unknown budget param %q", p.Key)
				}
			}
		}
	}

	if len(plan.Rules) == 0 {
		return Plan{}, errors.Wrap(gobasin.ErrBadPlan, "plan names no rules (n = ...)")
	}
	if len(plan.Cycles) == 0 && plan.Sample == nil {
		return Plan{}, errors.Wrap(gobasin.ErrBadPlan, "plan names no cycles and no sampling")
	}
	gobasin.SortRules(plan.Rules)
	return plan, nil
}
