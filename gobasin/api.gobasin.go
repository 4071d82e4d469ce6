package gobasin

import (
	"context"
)

// PageID identifies a page in a snapshot's identity table.
// IDs are canonical; titles are display data and may collide after normalization.
type PageID uint32

// NRule is the link-rule parameter N: from a page, follow its N-th outgoing link.
// N is 1-indexed and must be >= 1.
type NRule int

// Page is immutable reference data from the snapshot's identity table.
type Page struct {
	ID         PageID
	Title      string
	Namespace  int32
	IsRedirect bool
}

// SnapshotInfo tags a store (and everything derived from it) with the
// graph version it was built from, so runs are reproducible.
type SnapshotInfo struct {
	Tag       string // e.g. "enwiki-20240901"
	PageCount int64
	SeqCount  int64
}

// EvalMode selects how the evaluator treats out_degree < N.
type EvalMode byte

const (
	// EvalHalt treats out_degree < N as a terminal HALT (the default).
	EvalHalt EvalMode = iota

	// EvalWrap folds N onto the available links: ((N-1) mod out_degree) + 1.
	// A page with no links still halts.
	EvalWrap
)

func (m EvalMode) String() string {
	if m == EvalWrap {
		return "wrap"
	}
	return "halt"
}

// LinkIndex returns the zero-based link index f_N selects from a page
// with the given out-degree, or ok=false when the rule halts there.
// The forward evaluator and the reverse-index build both derive their
// edges from this one function.
func (m EvalMode) LinkIndex(n NRule, deg int) (idx int, ok bool) {
	idx = int(n) - 1
	if idx >= deg {
		if m != EvalWrap || deg == 0 {
			return 0, false
		}
		idx = idx % deg
	}
	return idx, true
}

// StepKind is the outcome of a single evaluator application.
type StepKind byte

const (
	StepNext     StepKind = iota // successor returned
	StepHalt                     // out_degree < N (or 0)
	StepDangling                 // N-th link targets an id absent from the page table
)

// Terminal classifies how a trace ended.
type Terminal byte

const (
	TerminalNone     Terminal = iota
	TerminalCycle             // forward iteration closed a cycle
	TerminalHalt              // legitimate rule outcome, not an error
	TerminalDangling          // snapshot data-quality issue, distinct from HALT
	TerminalAborted           // step budget exhausted before a determinate outcome
)

func (t Terminal) String() string {
	switch t {
	case TerminalCycle:
		return "CYCLE"
	case TerminalHalt:
		return "HALT"
	case TerminalDangling:
		return "DANGLING"
	case TerminalAborted:
		return "ABORTED"
	}
	return "NONE"
}

// Trace is the full visited path of one forward iteration of f_N.
//
// Path holds each visited page exactly once, in visit order.  When
// Terminal == TerminalCycle, the last Cycle.Len() elements of Path are
// the cycle members in rotation order.
type Trace struct {
	Start    PageID
	Rule     NRule
	Path     []PageID
	Terminal Terminal
	Cycle    CycleID // zero value unless Terminal == TerminalCycle
}

// Steps returns the number of evaluator applications the trace performed.
func (tr *Trace) Steps() int {
	if len(tr.Path) == 0 {
		return 0
	}
	return len(tr.Path) - 1
}

// Member is one basin member's record: its BFS depth, the node its
// forward edge points at (its parent toward the cycle), and the
// depth-1 entry node its unique reverse path descends from.
//
// Cycle members have Depth 0 and zero Parent/Entry.  Depth-1 members
// are their own Entry.
type Member struct {
	Depth  uint32
	Parent PageID
	Entry  PageID
}

// Basin is the complete reverse-reachable set of one cycle at one N.
//
// Basins are immutable once mapped.  Distinct cycles at the same N
// never share a member: f_N is a function, so the reverse graph
// restricted to a basin is a forest rooted at the cycle nodes.
type Basin struct {
	Rule        NRule
	Snapshot    string
	Cycle       CycleID
	Members     map[PageID]Member
	LayerCounts []int64 // LayerCounts[d] = number of members at depth d

	// Truncated is set when the depth budget ran out before the
	// frontier emptied.  A truncated basin is NOT a complete basin and
	// must never be reported as one.  LastDepth is the last fully
	// completed layer, enabling resumption with a larger budget.
	Truncated bool
	LastDepth uint32
}

// Size returns the total member count, cycle included.
func (b *Basin) Size() int { return len(b.Members) }

// TreeSize returns the non-cycle member count.
func (b *Basin) TreeSize() int { return len(b.Members) - b.Cycle.Len() }

// MembersAt returns the ids at the given depth, ascending.
func (b *Basin) MembersAt(depth uint32) []PageID {
	var ids []PageID
	for id, m := range b.Members {
		if m.Depth == depth {
			ids = append(ids, id)
		}
	}
	sortPageIDs(ids)
	return ids
}

// Branch is one depth-1 entry node of a basin and the number of
// non-cycle members that descend from it (the entry itself included).
type Branch struct {
	Entry       PageID
	SubtreeSize int64
}

// BranchSummary is a basin's partition by entry branch, ranked by
// subtree size descending, with concentration metrics.
type BranchSummary struct {
	Rule     NRule
	Cycle    CycleID
	Branches []Branch

	// Top1Share is the largest branch's share of the non-cycle mass.
	Top1Share float64

	// EffectiveBranches is the inverse Simpson index 1 / sum(share_i^2).
	EffectiveBranches float64
}

// Assignment is one row of the multiplex table: page p belonged to
// cycle Cycle's basin at rule Rule, at the given depth.
type Assignment struct {
	Page  PageID
	Rule  NRule
	Cycle CycleKey
	Depth uint32
}

// TunnelShape classifies how a page's basin membership moves as N increases.
type TunnelShape byte

const (
	ShapeNone        TunnelShape = iota // membership never changes
	ShapeProgressive                    // changes exactly once across increasing N
	ShapeAlternating                    // changes more than once
)

func (s TunnelShape) String() string {
	switch s {
	case ShapeProgressive:
		return "progressive"
	case ShapeAlternating:
		return "alternating"
	}
	return "none"
}

// TunnelNode is a page's basin membership profile across analyzed N values.
// Pages assigned at fewer than two N values are never tunnel candidates.
type TunnelNode struct {
	Page           PageID
	ByRule         map[NRule]CycleKey // only rules where the page was assigned
	DistinctBasins int
	IsTunnel       bool
	Shape          TunnelShape
}

// Mechanism attributes why a page's basin membership changed between
// two rules.
type Mechanism byte

const (
	MechNone           Mechanism = iota
	MechDegreeShift              // the rule directly selected a different immediate target
	MechPathDivergence           // same immediate target; downstream paths diverge
	MechHaltCreation             // out_degree < nHigh: the higher rule halts the page
	MechUnresolved               // probe budget exhausted before divergence was observed
)

func (m Mechanism) String() string {
	switch m {
	case MechDegreeShift:
		return "degree_shift"
	case MechPathDivergence:
		return "path_divergence"
	case MechHaltCreation:
		return "halt_creation"
	case MechUnresolved:
		return "unresolved"
	}
	return "none"
}

// StabilityClass buckets a basin's persistence across N.
type StabilityClass byte

const (
	StabilityFragile StabilityClass = iota
	StabilityModerate
	StabilityStable
)

func (c StabilityClass) String() string {
	switch c {
	case StabilityStable:
		return "stable"
	case StabilityModerate:
		return "moderate"
	}
	return "fragile"
}

// StabilityScore is a basin's cross-N persistence summary.
type StabilityScore struct {
	Cycle       CycleKey
	Persistence float64
	MeanJaccard float64
	Class       StabilityClass
}

// SequenceStore is the read-only Link Sequence Store: the per-page
// ordered link lists plus the page identity table, tagged with the
// snapshot they were built from.
//
// Implementations must be safe for concurrent readers.
type SequenceStore interface {

	// Snapshot returns the snapshot tag and table sizes.
	Snapshot() SnapshotInfo

	// HasPage reports whether id is present in the identity table.
	HasPage(id PageID) (bool, error)

	// PageInfo returns the identity record for id, or ErrPageNotFound.
	PageInfo(id PageID) (Page, error)

	// OutDegree returns the length of id's link sequence.
	// A page present in the identity table but absent from the
	// sequence table has out-degree 0.
	OutDegree(id PageID) (int, error)

	// Links returns id's ordered link sequence.  The returned slice
	// must be treated as read-only.
	Links(id PageID) ([]PageID, error)

	// ScanPages streams the identity table in ascending id order.
	ScanPages(ctx context.Context, fn func(Page) error) error

	// ScanSequences streams the sequence table in ascending id order.
	// The links slice is only valid for the duration of the callback.
	ScanSequences(ctx context.Context, fn func(id PageID, links []PageID) error) error

	Close() error
}

// ReverseIndex is a materialized predecessor index for one fixed rule:
// for every page p with an edge p -> q under f_N, the index answers
// "predecessors of q" without re-deriving edges from raw sequences.
type ReverseIndex interface {

	// Rule returns the N the index was materialized for.
	Rule() NRule

	// Snapshot returns the snapshot tag of the store it was built from.
	Snapshot() string

	// EdgeCount returns the number of (pred, target) pairs recorded.
	EdgeCount() int64

	// DanglingCount returns the number of edges skipped during
	// materialization because their target was absent from the page table.
	DanglingCount() int64

	// Predecessors streams the pages whose successor under f_N is `of`,
	// in ascending id order.
	Predecessors(ctx context.Context, of PageID, fn func(PageID) error) error

	Close() error
}

// StoreOpts specifies params for opening a Link Sequence Store.
type StoreOpts struct {
	DbPathName  string // omit for an in-memory db
	ReadOnly    bool
	SnapshotTag string // required when creating a new store
}

// IndexOpts specifies params for materializing or opening a ReverseIndex.
type IndexOpts struct {
	DbPathName string // omit for an in-memory db
	ReadOnly   bool
	Mode       EvalMode
	LogEvery   int64 // emit a progress line every LogEvery sequences (0 = default)
}
