package gobasin

import "sort"

func sortPageIDs(ids []PageID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// SortPageIDs sorts ids ascending in place.
func SortPageIDs(ids []PageID) { sortPageIDs(ids) }

// SortRules sorts rules ascending in place.
func SortRules(rules []NRule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i] < rules[j] })
}

// CycleFromTrace extracts the canonical cycle id from a trace that
// terminated in a cycle; the zero CycleID otherwise.
func CycleFromTrace(tr *Trace) CycleID {
	if tr.Terminal != TerminalCycle {
		return CycleID{}
	}
	return tr.Cycle
}

// RotationOf returns the cycle members in rotation (path) order from a
// cycle-terminal trace: the suffix of Path from the first occurrence
// of the repeated node onward.
func RotationOf(tr *Trace) []PageID {
	n := tr.Cycle.Len()
	if tr.Terminal != TerminalCycle || n == 0 || n > len(tr.Path) {
		return nil
	}
	return tr.Path[len(tr.Path)-n:]
}
