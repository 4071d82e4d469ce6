package gobasin

import "errors"

// Errors
var (
	ErrBadRule          = errors.New("link rule N must be >= 1")
	ErrBadStoreParam    = errors.New("bad store param")
	ErrBadIndexParam    = errors.New("bad index param")
	ErrPageNotFound     = errors.New("page id not present in snapshot")
	ErrStoreClosed      = errors.New("store is closed")
	ErrSnapshotMismatch = errors.New("index snapshot does not match store snapshot")
	ErrRuleMismatch     = errors.New("reverse index was built for a different rule")
	ErrModeMismatch     = errors.New("reverse index was built under a different evaluation mode")
	ErrEmptyCycle       = errors.New("cycle must have at least one member")
	ErrNotACycle        = errors.New("members are not closed under the rule")
	ErrBasinOverlap     = errors.New("basins at the same rule share a member")
	ErrBasinTruncated   = errors.New("basin is truncated and cannot be analyzed as complete")
	ErrBadPlan          = errors.New("bad run plan")
	ErrUnmarshal        = errors.New("unmarshal failed")
)
