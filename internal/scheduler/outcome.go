package scheduler

import "fmt"

// Outcome is the result of checking a candidate path against the
// reservation table. It is one of Safe, BlockedAt or BlockedFully.
type Outcome interface {
	fmt.Stringer
	outcome()
}

// Safe means the whole path can be reserved.
type Safe struct{}

// BlockedAt means the path conflicts further on, but is safe up to and
// including node Index, where the agent can wait indefinitely.
type BlockedAt struct {
	Index int
}

// BlockedFully means no node of the path is a safe place to wait; the
// request has to be retried unchanged later.
type BlockedFully struct{}

func (Safe) outcome()         {}
func (BlockedAt) outcome()    {}
func (BlockedFully) outcome() {}

func (Safe) String() string         { return "safe" }
func (b BlockedAt) String() string  { return fmt.Sprintf("blocked_at(%d)", b.Index) }
func (BlockedFully) String() string { return "blocked_fully" }
