package effects

import (
	"sync"

	"github.com/mbocsi/chainlight/proto"
)

type Verdict int

const (
	Accepted Verdict = iota
	RejectedBusy
	RejectedStale
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case RejectedBusy:
		return "busy"
	case RejectedStale:
		return "stale"
	default:
		return "unknown"
	}
}

// AdmissionState is a point-in-time view for status reporting.
type AdmissionState struct {
	LastSeq uint32 `json:"last_seq"`
	Active  bool   `json:"active"`
	Staged  bool   `json:"staged"`
}

// Admission gates one effect kind. Admit runs on the receive path and only
// stages; Commit runs on the render loop and is the only way a command
// becomes active. A second admit before commit replaces the staged command.
type Admission[T proto.Command] struct {
	mu        sync.Mutex
	lastSeq   uint32
	active    bool
	staged    T
	hasStaged bool
	current   T
}

func NewAdmission[T proto.Command]() *Admission[T] {
	return &Admission[T]{}
}

func (a *Admission[T]) Admit(cmd T) Verdict {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active && !cmd.Interrupt() {
		return RejectedBusy
	}
	if cmd.Sequence() <= a.lastSeq {
		return RejectedStale
	}
	a.staged = cmd
	a.hasStaged = true
	a.lastSeq = cmd.Sequence()
	return Accepted
}

// Commit promotes the staged command, if any, and marks it active.
func (a *Admission[T]) Commit() (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasStaged {
		var zero T
		return zero, false
	}
	a.current = a.staged
	a.hasStaged = false
	a.active = true
	return a.current, true
}

// Pending reports whether a staged command is waiting for commit.
func (a *Admission[T]) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasStaged
}

// Current returns the active command.
func (a *Admission[T]) Current() (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.active
}

// Deactivate ends the active command. lastSeq is kept.
func (a *Admission[T]) Deactivate() {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()
}

func (a *Admission[T]) State() AdmissionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AdmissionState{LastSeq: a.lastSeq, Active: a.active, Staged: a.hasStaged}
}
