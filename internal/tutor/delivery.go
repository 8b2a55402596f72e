package tutor

import (
	"github.com/ashureev/kido-tutor/internal/domain"
)

// Phase is the delivery cursor's position in the per-section cycle.
type Phase int

const (
	PhaseEntering Phase = iota
	PhasePresenting
	PhaseAnswering
	PhaseAdvancing
	PhaseWrapUp
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseEntering:
		return "entering"
	case PhasePresenting:
		return "presenting"
	case PhaseAnswering:
		return "answering"
	case PhaseAdvancing:
		return "advancing"
	case PhaseWrapUp:
		return "wrap_up"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Delivery guards the progression invariants of one lesson: the cursor
// moves only to an index explicitly supplied by a completed delivery
// tool call, a newly entered index emits its section exactly once, and
// Completed is reached only through the completion tool.
type Delivery struct {
	phase          Phase
	deliveredIndex int // last index whose section notice was emitted, -1 before the first
}

// NewDelivery starts a delivery at the first section.
func NewDelivery() *Delivery {
	return &Delivery{phase: PhaseEntering, deliveredIndex: -1}
}

// Phase returns the current phase.
func (d *Delivery) Phase() Phase {
	return d.phase
}

// Advance moves the cursor to the tool-supplied index and reports
// whether this index is newly entered. Re-entering the index already
// delivered leaves the phase in Answering and emits nothing.
func (d *Delivery) Advance(sess *domain.Session, index int) (newlyEntered bool) {
	if d.phase == PhaseCompleted {
		return false
	}

	sess.SetCursor(index)

	if index == d.deliveredIndex {
		d.phase = PhaseAnswering
		return false
	}

	d.deliveredIndex = index
	if sess.State.Plan != nil && index >= len(sess.State.Plan.Sections) {
		d.phase = PhaseWrapUp
	} else {
		d.phase = PhasePresenting
	}
	return true
}

// Complete marks the lesson finished. Further Advance calls are
// ignored until a new delivery starts.
func (d *Delivery) Complete() {
	d.phase = PhaseCompleted
}

// Reset prepares the cursor for a fresh delivery with no section
// counted as delivered yet. On a resumed lesson the current section is
// therefore sent again, so a returning user sees where they left off.
func (d *Delivery) Reset() {
	d.phase = PhaseEntering
	d.deliveredIndex = -1
}
