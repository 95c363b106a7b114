// Package schedule decides, for each GBP sub-step of a planning tick, whether internal and external
// message passing run.
package schedule

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind names a schedule policy.
type Kind string

// The supported policies.
const (
	Centered             Kind = "centered"
	SoonAsPossible       Kind = "soon-as-possible"
	LateAsPossible       Kind = "late-as-possible"
	HalfBeginningHalfEnd Kind = "half-beginning-half-end"
	InterleaveEvenly     Kind = "interleave-evenly"
)

// Kinds lists every policy.
var Kinds = []Kind{Centered, SoonAsPossible, LateAsPossible, HalfBeginningHalfEnd, InterleaveEvenly}

// ErrUnknownKind is returned for a policy name that is not one of Kinds.
var ErrUnknownKind = errors.New("unknown schedule")

// ParseKind returns the policy with the given name. Underscores and case are ignored.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-"))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownKind, "%q", name)
}

// Config holds how many of the sub-steps of one tick run each kind of message passing.
type Config struct {
	Internal int `json:"internal"`
	External int `json:"external"`
}

// Max returns the number of sub-steps.
func (c Config) Max() int {
	return max(c.Internal, c.External)
}

// Validate ensures the counts are usable.
func (c Config) Validate() error {
	if c.Internal < 0 || c.External < 0 {
		return errors.Errorf("iteration counts cannot be negative, got internal=%d external=%d", c.Internal, c.External)
	}
	if c.Max() > 255 {
		return errors.Errorf("at most 255 iterations per tick are supported, got %d", c.Max())
	}
	return nil
}

// Step is what runs in one sub-step.
type Step struct {
	Internal bool
	External bool
}

// Schedule lays out the sub-steps of a tick.
type Schedule struct {
	kind   Kind
	policy func(n, max int) []bool
}

// New returns the schedule for a policy.
func New(kind Kind) (Schedule, error) {
	var policy func(n, max int) []bool
	switch kind {
	case Centered:
		policy = centered
	case SoonAsPossible:
		policy = soonAsPossible
	case LateAsPossible:
		policy = lateAsPossible
	case HalfBeginningHalfEnd:
		policy = halfBeginningHalfEnd
	case InterleaveEvenly:
		policy = interleaveEvenly
	default:
		return Schedule{}, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
	return Schedule{kind: kind, policy: policy}, nil
}

// Kind returns the policy of the schedule.
func (s Schedule) Kind() Kind {
	return s.kind
}

// Steps returns the Max() sub-steps of a tick. Each counter is laid out independently; a zero
// count never fires and equal counts always coincide.
func (s Schedule) Steps(cfg Config) []Step {
	n := cfg.Max()
	steps := make([]Step, n)
	for i, fire := range s.layout(cfg.Internal, n) {
		steps[i].Internal = fire
	}
	for i, fire := range s.layout(cfg.External, n) {
		steps[i].External = fire
	}
	return steps
}

// Iterate returns an iterator over Steps(cfg).
func (s Schedule) Iterate(cfg Config) *Iterator {
	return &Iterator{steps: s.Steps(cfg)}
}

func (s Schedule) layout(count, n int) []bool {
	switch {
	case count <= 0:
		return make([]bool, n)
	case count >= n:
		out := make([]bool, n)
		for i := range out {
			out[i] = true
		}
		return out
	default:
		return s.policy(count, n)
	}
}

// Iterator walks a fixed sequence of steps and can be rewound.
type Iterator struct {
	steps []Step
	index int
}

// Next returns the next step, or false once the sequence is exhausted.
func (it *Iterator) Next() (Step, bool) {
	if it.index >= len(it.steps) {
		return Step{}, false
	}
	step := it.steps[it.index]
	it.index++
	return step, true
}

// Len returns the total number of steps.
func (it *Iterator) Len() int {
	return len(it.steps)
}

// Reset rewinds to the first step.
func (it *Iterator) Reset() {
	it.index = 0
}
