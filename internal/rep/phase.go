package rep

import (
	"fmt"
	"time"
)

// Phase is the hysteresis machine's state. Idle and TargetUp behave
// identically for transition purposes -- both wait for downward motion;
// Idle is only the initial value before the first cycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseTargetDown Phase = "target_down"
	PhaseTargetUp   Phase = "target_up"
)

// PhaseMachine converts a smoothed vertical trajectory into discrete
// repetition events: one per completed down->up cycle, subject to a
// minimum inter-event interval.
//
// Thresholds are measured from the extremum tracked since entering the
// current phase (running peak while waiting for downward motion,
// running trough while down). The signal must clear the extremum by
// more than the threshold before a transition is acknowledged, which
// rejects small noise-driven oscillations. Y grows downward, so "down"
// motion is numerically increasing Y.
type PhaseMachine struct {
	downThreshold float64
	upThreshold   float64
	minInterval   time.Duration

	phase Phase
	// extremumY is the running min (phase up/idle) or max (phase down)
	// of the smoothed signal since the current phase was entered.
	extremumY    float64
	hasExtremum  bool
	lastEventAt  time.Time
	hasLastEvent bool
}

// NewPhaseMachine validates thresholds at construction: both must be
// positive and the debounce interval non-negative.
func NewPhaseMachine(downThreshold, upThreshold float64, minInterval time.Duration) (*PhaseMachine, error) {
	if downThreshold <= 0 {
		return nil, fmt.Errorf("downThreshold must be positive, got %f", downThreshold)
	}
	if upThreshold <= 0 {
		return nil, fmt.Errorf("upThreshold must be positive, got %f", upThreshold)
	}
	if minInterval < 0 {
		return nil, fmt.Errorf("minInterval must be non-negative, got %s", minInterval)
	}
	return &PhaseMachine{
		downThreshold: downThreshold,
		upThreshold:   upThreshold,
		minInterval:   minInterval,
		phase:         PhaseIdle,
	}, nil
}

// Observe feeds one smoothed sample and reports whether a repetition
// completed on this frame. Callers with an undefined signal simply do
// not call Observe for that frame; the machine freezes in place until a
// defined signal resumes.
func (m *PhaseMachine) Observe(smoothedY float64, now time.Time) bool {
	if !m.hasExtremum {
		m.extremumY = smoothedY
		m.hasExtremum = true
	}

	switch m.phase {
	case PhaseIdle, PhaseTargetUp:
		// Track the running peak (highest point = smallest Y).
		if smoothedY < m.extremumY {
			m.extremumY = smoothedY
		}
		if smoothedY > m.extremumY+m.downThreshold {
			m.phase = PhaseTargetDown
			m.extremumY = smoothedY
		}
		return false

	case PhaseTargetDown:
		// Track the running trough (lowest point = largest Y).
		if smoothedY > m.extremumY {
			m.extremumY = smoothedY
		}
		if smoothedY < m.extremumY-m.upThreshold {
			// Debounce: without the interval elapsed the phase holds at
			// down, so one physical rep can never double-count.
			if m.hasLastEvent && now.Sub(m.lastEventAt) < m.minInterval {
				return false
			}
			m.phase = PhaseTargetUp
			m.extremumY = smoothedY
			m.lastEventAt = now
			m.hasLastEvent = true
			return true
		}
		return false
	}
	return false
}

// Phase returns the current phase.
func (m *PhaseMachine) Phase() Phase {
	return m.phase
}

// Reset returns the machine to its initial state.
func (m *PhaseMachine) Reset() {
	m.phase = PhaseIdle
	m.extremumY = 0
	m.hasExtremum = false
	m.lastEventAt = time.Time{}
	m.hasLastEvent = false
}
