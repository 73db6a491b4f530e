package synth

import (
	"math"
	"sort"

	"github.com/cwbudde/algo-approx"
)

type eventKind int

const (
	eventSet eventKind = iota
	eventLinear
	eventExponential
	eventTarget
)

type paramEvent struct {
	kind  eventKind
	time  float64
	value float64
	tau   float64
}

// Param is a scheduled automation curve evaluated against the audio clock.
// Ramps run from the previous event's time and value to their own.
type Param struct {
	initial float64
	events  []paramEvent
}

// NewParam returns a param holding v until the first event.
func NewParam(v float64) *Param {
	return &Param{initial: v}
}

func (p *Param) insert(e paramEvent) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > e.time })
	p.events = append(p.events, paramEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

// SetValueAtTime jumps to v at t.
func (p *Param) SetValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: eventSet, time: t, value: v})
}

// LinearRampToValueAtTime reaches v at t along a straight line.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: eventLinear, time: t, value: v})
}

// ExponentialRampToValueAtTime reaches v at t along an exponential curve.
// Both endpoints must be positive for the curve to move; otherwise the
// previous value is held until t.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: eventExponential, time: t, value: v})
}

// SetTargetAtTime approaches target from t with time constant tau.
func (p *Param) SetTargetAtTime(target, t, tau float64) {
	if tau <= 0 {
		p.SetValueAtTime(target, t)
		return
	}
	p.insert(paramEvent{kind: eventTarget, time: t, value: target, tau: tau})
}

// CancelAndHoldAtTime collapses the timeline to the value it has at t.
// The curve is only reproduced from t onward afterwards.
func (p *Param) CancelAndHoldAtTime(t float64) {
	v := p.ValueAt(t)
	p.events = p.events[:0]
	p.initial = v
	p.events = append(p.events, paramEvent{kind: eventSet, time: t, value: v})
}

// Len is the number of scheduled events.
func (p *Param) Len() int {
	return len(p.events)
}

// ValueAt evaluates the curve at time t.
func (p *Param) ValueAt(t float64) float64 {
	var st curveState
	st.hold = p.initial
	prevT := 0.0

	for i := range p.events {
		e := &p.events[i]
		if e.time > t {
			switch e.kind {
			case eventLinear:
				v0 := st.at(prevT)
				span := e.time - prevT
				if span <= 0 {
					return v0
				}
				return v0 + (e.value-v0)*(t-prevT)/span
			case eventExponential:
				v0 := st.at(prevT)
				span := e.time - prevT
				if span <= 0 || v0 <= 0 || e.value <= 0 {
					return v0
				}
				frac := (t - prevT) / span
				if frac <= 0 {
					return v0
				}
				return v0 * float64(approx.FastExp(float32(frac*math.Log(e.value/v0))))
			}
			return st.at(t)
		}

		v := st.at(e.time)
		switch e.kind {
		case eventTarget:
			st = curveState{hold: v, targeting: true, target: e.value, start: v, from: e.time, tau: e.tau}
		default:
			st = curveState{hold: e.value}
		}
		prevT = e.time
	}
	return st.at(t)
}

type curveState struct {
	hold      float64
	targeting bool
	target    float64
	start     float64
	from      float64
	tau       float64
}

func (s *curveState) at(t float64) float64 {
	if !s.targeting || t <= s.from {
		if s.targeting {
			return s.start
		}
		return s.hold
	}
	return s.target + (s.start-s.target)*math.Exp(-(t-s.from)/s.tau)
}
