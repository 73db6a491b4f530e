package gesture

import "math"

const (
	// VelocityThreshold is the minimum horizontal fingertip speed, in
	// normalized widths per millisecond, that can pluck a string.
	VelocityThreshold = 0.00015
	// DebounceWindow is the per-string refractory period in milliseconds.
	DebounceWindow = 40.0
	// BandMin and BandMax bound the vertical playing zone (exclusive).
	BandMin = 0.1
	BandMax = 0.9
	// MaxHands is how many hands a frame may carry. Further hands are skipped.
	MaxHands = 2
)

// Trigger is one accepted string crossing.
type Trigger struct {
	String int     `json:"string"`
	TimeMs float64 `json:"time_ms"`
	Hand   int     `json:"hand"`
	Finger int     `json:"finger"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Stats are tracker counters since construction.
type Stats struct {
	Frames       uint64 `json:"frames"`
	HandsSkipped uint64 `json:"hands_skipped"`
	Triggers     uint64 `json:"triggers"`
}

type fingerTrack struct {
	x    float64
	t    float64
	seen bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTriggerFunc registers a callback run synchronously for every trigger,
// in emission order.
func WithTriggerFunc(fn func(Trigger)) Option {
	return func(t *Tracker) { t.onTrigger = fn }
}

// Tracker detects fingertips sweeping across evenly spaced vertical strings.
// It is not safe for concurrent use.
type Tracker struct {
	numStrings int
	stringX    []float64
	debounce   []float64
	fingers    [MaxHands * FingerCount]fingerTrack // hand*FingerCount + finger
	onTrigger  func(Trigger)
	stats      Stats
}

// NewTracker creates a tracker for numStrings strings.
func NewTracker(numStrings int, opts ...Option) *Tracker {
	if numStrings < 0 {
		numStrings = 0
	}
	t := &Tracker{
		numStrings: numStrings,
		stringX:    make([]float64, numStrings),
		debounce:   make([]float64, numStrings),
	}
	for s := range t.stringX {
		t.stringX[s] = StringX(s, numStrings)
		t.debounce[s] = math.Inf(-1)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StringX is the mirrored x position of string s out of n.
func StringX(s, n int) float64 {
	return float64(s+1) / float64(n+1)
}

// NumStrings returns the string count.
func (t *Tracker) NumStrings() int {
	return t.numStrings
}

// Stats returns the counters.
func (t *Tracker) Stats() Stats {
	return t.stats
}

// ProcessFrame is Process for a decoded frame.
func (t *Tracker) ProcessFrame(f Frame) []Trigger {
	return t.Process(f.Hands, f.TimestampMs)
}

// Process advances every finger of the first MaxHands hands to nowMs and
// returns the triggers fired in this frame.
func (t *Tracker) Process(hands []Hand, nowMs float64) []Trigger {
	t.stats.Frames++
	var out []Trigger
	for hi, h := range hands {
		if hi >= MaxHands || !h.Valid() {
			t.stats.HandsSkipped++
			continue
		}
		for f := 0; f < FingerCount; f++ {
			out = t.processFinger(out, hi, f, h, nowMs)
		}
	}
	return out
}

func (t *Tracker) track(hand, finger int) *fingerTrack {
	return &t.fingers[hand*FingerCount+finger]
}

func (t *Tracker) processFinger(out []Trigger, hand, finger int, h Hand, now float64) []Trigger {
	tip := h.Tip(finger)
	x := 1 - tip.X
	y := tip.Y
	ft := t.track(hand, finger)

	if !h.IsOpen(finger) || !ft.seen {
		ft.x, ft.t, ft.seen = x, now, true
		return out
	}

	last := ft.x
	dt := now - ft.t
	velocity := 0.0
	if dt > 0 {
		velocity = math.Abs(x-last) / dt
	}

	if velocity > VelocityThreshold {
		inBand := y > BandMin && y < BandMax
		for s, sx := range t.stringX {
			crossed := (last < sx && sx <= x) || (last > sx && sx >= x)
			if !crossed || !inBand || now-t.debounce[s] <= DebounceWindow {
				continue
			}
			t.debounce[s] = now
			tr := Trigger{String: s, TimeMs: now, Hand: hand, Finger: finger, X: x, Y: y}
			t.stats.Triggers++
			out = append(out, tr)
			if t.onTrigger != nil {
				t.onTrigger(tr)
			}
		}
	}

	ft.x, ft.t = x, now
	return out
}
