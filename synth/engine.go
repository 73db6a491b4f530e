package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-airharp/dsp"
)

const (
	// MasterLevel is the fixed gain applied to the summed voices.
	MasterLevel = 0.7
	// DelayTime is the echo spacing in seconds.
	DelayTime = 0.3
	// DelayFeedback is the echo loop gain. Must stay below 1.
	DelayFeedback = 0.3
	// DelayMixTimeConstant smooths delay-mix changes.
	DelayMixTimeConstant = 0.1
)

var (
	// ErrOutputUnavailable is returned by Init when the output device cannot
	// be started. The engine stays not-ready and Init may be retried.
	ErrOutputUnavailable = errors.New("synth: audio output unavailable")
	// ErrUnstableFeedback rejects delay feedback outside [0,1).
	ErrUnstableFeedback = errors.New("synth: delay feedback must be in [0,1)")
)

// Renderer fills interleaved stereo frames.
type Renderer interface {
	Render(dst []float32)
}

// Output is the sink the engine renders into.
type Output interface {
	SampleRate() int
	Suspended() bool
	Resume(ctx context.Context) error
	Attach(r Renderer)
	Close() error
}

// BusParams are the fixed settings of the persistent effects bus.
type BusParams struct {
	MasterLevel   float64
	DelayTime     float64
	DelayFeedback float64
	Limiter       dsp.LimiterParams
}

// DefaultBusParams returns the standard bus.
func DefaultBusParams() BusParams {
	return BusParams{
		MasterLevel:   MasterLevel,
		DelayTime:     DelayTime,
		DelayFeedback: DelayFeedback,
		Limiter:       dsp.DefaultLimiterParams(),
	}
}

// Stats are engine counters since construction.
type Stats struct {
	VoicesStarted uint64  `json:"voices_started"`
	VoicesEnded   uint64  `json:"voices_ended"`
	ActiveVoices  int     `json:"active_voices"`
	NotesIgnored  uint64  `json:"notes_ignored"`
	CurrentTime   float64 `json:"current_time"`
	ReductionDB   float64 `json:"limiter_reduction_db"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the initial voice config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithBus overrides the bus settings.
func WithBus(p BusParams) Option {
	return func(e *Engine) { e.bus = p }
}

// WithVoiceEndedFunc registers a hook called after a voice is disposed.
// It runs on the render goroutine, outside the engine lock.
func WithVoiceEndedFunc(fn func(*Voice)) Option {
	return func(e *Engine) { e.onVoiceEnded = fn }
}

// Engine mixes self-retiring voices through a master gain, a feedback delay
// and a limiter.
type Engine struct {
	out        Output
	sampleRate int
	bus        BusParams

	initMu sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool

	mu       sync.Mutex
	cfg      Config
	frames   int64
	nextID   uint64
	voices   []*Voice
	mix      []float32
	built    bool
	attached bool
	limiter  *dsp.Limiter
	delay    *dsp.FeedbackDelay
	delayMix *Param
	stats    Stats

	onVoiceEnded func(*Voice)
}

// NewEngine creates an engine bound to out. Nothing is audible until Init.
func NewEngine(out Output, opts ...Option) *Engine {
	e := &Engine{
		out:        out,
		sampleRate: out.SampleRate(),
		bus:        DefaultBusParams(),
		cfg:        DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init builds the bus and starts the output. Safe to call repeatedly.
func (e *Engine) Init(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.ready.Load() {
		return nil
	}
	if e.closed.Load() {
		return fmt.Errorf("%w: engine closed", ErrOutputUnavailable)
	}
	if err := e.buildGraph(); err != nil {
		return err
	}
	if e.out.Suspended() {
		if err := e.out.Resume(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputUnavailable, err)
		}
	}

	e.mu.Lock()
	attach := !e.attached
	e.attached = true
	e.mu.Unlock()
	if attach {
		e.out.Attach(e)
	}
	e.ready.Store(true)
	return nil
}

func (e *Engine) buildGraph() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.built {
		return nil
	}
	if e.sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrOutputUnavailable, e.sampleRate)
	}
	if e.bus.DelayFeedback < 0 || e.bus.DelayFeedback >= 1 {
		return fmt.Errorf("%w: got %v", ErrUnstableFeedback, e.bus.DelayFeedback)
	}
	lim, err := dsp.NewLimiter(e.sampleRate, e.bus.Limiter)
	if err != nil {
		return fmt.Errorf("limiter: %w", err)
	}
	delaySamples := max(1, int(e.bus.DelayTime*float64(e.sampleRate)+0.5))
	delay, ok := dsp.NewFeedbackDelay(delaySamples, float32(e.bus.DelayFeedback))
	if !ok {
		return fmt.Errorf("%w: got %v", ErrUnstableFeedback, e.bus.DelayFeedback)
	}
	e.limiter = lim
	e.delay = delay
	e.delayMix = NewParam(e.cfg.DelayMix)
	e.built = true
	return nil
}

// Ready reports whether Init has succeeded and Close has not been called.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// SampleRate of the bound output.
func (e *Engine) SampleRate() int {
	return e.sampleRate
}

// Config returns the active voice config.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig swaps the active config. Only the delay mix follows the new
// value on the bus; sounding voices keep the config they started with.
func (e *Engine) UpdateConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	if !e.built {
		return
	}
	now := e.now()
	e.delayMix.CancelAndHoldAtTime(now)
	e.delayMix.SetTargetAtTime(cfg.DelayMix, now, DelayMixTimeConstant)
}

// DelayMixAt evaluates the scheduled delay mix at t.
func (e *Engine) DelayMixAt(t float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.delayMix == nil {
		return e.cfg.DelayMix
	}
	return e.delayMix.ValueAt(t)
}

// PlayNote starts a voice for the named note at the current audio time.
// Before Init or after Close it does nothing.
func (e *Engine) PlayNote(name string) {
	if !e.ready.Load() {
		e.mu.Lock()
		e.stats.NotesIgnored++
		e.mu.Unlock()
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	v := newVoice(e.nextID, name, e.cfg, e.now(), e.sampleRate)
	e.voices = append(e.voices, v)
	e.stats.VoicesStarted++
}

// CurrentTime is the audio clock in seconds: the time of the next frame.
func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now()
}

func (e *Engine) now() float64 {
	return float64(e.frames) / float64(e.sampleRate)
}

// ActiveVoices is the number of voices not yet disposed.
func (e *Engine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

// Voices returns a snapshot of the sounding voices.
func (e *Engine) Voices() []*Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Voice, len(e.voices))
	copy(out, e.voices)
	return out
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.ActiveVoices = len(e.voices)
	s.CurrentTime = e.now()
	if e.limiter != nil {
		s.ReductionDB = float64(e.limiter.ReductionDB())
	}
	return s
}

// Process renders numFrames of interleaved stereo.
func (e *Engine) Process(numFrames int) []float32 {
	out := make([]float32, numFrames*2)
	e.Render(out)
	return out
}

// Render fills dst with interleaved stereo and advances the clock.
// Before the bus exists dst is silenced and the clock still advances.
func (e *Engine) Render(dst []float32) {
	ended := e.render(dst)
	if e.onVoiceEnded != nil {
		for _, v := range ended {
			e.onVoiceEnded(v)
		}
	}
}

func (e *Engine) render(dst []float32) []*Voice {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(dst) / 2
	if !e.built {
		clear(dst)
		e.frames += int64(n)
		return nil
	}
	if cap(e.mix) < n {
		e.mix = make([]float32, n)
	}
	mix := e.mix[:n]
	clear(mix)

	t0 := e.now()
	dt := 1 / float64(e.sampleRate)
	for _, v := range e.voices {
		v.render(mix, t0, dt)
	}

	master := float32(e.bus.MasterLevel)
	for i := 0; i < n; i++ {
		m := mix[i] * master
		wet := e.delay.Process(m) * float32(e.delayMix.ValueAt(t0+float64(i)*dt))
		y := e.limiter.Process(m + wet)
		dst[2*i] = y
		dst[2*i+1] = y
	}
	e.frames += int64(n)

	var ended []*Voice
	keep := e.voices[:0]
	for _, v := range e.voices {
		if v.ended {
			v.dispose()
			e.stats.VoicesEnded++
			ended = append(ended, v)
			continue
		}
		keep = append(keep, v)
	}
	clear(e.voices[len(keep):])
	e.voices = keep
	return ended
}

// Close stops accepting notes and releases the output.
func (e *Engine) Close() error {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.closed.Swap(true) {
		return nil
	}
	e.ready.Store(false)
	return e.out.Close()
}
