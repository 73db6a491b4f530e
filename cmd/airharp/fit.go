package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/mayfly"
	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-airharp/analysis"
	"github.com/cwbudde/algo-airharp/instrument"
	"github.com/cwbudde/algo-airharp/internal/wavio"
	"github.com/cwbudde/algo-airharp/notes"
	"github.com/cwbudde/algo-airharp/preset"
	"github.com/cwbudde/algo-airharp/synth"
)

type knobDef struct {
	Name  string
	Min   float64
	Max   float64
	Log   bool
	IsInt bool
}

// fitKnobs are the synth parameters searched by fit, in normalized order.
var fitKnobs = []knobDef{
	{Name: "waveform", Min: 0, Max: 3, IsInt: true},
	{Name: "attack", Min: 0.001, Max: 0.5, Log: true},
	{Name: "decay", Min: 0.01, Max: 3, Log: true},
	{Name: "sustain", Min: 0, Max: 1},
	{Name: "release", Min: 0.05, Max: 4, Log: true},
	{Name: "filter_cutoff", Min: 200, Max: 12000, Log: true},
}

type fitFlags struct {
	reference   string
	note        string
	presetPath  string
	presetName  string
	variant     string
	pop         int
	roundEvals  int
	maxEvals    int
	timeBudget  float64
	workers     int
	seed        int64
	reportEvery int
	topK        int
	maxSeconds  float64
	output      string
	report      string
}

var fitOpts fitFlags

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit a synth config to a reference pluck recording",
	Long: `fit searches waveform, envelope and filter cutoff with a mayfly
optimizer, scoring each candidate pluck against the reference WAV.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFitCommand(fitOpts)
	},
}

func init() {
	f := fitCmd.Flags()
	f.StringVar(&fitOpts.reference, "reference", "", "Reference pluck WAV (required)")
	f.StringVar(&fitOpts.note, "note", "", "Note of the reference (detected from the recording when empty)")
	f.StringVar(&fitOpts.presetPath, "preset", "", "Starting preset JSON file")
	f.StringVar(&fitOpts.presetName, "instrument", "", "Starting built-in instrument name or id")
	f.StringVar(&fitOpts.variant, "variant", "desma", "Mayfly variant: ma, desma, olce, eobbma, gsasma, mpma, aoblmoa")
	f.IntVar(&fitOpts.pop, "pop", 10, "Mayfly population")
	f.IntVar(&fitOpts.roundEvals, "round-evals", 200, "Evaluations per mayfly round")
	f.IntVar(&fitOpts.maxEvals, "max-evals", 1000, "Total evaluation budget")
	f.Float64Var(&fitOpts.timeBudget, "time-budget", 120, "Wall clock budget in seconds")
	f.IntVar(&fitOpts.workers, "workers", 0, "Parallel workers (0 = GOMAXPROCS)")
	f.Int64Var(&fitOpts.seed, "seed", 1, "Random seed")
	f.IntVar(&fitOpts.reportEvery, "report-every", 50, "Print progress every N evaluations")
	f.IntVar(&fitOpts.topK, "top-k", 5, "Candidates kept in the report")
	f.Float64Var(&fitOpts.maxSeconds, "max-duration", 6, "Longest candidate render in seconds")
	f.StringVar(&fitOpts.output, "output", "fit.json", "Output preset JSON path")
	f.StringVar(&fitOpts.report, "report", "", "Optional JSON report path")
	rootCmd.AddCommand(fitCmd)
}

type fitSettings struct {
	reference   []float64
	sampleRate  int
	note        string
	base        synth.Config
	variant     string
	pop         int
	roundEvals  int
	maxEvals    int
	timeBudget  float64
	workers     int
	seed        int64
	reportEvery int
	topK        int
	maxSeconds  float64
}

type topCandidate struct {
	Eval       int                `json:"eval"`
	Score      float64            `json:"score"`
	Similarity float64            `json:"similarity"`
	Knobs      map[string]float64 `json:"knobs"`
}

type fitResult struct {
	Note       string           `json:"note"`
	Config     synth.Config     `json:"config"`
	Metrics    analysis.Metrics `json:"metrics"`
	Start      analysis.Metrics `json:"start_metrics"`
	Evals      int              `json:"evals"`
	ElapsedSec float64          `json:"elapsed_sec"`
	Top        []topCandidate   `json:"top"`
}

func runFitCommand(o fitFlags) error {
	if o.reference == "" {
		return fmt.Errorf("--reference is required")
	}
	inst, err := loadInstrument(o.presetPath, o.presetName)
	if err != nil {
		return err
	}
	ref, sr, err := wavio.ReadMono(o.reference)
	if err != nil {
		return fmt.Errorf("read reference: %w", err)
	}

	base := inst.Synth
	note := o.note
	if note == "" {
		note, base.Detune, err = detectNote(ref, sr)
		if err != nil {
			return err
		}
		fmt.Printf("Detected note %s (%+.1f cents)\n", note, base.Detune)
	}

	fmt.Printf("Fitting %s at %d Hz against %s (%s, pop=%d, max-evals=%d)\n",
		note, sr, o.reference, o.variant, o.pop, o.maxEvals)
	res, err := runFit(fitSettings{
		reference:   ref,
		sampleRate:  sr,
		note:        note,
		base:        base,
		variant:     strings.ToLower(o.variant),
		pop:         o.pop,
		roundEvals:  o.roundEvals,
		maxEvals:    o.maxEvals,
		timeBudget:  o.timeBudget,
		workers:     o.workers,
		seed:        o.seed,
		reportEvery: o.reportEvery,
		topK:        o.topK,
		maxSeconds:  o.maxSeconds,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Done: evals=%d elapsed=%.1fs score %.4f -> %.4f (similarity %.2f%%)\n",
		res.Evals, res.ElapsedSec, res.Start.Score, res.Metrics.Score, res.Metrics.Similarity*100)

	name := strings.TrimSuffix(filepath.Base(o.reference), filepath.Ext(o.reference)) + " fit"
	st := instrument.State{
		ID:          instrument.IDFor(name),
		Name:        name,
		Description: fmt.Sprintf("Fitted to %s (%s), score %.4f", filepath.Base(o.reference), note, res.Metrics.Score),
		Notes:       inst.Notes,
		Synth:       res.Config,
	}
	if err := preset.SaveJSON(o.output, st); err != nil {
		return fmt.Errorf("write preset: %w", err)
	}
	fmt.Printf("Wrote %s\n", o.output)

	if o.report != "" {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.report, append(b, '\n'), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("Wrote %s\n", o.report)
	}
	return nil
}

// detectNote names the pitch of ref and returns its deviation in cents.
func detectNote(ref []float64, sampleRate int) (string, float64, error) {
	hz, err := analysis.EstimatePitch(ref, sampleRate)
	if err != nil {
		return "", 0, fmt.Errorf("detect note: %w", err)
	}
	midi, cents := analysis.CentsOff(hz)
	if midi < notes.LowestMIDI || midi > notes.HighestMIDI {
		return "", 0, fmt.Errorf("detect note: %.1f Hz is outside the note table", hz)
	}
	return notes.Name(midi), math.Round(cents*10) / 10, nil
}

type fitState struct {
	mu      sync.Mutex
	best    synth.Config
	metrics analysis.Metrics
	top     []topCandidate
}

func (s *fitState) bestScore() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.Score
}

func runFit(s fitSettings) (fitResult, error) {
	if s.pop < 2 {
		return fitResult{}, fmt.Errorf("pop must be >= 2")
	}
	if _, err := newMayflyConfig(s.variant, s.pop, len(fitKnobs), 1); err != nil {
		return fitResult{}, err
	}
	start := time.Now()
	deadline := start.Add(time.Duration(s.timeBudget * float64(time.Second)))

	startMetrics, err := evaluateConfig(s, s.base)
	if err != nil {
		return fitResult{}, fmt.Errorf("initial evaluation failed: %w", err)
	}
	fmt.Printf("Start score=%.4f similarity=%.2f%%\n", startMetrics.Score, startMetrics.Similarity*100)

	state := &fitState{best: s.base, metrics: startMetrics}
	state.top = updateTopCandidates(nil, s.topK, 1, startMetrics, knobValues(s.base))

	var evals int64 = 1
	var rounds int64
	workers := s.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = max(workers, 1)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if time.Now().After(deadline) || atomic.LoadInt64(&evals) >= int64(s.maxEvals) {
					return
				}
				round := atomic.AddInt64(&rounds, 1)
				remaining := s.maxEvals - int(atomic.LoadInt64(&evals))
				if remaining <= 0 {
					return
				}
				budget := min(s.roundEvals, remaining)
				iters := max(1, budget/(2*s.pop))

				cfg, err := newMayflyConfig(s.variant, s.pop, len(fitKnobs), iters)
				if err != nil {
					return
				}
				cfg.Rand = rand.New(rand.NewSource(s.seed + round*7919))
				cfg.ObjectiveFunc = func(pos []float64) float64 {
					if time.Now().After(deadline) {
						return state.bestScore() + 1
					}
					evalNum, ok := reserveEval(&evals, s.maxEvals)
					if !ok {
						return state.bestScore() + 1
					}
					vals := fromNormalized(pos, fitKnobs)
					cand := applyKnobs(s.base, vals)
					m, err := evaluateConfig(s, cand)
					if err != nil {
						return state.bestScore() + 0.8
					}

					state.mu.Lock()
					state.top = updateTopCandidates(state.top, s.topK, int(evalNum), m, vals)
					improved := m.Score < state.metrics.Score
					if improved {
						state.best = cand
						state.metrics = m
					}
					best := state.metrics.Score
					state.mu.Unlock()

					if improved {
						fmt.Printf("Improved eval=%d score=%.4f sim=%.2f%%\n", evalNum, m.Score, m.Similarity*100)
					}
					if s.reportEvery > 0 && evalNum%int64(s.reportEvery) == 0 {
						fmt.Printf("Progress eval=%d/%d elapsed=%.1fs best=%.4f\n", evalNum, s.maxEvals, time.Since(start).Seconds(), best)
					}
					return m.Score
				}
				if _, err := runMayfly(cfg); err != nil {
					fmt.Fprintf(os.Stderr, "mayfly round %d failed: %v\n", round, err)
				}
			}
		}()
	}
	wg.Wait()

	state.mu.Lock()
	defer state.mu.Unlock()
	return fitResult{
		Note:       s.note,
		Config:     state.best,
		Metrics:    state.metrics,
		Start:      startMetrics,
		Evals:      int(atomic.LoadInt64(&evals)),
		ElapsedSec: time.Since(start).Seconds(),
		Top:        state.top,
	}, nil
}

func evaluateConfig(s fitSettings, cfg synth.Config) (analysis.Metrics, error) {
	if err := cfg.Validate(); err != nil {
		return analysis.Metrics{}, err
	}
	st, err := renderNote(cfg, s.note, s.sampleRate, -90, s.maxSeconds)
	if err != nil {
		return analysis.Metrics{}, err
	}
	return analysis.Compare(s.reference, wavio.StereoToMono64(st), s.sampleRate), nil
}

func newMayflyConfig(variant string, pop int, dims int, iters int) (*mayfly.Config, error) {
	var cfg *mayfly.Config
	switch variant {
	case "ma":
		cfg = mayfly.NewDefaultConfig()
	case "desma":
		cfg = mayfly.NewDESMAConfig()
	case "olce":
		cfg = mayfly.NewOLCEConfig()
	case "eobbma":
		cfg = mayfly.NewEOBBMAConfig()
	case "gsasma":
		cfg = mayfly.NewGSASMAConfig()
	case "mpma":
		cfg = mayfly.NewMPMAConfig()
	case "aoblmoa":
		cfg = mayfly.NewAOBLMOAConfig()
	default:
		return nil, fmt.Errorf("unsupported variant %q", variant)
	}
	cfg.ProblemSize = dims
	cfg.LowerBound = 0
	cfg.UpperBound = 1
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	cfg.NC = 2 * pop
	cfg.NM = max(1, int(math.Round(0.05*float64(pop))))
	return cfg, nil
}

func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}

func reserveEval(evals *int64, maxEvals int) (int64, bool) {
	for {
		cur := atomic.LoadInt64(evals)
		if cur >= int64(maxEvals) {
			return 0, false
		}
		if atomic.CompareAndSwapInt64(evals, cur, cur+1) {
			return cur + 1, true
		}
	}
}

// fromNormalized maps a position in [0,1]^n onto the knob ranges. Log knobs
// are interpolated geometrically.
func fromNormalized(pos []float64, defs []knobDef) []float64 {
	vals := make([]float64, len(defs))
	for i, d := range defs {
		x := 0.0
		if i < len(pos) {
			x = math.Max(0, math.Min(1, pos[i]))
		}
		var v float64
		switch {
		case d.IsInt:
			v = math.Min(math.Floor(d.Min+x*(d.Max-d.Min+1)), d.Max)
		case d.Log:
			v = d.Min * math.Pow(d.Max/d.Min, x)
		default:
			v = d.Min + x*(d.Max-d.Min)
		}
		vals[i] = v
	}
	return vals
}

func applyKnobs(base synth.Config, vals []float64) synth.Config {
	cfg := base
	cfg.Waveform = synth.Waveform(int(vals[0]))
	cfg.Attack = vals[1]
	cfg.Decay = vals[2]
	cfg.Sustain = vals[3]
	cfg.Release = vals[4]
	cfg.FilterCutoff = vals[5]
	return cfg
}

func knobValues(cfg synth.Config) []float64 {
	return []float64{float64(cfg.Waveform), cfg.Attack, cfg.Decay, cfg.Sustain, cfg.Release, cfg.FilterCutoff}
}

func updateTopCandidates(top []topCandidate, topK int, eval int, m analysis.Metrics, vals []float64) []topCandidate {
	if topK < 1 {
		return top
	}
	entry := topCandidate{
		Eval:       eval,
		Score:      m.Score,
		Similarity: m.Similarity,
		Knobs:      make(map[string]float64, len(fitKnobs)),
	}
	for i, d := range fitKnobs {
		entry.Knobs[d.Name] = vals[i]
	}
	top = append(top, entry)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score < top[j].Score })
	if len(top) > topK {
		top = top[:topK]
	}
	return top
}
