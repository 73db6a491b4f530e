package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-airharp/dsp"
	"github.com/cwbudde/algo-airharp/gesture"
	"github.com/cwbudde/algo-airharp/instrument"
	"github.com/cwbudde/algo-airharp/internal/wavio"
	"github.com/cwbudde/algo-airharp/midirec"
	"github.com/cwbudde/algo-airharp/output"
	"github.com/cwbudde/algo-airharp/preset"
	"github.com/cwbudde/algo-airharp/session"
	"github.com/cwbudde/algo-airharp/synth"
)

const renderBlockSize = 128

type renderFlags struct {
	frames          string
	sweepMs         float64
	presetPath      string
	presetName      string
	sampleRate      int
	outputRate      int
	strings         int
	decayDBFS       float64
	decayHoldBlocks int
	maxTail         float64
	roomIR          string
	roomWet         float64
	midiPath        string
	output          string
}

var renderOpts renderFlags

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Replay landmark frames through the instrument into a WAV file",
	Long: `render reads landmark frames (one JSON object per line, as posted to
/api/frames) and plays them through a full session at their recorded times.
With --sweep it synthesizes a pointing hand sweeping across every string.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRender(renderOpts)
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderOpts.frames, "frames", "", "JSONL landmark frames to replay")
	f.Float64Var(&renderOpts.sweepMs, "sweep", 0, "Instead of --frames, sweep one finger across all strings over this many ms")
	f.StringVar(&renderOpts.presetPath, "preset", "", "Instrument preset JSON file")
	f.StringVar(&renderOpts.presetName, "instrument", "", "Built-in instrument name or id")
	f.IntVar(&renderOpts.sampleRate, "sample-rate", 48000, "Render sample rate in Hz")
	f.IntVar(&renderOpts.outputRate, "output-rate", 0, "Resample the result to this rate (0 = render rate)")
	f.IntVar(&renderOpts.strings, "strings", 12, "Number of strings")
	f.Float64Var(&renderOpts.decayDBFS, "decay-dbfs", -80, "Stop the tail once block RMS stays below this dBFS")
	f.IntVar(&renderOpts.decayHoldBlocks, "decay-hold-blocks", 6, "Consecutive quiet blocks required to stop")
	f.Float64Var(&renderOpts.maxTail, "max-tail", 10, "Longest tail after the last frame, in seconds")
	f.StringVar(&renderOpts.roomIR, "room-ir", "", "Convolve the result with this room IR WAV, or \"synth\" for a generated room")
	f.Float64Var(&renderOpts.roomWet, "room-wet", 0.35, "Wet level of the room IR")
	f.StringVar(&renderOpts.midiPath, "midi", "", "Also write the played notes as a MIDI file")
	f.StringVar(&renderOpts.output, "output", "airharp.wav", "Output WAV file path")
	rootCmd.AddCommand(renderCmd)
}

func runRender(o renderFlags) error {
	inst, err := loadInstrument(o.presetPath, o.presetName)
	if err != nil {
		return err
	}

	var frames []gesture.Frame
	switch {
	case o.frames != "":
		frames, err = readFramesFile(o.frames)
		if err != nil {
			return err
		}
	case o.sweepMs > 0:
		frames = sweepFrames(o.sweepMs, 60)
	default:
		return fmt.Errorf("one of --frames or --sweep is required")
	}

	var rec *midirec.Recorder
	if o.midiPath != "" {
		rec = midirec.New()
	}

	settings := renderSettings{
		sampleRate:      o.sampleRate,
		strings:         o.strings,
		inst:            inst,
		decayDBFS:       o.decayDBFS,
		decayHoldBlocks: o.decayHoldBlocks,
		maxTail:         o.maxTail,
	}
	if rec != nil {
		settings.recorder = rec
	}

	fmt.Printf("Rendering %d frames with %q at %d Hz...\n", len(frames), inst.Name, o.sampleRate)
	res, err := renderFrames(frames, settings)
	if err != nil {
		return err
	}
	fmt.Printf("Notes played: %d, triggers: %d, hands skipped: %d\n",
		res.session.NotesPlayed, res.session.Tracker.Triggers, res.session.Tracker.HandsSkipped)

	samples := res.samples
	if o.roomIR != "" {
		samples, err = applyRoom(samples, o.sampleRate, o.roomIR, float32(o.roomWet))
		if err != nil {
			return err
		}
	}
	rate := o.sampleRate
	if o.outputRate > 0 && o.outputRate != rate {
		samples, err = wavio.ResampleInterleaved(samples, rate, o.outputRate)
		if err != nil {
			return fmt.Errorf("resample to %d Hz: %w", o.outputRate, err)
		}
		rate = o.outputRate
	}

	if err := wavio.WriteStereoInterleaved(o.output, samples, rate); err != nil {
		return fmt.Errorf("write %s: %w", o.output, err)
	}
	fmt.Printf("Wrote %s (%.2fs, %d Hz)\n", o.output, float64(len(samples)/2)/float64(rate), rate)

	if rec != nil {
		if err := rec.WriteFile(o.midiPath); err != nil {
			return fmt.Errorf("write %s: %w", o.midiPath, err)
		}
		fmt.Printf("Wrote %s (%d notes)\n", o.midiPath, rec.Len())
	}
	return nil
}

// loadInstrument picks a preset file, a built-in by name or id, or the
// default instrument.
func loadInstrument(path, name string) (instrument.State, error) {
	if path != "" {
		st, err := preset.LoadJSON(path)
		if err != nil {
			return instrument.State{}, err
		}
		return *st, nil
	}
	if name == "" {
		return instrument.Default(), nil
	}
	for _, st := range instrument.Builtins() {
		if strings.EqualFold(st.Name, name) || st.ID == name {
			return st, nil
		}
	}
	return instrument.State{}, fmt.Errorf("unknown instrument %q", name)
}

func readFramesFile(path string) ([]gesture.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	frames, err := readFrames(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return frames, nil
}

// readFrames decodes one frame per non-empty line and orders them by
// timestamp.
func readFrames(r io.Reader) ([]gesture.Frame, error) {
	var frames []gesture.Frame
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := strings.TrimSpace(sc.Text())
		if b == "" || strings.HasPrefix(b, "#") {
			continue
		}
		var fr gesture.Frame
		if err := json.Unmarshal([]byte(b), &fr); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, fr)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames")
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].TimestampMs < frames[j].TimestampMs })
	return frames, nil
}

// sweepFrames moves one extended index finger from left to right across the
// play band over durMs, sampled at fps.
func sweepFrames(durMs float64, fps float64) []gesture.Frame {
	step := 1000 / fps
	n := int(math.Round(durMs*fps/1000)) + 1
	frames := make([]gesture.Frame, n)
	for i := range frames {
		t := float64(i) * step
		x := 0.05 + 0.9*t/durMs
		frames[i] = gesture.Frame{
			TimestampMs: t,
			Hands:       []gesture.Hand{gesture.PointingHand(math.Min(x, 0.95), 0.5, true)},
		}
	}
	return frames
}

type renderSettings struct {
	sampleRate      int
	strings         int
	inst            instrument.State
	decayDBFS       float64
	decayHoldBlocks int
	maxTail         float64
	recorder        session.Recorder
}

type renderResult struct {
	samples []float32
	session session.Stats
	engine  synth.Stats
}

// renderFrames drives a session over an offline output, feeding each frame
// once the audio clock reaches its timestamp, then renders the tail until
// every voice has ended and the output has decayed.
func renderFrames(frames []gesture.Frame, s renderSettings) (renderResult, error) {
	if len(frames) == 0 {
		return renderResult{}, fmt.Errorf("no frames")
	}
	out := output.NewOffline(s.sampleRate)
	eng := synth.NewEngine(out, synth.WithConfig(s.inst.Synth))
	if err := eng.Init(context.Background()); err != nil {
		return renderResult{}, err
	}
	defer eng.Close()

	opts := []session.Option{session.WithInstrument(s.inst), session.WithLogger(slog.Default())}
	if s.recorder != nil {
		opts = append(opts, session.WithRecorder(s.recorder))
	}
	sess := session.New(eng, s.strings, opts...)

	sr := float64(s.sampleRate)
	t0 := frames[0].TimestampMs
	var samples []float32
	rendered := 0
	for _, f := range frames {
		target := int(math.Round((f.TimestampMs - t0) / 1000 * sr))
		for rendered < target {
			n := min(renderBlockSize, target-rendered)
			samples = append(samples, out.Pull(n)...)
			rendered += n
		}
		if _, err := sess.HandleFrame(f); err != nil {
			slog.Warn("frame dropped", "err", err)
		}
	}

	threshold := wavio.DBFSToLinear(s.decayDBFS)
	hold := max(s.decayHoldBlocks, 1)
	maxTail := int(s.maxTail * sr)
	below := 0
	for tail := 0; tail < maxTail; tail += renderBlockSize {
		block := out.Pull(renderBlockSize)
		samples = append(samples, block...)
		if eng.ActiveVoices() > 0 || wavio.RMS(block) >= threshold {
			below = 0
			continue
		}
		below++
		if below >= hold {
			break
		}
	}
	return renderResult{samples: samples, session: sess.Stats(), engine: eng.Stats()}, nil
}

// synthRoom selects the generated room response instead of an IR file.
const synthRoom = "synth"

// applyRoom convolves samples with a room IR and appends the reverb tail.
func applyRoom(samples []float32, sampleRate int, irPath string, wet float32) ([]float32, error) {
	conv := dsp.NewRoomConvolver(sampleRate)
	if irPath == synthRoom {
		l, r, err := dsp.SynthRoomIR(sampleRate, dsp.DefaultRoomIRParams())
		if err != nil {
			return nil, fmt.Errorf("room IR: %w", err)
		}
		if err := conv.SetIR(l, r); err != nil {
			return nil, fmt.Errorf("room IR: %w", err)
		}
	} else if err := conv.SetIRFromWAV(irPath); err != nil {
		return nil, fmt.Errorf("room IR %s: %w", irPath, err)
	}
	conv.SetMix(wet, 1-wet)
	padded := make([]float32, len(samples)+conv.TailFrames()*2)
	copy(padded, samples)
	return conv.Process(padded), nil
}
