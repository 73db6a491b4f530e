package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-airharp/internal/wavio"
	"github.com/cwbudde/algo-airharp/output"
	"github.com/cwbudde/algo-airharp/synth"
)

type noteFlags struct {
	note       string
	presetPath string
	presetName string
	waveform   string
	sampleRate int
	decayDBFS  float64
	maxSeconds float64
	output     string
}

var noteOpts noteFlags

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Render a single pluck to a WAV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := loadInstrument(noteOpts.presetPath, noteOpts.presetName)
		if err != nil {
			return err
		}
		cfg := inst.Synth
		if noteOpts.waveform != "" {
			w, err := synth.ParseWaveform(noteOpts.waveform)
			if err != nil {
				return err
			}
			cfg.Waveform = w
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		fmt.Printf("Rendering %s (%s, %s) at %d Hz...\n", noteOpts.note, inst.Name, cfg.Waveform, noteOpts.sampleRate)
		samples, err := renderNote(cfg, noteOpts.note, noteOpts.sampleRate, noteOpts.decayDBFS, noteOpts.maxSeconds)
		if err != nil {
			return err
		}
		if err := wavio.WriteStereoInterleaved(noteOpts.output, samples, noteOpts.sampleRate); err != nil {
			return fmt.Errorf("write %s: %w", noteOpts.output, err)
		}
		fmt.Printf("Wrote %s (%.2fs)\n", noteOpts.output, float64(len(samples)/2)/float64(noteOpts.sampleRate))
		return nil
	},
}

func init() {
	f := noteCmd.Flags()
	f.StringVar(&noteOpts.note, "note", "A4", "Scientific pitch name")
	f.StringVar(&noteOpts.presetPath, "preset", "", "Instrument preset JSON file")
	f.StringVar(&noteOpts.presetName, "instrument", "", "Built-in instrument name or id")
	f.StringVar(&noteOpts.waveform, "waveform", "", "Override the waveform (sine, square, sawtooth, triangle)")
	f.IntVar(&noteOpts.sampleRate, "sample-rate", 48000, "Render sample rate in Hz")
	f.Float64Var(&noteOpts.decayDBFS, "decay-dbfs", -80, "Stop once the voice has ended and block RMS is below this dBFS")
	f.Float64Var(&noteOpts.maxSeconds, "max-duration", 10, "Maximum render length in seconds")
	f.StringVar(&noteOpts.output, "output", "note.wav", "Output WAV file path")
	rootCmd.AddCommand(noteCmd)
}

// renderNote plays one note on a fresh engine and renders until the voice
// has retired and the delay tail has fallen below decayDBFS.
func renderNote(cfg synth.Config, note string, sampleRate int, decayDBFS, maxSeconds float64) ([]float32, error) {
	out := output.NewOffline(sampleRate)
	eng := synth.NewEngine(out, synth.WithConfig(cfg))
	if err := eng.Init(context.Background()); err != nil {
		return nil, err
	}
	defer eng.Close()
	eng.PlayNote(note)

	threshold := wavio.DBFSToLinear(decayDBFS)
	maxFrames := int(maxSeconds * float64(sampleRate))
	samples := make([]float32, 0, int(cfg.Lifetime()*float64(sampleRate))*2)
	for rendered := 0; rendered < maxFrames; rendered += renderBlockSize {
		block := out.Pull(renderBlockSize)
		samples = append(samples, block...)
		if eng.ActiveVoices() == 0 && wavio.RMS(block) < threshold {
			break
		}
	}
	return samples, nil
}
