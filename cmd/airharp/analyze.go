package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-airharp/analysis"
	"github.com/cwbudde/algo-airharp/internal/wavio"
	"github.com/cwbudde/algo-airharp/notes"
)

type analyzeFlags struct {
	compare string
	asJSON  bool
}

var analyzeOpts analyzeFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.wav>",
	Short: "Measure pitch, level and decay of a WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, sr, err := wavio.ReadMono(args[0])
		if err != nil {
			return err
		}
		sum := summarize(x, sr)
		var cmp *analysis.Metrics
		if analyzeOpts.compare != "" {
			ref, refRate, err := wavio.ReadMono(analyzeOpts.compare)
			if err != nil {
				return err
			}
			if refRate != sr {
				if ref, err = wavio.Resample(ref, refRate, sr); err != nil {
					return fmt.Errorf("resample %s: %w", analyzeOpts.compare, err)
				}
			}
			m := analysis.Compare(ref, x, sr)
			cmp = &m
		}

		if analyzeOpts.asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Summary summary           `json:"summary"`
				Compare *analysis.Metrics `json:"compare,omitempty"`
			}{sum, cmp})
		}
		printSummary(args[0], sum)
		if cmp != nil {
			fmt.Printf("Against %s: score=%.4f similarity=%.2f%% envelope=%.2fdB spectrum=%.2fdB decay diff=%.2fdB/s attack diff=%.1fms\n",
				analyzeOpts.compare, cmp.Score, cmp.Similarity*100, cmp.EnvelopeRMSEDB, cmp.SpectralRMSEDB, cmp.DecayDiffDBPerS, cmp.AttackDiffMs)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeOpts.compare, "compare", "", "Reference WAV to score the file against")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.asJSON, "json", false, "Print JSON instead of text")
	rootCmd.AddCommand(analyzeCmd)
}

type summary struct {
	SampleRate  int     `json:"sample_rate"`
	DurationSec float64 `json:"duration_sec"`
	PeakDBFS    float64 `json:"peak_dbfs"`
	RMSDBFS     float64 `json:"rms_dbfs"`
	AttackMs    float64 `json:"attack_ms"`
	DecayDBPerS float64 `json:"decay_db_per_s,omitempty"`
	PitchHz     float64 `json:"pitch_hz,omitempty"`
	Note        string  `json:"note,omitempty"`
	Cents       float64 `json:"cents,omitempty"`
}

func summarize(x []float64, sampleRate int) summary {
	s := summary{
		SampleRate:  sampleRate,
		DurationSec: float64(len(x)) / float64(sampleRate),
		PeakDBFS:    analysis.DB(analysis.Peak(x)),
		RMSDBFS:     analysis.DB(analysis.RMS(x)),
		AttackMs:    1000 * analysis.AttackTime(x, sampleRate),
	}
	if on := analysis.Onset(x, 0.05); on >= 0 {
		env := analysis.Envelope(x[on:], analysis.EnvelopeFrame, analysis.EnvelopeHop)
		if d := analysis.DecaySlope(env, float64(analysis.EnvelopeHop)/float64(sampleRate)); !math.IsNaN(d) {
			s.DecayDBPerS = d
		}
	}
	if hz, err := analysis.EstimatePitch(x, sampleRate); err == nil {
		s.PitchHz = hz
		midi, cents := analysis.CentsOff(hz)
		if midi >= notes.LowestMIDI && midi <= notes.HighestMIDI {
			s.Note = notes.Name(midi)
			s.Cents = cents
		}
	}
	return s
}

func printSummary(path string, s summary) {
	fmt.Printf("%s: %.3fs at %d Hz\n", path, s.DurationSec, s.SampleRate)
	fmt.Printf("  peak %.1f dBFS, rms %.1f dBFS, attack %.1f ms\n", s.PeakDBFS, s.RMSDBFS, s.AttackMs)
	if s.DecayDBPerS != 0 {
		fmt.Printf("  decay %.2f dB/s\n", s.DecayDBPerS)
	}
	switch {
	case s.Note != "":
		fmt.Printf("  pitch %.2f Hz (%s %+.1f cents)\n", s.PitchHz, s.Note, s.Cents)
	case s.PitchHz > 0:
		fmt.Printf("  pitch %.2f Hz\n", s.PitchHz)
	default:
		fmt.Println("  no pitch found")
	}
}
