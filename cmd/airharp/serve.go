package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-airharp/instrument"
	"github.com/cwbudde/algo-airharp/internal/config"
	"github.com/cwbudde/algo-airharp/midirec"
	"github.com/cwbudde/algo-airharp/output"
	"github.com/cwbudde/algo-airharp/preset"
	"github.com/cwbudde/algo-airharp/server"
	"github.com/cwbudde/algo-airharp/session"
	"github.com/cwbudde/algo-airharp/synth"
)

// initRetry is how often serve retries a failed audio device start.
const initRetry = 5 * time.Second

type serveFlags struct {
	addr       string
	sampleRate int
	bufferMs   int
	strings    int
	presetDir  string
	presetName string
	midiPath   string
}

var serveOpts serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live instrument",
	Long: `serve opens the audio device and accepts landmark frames over HTTP.
Settings come from AIRHARP_* environment variables and are overridden by
flags given on the command line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		f := cmd.Flags()
		if f.Changed("addr") {
			cfg.Addr = serveOpts.addr
		}
		if f.Changed("sample-rate") {
			cfg.SampleRate = serveOpts.sampleRate
		}
		if f.Changed("buffer-ms") {
			cfg.Buffer = time.Duration(serveOpts.bufferMs) * time.Millisecond
		}
		if f.Changed("strings") {
			cfg.Strings = serveOpts.strings
		}
		if f.Changed("preset-dir") {
			cfg.PresetDir = serveOpts.presetDir
		}
		if cfg.Debug && !debug {
			initLogger(true)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, serveOpts.presetName, serveOpts.midiPath)
	},
}

func init() {
	def := config.Default()
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.addr, "addr", def.Addr, "HTTP listen address")
	f.IntVar(&serveOpts.sampleRate, "sample-rate", def.SampleRate, "Audio device sample rate in Hz")
	f.IntVar(&serveOpts.bufferMs, "buffer-ms", int(def.Buffer/time.Millisecond), "Audio device buffer in ms")
	f.IntVar(&serveOpts.strings, "strings", def.Strings, "Number of strings")
	f.StringVar(&serveOpts.presetDir, "preset-dir", "", "Directory of preset JSON files, also where new presets are saved")
	f.StringVar(&serveOpts.presetName, "instrument", "", "Starting instrument name or id")
	f.StringVar(&serveOpts.midiPath, "midi", "", "Record played notes to this MIDI file on exit")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config, startName, midiPath string) error {
	log := slog.Default()

	presets := instrument.Builtins()
	if cfg.PresetDir != "" {
		extra, err := preset.LoadDir(cfg.PresetDir)
		if err != nil {
			return err
		}
		presets = mergePresets(presets, extra)
		log.Info("presets loaded", "dir", cfg.PresetDir, "count", len(extra))
	}
	start := instrument.Default()
	if startName != "" {
		st, ok := findPreset(presets, startName)
		if !ok {
			return fmt.Errorf("unknown instrument %q", startName)
		}
		start = st
	}

	speaker := output.NewSpeaker(cfg.SampleRate, cfg.Buffer)
	eng := synth.NewEngine(speaker,
		synth.WithConfig(start.Synth),
		synth.WithVoiceEndedFunc(func(v *synth.Voice) {
			log.Debug("voice ended", "id", v.ID(), "note", v.Note())
		}),
	)
	defer eng.Close()
	go initEngine(ctx, eng, log)

	sessOpts := []session.Option{session.WithInstrument(start), session.WithLogger(log)}
	var rec *midirec.Recorder
	if midiPath != "" {
		rec = midirec.New()
		sessOpts = append(sessOpts, session.WithRecorder(rec))
	}
	sess := session.New(eng, cfg.Strings, sessOpts...)

	srv := server.New(sess,
		server.WithLogger(log),
		server.WithPresets(presets),
		server.WithPresetDir(cfg.PresetDir),
		server.WithEngineStats(eng.Stats),
		server.WithAllowedOrigins(cfg.Origins),
	)
	err := srv.ListenAndServe(ctx, cfg.Addr)

	if rec != nil {
		if werr := rec.WriteFile(midiPath); werr != nil {
			log.Error("write midi", "path", midiPath, "err", werr)
		} else {
			log.Info("midi written", "path", midiPath, "notes", rec.Len())
		}
	}
	st := sess.Stats()
	log.Info("session ended", "frames", st.Frames, "notes", st.NotesPlayed, "faults", st.Faults)
	return err
}

// initEngine starts the audio output, retrying until it succeeds or ctx ends.
// Until then the engine ignores notes.
func initEngine(ctx context.Context, eng *synth.Engine, log *slog.Logger) {
	for {
		err := eng.Init(ctx)
		if err == nil {
			log.Info("audio ready", "sample_rate", eng.SampleRate())
			return
		}
		if !errors.Is(err, synth.ErrOutputUnavailable) {
			log.Error("audio init", "err", err)
			return
		}
		log.Warn("audio unavailable, retrying", "err", err, "in", initRetry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(initRetry):
		}
	}
}

// mergePresets appends extra to base; an extra preset replaces a base preset
// with the same id.
func mergePresets(base, extra []instrument.State) []instrument.State {
	out := append([]instrument.State(nil), base...)
	for _, st := range extra {
		replaced := false
		for i := range out {
			if out[i].ID == st.ID {
				out[i] = st
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, st)
		}
	}
	return out
}

func findPreset(list []instrument.State, nameOrID string) (instrument.State, bool) {
	if st, ok := instrument.Find(list, nameOrID); ok {
		return st, true
	}
	for _, st := range list {
		if st.Name == nameOrID {
			return st, true
		}
	}
	return instrument.State{}, false
}
