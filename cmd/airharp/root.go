package main

import (
	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "airharp",
	Short: "Gesture-driven virtual string instrument",
	Long: `airharp turns hand-landmark frames into plucked notes.

serve runs the live instrument behind an HTTP endpoint, render replays
recorded landmark frames to WAV, note renders a single pluck, fit tunes a
synth config against a reference recording and analyze measures a WAV.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
