package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "atkd",
	Short: "Personal audio daemon",
	Long: `atkd is a long-lived daemon that decodes local audio files, renders
them to a PortAudio output device, and accepts playback-control commands
from short-lived client processes over a pair of named pipes.

Commands:
  - serve: run the daemon in the foreground`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
