// Package main provides the entry point for the short-form assembler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shortform",
	Short: "Combine MP4 clips into one vertical short-form video",
	Long: `shortform trims, letterboxes and joins up to ten MP4 clips into a single
vertical video that fits under a file size ceiling, plus a JPEG thumbnail.

Examples:
  # Start the browser UI
  shortform serve

  # Render two clips from the command line
  shortform render --clip intro.mp4@0+6 --clip main.mp4 --transition 0.5`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(renderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
