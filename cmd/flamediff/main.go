// Command flamediff renders a differential flame graph comparing two
// folded stack profiles.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flamegen/internal/pipeline"
	"github.com/flamegen/pkg/utils"
	"github.com/flamegen/pkg/version"
)

var (
	beforePath string
	afterPath  string
	outputPath string
	title      string
	width      int
	minWidth   float64
	verbose    bool
)

func binName() string {
	return filepath.Base(os.Args[0])
}

var rootCmd = &cobra.Command{
	Use:   "flamediff [before-file] [after-file]",
	Short: "Generate a differential flame graph from two folded stack profiles",
	Long: `flamediff compares two collapsed stack profiles and renders an SVG flame
graph colored by the change in sample share. Frames that grew are shaded
red, frames that shrank are shaded blue, and unchanged frames stay gray.

Sample counts are normalized to each profile's total, so profiles of
different durations compare meaningfully.`,
	Args: cobra.MaximumNArgs(2),
	RunE: run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.String(binName()))
	},
}

func init() {
	bin := binName()
	rootCmd.Example = `  # Compare two profiles
  ` + bin + ` before.folded after.folded -o diff.svg

  # Flag form
  ` + bin + ` --before before.folded --after after.folded > diff.svg`

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.Flags().StringVarP(&beforePath, "before", "a", "", "Baseline profile")
	rootCmd.Flags().StringVarP(&afterPath, "after", "b", "", "Comparison profile")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "-", "Output SVG file (\"-\" for stdout)")
	rootCmd.Flags().StringVarP(&title, "title", "t", "Differential Flame Graph", "Graph title")
	rootCmd.Flags().IntVarP(&width, "width", "w", 1200, "SVG canvas width in pixels")
	rootCmd.Flags().Float64Var(&minWidth, "min-width", 0.1, "Minimum frame width in pixels")

	rootCmd.AddCommand(versionCmd)
}

func run(cmd *cobra.Command, args []string) error {
	logLevel := utils.LevelInfo
	if verbose {
		logLevel = utils.LevelDebug
	}
	logger := utils.NewDefaultLogger(logLevel, os.Stderr)
	utils.SetGlobalLogger(logger)

	// Positional arguments fill whichever of --before/--after was not
	// given, so flags and positionals mix freely.
	before, after := beforePath, afterPath
	pos := args
	if before == "" && len(pos) > 0 {
		before, pos = pos[0], pos[1:]
	}
	if after == "" && len(pos) > 0 {
		after, pos = pos[0], pos[1:]
	}
	if len(pos) > 0 {
		return fmt.Errorf("unexpected extra argument: %s", pos[0])
	}
	if before == "" || after == "" {
		return fmt.Errorf("two profiles are required: give two input files or both --before and --after")
	}
	if width <= 0 {
		return fmt.Errorf("invalid width: %d", width)
	}

	beforeFile, err := os.Open(before)
	if err != nil {
		return fmt.Errorf("failed to open baseline profile: %w", err)
	}
	defer beforeFile.Close()

	afterFile, err := os.Open(after)
	if err != nil {
		return fmt.Errorf("failed to open comparison profile: %w", err)
	}
	defer afterFile.Close()

	gen := pipeline.New(&pipeline.Options{
		Title:    title,
		Width:    width,
		MinWidth: minWidth,
		Logger:   logger,
	})

	// Render into memory first so a failed run never touches an
	// existing output file.
	var svg bytes.Buffer
	summary, err := gen.GenerateDiff(context.Background(), before, beforeFile, after, afterFile, &svg)
	if err != nil {
		return err
	}

	if err := writeOutput(outputPath, svg.Bytes()); err != nil {
		return err
	}

	logger.Debug("Rendered diff: before=%d, after=%d, max depth %d",
		summary.TotalBefore, summary.TotalAfter, summary.MaxDepth)
	return nil
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
