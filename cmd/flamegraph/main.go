// Command flamegraph renders an interactive SVG flame graph from a
// folded stack profile.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flamegen/internal/pipeline"
	"github.com/flamegen/pkg/utils"
	"github.com/flamegen/pkg/version"
)

var (
	inputPath  string
	outputPath string
	title      string
	width      int
	minWidth   float64
	colors     string
	verbose    bool
)

func binName() string {
	return filepath.Base(os.Args[0])
}

var rootCmd = &cobra.Command{
	Use:   "flamegraph [input-file]",
	Short: "Generate an interactive SVG flame graph from folded stacks",
	Long: `flamegraph reads a collapsed stack profile (one "frame1;frame2;...;frameN count"
line per sample group, as produced by stackcollapse tools) and writes a
self-contained interactive SVG flame graph.

Reads standard input when no input file is given or the file is "-".`,
	Args: cobra.MaximumNArgs(1),
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
	rootCmd.Example = `  # Render a profile to a file
  ` + bin + ` cpu.folded -o cpu.svg

  # Render from a pipe
  perf script | stackcollapse-perf.pl | ` + bin + ` -t "CPU Profile" > cpu.svg`

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input folded stack file (default stdin)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "-", "Output SVG file (\"-\" for stdout)")
	rootCmd.Flags().StringVarP(&title, "title", "t", "Flame Graph", "Graph title")
	rootCmd.Flags().IntVarP(&width, "width", "w", 1200, "SVG canvas width in pixels")
	rootCmd.Flags().Float64Var(&minWidth, "min-width", 0.1, "Minimum frame width in pixels")
	rootCmd.Flags().StringVar(&colors, "colors", "warm", "Color palette (warm, hot or cool)")

	rootCmd.AddCommand(versionCmd)
}

func run(cmd *cobra.Command, args []string) error {
	logLevel := utils.LevelInfo
	if verbose {
		logLevel = utils.LevelDebug
	}
	logger := utils.NewDefaultLogger(logLevel, os.Stderr)
	utils.SetGlobalLogger(logger)

	if err := validateColors(colors); err != nil {
		return err
	}
	if width <= 0 {
		return fmt.Errorf("invalid width: %d", width)
	}

	path := inputPath
	if len(args) == 1 {
		path = args[0]
	}

	inputName := "stdin"
	var input io.Reader = os.Stdin
	if path != "" && path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer file.Close()
		input = file
		inputName = path
	}

	gen := pipeline.New(&pipeline.Options{
		Title:    title,
		Width:    width,
		MinWidth: minWidth,
		Logger:   logger,
	})

	// Render into memory first so a failed run never touches an
	// existing output file.
	var svg bytes.Buffer
	summary, err := gen.Generate(context.Background(), inputName, input, &svg)
	if err != nil {
		return err
	}

	if err := writeOutput(outputPath, svg.Bytes()); err != nil {
		return err
	}

	logger.Debug("Rendered %d samples, max depth %d", summary.TotalBefore, summary.MaxDepth)
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

// validateColors checks the palette name. All palettes currently render
// with the warm scheme.
func validateColors(name string) error {
	switch name {
	case "warm", "hot", "cool":
		return nil
	default:
		return fmt.Errorf("unknown color palette: %s (expected warm, hot or cool)", name)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
