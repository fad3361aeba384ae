package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flamegen/internal/testutil"
)

func TestRenderDiffToFile(t *testing.T) {
	before := testutil.TempProfile(t, "main;work 100\nmain;idle 50\n")
	after := testutil.TempProfile(t, "main;work 130\nmain;idle 20\n")
	output := filepath.Join(testutil.TempDir(t), "diff.svg")

	rootCmd.SetArgs([]string{before, after, "-o", output})
	require.NoError(t, rootCmd.Execute())

	svg := testutil.ReadFile(t, output)
	assert.Contains(t, svg, "<svg")
	assert.Contains(t, svg, "Before: 150 samples, After: 150 samples")
	assert.Contains(t, svg, "Regression")
}

func TestPositionalFillsMissingFlag(t *testing.T) {
	before := testutil.TempProfile(t, "main;work 100\n")
	after := testutil.TempProfile(t, "main;work 130\n")

	tests := []struct {
		name string
		args func(output string) []string
	}{
		{"positional before with after flag", func(output string) []string {
			return []string{before, "-b", after, "-o", output}
		}},
		{"before flag with positional after", func(output string) []string {
			return []string{"-a", before, after, "-o", output}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() { beforePath, afterPath = "", "" })
			output := filepath.Join(testutil.TempDir(t), "diff.svg")

			rootCmd.SetArgs(tt.args(output))
			require.NoError(t, rootCmd.Execute())

			assert.Contains(t, testutil.ReadFile(t, output), "Before: 100 samples, After: 130 samples")
		})
	}
}

func TestFailedDiffKeepsExistingOutput(t *testing.T) {
	before := testutil.TempProfile(t, "main;work 100\n")
	after := testutil.TempProfile(t, "# comments only\n")
	output := testutil.WriteFile(t, testutil.TempDir(t), "diff.svg", "previous render")

	rootCmd.SetArgs([]string{before, after, "-o", output})
	require.Error(t, rootCmd.Execute())

	assert.Equal(t, "previous render", testutil.ReadFile(t, output))
}

func TestMissingSecondProfileFails(t *testing.T) {
	before := testutil.TempProfile(t, "main;work 100\n")

	rootCmd.SetArgs([]string{before})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two profiles are required")
}

func TestEmptySideFails(t *testing.T) {
	before := testutil.TempProfile(t, "main;work 100\n")
	after := testutil.TempProfile(t, "\n")

	rootCmd.SetArgs([]string{before, after, "-o", filepath.Join(testutil.TempDir(t), "diff.svg")})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no samples")
}
