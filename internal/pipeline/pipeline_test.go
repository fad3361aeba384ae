package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/flamegen/pkg/errors"
	"github.com/flamegen/pkg/utils"
)

func newTestGenerator(opts *Options) *Generator {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts.Logger = &utils.NullLogger{}
	return New(opts)
}

func TestGenerator_Generate_EndToEnd(t *testing.T) {
	input := "a;b 10"
	var out bytes.Buffer

	summary, err := newTestGenerator(nil).Generate(context.Background(), "stdin", strings.NewReader(input), &out)

	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, KindSingle, summary.Kind)
	assert.Equal(t, int64(10), summary.TotalBefore)
	assert.Equal(t, int64(0), summary.TotalAfter)
	assert.Equal(t, 2, summary.MaxDepth)

	svg := out.String()
	assert.Contains(t, svg, "<svg")
	assert.Contains(t, svg, `data-name="b"`)
	assert.Contains(t, svg, "10 samples.")
}

func TestGenerator_Generate_MalformedTolerance(t *testing.T) {
	input := `# comment

bad_line_no_count
x;y 3`
	var out bytes.Buffer

	summary, err := newTestGenerator(nil).Generate(context.Background(), "input.folded", strings.NewReader(input), &out)

	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalBefore)
	assert.Contains(t, out.String(), `data-name="x"`)
	assert.Contains(t, out.String(), `data-name="y"`)
}

func TestGenerator_Generate_ZeroSamplesFatal(t *testing.T) {
	input := "# only comments\n\n#nothing else\n"
	var out bytes.Buffer

	summary, err := newTestGenerator(nil).Generate(context.Background(), "empty.folded", strings.NewReader(input), &out)

	require.Error(t, err)
	assert.Nil(t, summary)
	assert.True(t, apperrors.IsEmptyProfile(err))
	assert.Contains(t, err.Error(), "empty.folded")

	// No partial output is produced.
	assert.Zero(t, out.Len())
}

func TestGenerator_Generate_TitleAndWidth(t *testing.T) {
	var out bytes.Buffer

	_, err := newTestGenerator(&Options{Title: "My Profile", Width: 900}).
		Generate(context.Background(), "in", strings.NewReader("a 1"), &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), ">My Profile</text>")
	assert.Contains(t, out.String(), `width="900"`)
}

func TestGenerator_GenerateDiff_EndToEnd(t *testing.T) {
	before := "a;b 100"
	after := "a;b 50"
	var out bytes.Buffer

	summary, err := newTestGenerator(nil).GenerateDiff(context.Background(),
		"before.folded", strings.NewReader(before),
		"after.folded", strings.NewReader(after), &out)

	require.NoError(t, err)
	assert.Equal(t, KindDiff, summary.Kind)
	assert.Equal(t, int64(100), summary.TotalBefore)
	assert.Equal(t, int64(50), summary.TotalAfter)

	// Rates are normalized per-profile: identical rates stay neutral
	// despite the raw-count drop.
	assert.Contains(t, out.String(), "<title>b (before: 100 [100.0%], after: 50 [100.0%], delta: +0.0%)</title>")
	assert.Contains(t, out.String(), "Improvement (less CPU)")
}

func TestGenerator_GenerateDiff_ZeroSampleSideFatal(t *testing.T) {
	tests := []struct {
		name       string
		before     string
		after      string
		wantInName string
	}{
		{"empty before", "", "a 1", "before.folded"},
		{"empty after", "a 1", "# none", "after.folded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := newTestGenerator(nil).GenerateDiff(context.Background(),
				"before.folded", strings.NewReader(tt.before),
				"after.folded", strings.NewReader(tt.after), &out)

			require.Error(t, err)
			assert.True(t, apperrors.IsEmptyProfile(err))
			assert.Contains(t, err.Error(), tt.wantInName)
			assert.Zero(t, out.Len())
		})
	}
}

func TestGenerator_Generate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := newTestGenerator(nil).Generate(ctx, "in", strings.NewReader("a 1"), &out)

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeParseError, apperrors.GetErrorCode(err))
}

func TestGenerator_ProgressLogging(t *testing.T) {
	var logBuf bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = utils.NewDefaultLogger(utils.LevelInfo, &logBuf)

	var out bytes.Buffer
	_, err := New(opts).Generate(context.Background(), "in", strings.NewReader("a 5"), &out)

	require.NoError(t, err)
	// Progress goes to the logger, never into the SVG stream.
	assert.Contains(t, logBuf.String(), "5 samples, generating SVG...")
	assert.Contains(t, logBuf.String(), "done")
	assert.NotContains(t, out.String(), "generating SVG")
}
