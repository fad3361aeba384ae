package flamegraph

import (
	_ "embed"
	"fmt"
	"image/color"
	"io"
	"strings"
)

// Geometry constants for the rendered document.
const (
	frameHeight = 16
	fontSize    = 11
	charWidth   = 6.5
	margin      = 10

	// DefaultWidth is the default canvas width in pixels.
	DefaultWidth = 1200

	// DefaultMinWidth is the minimum rendered frame width in pixels.
	// Narrower frames (and their descendants) are skipped.
	DefaultMinWidth = 0.1
)

//go:embed script_single.js
var singleScript string

//go:embed script_diff.js
var diffScript string

// RenderOptions holds configuration options for the SVG renderer.
type RenderOptions struct {
	// Title is drawn centered at the top of the graph.
	Title string

	// Width is the canvas width in pixels.
	Width int

	// MinWidth is the visibility threshold in pixels.
	MinWidth float64
}

// DefaultRenderOptions returns default render options.
func DefaultRenderOptions() *RenderOptions {
	return &RenderOptions{
		Title:    "Flame Graph",
		Width:    DefaultWidth,
		MinWidth: DefaultMinWidth,
	}
}

// Renderer emits a frozen tree as an interactive SVG document.
type Renderer struct {
	opts *RenderOptions
}

// NewRenderer creates a new SVG renderer.
func NewRenderer(opts *RenderOptions) *Renderer {
	if opts == nil {
		opts = DefaultRenderOptions()
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.MinWidth <= 0 {
		opts.MinWidth = DefaultMinWidth
	}
	return &Renderer{opts: opts}
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}

// svgWriter wraps an io.Writer and records the first write error so the
// recursive emit path stays free of error plumbing.
type svgWriter struct {
	w   io.Writer
	err error
}

func (sw *svgWriter) printf(format string, args ...interface{}) {
	if sw.err != nil {
		return
	}
	_, sw.err = fmt.Fprintf(sw.w, format, args...)
}

// Render writes the complete SVG document for the tree. The tree must
// have been frozen (sorted) before rendering; Render calls Freeze itself
// so callers do not need to.
func (r *Renderer) Render(tree *Tree, w io.Writer) error {
	depth := tree.Freeze()

	height := (depth+2)*frameHeight + 80
	if tree.Differential {
		height = (depth+2)*frameHeight + 100
	}
	width := r.opts.Width

	sw := &svgWriter{w: w}

	sw.printf("<?xml version=\"1.0\" standalone=\"no\"?>\n")
	sw.printf("<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\" viewBox=\"0 0 %d %d\">\n",
		width, height, width, height)

	// Background
	sw.printf("<rect width=\"100%%\" height=\"100%%\" fill=\"#f8f8f8\" />\n")

	// Title
	sw.printf("<text x=\"%d\" y=\"20\" font-size=\"16\" font-family=\"sans-serif\" text-anchor=\"middle\" fill=\"#333\">%s</text>\n",
		width/2, xmlEscape(r.opts.Title))

	if tree.Differential {
		r.emitDiffChrome(sw, tree, width, height)
	} else {
		r.emitSingleChrome(sw, tree, width, height)
	}

	// Frames, root first, depth-first in sorted sibling order.
	st := &renderState{sw: sw, tree: tree, height: height, minWidth: r.opts.MinWidth}
	st.emitFrame(tree.Root, 0, margin, float64(width-2*margin))

	if tree.Differential {
		sw.printf("<script type=\"text/javascript\">\n<![CDATA[\n%s]]>\n</script>\n", diffScript)
	} else {
		sw.printf("<script type=\"text/javascript\">\n<![CDATA[\n%s]]>\n</script>\n", singleScript)
	}

	sw.printf("</svg>\n")
	return sw.err
}

// emitSingleChrome writes the subtitle, reset control, search-match and
// details regions for a single-profile graph.
func (r *Renderer) emitSingleChrome(sw *svgWriter, tree *Tree, width, height int) {
	sw.printf("<text x=\"%d\" y=\"36\" font-size=\"11\" font-family=\"sans-serif\" text-anchor=\"middle\" fill=\"#888\">%d samples. Click to focus, Ctrl+F to search, Esc to reset.</text>\n",
		width/2, tree.TotalBefore)

	sw.printf("<text id=\"reset-btn\" x=\"%d\" y=\"20\" font-size=\"11\" font-family=\"sans-serif\" fill=\"#4477cc\">[Reset]</text>\n",
		width-60)

	sw.printf("<text id=\"search-match\" x=\"4\" y=\"%d\" font-size=\"11\" font-family=\"monospace\" fill=\"#cc4444\"></text>\n",
		height-22)

	sw.printf("<text id=\"details\" x=\"4\" y=\"%d\" font-size=\"11\" font-family=\"monospace\" fill=\"#333\"></text>\n",
		height-6)
}

// emitDiffChrome writes the subtitle, improvement/regression legend and
// details region for a differential graph.
func (r *Renderer) emitDiffChrome(sw *svgWriter, tree *Tree, width, height int) {
	sw.printf("<text x=\"%d\" y=\"36\" font-size=\"11\" font-family=\"sans-serif\" text-anchor=\"middle\" fill=\"#888\">Before: %d samples, After: %d samples. Ctrl+F to search.</text>\n",
		width/2, tree.TotalBefore, tree.TotalAfter)

	legendY := 52
	sw.printf("<rect x=\"%d\" y=\"%d\" width=\"16\" height=\"12\" fill=\"rgb(100,120,255)\" rx=\"2\" />\n",
		width/2-160, legendY-10)
	sw.printf("<text x=\"%d\" y=\"%d\" font-size=\"11\" font-family=\"sans-serif\" fill=\"#333\">Improvement (less CPU)</text>\n",
		width/2-140, legendY)
	sw.printf("<rect x=\"%d\" y=\"%d\" width=\"16\" height=\"12\" fill=\"rgb(255,80,80)\" rx=\"2\" />\n",
		width/2+40, legendY-10)
	sw.printf("<text x=\"%d\" y=\"%d\" font-size=\"11\" font-family=\"sans-serif\" fill=\"#333\">Regression (more CPU)</text>\n",
		width/2+60, legendY)

	sw.printf("<text id=\"details\" x=\"4\" y=\"%d\" font-size=\"11\" font-family=\"monospace\" fill=\"#333\"></text>\n",
		height-6)
}

// renderState carries the per-render emission context.
type renderState struct {
	sw       *svgWriter
	tree     *Tree
	height   int
	minWidth float64
	nextID   int
}

// emitFrame renders one frame and recurses into its children. Frames
// narrower than the visibility threshold are dropped together with their
// descendants, which bounds output size for wide, deep trees.
func (st *renderState) emitFrame(frame *Frame, depth int, x, width float64) {
	if width < st.minWidth {
		return
	}

	y := float64(st.height - 30 - (depth+1)*frameHeight)

	var fill color.RGBA
	switch {
	case depth == 0:
		fill = neutralGray
	case st.tree.Differential:
		fill = DeltaColor(frame.Count, frame.CountAfter, st.tree.TotalBefore, st.tree.TotalAfter)
	default:
		fill = NameColor(frame.Name)
	}

	escapedName := xmlEscape(frame.Name)

	idPrefix := "f"
	if st.tree.Differential {
		idPrefix = "d"
	}
	fid := fmt.Sprintf("%s%d", idPrefix, st.nextID)
	st.nextID++

	st.sw.printf("<g id=\"%s\" class=\"fg\">\n", fid)
	st.sw.printf("<title>%s</title>\n", st.tooltip(frame, escapedName))
	st.sw.printf("<rect x=\"%.1f\" y=\"%.1f\" width=\"%.1f\" height=\"%d\" fill=\"rgb(%d,%d,%d)\" rx=\"1\" ry=\"1\" class=\"frame\" data-name=\"%s\" />\n",
		x, y, width, frameHeight-1, fill.R, fill.G, fill.B, escapedName)

	st.emitLabel(frame.Name, x, y, width)

	st.sw.printf("</g>\n")

	// Children are laid out left to right with no gaps, starting at the
	// parent's left edge.
	parentWeight := frame.Weight()
	childX := x
	for _, child := range frame.Children {
		var childWidth float64
		if st.tree.Differential {
			w := parentWeight
			if w == 0 {
				w = 1
			}
			childWidth = width * float64(child.Weight()) / float64(w)
		} else if frame.Count > 0 {
			childWidth = width * float64(child.Count) / float64(frame.Count)
		}
		st.emitFrame(child, depth+1, childX, childWidth)
		childX += childWidth
	}
}

// tooltip builds the title text: frame name, counts and percentages, and
// in differential mode the signed percentage-point delta between the two
// profiles' rates.
func (st *renderState) tooltip(frame *Frame, escapedName string) string {
	if st.tree.Differential {
		var rateBefore, rateAfter float64
		if st.tree.TotalBefore > 0 {
			rateBefore = 100.0 * float64(frame.Count) / float64(st.tree.TotalBefore)
		}
		if st.tree.TotalAfter > 0 {
			rateAfter = 100.0 * float64(frame.CountAfter) / float64(st.tree.TotalAfter)
		}
		diff := rateAfter - rateBefore
		sign := ""
		if diff >= 0 {
			sign = "+"
		}
		return fmt.Sprintf("%s (before: %d [%.1f%%], after: %d [%.1f%%], delta: %s%.1f%%)",
			escapedName, frame.Count, rateBefore, frame.CountAfter, rateAfter, sign, diff)
	}

	var pct, selfPct float64
	if st.tree.TotalBefore > 0 {
		pct = 100.0 * float64(frame.Count) / float64(st.tree.TotalBefore)
		selfPct = 100.0 * float64(frame.Self) / float64(st.tree.TotalBefore)
	}
	if frame.Self > 0 {
		return fmt.Sprintf("%s (%d samples, %.1f%%, self: %.1f%%)", escapedName, frame.Count, pct, selfPct)
	}
	return fmt.Sprintf("%s (%d samples, %.1f%%)", escapedName, frame.Count, pct)
}

// emitLabel writes the frame's text label: the full name if it fits at
// the fixed monospace character width, a truncated prefix with an
// ellipsis marker if the frame is wide enough, or nothing.
func (st *renderState) emitLabel(name string, x, y, width float64) {
	// Widths are measured and truncated in characters, not bytes, so
	// multibyte names stay valid UTF-8.
	runes := []rune(name)
	textWidth := float64(len(runes)) * charWidth

	if width > textWidth+6 {
		st.sw.printf("<text x=\"%.1f\" y=\"%.1f\" font-size=\"%d\" font-family=\"monospace\" fill=\"#000\">%s</text>\n",
			x+3, y+frameHeight-4, fontSize, xmlEscape(name))
		return
	}

	if width > 20 {
		maxChars := int((width - 6) / charWidth)
		if maxChars > 0 {
			if maxChars > len(runes) {
				maxChars = len(runes)
			}
			st.sw.printf("<text x=\"%.1f\" y=\"%.1f\" font-size=\"%d\" font-family=\"monospace\" fill=\"#000\">%s..</text>\n",
				x+3, y+frameHeight-4, fontSize, xmlEscape(string(runes[:maxChars])))
		}
	}
}
