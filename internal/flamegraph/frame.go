// Package flamegraph builds merged call trees from aggregated folded
// stacks and renders them as interactive SVG flame graphs.
package flamegraph

import (
	"sort"

	"github.com/flamegen/internal/folded"
)

// RootName is the display name of the synthetic root frame.
const RootName = "root"

// Frame represents one function at one position in the merged call tree.
//
// Count/Self hold the primary profile's inclusive and leaf sample counts.
// CountAfter/SelfAfter hold the secondary ("after") profile's counts and
// stay zero in single-profile mode. The same name at different tree
// positions is a distinct Frame.
type Frame struct {
	Name       string
	Count      int64
	CountAfter int64
	Self       int64
	SelfAfter  int64
	Children   []*Frame

	// childIndex deduplicates repeated call paths sharing a prefix under
	// the same parent.
	childIndex map[string]*Frame
}

// NewFrame creates a new frame with the given name.
func NewFrame(name string) *Frame {
	return &Frame{
		Name:       name,
		Children:   make([]*Frame, 0),
		childIndex: make(map[string]*Frame),
	}
}

// Child returns the child with the given name, creating it if absent.
// Creation preserves insertion order in Children.
func (f *Frame) Child(name string) *Frame {
	if child, ok := f.childIndex[name]; ok {
		return child
	}
	child := NewFrame(name)
	f.Children = append(f.Children, child)
	f.childIndex[name] = child
	return child
}

// Lookup returns the child with the given name, or nil.
func (f *Frame) Lookup(name string) *Frame {
	return f.childIndex[name]
}

// Weight is the inclusive weight used for horizontal layout: the primary
// count in single mode, the larger of the two counts in differential
// mode. With CountAfter zero it degenerates to Count.
func (f *Frame) Weight() int64 {
	if f.CountAfter > f.Count {
		return f.CountAfter
	}
	return f.Count
}

// SortChildren recursively sorts every node's children lexicographically
// by name. Sibling ordering becomes deterministic and independent of
// input line order, which makes rendered output reproducible.
func (f *Frame) SortChildren() {
	sort.Slice(f.Children, func(i, j int) bool {
		return f.Children[i].Name < f.Children[j].Name
	})
	for _, c := range f.Children {
		c.SortChildren()
	}
}

// MaxDepth returns the depth of the deepest leaf below f, with f itself
// at the given depth.
func (f *Frame) MaxDepth(depth int) int {
	m := depth
	for _, c := range f.Children {
		if d := c.MaxDepth(depth + 1); d > m {
			m = d
		}
	}
	return m
}

// Tree is the merged call tree for one or two profiles.
type Tree struct {
	Root *Frame

	// TotalBefore is the primary profile's total sample count; TotalAfter
	// is the secondary profile's total and stays zero in single mode.
	TotalBefore int64
	TotalAfter  int64

	// Differential is true when the tree merges two profiles.
	Differential bool
}

// Build constructs a single-profile call tree from an aggregated profile.
func Build(profile *folded.Profile) *Tree {
	root := NewFrame(RootName)

	for stack, count := range profile.Stacks {
		node := root
		node.Count += count
		for _, name := range folded.SplitStack(stack) {
			node = node.Child(name)
			node.Count += count
		}
		node.Self += count
	}

	return &Tree{
		Root:        root,
		TotalBefore: profile.Total,
	}
}

// BuildDiff constructs a merged differential call tree from two profiles.
// A call path present only in one profile still creates nodes; the absent
// side's counts remain zero.
func BuildDiff(before, after *folded.Profile) *Tree {
	root := NewFrame(RootName)

	paths := make(map[string]struct{}, len(before.Stacks)+len(after.Stacks))
	for stack := range before.Stacks {
		paths[stack] = struct{}{}
	}
	for stack := range after.Stacks {
		paths[stack] = struct{}{}
	}

	for stack := range paths {
		countBefore := before.Stacks[stack]
		countAfter := after.Stacks[stack]

		node := root
		node.Count += countBefore
		node.CountAfter += countAfter
		for _, name := range folded.SplitStack(stack) {
			node = node.Child(name)
			node.Count += countBefore
			node.CountAfter += countAfter
		}
		node.Self += countBefore
		node.SelfAfter += countAfter
	}

	return &Tree{
		Root:         root,
		TotalBefore:  before.Total,
		TotalAfter:   after.Total,
		Differential: true,
	}
}

// Freeze sorts the tree for rendering and returns the maximum depth.
// After Freeze the tree is read-only.
func (t *Tree) Freeze() int {
	t.Root.SortChildren()
	return t.Root.MaxDepth(0)
}
