// Package folded parses and emits the folded stack format: one sample
// group per line, semicolon-joined frame names followed by a count.
//
// Example:
//
//	main;compute;hash_block 421
package folded

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ParserOptions holds configuration options for the folded parser.
type ParserOptions struct {
	// StrictMode enables strict parsing that fails on any malformed line
	// instead of tolerating it.
	StrictMode bool
}

// DefaultParserOptions returns default parser options.
func DefaultParserOptions() *ParserOptions {
	return &ParserOptions{
		StrictMode: false,
	}
}

// Profile holds one parsed profile: call paths aggregated by key and the
// grand total of all sample counts.
type Profile struct {
	// Stacks maps a semicolon-joined call path to its aggregated count.
	// Repeated occurrences of the same path accumulate.
	Stacks map[string]int64

	// Total is the sum over all aggregated counts.
	Total int64
}

// Parser implements the folded format parser.
type Parser struct {
	opts *ParserOptions
}

// NewParser creates a new folded format parser.
func NewParser(opts *ParserOptions) *Parser {
	if opts == nil {
		opts = DefaultParserOptions()
	}
	return &Parser{opts: opts}
}

// Parse parses folded format data from the reader.
//
// Blank lines and lines starting with '#' are skipped. A line without a
// space separator is skipped. A trailing token that does not parse as a
// positive integer counts as 1.
func (p *Parser) Parse(ctx context.Context, reader io.Reader) (*Profile, error) {
	profile := &Profile{
		Stacks: make(map[string]int64),
	}

	scanner := bufio.NewScanner(reader)
	lineNum := 0

	for scanner.Scan() {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		stack, count, err := p.parseLine(line)
		if err != nil {
			if p.opts.StrictMode {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			continue
		}

		profile.Stacks[stack] += count
		profile.Total += count
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	return profile, nil
}

// parseLine parses a single line of folded format data.
// Format: stack count
// Example: func_a;func_b;func_c 42
func (p *Parser) parseLine(line string) (string, int64, error) {
	// Split by last space to get stack and count
	lastSpace := strings.LastIndex(line, " ")
	if lastSpace == -1 {
		return "", 0, ErrInvalidFormat
	}

	stack := line[:lastSpace]
	countStr := strings.TrimSpace(line[lastSpace+1:])

	count, err := strconv.ParseInt(countStr, 10, 64)
	if err != nil {
		// Malformed counts are tolerated, never fatal.
		count = 1
	}
	if count <= 0 {
		// Zero or negative means "at least one sample occurred".
		count = 1
	}

	return stack, count, nil
}

// SupportedFormats returns the formats supported by this parser.
func (p *Parser) SupportedFormats() []string {
	return []string{"folded", "collapsed"}
}

// Name returns the name of this parser.
func (p *Parser) Name() string {
	return "folded"
}

// SplitStack splits a call-path key into its ordered frame names.
func SplitStack(stack string) []string {
	return strings.Split(stack, ";")
}

// Encode writes the profile back out as canonical folded text: one line
// per distinct call path, sorted lexicographically.
func Encode(profile *Profile, w io.Writer) error {
	keys := make([]string, 0, len(profile.Stacks))
	for stack := range profile.Stacks {
		keys = append(keys, stack)
	}
	sort.Strings(keys)

	for _, stack := range keys {
		if _, err := fmt.Fprintf(w, "%s %d\n", stack, profile.Stacks[stack]); err != nil {
			return err
		}
	}
	return nil
}

// Error definitions for the parser.
var (
	ErrInvalidFormat = fmt.Errorf("invalid folded format")
)
