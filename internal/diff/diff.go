// Package diff computes line-level differences between two versions of a file.
// Lines are aligned with a longest-common-subsequence table; the contents of a
// line are never inspected beyond exact equality.
package diff

import (
	"slices"
	"strings"
)

// LineType represents the type of diff line
type LineType int

const (
	LineUnchanged LineType = iota // Present in both versions
	LineAdded                     // Only in the current version
	LineRemoved                   // Only in the original version
)

func (t LineType) String() string {
	switch t {
	case LineUnchanged:
		return "unchanged"
	case LineAdded:
		return "added"
	case LineRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Line represents a single line in the diff.
// OldLine and NewLine are 1-based; zero means the line has no position on
// that side (NewLine for removed lines, OldLine for added lines).
type Line struct {
	Type    LineType
	OldLine int
	NewLine int
	Content string
}

// String renders the line with a unified-diff style prefix.
func (l Line) String() string {
	switch l.Type {
	case LineAdded:
		return "+" + l.Content
	case LineRemoved:
		return "-" + l.Content
	default:
		return " " + l.Content
	}
}

// Hunk represents a group of changes with surrounding context
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff is the full line diff of one file plus per-type counts.
type FileDiff struct {
	Lines     []Line
	Added     int
	Removed   int
	Unchanged int
}

// HasChanges reports whether any line was added or removed.
func (d *FileDiff) HasChanges() bool {
	return d.Added > 0 || d.Removed > 0
}

// SplitLines splits content on "\n". Empty content has no lines. A trailing
// newline produces a trailing empty line; no normalization is applied.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// Summarize counts the line types of an edit script.
func Summarize(lines []Line) *FileDiff {
	fd := &FileDiff{Lines: lines}
	for _, l := range lines {
		switch l.Type {
		case LineAdded:
			fd.Added++
		case LineRemoved:
			fd.Removed++
		default:
			fd.Unchanged++
		}
	}
	return fd
}

// lcsTable builds the (M+1)x(N+1) table where t[i][j] is the LCS length of
// original[:i] and current[:j].
func lcsTable(original, current []string) [][]int {
	m, n := len(original), len(current)
	cells := make([]int, (m+1)*(n+1))
	table := make([][]int, m+1)
	for i := range table {
		table[i] = cells[i*(n+1) : (i+1)*(n+1)]
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if original[i-1] == current[j-1] {
				table[i][j] = table[i-1][j-1] + 1
			} else {
				table[i][j] = max(table[i-1][j], table[i][j-1])
			}
		}
	}
	return table
}

// lcsLength returns the length of the longest common subsequence of the two
// line sequences.
func lcsLength(original, current []string) int {
	return lcsTable(original, current)[len(original)][len(current)]
}

// Lines aligns original against current and returns the edit script in
// document order.
//
// The backtrack starts at the bottom-right cell. Equal lines move diagonally
// and are emitted as unchanged. Otherwise the walk moves toward the larger
// neighbour; when both neighbours are equal it moves left and emits an added
// line. That tie-break is a fixed convention: test fixtures depend on it.
//
// The table costs O(M*N) time and memory. Callers gate input size.
func Lines(original, current []string) []Line {
	table := lcsTable(original, current)
	i, j := len(original), len(current)
	out := make([]Line, 0, max(i, j))

	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && original[i-1] == current[j-1]:
			out = append(out, Line{Type: LineUnchanged, OldLine: i, NewLine: j, Content: original[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || table[i][j-1] >= table[i-1][j]):
			out = append(out, Line{Type: LineAdded, NewLine: j, Content: current[j-1]})
			j--
		default:
			out = append(out, Line{Type: LineRemoved, OldLine: i, Content: original[i-1]})
			i--
		}
	}

	slices.Reverse(out)
	return out
}

// Hunks groups a diff into hunks carrying up to contextLines unchanged lines
// on either side of each run of changes. Changes separated by no more than
// 2*contextLines unchanged lines share a hunk.
func Hunks(lines []Line, contextLines int) []Hunk {
	if contextLines < 0 {
		contextLines = 0
	}

	var hunks []Hunk
	start, end := -1, -1 // current hunk's change span, inclusive

	flush := func() {
		if start < 0 {
			return
		}
		lo := max(start-contextLines, 0)
		hi := min(end+contextLines, len(lines)-1)
		hunks = append(hunks, newHunk(lines, lo, hi))
		start, end = -1, -1
	}

	for idx, l := range lines {
		if l.Type == LineUnchanged {
			continue
		}
		if start >= 0 && idx-end-1 > 2*contextLines {
			flush()
		}
		if start < 0 {
			start = idx
		}
		end = idx
	}
	flush()

	return hunks
}

// newHunk builds the hunk covering lines[lo..hi] and computes its header.
func newHunk(lines []Line, lo, hi int) Hunk {
	oldBefore, newBefore := 0, 0
	for _, l := range lines[:lo] {
		if l.Type != LineAdded {
			oldBefore++
		}
		if l.Type != LineRemoved {
			newBefore++
		}
	}

	h := Hunk{Lines: slices.Clone(lines[lo : hi+1])}
	for _, l := range h.Lines {
		if l.Type != LineAdded {
			h.OldCount++
		}
		if l.Type != LineRemoved {
			h.NewCount++
		}
	}

	h.OldStart = oldBefore
	if h.OldCount > 0 {
		h.OldStart++
	}
	h.NewStart = newBefore
	if h.NewCount > 0 {
		h.NewStart++
	}
	return h
}
