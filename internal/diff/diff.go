// Package diff compares a race submission against the goal text.
//
// Both texts are normalized before comparison: CRLF line endings become LF
// and a single trailing newline is dropped, since editors and the transport
// commonly append one. Comparison is done rune by rune, and an empty result
// means the submission matches the goal exactly.
package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

type Op string

const (
	// OpInsert means goal text is missing from the submission.
	OpInsert Op = "insert"
	// OpDelete means the submission has text the goal does not.
	OpDelete Op = "delete"
	// OpReplace means the submission has different text where the goal has Expected.
	OpReplace Op = "replace"
)

// Edit describes one mismatch. Pos, Line and Column locate it in the goal
// text; Line and Column are 1-based.
type Edit struct {
	Op       Op     `json:"op"`
	Pos      int    `json:"pos"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// Normalize applies the line ending rules used by Compute.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSuffix(s, "\n")
}

// Equal reports whether submission matches goal after normalization.
func Equal(submission, goal string) bool {
	return Normalize(submission) == Normalize(goal)
}

// Compute returns the ordered list of mismatches between submission and goal.
func Compute(submission, goal string) []Edit {
	sub := Normalize(submission)
	want := Normalize(goal)
	if sub == want {
		return []Edit{}
	}

	a := splitRunes(sub)
	b := splitRunes(want)

	matcher := difflib.NewMatcherWithJunk(a, b, false, nil)

	edits := []Edit{}
	loc := newLocator(b)
	for _, op := range matcher.GetOpCodes() {
		var kind Op
		switch op.Tag {
		case 'r':
			kind = OpReplace
		case 'd':
			kind = OpDelete
		case 'i':
			kind = OpInsert
		default:
			continue
		}

		line, col := loc.at(op.J1)
		edits = append(edits, Edit{
			Op:       kind,
			Pos:      op.J1,
			Line:     line,
			Column:   col,
			Expected: strings.Join(b[op.J1:op.J2], ""),
			Actual:   strings.Join(a[op.I1:op.I2], ""),
		})
	}
	return edits
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// locator converts rune offsets into line/column pairs. Offsets must be
// requested in non-decreasing order, which opcodes guarantee.
type locator struct {
	runes []string
	pos   int
	line  int
	col   int
}

func newLocator(runes []string) *locator {
	return &locator{runes: runes, line: 1, col: 1}
}

func (l *locator) at(pos int) (int, int) {
	for l.pos < pos && l.pos < len(l.runes) {
		if l.runes[l.pos] == "\n" {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
	return l.line, l.col
}
