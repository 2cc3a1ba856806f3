// Package currency defines the banknote counting boundary and the phrasing
// of its results.
package currency

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Note is one denomination and how many of it were seen.
type Note struct {
	// Class is the detector's label, e.g. "10 cedis".
	Class string
	Count int
}

// Value returns the numeric prefix of Class, or 0 when it has none.
func (n Note) Value() float64 {
	f := strings.Fields(n.Class)
	if len(f) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(f[0], 64)
	if err != nil {
		return 0
	}
	return v
}

// Result summarises one counted frame.
type Result struct {
	Notes []Note
}

// Total returns the sum of value times count over all notes.
func (r Result) Total() float64 {
	var t float64
	for _, n := range r.Notes {
		t += n.Value() * float64(n.Count)
	}
	return t
}

// Summary returns "2 x 10 cedis, 1 x 5 cedis".
func (r Result) Summary() string {
	parts := make([]string, 0, len(r.Notes))
	for _, n := range r.Notes {
		parts = append(parts, fmt.Sprintf("%d x %s", n.Count, n.Class))
	}
	return strings.Join(parts, ", ")
}

// Sentence returns the spoken announcement for r.
func (r Result) Sentence() string {
	if len(r.Notes) == 0 {
		return "No currency detected."
	}
	unit := "cedis"
	if f := strings.Fields(r.Notes[0].Class); len(f) > 1 {
		unit = strings.Join(f[1:], " ")
	}
	return fmt.Sprintf("Currency detected: %s, making a total of %s %s",
		r.Summary(), strconv.FormatFloat(r.Total(), 'f', -1, 64), unit)
}

// Tally groups detected class labels into notes, largest denomination first.
func Tally(classes []string) Result {
	counts := make(map[string]int, len(classes))
	for _, c := range classes {
		c = strings.TrimSpace(c)
		if c != "" {
			counts[c]++
		}
	}
	notes := make([]Note, 0, len(counts))
	for c, n := range counts {
		notes = append(notes, Note{Class: c, Count: n})
	}
	sort.Slice(notes, func(i, j int) bool {
		if vi, vj := notes[i].Value(), notes[j].Value(); vi != vj {
			return vi > vj
		}
		return notes[i].Class < notes[j].Class
	})
	return Result{Notes: notes}
}

// Provider counts banknotes in a JPEG image.
type Provider interface {
	Count(ctx context.Context, jpeg []byte) (Result, error)
}
