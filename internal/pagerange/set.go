package pagerange

import (
	"fmt"
	"strconv"
	"strings"
)

// Set is a validated PageIndexSet: zero-based indices, no duplicates, in the
// order the caller asked for them. The zero value is empty and is never
// returned by a successful Parse.
type Set struct {
	indices []int
}

// All selects every page of a document with total pages, in document order.
func All(total int) (Set, error) {
	if total <= 0 {
		return Set{}, &ParseError{Expr: "all", Total: total, Err: ErrEmptyRange}
	}
	idx := make([]int, total)
	for i := range idx {
		idx[i] = i
	}
	return Set{indices: idx}, nil
}

// FromIndices validates an explicit list of zero-based indices. Duplicates
// are coalesced to their first occurrence; any index outside [0,total) is
// an error rather than being dropped, since the caller built the list by hand.
func FromIndices(indices []int, total int) (Set, error) {
	var b builder
	b.init(total)
	for _, i := range indices {
		if i < 0 || i >= total {
			return Set{}, &ParseError{
				Expr:  fmt.Sprint(indices),
				Total: total,
				Err:   fmt.Errorf("index %d out of range", i),
			}
		}
		b.add(i)
	}
	if len(b.order) == 0 {
		return Set{}, &ParseError{Expr: fmt.Sprint(indices), Total: total, Err: ErrEmptyRange}
	}
	return Set{indices: b.order}, nil
}

// Len reports the number of selected pages.
func (s Set) Len() int { return len(s.indices) }

// Indices returns a copy of the zero-based indices in selection order.
func (s Set) Indices() []int {
	out := make([]int, len(s.indices))
	copy(out, s.indices)
	return out
}

// PageNumbers returns the selection as 1-based page numbers.
func (s Set) PageNumbers() []int {
	out := make([]int, len(s.indices))
	for i, idx := range s.indices {
		out[i] = idx + 1
	}
	return out
}

func (s Set) String() string {
	parts := make([]string, len(s.indices))
	for i, idx := range s.indices {
		parts[i] = strconv.Itoa(idx + 1)
	}
	return strings.Join(parts, ",")
}
