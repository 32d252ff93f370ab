// Package pagerange parses human page-range expressions ("1-3, 5, 8-9")
// into an ordered, deduplicated set of zero-based page indices.
package pagerange

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrEmptyRange is returned when an expression selects no valid page.
var ErrEmptyRange = errors.New("no valid pages in range")

// ParseError describes a range expression that could not produce any page.
type ParseError struct {
	Expr  string
	Total int
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("page range %q (document has %d pages): %v", e.Expr, e.Total, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TokenKind classifies one comma-separated token.
type TokenKind int

const (
	TokenInvalid TokenKind = iota
	TokenSingle
	TokenRange
)

func (k TokenKind) String() string {
	switch k {
	case TokenSingle:
		return "single"
	case TokenRange:
		return "range"
	default:
		return "invalid"
	}
}

// Token is the result of classifying a single trimmed token. Start and End
// are 1-based page numbers; for TokenSingle they are equal.
type Token struct {
	Text  string
	Kind  TokenKind
	Start int
	End   int
}

var (
	singleRe = regexp.MustCompile(`^(\d+)$`)
	rangeRe  = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)$`)
)

// Tokenize splits expr on commas and classifies every trimmed token against
// the strict grammar. It never fails: malformed tokens come back as
// TokenInvalid so the caller can skip them.
func Tokenize(expr string) []Token {
	parts := strings.Split(expr, ",")
	tokens := make([]Token, 0, len(parts))
	for _, p := range parts {
		tokens = append(tokens, classify(strings.TrimSpace(p)))
	}
	return tokens
}

func classify(text string) Token {
	tok := Token{Text: text, Kind: TokenInvalid}
	if m := singleRe.FindStringSubmatch(text); m != nil {
		n, ok := number(m[1])
		if !ok {
			return tok
		}
		tok.Kind, tok.Start, tok.End = TokenSingle, n, n
		return tok
	}
	if m := rangeRe.FindStringSubmatch(text); m != nil {
		start, ok1 := number(m[1])
		end, ok2 := number(m[2])
		if !ok1 || !ok2 {
			return tok
		}
		tok.Kind, tok.Start, tok.End = TokenRange, start, end
	}
	return tok
}

// number parses a run of digits. Values past the int range saturate at
// math.MaxInt so they are clipped like any other out-of-range page.
func number(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt, true
	}
	return n, err == nil
}

// Parse turns expr into a Set bounded by total pages.
//
// Invalid tokens are skipped, a reversed range ("3-1") contributes nothing,
// and page numbers outside [1,total] are dropped one by one, so a partially
// valid range is clipped. Pages keep the order in which they first appear.
// If nothing survives, Parse returns a *ParseError wrapping ErrEmptyRange.
func Parse(expr string, total int) (Set, error) {
	var b builder
	b.init(total)
	for _, tok := range Tokenize(expr) {
		if tok.Kind == TokenInvalid || tok.Start > tok.End {
			continue
		}
		lo, hi := tok.Start, tok.End
		if lo < 1 {
			lo = 1
		}
		if hi > total {
			hi = total
		}
		for n := lo; n <= hi; n++ {
			b.add(n - 1)
		}
	}
	if len(b.order) == 0 {
		return Set{}, &ParseError{Expr: expr, Total: total, Err: ErrEmptyRange}
	}
	return Set{indices: b.order}, nil
}

type builder struct {
	seen  map[int]struct{}
	order []int
}

func (b *builder) init(total int) {
	b.seen = make(map[int]struct{})
	if total > 0 && total < 1024 {
		b.order = make([]int, 0, total)
	}
}

func (b *builder) add(i int) {
	if _, ok := b.seen[i]; ok {
		return
	}
	b.seen[i] = struct{}{}
	b.order = append(b.order, i)
}
