package pagerange

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr  string
		total int
		want  []int
	}{
		{"1-3, 5", 5, []int{0, 1, 2, 4}},
		{"5, 1-2", 5, []int{4, 0, 1}},
		{"3,1,3,2", 5, []int{2, 0, 1}},
		{"2-4, 3-5", 5, []int{1, 2, 3, 4}},
		{"  4 ,  2  ", 5, []int{3, 1}},
		{"1 - 2", 3, []int{0, 1}},
		{"3-10", 5, []int{2, 3, 4}},
		{"0-2", 5, []int{0, 1}},
		{"3-1, 2", 5, []int{1}},
		{"abc, 2, x-4, 4-y", 5, []int{1}},
		{"1,,2,", 5, []int{0, 1}},
		{"1-3-5, 4", 5, []int{3}},
		{"-3, 2", 5, []int{1}},
		{"1.5, 3", 5, []int{2}},
		{"1-99999999999999999999, 2", 3, []int{0, 1, 2}},
		{"2-99999999999999999999", 3, []int{1, 2}},
		{"1-1000000000", 2, []int{0, 1}},
		{"007", 10, []int{6}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.expr, tt.total)
		if err != nil {
			t.Errorf("Parse(%q, %d): unexpected error %v", tt.expr, tt.total, err)
			continue
		}
		if d := cmp.Diff(tt.want, got.Indices()); d != "" {
			t.Errorf("Parse(%q, %d) mismatch (-want +got):\n%s", tt.expr, tt.total, d)
		}
	}
}

func TestParseEmptyRange(t *testing.T) {
	tests := []struct {
		expr  string
		total int
	}{
		{"", 5},
		{"0", 5},
		{"99999", 5},
		{"99999999999999999999", 5},
		{"3-1", 5},
		{" , ,", 5},
		{"a-b", 5},
		{"1", 0},
	}
	for _, tt := range tests {
		_, err := Parse(tt.expr, tt.total)
		if !errors.Is(err, ErrEmptyRange) {
			t.Errorf("Parse(%q, %d): got %v, want ErrEmptyRange", tt.expr, tt.total, err)
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Parse(%q, %d): error %T is not a *ParseError", tt.expr, tt.total, err)
		} else if pe.Expr != tt.expr {
			t.Errorf("ParseError.Expr = %q, want %q", pe.Expr, tt.expr)
		}
	}
}

// Every successful parse is a duplicate-free subset of [0,total) that keeps
// first-seen order.
func TestParseInvariants(t *testing.T) {
	exprs := []string{
		"1-3, 5", "5-1, 2, 2, 9", "1-20", "10, 9, 8, 1-10", "2,2,2", "4-6, 1-3, 5",
		"0-0, 1", " 3 - 3 ", "8-12, 12-8, 1",
	}
	for _, expr := range exprs {
		for total := 1; total <= 12; total++ {
			set, err := Parse(expr, total)
			if err != nil {
				continue
			}
			seen := map[int]bool{}
			for _, i := range set.Indices() {
				if i < 0 || i >= total {
					t.Errorf("Parse(%q, %d): index %d out of bounds", expr, total, i)
				}
				if seen[i] {
					t.Errorf("Parse(%q, %d): duplicate index %d", expr, total, i)
				}
				seen[i] = true
			}
			want := firstSeen(expr, total)
			if d := cmp.Diff(want, set.Indices()); d != "" {
				t.Errorf("Parse(%q, %d) order mismatch (-want +got):\n%s", expr, total, d)
			}
		}
	}
}

// firstSeen is a naive reference: expand every valid token in order and keep
// the first occurrence of each page.
func firstSeen(expr string, total int) []int {
	var out []int
	seen := map[int]bool{}
	for _, tok := range Tokenize(expr) {
		if tok.Kind == TokenInvalid {
			continue
		}
		for n := tok.Start; n <= tok.End && n <= total; n++ {
			if n < 1 || seen[n-1] {
				continue
			}
			seen[n-1] = true
			out = append(out, n-1)
		}
	}
	return out
}

func TestTokenize(t *testing.T) {
	got := Tokenize(" 1 , 2-4,x, 5 - 6 ,7-,3-1")
	want := []Token{
		{Text: "1", Kind: TokenSingle, Start: 1, End: 1},
		{Text: "2-4", Kind: TokenRange, Start: 2, End: 4},
		{Text: "x", Kind: TokenInvalid},
		{Text: "5 - 6", Kind: TokenRange, Start: 5, End: 6},
		{Text: "7-", Kind: TokenInvalid},
		{Text: "3-1", Kind: TokenRange, Start: 3, End: 1},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Tokenize mismatch (-want +got):\n%s", d)
	}
}

func TestAll(t *testing.T) {
	set, err := All(4)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]int{0, 1, 2, 3}, set.Indices()); d != "" {
		t.Errorf("All(4) mismatch (-want +got):\n%s", d)
	}
	if _, err := All(0); !errors.Is(err, ErrEmptyRange) {
		t.Errorf("All(0): got %v, want ErrEmptyRange", err)
	}
}

func TestFromIndices(t *testing.T) {
	set, err := FromIndices([]int{2, 0, 2, 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]int{2, 0, 1}, set.Indices()); d != "" {
		t.Errorf("FromIndices mismatch (-want +got):\n%s", d)
	}
	if got := set.String(); got != "3,1,2" {
		t.Errorf("String() = %q, want %q", got, "3,1,2")
	}
	if _, err := FromIndices([]int{0, 3}, 3); err == nil {
		t.Error("FromIndices with out-of-range index: expected error")
	}
	if _, err := FromIndices(nil, 3); !errors.Is(err, ErrEmptyRange) {
		t.Errorf("FromIndices(nil): got %v, want ErrEmptyRange", err)
	}
}

func TestIndicesIsCopy(t *testing.T) {
	set, _ := Parse("1-3", 3)
	idx := set.Indices()
	idx[0] = 99
	if set.Indices()[0] != 0 {
		t.Error("mutating Indices() result changed the set")
	}
}
