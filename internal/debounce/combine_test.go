package debounce

import (
	"fmt"
	"strings"
	"testing"
	"testing/quick"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		want      string
	}{
		{"empty", nil, ""},
		{"single kept verbatim", []string{"  hi  "}, "  hi  "},
		{"two fragments", []string{"Hello", "there"}, "Hello there"},
		{"trims each", []string{" Hello ", "\tthere\n"}, "Hello there"},
		{"skips blank", []string{"a", "   ", "b"}, "a b"},
		{"keeps order", []string{"3", "1", "2"}, "3 1 2"},
		{"inner whitespace untouched", []string{"a  b", "c"}, "a  b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Combine(tt.fragments); got != tt.want {
				t.Errorf("Combine(%q) = %q, want %q", tt.fragments, got, tt.want)
			}
		})
	}
}

func TestCombine_SingleFragmentUnchanged(t *testing.T) {
	f := func(s string) bool { return Combine([]string{s}) == s }
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

// padded builds len(ids) non-blank words, each wrapped in whitespace chosen by pads.
func padded(ids []uint16, pads []uint8) (words, fragments []string) {
	ws := []string{"", " ", "\t", "\n ", "  "}
	for i, id := range ids {
		w := fmt.Sprintf("w%d", id)
		var p uint8
		if i < len(pads) {
			p = pads[i]
		}
		words = append(words, w)
		fragments = append(fragments, ws[int(p)%len(ws)]+w+ws[int(p/8)%len(ws)])
	}
	return words, fragments
}

func TestCombine_PreservesOrder(t *testing.T) {
	f := func(ids []uint16, pads []uint8) bool {
		if len(ids) < 2 {
			return true
		}
		words, fragments := padded(ids, pads)
		got := strings.Fields(Combine(fragments))
		if len(got) != len(words) {
			return false
		}
		for i := range words {
			if got[i] != words[i] {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestCombine_TrimmedSingleSpaceJoin(t *testing.T) {
	f := func(ids []uint16, pads []uint8, blanks uint8) bool {
		if len(ids) < 2 {
			return true
		}
		words, fragments := padded(ids, pads)
		// Whitespace-only fragments contribute nothing.
		fragments = append(fragments, strings.Repeat(" ", int(blanks%4)))
		got := Combine(fragments)
		return got == strings.Join(words, " ") &&
			strings.TrimSpace(got) == got &&
			!strings.Contains(got, "  ")
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}
