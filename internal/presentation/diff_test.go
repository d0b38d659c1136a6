package presentation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTokenize(t *testing.T) {
	require.Equal(t, []string{"foo", ".", "bar", " ", "baz", "(", ")"}, tokenize("foo.bar baz()"))
	require.Nil(t, tokenize(""))
}

func TestWordDiff(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want []segment
	}{
		{name: "both empty", old: "", new: "", want: nil},
		{name: "unchanged", old: "same text", new: "same text", want: []segment{{segmentUnchanged, "same text"}}},
		{
			name: "insert word",
			old:  "reverse a linked list",
			new:  "reverse a doubly linked list",
			want: []segment{
				{segmentUnchanged, "reverse a "},
				{segmentAdded, "doubly "},
				{segmentUnchanged, "linked list"},
			},
		},
		{
			name: "replace word",
			old:  "use a map",
			new:  "use a slice",
			want: []segment{
				{segmentUnchanged, "use a "},
				{segmentDeleted, "map"},
				{segmentAdded, "slice"},
			},
		},
		{name: "from empty", old: "", new: "hi", want: []segment{{segmentAdded, "hi"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, wordDiff(tt.old, tt.new))
		})
	}
}

func TestRenderWordDiff_PlainTerminal(t *testing.T) {
	out := renderWordDiff(wordDiff("use a map", "use a slice"))
	require.Contains(t, out, "use a ")
	require.Contains(t, out, "map")
	require.Contains(t, out, "slice")
}

// Property: joining tokens restores the input, and a diff rebuilds both
// sides.
func TestWordDiff_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "fork", " ", ".", "\n", "ü"}), 0, 30)
		oldText := strings.Join(words.Draw(t, "old"), "")
		newText := strings.Join(words.Draw(t, "new"), "")

		if strings.Join(tokenize(oldText), "") != oldText {
			t.Fatalf("tokenize lost text of %q", oldText)
		}

		var gotOld, gotNew strings.Builder
		for _, s := range wordDiff(oldText, newText) {
			switch s.Type {
			case segmentUnchanged:
				gotOld.WriteString(s.Text)
				gotNew.WriteString(s.Text)
			case segmentDeleted:
				gotOld.WriteString(s.Text)
			case segmentAdded:
				gotNew.WriteString(s.Text)
			}
		}
		if gotOld.String() != oldText {
			t.Fatalf("old side %q, want %q", gotOld.String(), oldText)
		}
		if gotNew.String() != newText {
			t.Fatalf("new side %q, want %q", gotNew.String(), newText)
		}
	})
}
