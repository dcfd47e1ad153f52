package ingest

import (
	"strings"
	"testing"
)

func TestChunkText(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want []string
	}{
		{name: "empty text", text: "", size: 10, want: nil},
		{name: "zero size", text: "hello", size: 0, want: nil},
		{name: "negative size", text: "hello", size: -3, want: nil},
		{name: "shorter than size", text: "hello", size: 10, want: []string{"hello"}},
		{name: "exact multiple", text: "abcdef", size: 3, want: []string{"abc", "def"}},
		{name: "remainder chunk", text: "abcdefg", size: 3, want: []string{"abc", "def", "g"}},
		{name: "multibyte runes", text: "héllo wörld", size: 4, want: []string{"héll", "o wö", "rld"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkText(tt.text, tt.size)
			if len(got) != len(tt.want) {
				t.Fatalf("ChunkText(%q, %d) = %v, want %v", tt.text, tt.size, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunkTextRoundTrip(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 40)
	for _, size := range []int{1, 7, 300, 1000, len(text) * 2} {
		chunks := ChunkText(text, size)
		if joined := strings.Join(chunks, ""); joined != text {
			t.Fatalf("size %d: concatenated chunks differ from input", size)
		}
		for i, c := range chunks {
			if n := len([]rune(c)); n > size {
				t.Fatalf("size %d: chunk %d has %d runes", size, i, n)
			}
		}
	}
}
