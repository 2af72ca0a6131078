package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func makeWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestChunk_Empty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		if got := Chunk(text, 500, 50); len(got) != 0 {
			t.Errorf("Chunk(%q) = %d chunks, want 0", text, len(got))
		}
	}
}

func TestChunk_UnderSize(t *testing.T) {
	text := makeWords(50)
	chunks := Chunk(text, 500, 50)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("expected chunk to equal the input text")
	}
}

func TestChunk_CountMatchesFormula(t *testing.T) {
	tests := []struct {
		n, size, overlap int
	}{
		{1, 500, 50},
		{500, 500, 50},
		{501, 500, 50},
		{950, 500, 50},
		{951, 500, 50},
		{1234, 500, 50},
		{10, 3, 1},
		{10, 4, 0},
	}
	for _, tt := range tests {
		chunks := Chunk(makeWords(tt.n), tt.size, tt.overlap)
		if want := Count(tt.n, tt.size, tt.overlap); len(chunks) != want {
			t.Errorf("n=%d size=%d overlap=%d: got %d chunks, want %d", tt.n, tt.size, tt.overlap, len(chunks), want)
		}
	}
}

func TestChunk_CoversEveryWordInOrder(t *testing.T) {
	n, size, overlap := 1234, 500, 50
	words := strings.Fields(makeWords(n))
	chunks := Chunk(strings.Join(words, " "), size, overlap)

	var rebuilt []string
	for i, c := range chunks {
		cw := strings.Fields(c)
		if i > 0 {
			cw = cw[overlap:]
		}
		rebuilt = append(rebuilt, cw...)
	}
	if strings.Join(rebuilt, " ") != strings.Join(words, " ") {
		t.Fatal("dropping the overlap prefix of each chunk did not reproduce the word sequence")
	}

	last := strings.Fields(chunks[len(chunks)-1])
	if last[len(last)-1] != words[n-1] {
		t.Errorf("last chunk ends with %q, want %q", last[len(last)-1], words[n-1])
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := makeWords(777)
	a := Chunk(text, 100, 10)
	b := Chunk(text, 100, 10)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestChunk_OverlapClamped(t *testing.T) {
	chunks := Chunk(makeWords(20), 4, 4)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	// overlap clamps to size/4 = 1, so step is 3
	if got := strings.Fields(chunks[1])[0]; got != "w3" {
		t.Errorf("second chunk starts with %q, want w3", got)
	}
	if len(chunks) != Count(20, 4, 4) {
		t.Errorf("got %d chunks, want %d", len(chunks), Count(20, 4, 4))
	}
}

func TestChunk_DefaultSize(t *testing.T) {
	chunks := Chunk(makeWords(DefaultSize+1), 0, DefaultOverlap)
	if len(chunks) != 2 {
		t.Errorf("expected 2 chunks with default size, got %d", len(chunks))
	}
}
