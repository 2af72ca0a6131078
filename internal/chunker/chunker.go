package chunker

import "strings"

const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// Chunk splits text into overlapping windows of size words, advancing by
// size-overlap words each step. The final window always ends at the last word.
// Empty or whitespace-only text yields no chunks.
func Chunk(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	size, overlap = normalize(size, overlap)
	step := size - overlap

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Count returns how many chunks Chunk produces for a text of n words.
func Count(n, size, overlap int) int {
	if n <= 0 {
		return 0
	}
	size, overlap = normalize(size, overlap)
	if n <= size {
		return 1
	}
	step := size - overlap
	return (n - overlap + step - 1) / step
}

func normalize(size, overlap int) (int, int) {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return size, overlap
}
