// Package chunker splits document text into overlapping windows whose
// ends snap to semantic boundaries, so that embeddings are computed over
// coherent spans instead of mid-sentence fragments.
package chunker

import "strings"

// separators in precedence order. When a window end falls mid-text we
// prefer breaking after a paragraph, then a line, then a sentence, and
// only then after weaker boundaries.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", ";", ":", " "}

// boundaryWindow is how far back from a window end we look for a
// separator before giving up and cutting mid-word.
const boundaryWindow = 100

// Chunk is a contiguous slice of the input text with its byte offsets.
type Chunk struct {
	Text      string
	StartChar int
	EndChar   int
}

// Split cuts text into chunks of at most roughly chunkSize bytes with
// the requested overlap between consecutive chunks. Starts are strictly
// increasing and the chunks cover the whole input. Whitespace-only
// windows are suppressed.
func Split(text string, chunkSize, overlap int) []Chunk {
	if chunkSize <= 0 || len(text) == 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}

	var chunks []Chunk
	start := 0

	for start < len(text) {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			end = snapToSeparator(text, start, end)
		}

		piece := text[start:end]
		if strings.TrimSpace(piece) != "" {
			chunks = append(chunks, Chunk{Text: piece, StartChar: start, EndChar: end})
		}

		if end >= len(text) {
			break
		}

		next := end - overlap
		if next <= start {
			// Force progress when the snapped window is smaller
			// than the overlap.
			next = start + chunkSize/2
			if next <= start {
				next = start + 1
			}
		}
		start = next
	}

	return chunks
}

// snapToSeparator moves end to just past the last occurrence of the
// highest-precedence separator within the final boundaryWindow bytes of
// the window. When no separator is present the original end stands.
func snapToSeparator(text string, start, end int) int {
	windowStart := end - boundaryWindow
	if windowStart < start {
		windowStart = start
	}
	window := text[windowStart:end]

	for _, sep := range separators {
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			return windowStart + idx + len(sep)
		}
	}
	return end
}
