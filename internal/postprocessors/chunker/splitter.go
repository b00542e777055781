package chunker

import (
	"strings"
	"unicode/utf8"
)

// separators run from coarsest to finest. The empty separator splits
// into single characters and guarantees termination.
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ": ", ", ", " ", ""}

// splitter packs separator-delimited pieces into bounded chunks.
// Sizes are measured in characters (runes).
type splitter struct {
	size    int
	overlap int
}

// split returns the chunks of text in left-to-right order.
func (s splitter) split(text string) []string {
	if text == "" {
		return nil
	}
	if runeLen(text) <= s.size {
		return []string{text}
	}
	var out []string
	for _, chunk := range s.splitLevel(text, 0) {
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
	}
	return out
}

// splitLevel splits text on separators[level], packs the pieces, and
// re-splits any packed chunk still over size at the next level.
func (s splitter) splitLevel(text string, level int) []string {
	if runeLen(text) <= s.size {
		return []string{text}
	}

	sep := separators[level]
	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, sep)
	}

	packed := s.pack(pieces, sep)

	final := make([]string, 0, len(packed))
	for _, chunk := range packed {
		if runeLen(chunk) > s.size && level+1 < len(separators) {
			final = append(final, s.splitLevel(chunk, level+1)...)
			continue
		}
		final = append(final, chunk)
	}
	return final
}

// pack greedily fills a buffer with pieces. When the next piece would
// overflow, the buffer is emitted and the next one is seeded with the
// longest suffix of pieces whose combined size fits in the overlap.
// Each piece costs its length plus one separator.
func (s splitter) pack(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var (
		chunks  []string
		current []string
		size    int
	)
	for _, piece := range pieces {
		cost := runeLen(piece) + sepLen
		if size+cost > s.size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, sep))
			current, size = s.overlapTail(current, sepLen)
			// The seed never crowds out the piece that triggered the emit.
			for len(current) > 0 && size+cost > s.size {
				size -= runeLen(current[0]) + sepLen
				current = current[1:]
			}
		}
		current = append(current, piece)
		size += cost
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, sep))
	}
	return chunks
}

// overlapTail returns the suffix of pieces whose total cost is at most
// the configured overlap, and that total.
func (s splitter) overlapTail(pieces []string, sepLen int) ([]string, int) {
	total := 0
	start := len(pieces)
	for i := len(pieces) - 1; i >= 0; i-- {
		cost := runeLen(pieces[i]) + sepLen
		if total+cost > s.overlap {
			break
		}
		total += cost
		start = i
	}
	tail := make([]string, len(pieces)-start)
	copy(tail, pieces[start:])
	return tail, total
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
