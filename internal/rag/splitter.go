package rag

import (
	"strings"
	"unicode/utf8"
)

// separators are tried in order; the empty separator splits into runes
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most Size runes, consecutive chunks
// sharing up to Overlap runes.
type Splitter struct {
	Size    int
	Overlap int
}

// Split returns the non-empty chunks of text
func (s Splitter) Split(text string) []string {
	var chunks []string
	for _, chunk := range s.split(text, separators) {
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func (s Splitter) split(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range seps {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, fitting []string
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) < s.Size {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, s.merge(fitting, sep)...)
			fitting = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	if len(fitting) > 0 {
		out = append(out, s.merge(fitting, sep)...)
	}
	return out
}

// merge joins small pieces into chunks, carrying a tail of up to Overlap
// runes into the next chunk.
func (s Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	joinCost := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var chunks, current []string
	total := 0
	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n+joinCost(len(current)) > s.Size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, sep))
			for total > s.Overlap || (total > 0 && total+n+joinCost(len(current)) > s.Size) {
				total -= utf8.RuneCountInString(current[0]) + joinCost(len(current)-1)
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n + joinCost(len(current)-1)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, sep))
	}
	return chunks
}
