// Package textsplit cuts page text into overlapping passages that remember
// which page and lines they came from.
package textsplit

import "strings"

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

type Passage struct {
	Text     string
	Page     int
	LineFrom int
	LineTo   int
}

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func New(chunkSize, overlap int) Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

type line struct {
	text string
	no   int
}

// SplitPage packs whole lines into passages of at most ChunkSize characters.
// Consecutive passages share trailing lines worth about Overlap characters.
// A single line longer than ChunkSize is cut into ChunkSize pieces.
func (s Splitter) SplitPage(page int, text string) []Passage {
	var lines []line
	for i, raw := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		for _, piece := range hardWrap(trimmed, s.ChunkSize) {
			lines = append(lines, line{text: piece, no: i + 1})
		}
	}

	var out []Passage
	start := 0
	for start < len(lines) {
		end := start
		size := 0
		for end < len(lines) {
			add := len(lines[end].text)
			if end > start {
				add++
			}
			if size+add > s.ChunkSize && end > start {
				break
			}
			size += add
			end++
		}
		out = append(out, build(page, lines[start:end]))
		if end >= len(lines) {
			break
		}

		next := end
		carried := 0
		for next > start+1 && carried+len(lines[next-1].text) <= s.Overlap {
			carried += len(lines[next-1].text) + 1
			next--
		}
		start = next
	}
	return out
}

// Split runs SplitPage over pages given in order, page numbers starting at 1.
func (s Splitter) Split(pages []string) []Passage {
	var out []Passage
	for i, text := range pages {
		out = append(out, s.SplitPage(i+1, text)...)
	}
	return out
}

// Windows cuts text into consecutive windows of at most size characters,
// preferring to break on whitespace.
func Windows(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}
	var out []string
	for len(text) > size {
		cut := strings.LastIndexAny(text[:size], " \n\t")
		if cut <= 0 {
			cut = size
		}
		out = append(out, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

func build(page int, lines []line) Passage {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.text
	}
	return Passage{
		Text:     strings.Join(parts, "\n"),
		Page:     page,
		LineFrom: lines[0].no,
		LineTo:   lines[len(lines)-1].no,
	}
}

func hardWrap(s string, size int) []string {
	if len(s) <= size {
		return []string{s}
	}
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
