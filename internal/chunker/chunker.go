// Package chunker splits item text into overlapping semantic segments
// sized for embedding. Chunks target a token range, split preferentially
// at paragraph boundaries, and never mid-sentence if avoidable.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

// Default chunking policy: 200-500 tokens per chunk with ~50 tokens of
// overlap between consecutive chunks.
const (
	DefaultMinTokens     = 200
	DefaultMaxTokens     = 500
	DefaultOverlapTokens = 50
)

// Chunker splits text into chunks. Every chunk's content is a
// contiguous substring of the original text; consecutive chunks share
// an overlap region so no context is lost at boundaries.
type Chunker struct {
	minTokens int
	maxTokens int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMinTokens sets the minimum chunk size before a paragraph
// boundary may close a chunk.
func WithMinTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.minTokens = n
		}
	}
}

// WithMaxTokens sets the hard chunk size target.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in tokens.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		minTokens: DefaultMinTokens,
		maxTokens: DefaultMaxTokens,
		overlap:   DefaultOverlapTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.minTokens >= c.maxTokens {
		c.minTokens = c.maxTokens / 2
	}
	if c.overlap >= c.minTokens {
		c.overlap = c.minTokens / 4
	}
	return c
}

// EstimateTokens estimates the token count of text. A ~4 characters per
// token heuristic is close enough for sizing local embedding inputs.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// segment is a sentence-or-smaller span of the original text. The
// concatenation of all segments reproduces the text exactly.
type segment struct {
	text    string
	paraEnd bool
}

// Chunk splits text into chunks for the given item. Positions are
// contiguous starting at 0. Empty text produces no chunks.
func (c *Chunker) Chunk(itemID, text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	segs := c.hardSplit(splitSegments(text))

	var chunks []domain.Chunk
	var cur []segment
	curTok := 0
	fresh := 0 // segments added since the last flush (i.e. not overlap carry-over)

	flush := func() {
		var b strings.Builder
		for _, s := range cur {
			b.WriteString(s.text)
		}
		content := b.String()
		chunks = append(chunks, domain.Chunk{
			ID:         uuid.New().String(),
			ItemID:     itemID,
			Position:   len(chunks),
			Content:    content,
			TokenCount: EstimateTokens(content),
		})

		// Seed the next chunk with the tail of this one, up to the
		// overlap budget, so boundary context is shared.
		var tail []segment
		tok := 0
		for i := len(cur) - 1; i >= 0; i-- {
			t := EstimateTokens(cur[i].text)
			if tok+t > c.overlap {
				break
			}
			tail = append([]segment{cur[i]}, tail...)
			tok += t
		}
		cur = tail
		curTok = tok
		fresh = 0
	}

	for _, seg := range segs {
		t := EstimateTokens(seg.text)
		if fresh > 0 && curTok+t > c.maxTokens {
			flush()
		}
		cur = append(cur, seg)
		curTok += t
		fresh++

		if seg.paraEnd && curTok >= c.minTokens {
			flush()
		}
	}
	if fresh > 0 {
		flush()
	}

	return chunks
}

// splitSegments cuts text into sentence-level spans, preserving every
// character so that concatenating the segments reproduces the input.
// Trailing whitespace after a sentence terminator stays with the
// sentence; a blank line marks a paragraph end.
func splitSegments(text string) []segment {
	var segs []segment
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		end := false
		para := false

		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
				continue
			}
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\r') {
				j++
			}
			newlines := 0
			for j < len(runes) && runes[j] == '\n' {
				newlines++
				j++
			}
			i = j - 1
			end = true
			para = newlines >= 2
		case '\n':
			j := i
			newlines := 0
			for j < len(runes) && runes[j] == '\n' {
				newlines++
				j++
			}
			i = j - 1
			end = true
			para = newlines >= 2
		}

		if end {
			segs = append(segs, segment{text: string(runes[start : i+1]), paraEnd: para})
			start = i + 1
		}
	}

	if start < len(runes) {
		segs = append(segs, segment{text: string(runes[start:]), paraEnd: true})
	} else if len(segs) > 0 {
		segs[len(segs)-1].paraEnd = true
	}

	return segs
}

// hardSplit breaks any segment larger than the max chunk size into
// fixed-size pieces. This is the mid-sentence fallback for pathological
// inputs with no sentence boundaries.
func (c *Chunker) hardSplit(segs []segment) []segment {
	maxRunes := c.maxTokens * 4

	var out []segment
	for _, seg := range segs {
		if EstimateTokens(seg.text) <= c.maxTokens {
			out = append(out, seg)
			continue
		}
		runes := []rune(seg.text)
		for start := 0; start < len(runes); start += maxRunes {
			end := start + maxRunes
			last := end >= len(runes)
			if last {
				end = len(runes)
			}
			out = append(out, segment{
				text:    string(runes[start:end]),
				paraEnd: last && seg.paraEnd,
			})
		}
	}
	return out
}
