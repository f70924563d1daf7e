package chunker

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// DefaultLookback caps how far back from a window's end a break may move
	// to land on a sentence or paragraph boundary.
	DefaultLookback = 200
)

const (
	StrategyBoundary = "boundary"
	StrategyFixed    = "fixed"
)

type ChunkOptions struct {
	ChunkSize    int    // window size in characters
	ChunkOverlap int    // characters shared by consecutive chunks
	Lookback     int    // boundary search distance; 0 means min(DefaultLookback, ChunkSize/4)
	Strategy     string // "boundary" or "fixed"
}

// TextChunk is one window over the normalized text. Start and End are rune
// offsets into Normalize(text).
type TextChunk struct {
	Content string
	Index   int
	Start   int
	End     int
}

func DefaultOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Strategy:     StrategyBoundary,
	}
}

// Chunk slides a ChunkSize window over the normalized text, advancing by
// ChunkSize-ChunkOverlap. The last ChunkOverlap runes of chunk i are always the
// first ChunkOverlap runes of chunk i+1, and no chunk is longer than ChunkSize.
func Chunk(text string, opts ChunkOptions) []TextChunk {
	opts = sanitize(opts)

	runes := []rune(Normalize(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []TextChunk
	for start := 0; ; {
		end := start + opts.ChunkSize
		if end >= n {
			chunks = append(chunks, TextChunk{
				Content: string(runes[start:n]),
				Index:   len(chunks),
				Start:   start,
				End:     n,
			})
			return chunks
		}

		if opts.Strategy != StrategyFixed {
			// The break must leave room for the overlap plus one new rune,
			// otherwise the next window would not advance.
			floor := max(start+opts.ChunkOverlap+1, end-opts.Lookback)
			if b := findBoundary(runes, floor, end); b > 0 {
				end = b
			}
		}

		chunks = append(chunks, TextChunk{
			Content: string(runes[start:end]),
			Index:   len(chunks),
			Start:   start,
			End:     end,
		})
		start = end - opts.ChunkOverlap
	}
}

func sanitize(opts ChunkOptions) ChunkOptions {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}
	if opts.Lookback <= 0 {
		opts.Lookback = min(DefaultLookback, opts.ChunkSize/4)
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyBoundary
	}
	return opts
}

// findBoundary returns the largest break position p in [floor, end] that sits
// just after a paragraph break, or failing that after a sentence end or line
// break. It returns 0 when none exists.
func findBoundary(runes []rune, floor, end int) int {
	if floor < 1 {
		floor = 1
	}
	for p := end; p >= floor && p >= 2; p-- {
		if runes[p-1] == '\n' && runes[p-2] == '\n' {
			return p
		}
	}
	for p := end; p >= floor && p >= 2; p-- {
		if runes[p-1] == '\n' {
			return p
		}
		if runes[p-1] == ' ' && isSentenceEnd(runes[p-2]) {
			return p
		}
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// Normalize applies NFC, turns every horizontal whitespace run into one space,
// strips spaces around line breaks and keeps at most one blank line between
// paragraphs. Chunk offsets refer to this form.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))

	newlines := 0
	pendingSpace := false
	for _, r := range text {
		switch {
		case r == '\n':
			newlines++
			pendingSpace = false
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r):
			continue
		default:
			if b.Len() > 0 {
				switch {
				case newlines >= 2:
					b.WriteString("\n\n")
				case newlines == 1:
					b.WriteByte('\n')
				case pendingSpace:
					b.WriteByte(' ')
				}
			}
			newlines = 0
			pendingSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
