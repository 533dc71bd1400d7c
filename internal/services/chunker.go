package services

import (
	"fmt"
	"strings"
)

type TextChunker interface {
	Chunk(text string) []string
}

type ChunkOptions struct {
	Size      int
	Overlap   int
	MinLength int
}

func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{Size: 1000, Overlap: 200, MinLength: 50}
}

type textChunker struct {
	opts ChunkOptions
}

func NewTextChunker(opts ChunkOptions) (TextChunker, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidArgument, opts.Size)
	}
	if opts.Overlap < 0 || opts.MinLength < 0 {
		return nil, fmt.Errorf("%w: chunk overlap and minimum length must not be negative", ErrInvalidArgument)
	}
	return &textChunker{opts: opts}, nil
}

// Chunk splits text into windows of at most Size characters, each starting
// Overlap characters before the previous one ended. A window that would cut a
// sentence is pulled back to the last '.' or '\n' in its second half.
// Trimmed chunks of MinLength characters or fewer are dropped.
func (c *textChunker) Chunk(text string) []string {
	runes := []rune(text)
	total := len(runes)
	chunks := []string{}

	start := 0
	for start < total {
		end := start + c.opts.Size
		if end > total {
			end = total
		}

		if end < total {
			if brk := lastBreak(runes, start+c.opts.Size/2, end); brk >= 0 {
				end = brk + 1
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(chunk)) > c.opts.MinLength {
			chunks = append(chunks, chunk)
		}

		if end >= total {
			break
		}

		next := end - c.opts.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// lastBreak returns the index of the last sentence break in runes[after+1:end],
// or -1.
func lastBreak(runes []rune, after, end int) int {
	for i := end - 1; i > after; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
