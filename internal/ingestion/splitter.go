package ingestion

import (
	"strings"
	"unicode"

	"github.com/zorbit-ai/askhr-go/internal/budget"
)

const (
	// DefaultChunkSize is the target chunk size in estimated tokens.
	DefaultChunkSize = 512

	// DefaultChunkOverlap is the number of estimated tokens carried over
	// between consecutive chunks.
	DefaultChunkOverlap = 50
)

// Splitter divides document text into chunks along sentence boundaries.
// Chunks target a token budget rather than a byte count, using the same
// character heuristic as the prompt budgeting.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewSplitter creates a Splitter. Non-positive values fall back to the
// defaults; an overlap at or above the chunk size is clamped to one tenth
// of it.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Split breaks text into chunks of whole sentences. A single sentence that
// exceeds the chunk budget becomes its own oversized chunk rather than
// being cut mid-sentence.
func (s *Splitter) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Seed the next chunk with trailing sentences up to the overlap budget.
		var carry []string
		carryTokens := 0
		for i := len(current) - 1; i >= 0; i-- {
			t := budget.Estimate(current[i])
			if carryTokens+t > s.chunkOverlap {
				break
			}
			carry = append([]string{current[i]}, carry...)
			carryTokens += t
		}
		current = carry
		currentTokens = carryTokens
	}

	for _, sentence := range sentences {
		t := budget.Estimate(sentence)
		if currentTokens+t > s.chunkSize && currentTokens > 0 {
			flush()
		}
		current = append(current, sentence)
		currentTokens += t
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

// splitSentences performs a lightweight sentence segmentation on
// terminator punctuation followed by whitespace. Blank lines also act as
// boundaries so headings and list items stay separate sentences.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	var b strings.Builder
	runes := []rune(text)

	emit := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		b.WriteRune(r)

		switch r {
		case '.', '!', '?':
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				emit()
			}
		case '\n':
			// A blank line ends the current sentence even without punctuation.
			if i+1 < len(runes) && runes[i+1] == '\n' {
				emit()
			}
		}
	}
	emit()

	return sentences
}
