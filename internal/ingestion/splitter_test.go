package ingestion

import (
	"strings"
	"testing"
)

func Test_Splitter_KeepsShortTextWhole(t *testing.T) {
	t.Parallel()
	s := NewSplitter(0, 0)
	chunks := s.Split("First sentence. Second sentence. Third sentence.")
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d: %v", len(chunks), chunks)
	}
}

func Test_Splitter_EmptyText(t *testing.T) {
	t.Parallel()
	s := NewSplitter(0, 0)
	if chunks := s.Split("   \n\n  "); chunks != nil {
		t.Errorf("want no chunks for blank text, got %v", chunks)
	}
}

func Test_Splitter_BreaksOnSentenceBoundaries(t *testing.T) {
	t.Parallel()
	// Each sentence is ~100 chars (25 estimated tokens); with a 30 token
	// budget and no overlap, every sentence lands in its own chunk.
	sentence := strings.Repeat("word ", 19) + "done."
	text := strings.Join([]string{sentence, sentence, sentence}, " ")

	s := NewSplitter(30, 0)
	chunks := s.Split(text)
	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !strings.HasSuffix(c, "done.") {
			t.Errorf("chunk %d cut mid-sentence: %q", i, c)
		}
	}
}

func Test_Splitter_OverlapCarriesTrailingSentence(t *testing.T) {
	t.Parallel()
	sentence := strings.Repeat("word ", 19) + "done."
	text := strings.Join([]string{sentence, sentence, sentence}, " ")

	// Overlap budget fits exactly one trailing sentence.
	s := NewSplitter(30, 26)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}
	// The sentence ending the first chunk is repeated at the start of the
	// second, so the second chunk is two sentences long.
	if got := strings.Count(chunks[1], "done."); got != 2 {
		t.Errorf("overlap not carried, want 2 sentences in second chunk, got %d", got)
	}
}

func Test_Splitter_OversizedSentenceBecomesOwnChunk(t *testing.T) {
	t.Parallel()
	huge := strings.Repeat("x", 5000) + "."
	s := NewSplitter(100, 10)
	chunks := s.Split("Small lead-in. " + huge)
	if len(chunks) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(chunks))
	}
	if !strings.Contains(chunks[1], "xxx") {
		t.Errorf("oversized sentence not preserved whole")
	}
}

func Test_SplitSentences_BlankLineBoundary(t *testing.T) {
	t.Parallel()
	got := splitSentences("Vacation policy\n\nEmployees get 30 days")
	if len(got) != 2 {
		t.Fatalf("want 2 sentences, got %d: %v", len(got), got)
	}
	if got[0] != "Vacation policy" {
		t.Errorf("heading not isolated: %q", got[0])
	}
}
