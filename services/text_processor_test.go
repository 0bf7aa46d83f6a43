package services

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitForSpeech(t *testing.T) {
	tp := NewTextProcessor(100) // Small chunk size for testing

	tests := []struct {
		name      string
		input     string
		minChunks int
		maxChunks int
	}{
		{
			name:      "Empty text",
			input:     "",
			minChunks: 0,
			maxChunks: 0,
		},
		{
			name:      "Short text",
			input:     "This is a short text.",
			minChunks: 1,
			maxChunks: 1,
		},
		{
			name: "Long text with sentences",
			input: "This is the first sentence. This is the second sentence. This is the third sentence. " +
				"This is the fourth sentence. This is the fifth sentence.",
			minChunks: 2,
			maxChunks: 4,
		},
		{
			name:      "One long sentence with commas",
			input:     strings.Repeat("a clause that keeps going, ", 12) + "and ends.",
			minChunks: 3,
			maxChunks: 8,
		},
		{
			name:      "No spaces at all",
			input:     strings.Repeat("x", 250),
			minChunks: 3,
			maxChunks: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := tp.SplitForSpeech(tt.input)
			if len(chunks) < tt.minChunks || len(chunks) > tt.maxChunks {
				t.Errorf("Expected %d-%d chunks, got %d", tt.minChunks, tt.maxChunks, len(chunks))
			}

			for i, chunk := range chunks {
				if len(chunk) > tp.ChunkSize {
					t.Errorf("Chunk %d exceeds max size: %d > %d", i, len(chunk), tp.ChunkSize)
				}
			}
		})
	}
}

func TestSplitForSpeechKeepsAllWords(t *testing.T) {
	tp := NewTextProcessor(60)
	input := "Welcome to the studio. Today we record a voiceover, sync it to a clip, and export the result as one file. That is all."

	chunks := tp.SplitForSpeech(input)
	if got, want := strings.Fields(strings.Join(chunks, " ")), strings.Fields(input); len(got) != len(want) {
		t.Errorf("Expected %d words after split, got %d", len(want), len(got))
	}
}

func TestSplitForSpeechMultibyteHardCut(t *testing.T) {
	tp := NewTextProcessor(10)
	input := strings.Repeat("é", 30) // 60 bytes, no split points

	for i, chunk := range tp.SplitForSpeech(input) {
		if !utf8.ValidString(chunk) {
			t.Errorf("Chunk %d is not valid UTF-8: %q", i, chunk)
		}
		if len(chunk) > tp.ChunkSize {
			t.Errorf("Chunk %d exceeds max size: %d", i, len(chunk))
		}
	}
}

func TestNormalizeScript(t *testing.T) {
	tp := NewTextProcessor(4500)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Speaker label and markdown",
			input:    "**Narrator:** Welcome to *the* future.",
			expected: "Welcome to the future.",
		},
		{
			name:     "Stage directions",
			input:    "[Upbeat music] Meet the new phone. (Music fades) It is fast.",
			expected: "Meet the new phone. It is fast.",
		},
		{
			name:     "Keeps ordinary parentheses",
			input:    "Our app (now free) is here.",
			expected: "Our app (now free) is here.",
		},
		{
			name:     "Paragraphs",
			input:    "VO: First line.\r\n\r\n\r\n\r\nSecond line.",
			expected: "First line.\n\nSecond line.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tp.NormalizeScript(tt.input); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestEstimateDurationAddsPauseAllowance(t *testing.T) {
	tp := NewTextProcessor(4500)

	tenWords := "one two three four five six seven eight nine ten"
	tests := []struct {
		input string
		want  float64
	}{
		{"", 0},
		{tenWords, 4.4},
		{strings.Repeat("word ", 150), 66},
	}
	for _, tt := range tests {
		if got := tp.estimateDuration(tt.input); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("estimateDuration(%d words) = %.3f, want %.3f", len(strings.Fields(tt.input)), got, tt.want)
		}
	}

	tp.WordsPerMinute = 300
	if got := tp.estimateDuration(tenWords); math.Abs(got-2.2) > 1e-9 {
		t.Errorf("faster pace: got %.3f, want 2.2", got)
	}
}

func TestSplitIntoSentences(t *testing.T) {
	tp := NewTextProcessor(4500)

	tests := []struct {
		input string
		want  []string
	}{
		{"Meet the studio.", []string{"Meet the studio."}},
		{"Record it. Sync it! Export it?", []string{"Record it.", "Sync it!", "Export it?"}},
		{"Use it e.g.for demos. Then export.", []string{"Use it e.g.for demos.", "Then export."}},
		{"第一句。 第二句！ 第三句？", []string{"第一句。", "第二句！", "第三句？"}},
		{"Trailing words without a stop", []string{"Trailing words without a stop"}},
		{"   ", []string{}},
	}

	for _, tt := range tests {
		got := tp.splitIntoSentences(tt.input)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitIntoSentences(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStats(t *testing.T) {
	tp := NewTextProcessor(4500)
	script := "Welcome to the studio. Pick a voice and press export. Done!"

	stats := tp.Stats(script)

	if stats.Characters != utf8.RuneCountInString(script) {
		t.Errorf("Characters = %d, want %d", stats.Characters, utf8.RuneCountInString(script))
	}
	if stats.Words != 11 {
		t.Errorf("Words = %d, want 11", stats.Words)
	}
	if stats.Sentences != 3 {
		t.Errorf("Sentences = %d, want 3", stats.Sentences)
	}
	if stats.SpeechRequests != 1 {
		t.Errorf("SpeechRequests = %d, want 1", stats.SpeechRequests)
	}
	if math.Abs(stats.EstimatedSeconds-4.84) > 1e-9 {
		t.Errorf("EstimatedSeconds = %.3f, want 4.84", stats.EstimatedSeconds)
	}
}
