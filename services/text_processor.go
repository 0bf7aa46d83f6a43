package services

import (
	"regexp"
	"strings"
	"unicode"

	"voiceover/models"
)

var (
	stageDirection = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\b(?i:music|sfx|pause|scene|cut)\b[^)]*\)`)
	speakerLabel   = regexp.MustCompile(`(?m)^[ \t]*(?:\*\*)?(?i:narrator|voiceover|voice over|vo)(?:\*\*)?\s*:\s*`)
	markdownMarks  = regexp.MustCompile("[*_#`]+")
	spaceRun       = regexp.MustCompile(`[ \t]+`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
)

// TextProcessor prepares scripts for speech synthesis
type TextProcessor struct {
	ChunkSize      int     // max bytes per synthesis request
	WordsPerMinute float64 // narration pace used for estimates
}

// NewTextProcessor creates a text processor
func NewTextProcessor(chunkSize int) *TextProcessor {
	return &TextProcessor{
		ChunkSize:      chunkSize,
		WordsPerMinute: 150.0,
	}
}

// NormalizeScript strips stage directions, speaker labels and markdown so only the
// spoken words reach the synthesizer
func (tp *TextProcessor) NormalizeScript(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = speakerLabel.ReplaceAllString(text, "")
	text = stageDirection.ReplaceAllString(text, "")
	text = markdownMarks.ReplaceAllString(text, "")
	text = spaceRun.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

// SplitForSpeech splits text into chunks no longer than ChunkSize bytes.
// Sentences are packed whole where possible; longer sentences are split at
// punctuation, then at spaces.
func (tp *TextProcessor) SplitForSpeech(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}

	if len(text) <= tp.ChunkSize {
		return []string{text}
	}

	chunks := []string{}
	current := ""

	for _, sentence := range tp.splitIntoSentences(text) {
		potentialLen := len(current) + len(sentence)
		if current != "" {
			potentialLen++
		}

		if potentialLen <= tp.ChunkSize {
			if current != "" {
				current += " " + sentence
			} else {
				current = sentence
			}
			continue
		}

		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}

		if len(sentence) > tp.ChunkSize {
			chunks = append(chunks, tp.smartSplit(sentence, tp.ChunkSize)...)
		} else {
			current = sentence
		}
	}

	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

// smartSplit splits a long text at the latest punctuation mark inside the limit,
// falling back to the last space and finally to a hard cut
func (tp *TextProcessor) smartSplit(text string, limit int) []string {
	var chunks []string
	remaining := text

	for len(remaining) > limit {
		splitIdx := -1
		searchStart := limit / 3

		for _, punc := range []string{";", ":", ",", " - ", " — "} {
			if idx := strings.LastIndex(remaining[searchStart:limit], punc); idx != -1 {
				if end := searchStart + idx + len(punc); end > splitIdx {
					splitIdx = end
				}
			}
		}

		if splitIdx == -1 {
			if lastSpace := strings.LastIndex(remaining[:limit], " "); lastSpace > 0 {
				splitIdx = lastSpace
			} else {
				splitIdx = runeBoundary(remaining, limit)
			}
		}

		if chunk := strings.TrimSpace(remaining[:splitIdx]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimSpace(remaining[splitIdx:])
	}

	if remaining != "" {
		chunks = append(chunks, remaining)
	}

	return chunks
}

// runeBoundary moves idx back so a hard cut never splits a UTF-8 sequence
func runeBoundary(s string, idx int) int {
	for idx > 0 && idx < len(s) && !isRuneStart(s[idx]) {
		idx--
	}
	if idx == 0 {
		return len(s)
	}
	return idx
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// estimateDuration estimates how long the narration of text takes, in seconds
func (tp *TextProcessor) estimateDuration(text string) float64 {
	wordCount := tp.countWords(text)
	if wordCount == 0 {
		return 0.0
	}

	// 10% for natural pauses
	return float64(wordCount) / tp.WordsPerMinute * 60.0 * 1.1
}

func (tp *TextProcessor) countWords(text string) int {
	return len(strings.Fields(text))
}

// splitIntoSentences splits text at sentence endings followed by whitespace
func (tp *TextProcessor) splitIntoSentences(text string) []string {
	sentences := []string{}
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		// abbreviations like "e.g." are not followed by a space mid-token
		if tp.isSentenceEnding(r) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if sentence := strings.TrimSpace(current.String()); sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
		}
	}

	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}

	return sentences
}

func (tp *TextProcessor) isSentenceEnding(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？'
}

// Stats summarizes a script for display next to the editor
func (tp *TextProcessor) Stats(text string) models.ScriptStats {
	return models.ScriptStats{
		Characters:       len([]rune(text)),
		Words:            tp.countWords(text),
		Sentences:        len(tp.splitIntoSentences(text)),
		EstimatedSeconds: tp.estimateDuration(text),
		SpeechRequests:   len(tp.SplitForSpeech(text)),
	}
}
