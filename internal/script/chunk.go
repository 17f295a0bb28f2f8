package script

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Sentence ends: Latin terminal punctuation or the Devanagari danda, followed
// by whitespace.
var reSentenceEnd = regexp.MustCompile(`[.!?।]\s+`)

// splitSentences splits text after each sentence end, keeping the
// punctuation with its sentence and discarding the separating whitespace.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range reSentenceEnd.FindAllStringIndex(text, -1) {
		// loc[0] is the punctuation; keep it, drop the whitespace run.
		_, size := utf8.DecodeRuneInString(text[loc[0]:])
		out = append(out, text[last:loc[0]+size])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

// Chunk splits text into pieces of at most maxChars runes for a TTS request.
// Whole sentences are packed greedily, joined by single spaces; a sentence
// longer than maxChars on its own is hard-split at the limit. Text already
// within the limit is returned unchanged as a single chunk.
func Chunk(text string, maxChars int) []string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}

	var (
		chunks  []string
		current string
	)
	for _, sentence := range splitSentences(text) {
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(sentence)+1 <= maxChars {
			current = strings.TrimSpace(current + " " + sentence)
			continue
		}
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
		if utf8.RuneCountInString(sentence) > maxChars {
			chunks = append(chunks, hardSplit(sentence, maxChars)...)
		} else {
			current = sentence
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

func hardSplit(s string, n int) []string {
	runes := []rune(s)
	out := make([]string, 0, len(runes)/n+1)
	for len(runes) > 0 {
		k := min(n, len(runes))
		out = append(out, string(runes[:k]))
		runes = runes[k:]
	}
	return out
}
