package sarvam

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

func sortedSpeakers() []string {
	ids := make([]string, 0, len(Speakers))
	for id := range Speakers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// displayName title-cases a speaker id ("kabir" -> "Kabir").
func displayName(id string) string {
	r, size := utf8.DecodeRuneInString(id)
	if r == utf8.RuneError {
		return id
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(id[size:])
}
