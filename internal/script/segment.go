// Package script turns a finished play script into the ordered list of
// segments the audio renderer speaks, and prepares text for single-voice
// performance.
//
// Parsing is line-oriented and deliberately forgiving: the model writing the
// script is asked for a plain format but routinely decorates it with markdown,
// so decoration is stripped before any line is classified.
package script

import (
	"errors"
	"regexp"
	"strings"
)

// Narrator is the reserved speaker for everything that is not character
// dialogue: stage directions, headings and free-form description.
const Narrator = "NARRATOR"

// SegmentType classifies a parsed line.
type SegmentType string

const (
	Dialogue  SegmentType = "dialogue"
	Direction SegmentType = "direction"
	Heading   SegmentType = "heading"
)

// Segment is one speakable unit of a script.
type Segment struct {
	Speaker string      `json:"speaker"`
	Text    string      `json:"text"`
	Type    SegmentType `json:"segment_type"`
}

var (
	// ErrEmptyScript is returned when a script yields no segments at all.
	ErrEmptyScript = errors.New("script: no speakable segments")

	// ErrNoText is returned when flattening leaves nothing to perform.
	ErrNoText = errors.New("script: nothing to perform after removing headings")
)

var (
	reMarkdownHeader = regexp.MustCompile(`^#+\s*`)
	reMarkdownInline = regexp.MustCompile("[*_`]")

	// A speaker is an upper-case run that may contain spaces, hyphens,
	// apostrophes and dots ("DR. SMITH", "MARY-ANNE", "O'BRIEN").
	reDialogue  = regexp.MustCompile(`^([A-Z][A-Z\s\-'.]+):\s+(.+)$`)
	reDirection = regexp.MustCompile(`^\((.+)\)$`)
	reHeading   = regexp.MustCompile(`(?i)^(ACT|SCENE|PROLOGUE|EPILOGUE)\b`)

	// A speaker name is only a heading when it is the keyword alone or the
	// keyword followed by a number or ordinal: "ACT ONE", "SCENE 2", "ACT IV".
	reHeadingSpeaker = regexp.MustCompile(`^(ACT|SCENE|PROLOGUE|EPILOGUE)(\s+(\d+|[IVXLC]+|ONE|TWO|THREE|FOUR|FIVE|SIX|SEVEN|EIGHT|NINE|TEN|FIRST|SECOND|THIRD|FINAL|LAST))?$`)
)

// stripMarkdown removes leading header markers and every emphasis or code
// character, then trims.
func stripMarkdown(line string) string {
	line = reMarkdownHeader.ReplaceAllString(line, "")
	line = reMarkdownInline.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

// Parse splits text into segments, one per non-blank line.
//
// Classification order:
//
//  1. "NAME: words" with an upper-case NAME is dialogue, unless NAME is a
//     heading keyword, alone or followed by a number or ordinal
//     ("ACT ONE: The Bakery"), in which case the line is a heading.
//  2. A fully parenthesised line is a narrator direction.
//  3. A line starting with ACT, SCENE, PROLOGUE or EPILOGUE as a whole word,
//     in any case, is a heading.
//  4. Anything else is narrator description, typed as a direction.
//
// A name that merely contains a heading keyword does not count, so
// "ACTION: run!", "SCENE-STEALER: me!" and "ACT TWO GUY: hi" are dialogue.
func Parse(text string) []Segment {
	var segments []Segment
	for _, raw := range strings.Split(text, "\n") {
		clean := stripMarkdown(strings.TrimSpace(raw))
		if clean == "" {
			continue
		}
		if seg, ok := classify(clean); ok {
			segments = append(segments, seg)
		}
	}
	return segments
}

// ParseStrict is Parse but fails with ErrEmptyScript when nothing is found.
func ParseStrict(text string) ([]Segment, error) {
	segments := Parse(text)
	if len(segments) == 0 {
		return nil, ErrEmptyScript
	}
	return segments, nil
}

func classify(clean string) (Segment, bool) {
	if m := reDialogue.FindStringSubmatch(clean); m != nil {
		speaker := strings.TrimSpace(m[1])
		if reHeadingSpeaker.MatchString(speaker) {
			return Segment{Speaker: Narrator, Text: clean, Type: Heading}, true
		}
		text := strings.TrimSpace(m[2])
		return Segment{Speaker: speaker, Text: text, Type: Dialogue}, text != ""
	}
	if m := reDirection.FindStringSubmatch(clean); m != nil {
		text := strings.TrimSpace(m[1])
		return Segment{Speaker: Narrator, Text: text, Type: Direction}, text != ""
	}
	if reHeading.MatchString(clean) {
		return Segment{Speaker: Narrator, Text: clean, Type: Heading}, true
	}
	return Segment{Speaker: Narrator, Text: clean, Type: Direction}, true
}

// Flatten joins every non-heading segment's text with single spaces, dropping
// speaker names, for delivery by a single performer.
func Flatten(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s.Type == Heading || s.Text == "" {
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// FlattenStrict is Flatten but fails with ErrNoText when the result is empty.
func FlattenStrict(segments []Segment) (string, error) {
	out := Flatten(segments)
	if out == "" {
		return "", ErrNoText
	}
	return out, nil
}

// Speakers returns the distinct dialogue speakers in order of first line.
func Speakers(segments []Segment) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range segments {
		if s.Type != Dialogue || seen[s.Speaker] {
			continue
		}
		seen[s.Speaker] = true
		out = append(out, s.Speaker)
	}
	return out
}
