package script

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse_CleanInput(t *testing.T) {
	in := "ACT ONE\nMARIA: Where is the cake?\n(She looks under the table.)"
	got := Parse(in)
	want := []Segment{
		{Speaker: Narrator, Text: "ACT ONE", Type: Heading},
		{Speaker: "MARIA", Text: "Where is the cake?", Type: Dialogue},
		{Speaker: Narrator, Text: "She looks under the table.", Type: Direction},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse:\n got %+v\nwant %+v", got, want)
	}
}

func TestParse_Lines(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []Segment
	}{
		{
			name: "titled speaker",
			line: "DR. SMITH: Hello there.",
			want: []Segment{{Speaker: "DR. SMITH", Text: "Hello there.", Type: Dialogue}},
		},
		{
			name: "lowercase name is not a speaker",
			line: "hello: not a speaker",
			want: []Segment{{Speaker: Narrator, Text: "hello: not a speaker", Type: Direction}},
		},
		{
			name: "hyphen and apostrophe",
			line: "MARY-ANNE O'BRIEN: Right.",
			want: []Segment{{Speaker: "MARY-ANNE O'BRIEN", Text: "Right.", Type: Dialogue}},
		},
		{
			name: "markdown decorated dialogue",
			line: "**BOB:** _I never_ said `that`.",
			want: []Segment{{Speaker: "BOB", Text: "I never said that.", Type: Dialogue}},
		},
		{
			name: "markdown heading",
			line: "## Scene Two",
			want: []Segment{{Speaker: Narrator, Text: "Scene Two", Type: Heading}},
		},
		{
			name: "italic direction",
			line: "*(Lights fade.)*",
			want: []Segment{{Speaker: Narrator, Text: "Lights fade.", Type: Direction}},
		},
		{
			name: "prologue lowercase",
			line: "prologue",
			want: []Segment{{Speaker: Narrator, Text: "prologue", Type: Heading}},
		},
		{
			name: "epilogue",
			line: "EPILOGUE - a year later",
			want: []Segment{{Speaker: Narrator, Text: "EPILOGUE - a year later", Type: Heading}},
		},
		{
			name: "description",
			line: "A kitchen. Morning.",
			want: []Segment{{Speaker: Narrator, Text: "A kitchen. Morning.", Type: Direction}},
		},
		{
			name: "keyword prefix word is dialogue",
			line: "ACTION: run!",
			want: []Segment{{Speaker: "ACTION", Text: "run!", Type: Dialogue}},
		},
		{
			name: "heading with colon is a heading",
			line: "ACT ONE: The Bakery",
			want: []Segment{{Speaker: Narrator, Text: "ACT ONE: The Bakery", Type: Heading}},
		},
		{
			name: "scene with colon",
			line: "SCENE 2: Night",
			want: []Segment{{Speaker: Narrator, Text: "SCENE 2: Night", Type: Heading}},
		},
		{
			name: "roman numeral act with colon",
			line: "ACT IV: The Return",
			want: []Segment{{Speaker: Narrator, Text: "ACT IV: The Return", Type: Heading}},
		},
		{
			name: "bare prologue with colon",
			line: "PROLOGUE: Years earlier",
			want: []Segment{{Speaker: Narrator, Text: "PROLOGUE: Years earlier", Type: Heading}},
		},
		{
			name: "hyphenated name starting with keyword",
			line: "SCENE-STEALER: Look at me!",
			want: []Segment{{Speaker: "SCENE-STEALER", Text: "Look at me!", Type: Dialogue}},
		},
		{
			name: "multi-word name starting with keyword",
			line: "ACT TWO GUY: I only appear later.",
			want: []Segment{{Speaker: "ACT TWO GUY", Text: "I only appear later.", Type: Dialogue}},
		},
		{
			name: "empty parentheses dropped",
			line: "(   )",
			want: nil,
		},
		{
			name: "only markdown dropped",
			line: "***",
			want: nil,
		},
		{
			name: "devanagari dialogue",
			line: "RAJ: नमस्ते।",
			want: []Segment{{Speaker: "RAJ", Text: "नमस्ते।", Type: Dialogue}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.line)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q):\n got %+v\nwant %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParse_SkipsBlankLines(t *testing.T) {
	got := Parse("\n\n   \r\nBOB: Hi.\r\n\n")
	if len(got) != 1 || got[0].Text != "Hi." {
		t.Fatalf("unexpected segments %+v", got)
	}
}

func TestParseStrict_Empty(t *testing.T) {
	if _, err := ParseStrict("\n  \n***\n"); !errors.Is(err, ErrEmptyScript) {
		t.Fatalf("expected ErrEmptyScript, got %v", err)
	}
}

func TestFlatten(t *testing.T) {
	segs := []Segment{
		{Speaker: Narrator, Text: "ACT ONE", Type: Heading},
		{Speaker: "A", Text: "Hello.", Type: Dialogue},
		{Speaker: Narrator, Text: "He waves.", Type: Direction},
		{Speaker: Narrator, Text: "SCENE TWO", Type: Heading},
		{Speaker: "B", Text: "Bye.", Type: Dialogue},
	}
	if got, want := Flatten(segs), "Hello. He waves. Bye."; got != want {
		t.Errorf("Flatten: got %q, want %q", got, want)
	}

	_, err := FlattenStrict(segs[:1])
	if !errors.Is(err, ErrNoText) {
		t.Errorf("FlattenStrict of headings only: got %v, want ErrNoText", err)
	}
}

func TestSpeakers(t *testing.T) {
	segs := Parse("AL: one\nBO: two\n(pause)\nAL: three\nCY: four")
	if got, want := Speakers(segs), []string{"AL", "BO", "CY"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Speakers: got %v, want %v", got, want)
	}
}

func TestParse_SingleLetterNameIsNotDialogue(t *testing.T) {
	segs := Parse("A: one")
	if len(segs) != 1 || segs[0].Speaker != Narrator {
		t.Fatalf("got %+v, want one narrator segment", segs)
	}
	if got := Speakers(segs); len(got) != 0 {
		t.Errorf("Speakers: got %v, want none", got)
	}
}
