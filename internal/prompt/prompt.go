// Package prompt holds the named prompt templates used by the writing agents.
//
// Templates are compiled into the binary from prompts.yaml and looked up by
// name. Placeholders have the form {name} and are filled in a single pass, so
// substituted text (a draft that happens to contain "{theme}") is never
// expanded a second time.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Template names.
const (
	StoryWriterSystem         = "story_writer_system"
	DirectorSystem            = "director_system"
	StoryWriterOpening        = "story_writer_opening"
	StoryWriterRevise         = "story_writer_revise"
	DirectorCritique          = "director_critique"
	DirectorFinalRound        = "director_final_round"
	ContinueScript            = "continue_script"
	ContinuePlay              = "continue_play"
	FunnyPlaySystem           = "funny_play_system"
	FunnyPlayGenerate         = "funny_play_generate"
	FunnyPlayDirectorSystem   = "funny_play_director_system"
	FunnyPlayDirectorCritique = "funny_play_director_critique"
	FunnyPlayRevise           = "funny_play_revise"
	MonologueSystem           = "monologue_system"
	MonologueRewrite          = "monologue_rewrite"
)

var (
	// ErrUnknownPrompt is returned by [Get] for a name that is not registered.
	ErrUnknownPrompt = errors.New("prompt: unknown prompt")

	// ErrMissingParam is returned by [Get] when a template references a
	// placeholder for which no parameter was supplied.
	ErrMissingParam = errors.New("prompt: missing parameter")
)

//go:embed prompts.yaml
var catalogueYAML []byte

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

var catalogue = sync.OnceValues(func() (map[string]string, error) {
	return parse(catalogueYAML)
})

func parse(data []byte) (map[string]string, error) {
	var m map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("prompt: decode catalogue: %w", err)
	}
	for name, tmpl := range m {
		if strings.TrimSpace(tmpl) == "" {
			return nil, fmt.Errorf("prompt: template %q is empty", name)
		}
	}
	return m, nil
}

// Get returns the template registered under name with params substituted.
// With no params the template is returned verbatim, placeholders included.
func Get(name string, params map[string]string) (string, error) {
	m, err := catalogue()
	if err != nil {
		return "", err
	}
	tmpl, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownPrompt, name)
	}
	if len(params) == 0 {
		return tmpl, nil
	}
	return fill(name, tmpl, params)
}

func fill(name, tmpl string, params map[string]string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := params[key]
		if !ok {
			if !slices.Contains(missing, key) {
				missing = append(missing, key)
			}
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %q needs %s", ErrMissingParam, name, strings.Join(missing, ", "))
	}
	return out, nil
}

// MustGet is like [Get] but panics on error. Use it only with constant names
// and complete parameter sets.
func MustGet(name string, params map[string]string) string {
	s, err := Get(name, params)
	if err != nil {
		panic(err)
	}
	return s
}

// Names returns the registered template names in sorted order.
func Names() []string {
	m, err := catalogue()
	if err != nil {
		return nil
	}
	return slices.Sorted(maps.Keys(m))
}
