package tts

import (
	"fmt"
	"unicode/utf8"
)

// Delivery selects a synthesis style. Providers that do not expose prosody
// controls ignore it.
type Delivery int

const (
	// DeliveryEnsemble is the default reading used for multi-voice plays.
	DeliveryEnsemble Delivery = iota

	// DeliveryComedian slows the pace and raises expressiveness for a single
	// performer delivering a monologue.
	DeliveryComedian
)

// String implements fmt.Stringer.
func (d Delivery) String() string {
	switch d {
	case DeliveryEnsemble:
		return "ensemble"
	case DeliveryComedian:
		return "comedian"
	default:
		return fmt.Sprintf("Delivery(%d)", int(d))
	}
}

// Request is a single synthesis call.
type Request struct {
	Text string

	// Voice is the provider-specific voice identifier.
	Voice string

	// Language is the human-readable content language ("English",
	// "Hindi (हिंदी)"). Providers map it to their own codes.
	Language string

	Delivery Delivery
}

// CheckLength returns an error when text exceeds limit runes.
func CheckLength(provider, text string, limit int) error {
	if text == "" {
		return fmt.Errorf("%s: text must not be empty", provider)
	}
	if n := utf8.RuneCountInString(text); limit > 0 && n > limit {
		return fmt.Errorf("%s: text is %d characters, limit is %d", provider, n, limit)
	}
	return nil
}

// Casting is a provider's default voice line-up.
type Casting struct {
	// Narrator reads stage directions, headings and descriptions.
	Narrator string

	// Characters is cycled through in order of first appearance.
	Characters []string

	// Soloists are the voices offered for single-performer mode.
	Soloists []string
}

// VoiceProfile describes one voice in a provider's catalogue.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Gender is "male", "female" or empty when unknown.
	Gender string

	// Metadata holds provider-specific voice attributes (accent, age, category).
	Metadata map[string]string
}
