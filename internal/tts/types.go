package tts

import (
	"context"
	"strings"
)

// Name identifies one of the synthesis backends.
type Name string

const (
	// OpenAI is the general purpose cloud backend without markup support.
	OpenAI Name = "openai"
	// Google is the cloud backend that accepts SSML.
	Google Name = "google"
	// Kokoro is the self-hosted sidecar.
	Kokoro Name = "kokoro"
)

// Legacy backend names that now resolve to the sidecar.
const (
	aliasAppleSay = "apple_say"
	aliasXTTS     = "xtts"
)

// IsCloud reports whether n is one of the hosted backends that take part in
// fallback.
func (n Name) IsCloud() bool { return n == OpenAI || n == Google }

// Format is the container of synthesized audio.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatOGG Format = "ogg"
	FormatWAV Format = "wav"
)

// ParseFormat accepts the known container names, case-insensitively.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMP3, FormatOGG, FormatWAV:
		return f, true
	case "":
		return FormatMP3, true
	}
	return "", false
}

// ContentType is the MIME type used when storing audio of this format.
func (f Format) ContentType() string {
	switch f {
	case FormatOGG:
		return "audio/ogg"
	case FormatWAV:
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}

// Input is one synthesis call. Text is either plain text or a markup document
// when the provider supports markup.
type Input struct {
	Text         string
	VoiceID      string
	Speed        float64
	Format       Format
	LanguageCode string
	SampleRate   int
}

// Provider is the capability contract shared by all backends.
type Provider interface {
	Name() Name
	MaxCharsPerRequest() int
	SupportsMarkup() bool
	Synthesize(ctx context.Context, in Input) ([]byte, error)
}

// DefaultVoice returns the voice a backend uses when the caller did not pick
// one. The sidecar voice depends on the language.
func DefaultVoice(name Name, languageCode string) string {
	switch name {
	case Google:
		return "en-US-Standard-C"
	case Kokoro:
		lang := strings.ToLower(languageCode)
		switch {
		case strings.HasPrefix(lang, "sv"):
			return "Erik"
		case strings.HasPrefix(lang, "ja"):
			return "ja_female"
		default:
			return "af_heart"
		}
	default:
		return "alloy"
	}
}
