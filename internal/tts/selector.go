package tts

import "strings"

// SelectorConfig captures the deployment facts that steer provider choice.
type SelectorConfig struct {
	SidecarConfigured bool
	Production        bool
}

// sidecarLocales are language prefixes the sidecar serves better than the
// cloud backends.
var sidecarLocales = []string{"ja", "sv"}

// Select resolves a request to exactly one backend. The order of the checks
// is part of the contract:
//
//  1. legacy aliases map to the sidecar
//  2. an explicit canonical name is honored
//  3. sidecar locales go to the sidecar when it is configured
//  4. outside production a configured sidecar is preferred
//  5. non-English languages go to Google
//  6. everything else goes to OpenAI
func Select(requested, languageCode string, cfg SelectorConfig) Name {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case aliasAppleSay, aliasXTTS:
		return Kokoro
	case string(OpenAI):
		return OpenAI
	case string(Google):
		return Google
	case string(Kokoro):
		return Kokoro
	}

	lang := strings.ToLower(strings.TrimSpace(languageCode))
	if cfg.SidecarConfigured {
		for _, prefix := range sidecarLocales {
			if strings.HasPrefix(lang, prefix) {
				return Kokoro
			}
		}
		if !cfg.Production {
			return Kokoro
		}
	}
	if lang != "" && !strings.HasPrefix(lang, "en") {
		return Google
	}
	return OpenAI
}
