package cachekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseParams() Params {
	return Params{
		Provider:     "openai",
		VoiceID:      "alloy",
		Speed:        1,
		LanguageCode: "en-US",
		SampleRate:   24000,
		Version:      DefaultVersion,
	}
}

func TestChunkIsDeterministic(t *testing.T) {
	p := baseParams()
	first := Chunk("hello world", p)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Chunk("hello world", p))
	}
	assert.Len(t, first.String(), 64)
}

func TestChunkChangesWithEveryParameter(t *testing.T) {
	base := Chunk("hello world", baseParams())

	mutations := map[string]func(*Params){
		"provider":    func(p *Params) { p.Provider = "google" },
		"voice":       func(p *Params) { p.VoiceID = "nova" },
		"speed":       func(p *Params) { p.Speed = 1.25 },
		"language":    func(p *Params) { p.LanguageCode = "fr-FR" },
		"sample rate": func(p *Params) { p.SampleRate = 16000 },
		"version":     func(p *Params) { p.Version = "md-v2" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := baseParams()
			mutate(&p)
			assert.NotEqual(t, base, Chunk("hello world", p))
		})
	}

	assert.NotEqual(t, base, Chunk("hello world!", baseParams()))
}

func TestFieldBoundariesAreUnambiguous(t *testing.T) {
	a := baseParams()
	a.Provider, a.VoiceID = "open", "aialloy"
	b := baseParams()
	b.Provider, b.VoiceID = "openai", "alloy"
	assert.NotEqual(t, Chunk("x", a), Chunk("x", b))
}

func TestDefaultsAreApplied(t *testing.T) {
	explicit := baseParams()
	implicit := baseParams()
	implicit.Speed = 0
	implicit.Version = ""
	assert.Equal(t, Chunk("x", explicit), Chunk("x", implicit))
}

func TestDocumentKey(t *testing.T) {
	p := baseParams()
	mp3 := Document("doc-1", "mp3", p)
	assert.Equal(t, mp3, Document("doc-1", "mp3", p))
	assert.NotEqual(t, mp3, Document("doc-1", "ogg", p))
	assert.NotEqual(t, mp3, Document("doc-2", "mp3", p))
	assert.NotEqual(t, mp3, Chunk("doc-1", p))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a \n\t b   c  "))
	// NFKC folds the ligature and full-width digits.
	assert.Equal(t, "file 12", Normalize("ﬁle １２"))
	assert.Equal(t, "", Normalize(" \n "))
}
