// Package cachekey derives content addresses for synthesized audio.
//
// A key is the hex SHA-256 over NUL-separated fields. The engine version is
// one of the fields, so bumping it moves every chunk and document to a fresh
// namespace.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultVersion is the engine version tag mixed into every key.
const DefaultVersion = "md-v1"

// Key is a 64 character lowercase hex digest.
type Key string

func (k Key) String() string { return string(k) }

// Params are the synthesis parameters that discriminate one rendition of a
// text from another.
type Params struct {
	Provider     string
	VoiceID      string
	Speed        float64
	LanguageCode string
	SampleRate   int
	Version      string
}

func (p Params) version() string {
	if p.Version == "" {
		return DefaultVersion
	}
	return p.Version
}

func (p Params) speed() string {
	speed := p.Speed
	if speed == 0 {
		speed = 1
	}
	return strconv.FormatFloat(speed, 'f', -1, 64)
}

func (p Params) sampleRate() string {
	if p.SampleRate <= 0 {
		return ""
	}
	return strconv.Itoa(p.SampleRate)
}

// Normalize applies NFKC, collapses whitespace runs to a single space and
// trims the result.
func Normalize(text string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(text)), " ")
}

// Chunk returns the address of one chunk's audio. The text is expected to be
// normalized already.
func Chunk(normalized string, p Params) Key {
	return hash(
		normalized,
		p.Provider,
		p.VoiceID,
		p.speed(),
		p.LanguageCode,
		p.sampleRate(),
		p.version(),
	)
}

// Document returns the address of a whole document rendition, used for the
// stitched track and the manifest.
func Document(sourceID, format string, p Params) Key {
	return hash(
		sourceID,
		p.Provider,
		p.VoiceID,
		p.speed(),
		format,
		p.LanguageCode,
		p.sampleRate(),
		p.version(),
	)
}

func hash(fields ...string) Key {
	h := sha256.New()
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(f))
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}
