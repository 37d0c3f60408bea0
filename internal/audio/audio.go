// Package audio joins per-chunk audio into one track.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNoParts is returned when there is nothing to join.
var ErrNoParts = errors.New("no audio parts")

// Concat joins raw bytes in order. MP3 frames are self-delimiting, so a
// player reads the result as one stream even though per-part headers
// remain.
func Concat(parts [][]byte) ([]byte, error) {
	if len(parts) == 0 {
		return nil, ErrNoParts
	}
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// JoinWAV decodes PCM WAV parts and re-encodes them as one file. All parts
// must share sample rate, channel count and bit depth.
func JoinWAV(parts [][]byte) ([]byte, error) {
	if len(parts) == 0 {
		return nil, ErrNoParts
	}

	var (
		joined   *goaudio.IntBuffer
		bitDepth int
	)
	for i, part := range parts {
		dec := wav.NewDecoder(bytes.NewReader(part))
		if !dec.IsValidFile() {
			return nil, fmt.Errorf("part %d is not a valid wav file", i)
		}
		buf, err := dec.FullPCMBuffer()
		if err != nil {
			return nil, fmt.Errorf("decode part %d: %w", i, err)
		}
		if joined == nil {
			joined = &goaudio.IntBuffer{
				Format: &goaudio.Format{
					NumChannels: int(dec.NumChans),
					SampleRate:  int(dec.SampleRate),
				},
				SourceBitDepth: int(dec.BitDepth),
			}
			bitDepth = int(dec.BitDepth)
		} else if int(dec.NumChans) != joined.Format.NumChannels ||
			int(dec.SampleRate) != joined.Format.SampleRate ||
			int(dec.BitDepth) != bitDepth {
			return nil, fmt.Errorf("part %d format %dHz/%dch/%dbit differs from %dHz/%dch/%dbit",
				i, dec.SampleRate, dec.NumChans, dec.BitDepth,
				joined.Format.SampleRate, joined.Format.NumChannels, bitDepth)
		}
		joined.Data = append(joined.Data, buf.Data...)
	}
	return encode(joined, bitDepth)
}

// EncodePCM16 wraps little-endian 16-bit PCM in a WAV container.
func EncodePCM16(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(pcm)/2),
	}
	for i := range buf.Data {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return encode(buf, 16)
}

// encode needs an io.WriteSeeker, so it goes through a temp file.
func encode(buf *goaudio.IntBuffer, bitDepth int) ([]byte, error) {
	file, err := os.CreateTemp("", "narrator_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	enc := wav.NewEncoder(file, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return os.ReadFile(file.Name())
}
