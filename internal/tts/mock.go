package tts

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/loqalabs/narrator/internal/audio"
)

// MockProvider returns deterministic bytes derived from the input, a short
// valid WAV when wav is requested. It backs the sidecar "mock" mode for local
// runs and doubles as a test fake.
type MockProvider struct {
	name     Name
	maxChars int
	markup   bool
	delay    time.Duration

	mu    sync.Mutex
	calls []Input
	err   error
}

type MockOption func(*MockProvider)

func WithMockMarkup(enabled bool) MockOption {
	return func(m *MockProvider) { m.markup = enabled }
}

func WithMockDelay(d time.Duration) MockOption {
	return func(m *MockProvider) { m.delay = d }
}

func WithMockError(err error) MockOption {
	return func(m *MockProvider) { m.err = err }
}

func NewMockProvider(name Name, opts ...MockOption) *MockProvider {
	m := &MockProvider{name: name, maxChars: sidecarMaxChars}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockProvider) Name() Name              { return m.name }
func (m *MockProvider) MaxCharsPerRequest() int { return m.maxChars }
func (m *MockProvider) SupportsMarkup() bool    { return m.markup }

// SetError makes subsequent calls fail with err; nil restores success.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns a copy of every input received so far.
func (m *MockProvider) Calls() []Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Input(nil), m.calls...)
}

func (m *MockProvider) Synthesize(ctx context.Context, in Input) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, in)
	err := m.err
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(in.Text))
	if in.Format == FormatWAV {
		rate := in.SampleRate
		if rate <= 0 {
			rate = 24000
		}
		return audio.EncodePCM16(sum[:], rate, 1)
	}
	return []byte(fmt.Sprintf("%s:%s:%x|", m.name, in.VoiceID, sum[:8])), nil
}
