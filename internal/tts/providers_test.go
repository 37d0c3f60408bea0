package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAISynthesize(t *testing.T) {
	var got openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	p := NewOpenAI("sk-test", WithOpenAIBaseURL(server.URL), WithOpenAIClient(server.Client()))
	audio, err := p.Synthesize(context.Background(), Input{Text: "Hello", Format: FormatOGG, Speed: 1.5})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
	assert.Equal(t, "tts-1", got.Model)
	assert.Equal(t, "alloy", got.Voice)
	assert.Equal(t, "opus", got.ResponseFormat)
	assert.Equal(t, 1.5, got.Speed)
	assert.False(t, p.SupportsMarkup())
	assert.Equal(t, 4096, p.MaxCharsPerRequest())
}

func TestOpenAIErrorClassification(t *testing.T) {
	status := http.StatusTooManyRequests
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"limited"}}`))
	}))
	defer server.Close()

	p := NewOpenAI("sk", WithOpenAIBaseURL(server.URL))
	_, err := p.Synthesize(context.Background(), Input{Text: "Hello"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "limited")

	status = http.StatusUnauthorized
	_, err = p.Synthesize(context.Background(), Input{Text: "Hello"})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestOpenAIRejectsOversizeInput(t *testing.T) {
	p := NewOpenAI("sk", WithOpenAIBaseURL("http://127.0.0.1:1"))
	_, err := p.Synthesize(context.Background(), Input{Text: strings.Repeat("a", 4097)})
	assert.ErrorIs(t, err, ErrTextTooLong)
	assert.False(t, IsRetryable(err))

	_, err = p.Synthesize(context.Background(), Input{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestGoogleLimitCountsBytes(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"audioContent":"AAAA"}`))
	}))
	defer server.Close()
	p := NewGoogle("k", WithGoogleBaseURL(server.URL))

	// 2000 runes, 6000 bytes.
	_, err := p.Synthesize(context.Background(), Input{Text: strings.Repeat("語", 2000)})
	assert.ErrorIs(t, err, ErrTextTooLong)
	assert.False(t, IsRetryable(err))
	assert.Zero(t, calls)

	_, err = p.Synthesize(context.Background(), Input{Text: strings.Repeat("語", 1600)})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGoogleSynthesize(t *testing.T) {
	var got googleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text:synthesize", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(googleResponse{AudioContent: base64.StdEncoding.EncodeToString([]byte("ogg"))})
	}))
	defer server.Close()

	p := NewGoogle("g-key", WithGoogleBaseURL(server.URL), WithGoogleClient(server.Client()))
	audio, err := p.Synthesize(context.Background(), Input{
		Text:       "<speak>Hi</speak>",
		VoiceID:    "fr-FR-Wavenet-A",
		Format:     FormatOGG,
		SampleRate: 24000,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ogg"), audio)
	assert.Equal(t, "<speak>Hi</speak>", got.Input.SSML)
	assert.Empty(t, got.Input.Text)
	assert.Equal(t, "fr-FR", got.Voice.LanguageCode)
	assert.Equal(t, "OGG_OPUS", got.AudioConfig.AudioEncoding)
	assert.Equal(t, 24000, got.AudioConfig.SampleRateHertz)
	assert.True(t, p.SupportsMarkup())
}

func TestGooglePlainTextAndEncoding(t *testing.T) {
	var got googleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(googleResponse{AudioContent: base64.StdEncoding.EncodeToString([]byte("pcm"))})
	}))
	defer server.Close()

	p := NewGoogle("k", WithGoogleBaseURL(server.URL))
	_, err := p.Synthesize(context.Background(), Input{Text: "plain", Format: FormatWAV, LanguageCode: "de-DE"})
	require.NoError(t, err)
	assert.Equal(t, "plain", got.Input.Text)
	assert.Equal(t, "LINEAR16", got.AudioConfig.AudioEncoding)
	assert.Equal(t, "de-DE", got.Voice.LanguageCode)
	assert.Equal(t, "en-US-Standard-C", got.Voice.Name)
}

func TestGoogleServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewGoogle("k", WithGoogleBaseURL(server.URL))
	_, err := p.Synthesize(context.Background(), Input{Text: "x"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestSidecarSynthesize(t *testing.T) {
	var got sidecarRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer local", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte("RIFF"))
	}))
	defer server.Close()

	p := NewSidecar(server.URL+"/", WithSidecarBearer("local"))
	audio, err := p.Synthesize(context.Background(), Input{Text: "Hej", LanguageCode: "sv-SE", Format: FormatWAV})
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), audio)
	assert.Equal(t, "Erik", got.Voice)
	assert.Equal(t, "wav", got.Format)
	assert.Equal(t, Kokoro, p.Name())
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "sidecar.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return "sh " + path
}

func TestExecSidecar(t *testing.T) {
	first := base64.StdEncoding.EncodeToString([]byte("ab"))
	second := base64.StdEncoding.EncodeToString([]byte("cd"))
	command := writeScript(t, "cat >/dev/null\n"+
		"echo '{\"audio_base64\":\""+first+"\"}'\n"+
		"echo '{\"audio_base64\":\""+second+"\",\"final\":true}'\n")

	p, err := NewExecSidecar(command)
	require.NoError(t, err)
	audio, err := p.Synthesize(context.Background(), Input{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), audio)
}

func TestExecSidecarReportsErrors(t *testing.T) {
	p, err := NewExecSidecar(writeScript(t, "cat >/dev/null\necho '{\"error\":\"voice missing\"}'\n"))
	require.NoError(t, err)
	_, err = p.Synthesize(context.Background(), Input{Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice missing")

	p, err = NewExecSidecar(writeScript(t, "cat >/dev/null\necho broken >&2\nexit 3\n"))
	require.NoError(t, err)
	_, err = p.Synthesize(context.Background(), Input{Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	_, err = NewExecSidecar("   ")
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	mock := NewMockProvider(OpenAI)
	p := WithRateLimit(mock, 1000, 1)
	assert.Equal(t, OpenAI, p.Name())
	for i := 0; i < 3; i++ {
		_, err := p.Synthesize(context.Background(), Input{Text: "x"})
		require.NoError(t, err)
	}
	assert.Len(t, mock.Calls(), 3)

	assert.Same(t, mock, WithRateLimit(mock, 0, 0))

	slow := WithRateLimit(NewMockProvider(OpenAI), 0.001, 1)
	_, err := slow.Synthesize(context.Background(), Input{Text: "x"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = slow.Synthesize(ctx, Input{Text: "x"})
	assert.Error(t, err)
}

func TestMockProvider(t *testing.T) {
	m := NewMockProvider(Google, WithMockMarkup(true))
	a, err := m.Synthesize(context.Background(), Input{Text: "same", VoiceID: "v"})
	require.NoError(t, err)
	b, err := m.Synthesize(context.Background(), Input{Text: "same", VoiceID: "v"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, m.SupportsMarkup())

	m.SetError(StatusError(Google, 500, "down"))
	_, err = m.Synthesize(context.Background(), Input{Text: "same"})
	assert.Error(t, err)
	assert.Len(t, m.Calls(), 3)
}
