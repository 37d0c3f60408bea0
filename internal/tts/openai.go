package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openAITTSEndpoint = "/audio/speech"
	openAIMaxChars    = 4096

	// ModelTTS1 is the OpenAI model optimized for latency.
	ModelTTS1 = "tts-1"
)

// OpenAIProvider synthesizes through the OpenAI speech endpoint.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type OpenAIOption func(*OpenAIProvider)

// WithOpenAIBaseURL sets a custom base URL (for testing or proxies).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithOpenAIClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.client = client }
}

func WithOpenAIModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.model = model
		}
	}
}

func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: openAIBaseURL,
		model:   ModelTTS1,
		client:  NewHTTPClient(60 * time.Second),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenAIProvider) Name() Name              { return OpenAI }
func (p *OpenAIProvider) MaxCharsPerRequest() int { return openAIMaxChars }
func (p *OpenAIProvider) SupportsMarkup() bool    { return false }

type openAIRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, in Input) ([]byte, error) {
	if err := checkInput(p, in); err != nil {
		return nil, err
	}
	voice := in.VoiceID
	if voice == "" {
		voice = DefaultVoice(OpenAI, in.LanguageCode)
	}
	body, err := json.Marshal(openAIRequest{
		Model:          p.model,
		Input:          in.Text,
		Voice:          voice,
		ResponseFormat: openAIFormat(in.Format),
		Speed:          clampSpeed(in.Speed, 0.25, 4),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	audio, err := postJSON(ctx, p.client, OpenAI, p.baseURL+openAITTSEndpoint, body, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, NewSynthesisError(OpenAI, 0, "empty response", ErrEmptyAudio, true)
	}
	return audio, nil
}

func openAIFormat(f Format) string {
	switch f {
	case FormatOGG:
		return "opus"
	case FormatWAV:
		return "wav"
	default:
		return "mp3"
	}
}

func clampSpeed(speed, lo, hi float64) float64 {
	if speed == 0 {
		return 1
	}
	if speed < lo {
		return lo
	}
	if speed > hi {
		return hi
	}
	return speed
}
