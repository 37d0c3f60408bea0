package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const sidecarMaxChars = 4000

// SidecarProvider calls a self-hosted Kokoro service exposing an
// OpenAI-compatible /v1/audio/speech endpoint.
type SidecarProvider struct {
	baseURL string
	bearer  string
	client  *http.Client
}

type SidecarOption func(*SidecarProvider)

func WithSidecarBearer(token string) SidecarOption {
	return func(p *SidecarProvider) { p.bearer = token }
}

func WithSidecarClient(client *http.Client) SidecarOption {
	return func(p *SidecarProvider) { p.client = client }
}

func NewSidecar(baseURL string, opts ...SidecarOption) *SidecarProvider {
	p := &SidecarProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  NewHTTPClient(120 * time.Second),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *SidecarProvider) Name() Name              { return Kokoro }
func (p *SidecarProvider) MaxCharsPerRequest() int { return sidecarMaxChars }
func (p *SidecarProvider) SupportsMarkup() bool    { return false }

type sidecarRequest struct {
	Input      string  `json:"input"`
	Voice      string  `json:"voice"`
	Format     string  `json:"format"`
	Speed      float64 `json:"speed"`
	SampleRate int     `json:"sample_rate,omitempty"`
}

func (p *SidecarProvider) Synthesize(ctx context.Context, in Input) ([]byte, error) {
	if err := checkInput(p, in); err != nil {
		return nil, err
	}
	req := sidecarRequest{
		Input:      in.Text,
		Voice:      in.VoiceID,
		Format:     string(in.Format),
		Speed:      clampSpeed(in.Speed, 0.5, 2),
		SampleRate: in.SampleRate,
	}
	if req.Voice == "" {
		req.Voice = DefaultVoice(Kokoro, in.LanguageCode)
	}
	if req.Format == "" {
		req.Format = string(FormatWAV)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var headers map[string]string
	if p.bearer != "" {
		headers = map[string]string{"Authorization": "Bearer " + p.bearer}
	}
	audio, err := postJSON(ctx, p.client, Kokoro, p.baseURL+"/v1/audio/speech", body, headers)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, NewSynthesisError(Kokoro, 0, "empty response", ErrEmptyAudio, true)
	}
	return audio, nil
}
