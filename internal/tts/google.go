package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	googleBaseURL  = "https://texttospeech.googleapis.com"
	googleEndpoint = "/v1/text:synthesize"
	// googleMaxChars is a byte limit on the text or SSML field.
	googleMaxChars = 5000
)

// GoogleProvider talks to the Cloud Text-to-Speech REST API with an API key.
type GoogleProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type GoogleOption func(*GoogleProvider)

func WithGoogleBaseURL(url string) GoogleOption {
	return func(p *GoogleProvider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithGoogleClient(client *http.Client) GoogleOption {
	return func(p *GoogleProvider) { p.client = client }
}

func NewGoogle(apiKey string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		apiKey:  apiKey,
		baseURL: googleBaseURL,
		client:  NewHTTPClient(60 * time.Second),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GoogleProvider) Name() Name              { return Google }
func (p *GoogleProvider) MaxCharsPerRequest() int { return googleMaxChars }
func (p *GoogleProvider) SupportsMarkup() bool    { return true }

type googleRequest struct {
	Input struct {
		Text string `json:"text,omitempty"`
		SSML string `json:"ssml,omitempty"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode,omitempty"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string  `json:"audioEncoding"`
		SpeakingRate    float64 `json:"speakingRate,omitempty"`
		SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
	} `json:"audioConfig"`
}

type googleResponse struct {
	AudioContent string `json:"audioContent"`
}

func (p *GoogleProvider) Synthesize(ctx context.Context, in Input) ([]byte, error) {
	if err := checkInputBytes(p, in); err != nil {
		return nil, err
	}

	var req googleRequest
	if strings.HasPrefix(strings.TrimSpace(in.Text), "<speak") {
		req.Input.SSML = in.Text
	} else {
		req.Input.Text = in.Text
	}
	req.Voice.Name = in.VoiceID
	if req.Voice.Name == "" {
		req.Voice.Name = DefaultVoice(Google, in.LanguageCode)
	}
	req.Voice.LanguageCode = in.LanguageCode
	if req.Voice.LanguageCode == "" {
		req.Voice.LanguageCode = languageFromVoice(req.Voice.Name)
	}
	req.AudioConfig.AudioEncoding = googleEncoding(in.Format)
	req.AudioConfig.SpeakingRate = clampSpeed(in.Speed, 0.25, 4)
	req.AudioConfig.SampleRateHertz = in.SampleRate

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := p.baseURL + googleEndpoint + "?key=" + url.QueryEscape(p.apiKey)
	data, err := postJSON(ctx, p.client, Google, endpoint, body, nil)
	if err != nil {
		return nil, err
	}

	var resp googleResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, NewSynthesisError(Google, 0, "invalid response", err, true)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, NewSynthesisError(Google, 0, "invalid audio content", err, false)
	}
	if len(audio) == 0 {
		return nil, NewSynthesisError(Google, 0, "empty response", ErrEmptyAudio, true)
	}
	return audio, nil
}

func googleEncoding(f Format) string {
	switch f {
	case FormatMP3, "":
		return "MP3"
	case FormatOGG:
		return "OGG_OPUS"
	default:
		return "LINEAR16"
	}
}

// languageFromVoice extracts "en-US" from voice names like "en-US-Standard-C".
func languageFromVoice(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "-" + parts[1]
}
