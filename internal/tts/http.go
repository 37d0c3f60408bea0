package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 2048

// NewHTTPClient returns a client whose transport emits OpenTelemetry spans
// for every backend call.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// postJSON sends body to url and returns the raw response payload. Non-2xx
// statuses are converted into classified SynthesisErrors.
func postJSON(ctx context.Context, client *http.Client, provider Name, url string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, TransportError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, StatusError(provider, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransportError(provider, err)
	}
	return data, nil
}

func checkInput(provider Provider, in Input) error {
	return checkLength(provider, in, "characters", utf8.RuneCountInString)
}

// checkInputBytes measures the payload in bytes, for backends whose request
// limit is on encoded size.
func checkInputBytes(provider Provider, in Input) error {
	return checkLength(provider, in, "bytes", func(s string) int { return len(s) })
}

func checkLength(provider Provider, in Input, unit string, measure func(string) int) error {
	if strings.TrimSpace(in.Text) == "" {
		return NewSynthesisError(provider.Name(), 0, "invalid input", ErrEmptyText, false)
	}
	if n := measure(in.Text); n > provider.MaxCharsPerRequest() {
		return NewSynthesisError(provider.Name(), 0, fmt.Sprintf("%d %s", n, unit), ErrTextTooLong, false)
	}
	return nil
}
