package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// ExecSidecar runs a local command per chunk. The command reads one JSON
// request on stdin and writes JSON lines carrying base64 audio on stdout;
// the line flagged final ends the stream.
type ExecSidecar struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Format     string  `json:"format"`
	Speed      float64 `json:"speed"`
	Language   string  `json:"language,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
}

type execResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error,omitempty"`
	Final       bool   `json:"final"`
}

func NewExecSidecar(command string) (*ExecSidecar, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse sidecar command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("sidecar command empty")
	}
	return &ExecSidecar{cmd: args}, nil
}

func (e *ExecSidecar) Name() Name              { return Kokoro }
func (e *ExecSidecar) MaxCharsPerRequest() int { return sidecarMaxChars }
func (e *ExecSidecar) SupportsMarkup() bool    { return false }

func (e *ExecSidecar) Synthesize(ctx context.Context, in Input) ([]byte, error) {
	if err := checkInput(e, in); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	voice := in.VoiceID
	if voice == "" {
		voice = DefaultVoice(Kokoro, in.LanguageCode)
	}
	format := in.Format
	if format == "" {
		format = FormatWAV
	}
	data, err := json.Marshal(execRequest{
		Text:       in.Text,
		Voice:      voice,
		Format:     string(format),
		Speed:      clampSpeed(in.Speed, 0.5, 2),
		Language:   in.LanguageCode,
		SampleRate: in.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, NewSynthesisError(Kokoro, 0, "start command", err, false)
	}

	var audio bytes.Buffer
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			_ = cmd.Wait()
			return nil, NewSynthesisError(Kokoro, 0, "decode response line", err, false)
		}
		if resp.Error != "" {
			_ = cmd.Wait()
			return nil, NewSynthesisError(Kokoro, 0, resp.Error, nil, false)
		}
		chunk, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
		if err != nil {
			_ = cmd.Wait()
			return nil, NewSynthesisError(Kokoro, 0, "decode audio", err, false)
		}
		audio.Write(chunk)
		if resp.Final {
			_, _ = io.Copy(io.Discard, stdout)
			break
		}
	}
	scanErr := scanner.Err()
	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "command failed"
		}
		return nil, NewSynthesisError(Kokoro, 0, msg, err, false)
	}
	if scanErr != nil {
		return nil, NewSynthesisError(Kokoro, 0, "read output", scanErr, false)
	}
	if audio.Len() == 0 {
		return nil, NewSynthesisError(Kokoro, 0, "empty output", ErrEmptyAudio, false)
	}
	return audio.Bytes(), nil
}
