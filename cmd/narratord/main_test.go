package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/narrator/internal/pipeline"
	"github.com/loqalabs/narrator/internal/tts"
)

func writeDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guide.md")
	doc := "# Guide\n\nWelcome to the guide.\n\n## Setup\n\nInstall the tool.\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func mockEnv(t *testing.T) {
	t.Helper()
	t.Setenv("NARRATOR_SIDECAR_MODE", "mock")
	t.Setenv("NARRATOR_STORAGE_ROOT", t.TempDir())
	t.Setenv("NARRATOR_ENVIRONMENT", "development")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, version, strings.TrimSpace(out.String()))
}

func TestSynthCommandWritesManifest(t *testing.T) {
	mockEnv(t)
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs([]string{"synth", writeDoc(t), "--title", "Guide"})
	require.NoError(t, root.Execute())

	var m pipeline.Manifest
	require.NoError(t, json.Unmarshal(out.Bytes(), &m))
	assert.Equal(t, tts.Kokoro, m.Provider)
	assert.Equal(t, "Guide", m.Title)
	require.Len(t, m.Segments, 2)
	assert.Equal(t, "Guide", m.Segments[0].SectionTitle)
	assert.NotEmpty(t, m.StitchedAudioLocation)
	assert.NotEmpty(t, m.ManifestLocation)
}

func TestSynthEstimateOnly(t *testing.T) {
	mockEnv(t)
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs([]string{"synth", writeDoc(t), "--estimate"})
	require.NoError(t, root.Execute())

	var est pipeline.CostEstimate
	require.NoError(t, json.Unmarshal(out.Bytes(), &est))
	assert.Equal(t, tts.Kokoro, est.Provider)
	assert.Positive(t, est.TotalChars)
	assert.Zero(t, est.EstimatedUSD)
}

func TestSynthRejectsUnknownFormat(t *testing.T) {
	mockEnv(t)
	root := newRootCommand(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"synth", writeDoc(t), "--format", "flac"})
	err := root.Execute()
	var invalid *pipeline.ValidationError
	require.ErrorAs(t, err, &invalid)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", logLevel("debug").String())
	assert.Equal(t, "WARN", logLevel("WARN").String())
	assert.Equal(t, "INFO", logLevel("").String())
}
