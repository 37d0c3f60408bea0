package pipeline

import (
	"github.com/loqalabs/narrator/internal/tts"
)

// Chunk is a bounded slice of source text. Chunks of one request carry the
// contiguous indices 0..N-1.
type Chunk struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	SectionTitle string `json:"sectionTitle,omitempty"`
	SectionIndex int    `json:"sectionIndex,omitempty"`
	HeadingDepth int    `json:"headingDepth,omitempty"`
}

// Segmenter turns raw document text into chunks.
type Segmenter interface {
	Segment(text string) []Chunk
}

// Request describes one document synthesis. Either Text or Chunks must be
// set; Chunks win when both are present.
type Request struct {
	SourceID     string     `json:"sourceId"`
	Text         string     `json:"text,omitempty"`
	Chunks       []Chunk    `json:"chunks,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	VoiceID      string     `json:"voiceId,omitempty"`
	Speed        float64    `json:"speed,omitempty"`
	Format       tts.Format `json:"format,omitempty"`
	LanguageCode string     `json:"languageCode,omitempty"`
	SampleRate   int        `json:"sampleRate,omitempty"`
	TitleHint    string     `json:"titleHint,omitempty"`
}

// Segment is the synthesized audio of one chunk.
type Segment struct {
	Index         int      `json:"index"`
	Text          string   `json:"text"`
	Markup        string   `json:"ssml,omitempty"`
	AudioLocation string   `json:"audioUrl"`
	SectionTitle  string   `json:"sectionTitle,omitempty"`
	HeadingDepth  int      `json:"headingDepth,omitempty"`
	ChunkKey      string   `json:"chunkHash"`
	Provider      tts.Name `json:"provider,omitempty"`
	Reused        bool     `json:"-"`
}

// Manifest is the result of one request. Segments are ordered by index.
type Manifest struct {
	ID                    string     `json:"id"`
	Provider              tts.Name   `json:"provider"`
	VoiceID               string     `json:"voiceId"`
	Format                tts.Format `json:"format"`
	Segments              []Segment  `json:"segments"`
	TotalChars            int        `json:"totalChars"`
	Title                 string     `json:"title,omitempty"`
	StitchedAudioLocation string     `json:"stitchedUrl,omitempty"`
	ManifestLocation      string     `json:"manifestUrl,omitempty"`
}

// EventKind names a pipeline milestone.
type EventKind string

const (
	EventChunkReused      EventKind = "chunk_reused"
	EventChunkSynthesized EventKind = "chunk_synthesized"
	EventChunkFallback    EventKind = "chunk_fallback"
	EventStitched         EventKind = "stitched"
	EventStitchSkipped    EventKind = "stitch_skipped"
	EventStitchFailed     EventKind = "stitch_failed"
	EventManifestWritten  EventKind = "manifest_written"
	EventManifestReused   EventKind = "manifest_reused"
	EventManifestFailed   EventKind = "manifest_failed"
)

// Event reports progress. Index is -1 for document level events.
type Event struct {
	Kind     EventKind
	Index    int
	Provider tts.Name
	Detail   string
}

// EventFunc receives events. It is called from worker goroutines and must be
// safe for concurrent use.
type EventFunc func(Event)

// Storage paths, all content addressed.
func ChunkPath(key string, f tts.Format) string { return "tts/chunks/" + key + "." + string(f) }
func FullPath(docKey string, f tts.Format) string {
	return "tts/doc/" + docKey + "/full." + string(f)
}
func ManifestPath(docKey string) string { return "tts/doc/" + docKey + "/manifest.json" }
