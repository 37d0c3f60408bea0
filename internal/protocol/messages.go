package protocol

import (
	"time"

	"github.com/loqalabs/narrator/internal/pipeline"
)

// SynthesizeRequest asks the daemon to narrate one document.
type SynthesizeRequest struct {
	pipeline.Request
	// Async replies as soon as the job is queued; progress then arrives on
	// the status subject.
	Async bool `json:"async,omitempty"`
}

// SynthesizeReply answers a SynthesizeRequest. Manifest is set on success,
// Error otherwise.
type SynthesizeReply struct {
	JobID     string             `json:"job_id"`
	Status    string             `json:"status"`
	Manifest  *pipeline.Manifest `json:"manifest,omitempty"`
	Error     string             `json:"error,omitempty"`
	Retryable bool               `json:"retryable,omitempty"`
}

// JobStatus is broadcast whenever a job changes state.
type JobStatus struct {
	JobID            string    `json:"job_id"`
	SourceID         string    `json:"source_id"`
	Status           string    `json:"status"`
	Provider         string    `json:"provider,omitempty"`
	ManifestLocation string    `json:"manifest_location,omitempty"`
	Error            string    `json:"error,omitempty"`
	Retryable        bool      `json:"retryable,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// JobQuery looks up a job by id.
type JobQuery struct {
	JobID string `json:"job_id"`
}

// JobReply answers a JobQuery.
type JobReply struct {
	Job    *JobStatus `json:"job,omitempty"`
	Events []JobEvent `json:"events,omitempty"`
	Error  string     `json:"error,omitempty"`
}

type JobEvent struct {
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSynthesize = "narrator.synthesize"
	SubjectJobStatus  = "narrator.job.status"
	SubjectJobGet     = "narrator.job.get"
)
