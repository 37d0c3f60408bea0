// Package narration exposes the synthesis pipeline on the bus as a
// request/reply service and tracks every request as a job.
package narration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/narrator/internal/bus"
	"github.com/loqalabs/narrator/internal/config"
	"github.com/loqalabs/narrator/internal/jobstore"
	"github.com/loqalabs/narrator/internal/pipeline"
	"github.com/loqalabs/narrator/internal/protocol"
	"github.com/loqalabs/narrator/internal/tts"
)

// Synthesizer runs one document through the pipeline.
type Synthesizer interface {
	Synthesize(ctx context.Context, req pipeline.Request) (*pipeline.Manifest, error)
}

type Service struct {
	cfg    config.NarrationConfig
	bus    *bus.Client
	engine Synthesizer
	jobs   *jobstore.Store
	subs   []*nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
	clock  func() time.Time
}

func NewService(parent context.Context, cfg config.NarrationConfig, busClient *bus.Client, engine Synthesizer, jobs *jobstore.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		engine: engine,
		jobs:   jobs,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "narration-service")),
		clock:  time.Now,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().QueueSubscribe(s.subject(s.cfg.Subject, protocol.SubjectSynthesize), s.cfg.QueueGroup, s.handleSynthesize)
	if err != nil {
		return fmt.Errorf("subscribe synthesize: %w", err)
	}
	s.subs = append(s.subs, sub)

	sub, err = s.bus.Conn().QueueSubscribe(s.subject(s.cfg.JobSubject, protocol.SubjectJobGet), s.cfg.QueueGroup, s.handleJobGet)
	if err != nil {
		s.Close()
		return fmt.Errorf("subscribe job lookup: %w", err)
	}
	s.subs = append(s.subs, sub)
	s.logger.Info("narration service listening", slog.String("subject", s.cfg.Subject))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || len(s.subs) == 2 }

func (s *Service) subject(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func (s *Service) handleSynthesize(msg *nats.Msg) {
	var req protocol.SynthesizeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode synthesize request", slogError(err))
		s.respond(msg, protocol.SynthesizeReply{Status: string(jobstore.StatusError), Error: "invalid request: " + err.Error()})
		return
	}

	jobID := uuid.NewString()
	ctx := s.ctx
	if err := s.jobs.Create(ctx, jobstore.Job{ID: jobID, SourceID: req.SourceID, Provider: req.Provider}); err != nil {
		s.logger.Warn("failed to record job", slogError(err), slog.String("job_id", jobID))
	}
	s.publishStatus(protocol.JobStatus{JobID: jobID, SourceID: req.SourceID, Status: string(jobstore.StatusQueued)})

	if req.Async {
		s.respond(msg, protocol.SynthesizeReply{JobID: jobID, Status: string(jobstore.StatusQueued)})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		reply := s.run(jobID, req.Request)
		if !req.Async {
			s.respond(msg, reply)
		}
	}()
}

func (s *Service) run(jobID string, req pipeline.Request) protocol.SynthesizeReply {
	log := s.logger.With(slog.String("job_id", jobID), slog.String("source_id", req.SourceID))

	timeout := time.Duration(s.cfg.RequestTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	if err := s.jobs.SetStatus(ctx, jobID, jobstore.StatusProcessing); err != nil {
		log.Warn("failed to update job", slogError(err))
	}
	s.publishStatus(protocol.JobStatus{JobID: jobID, SourceID: req.SourceID, Status: string(jobstore.StatusProcessing)})

	ctx = pipeline.ContextWithEventFunc(ctx, func(ev pipeline.Event) {
		detail := ev.Detail
		if ev.Index >= 0 {
			detail = strconv.Itoa(ev.Index) + " " + string(ev.Provider)
		}
		if err := s.jobs.AppendEvent(ctx, jobstore.Event{JobID: jobID, Kind: string(ev.Kind), Detail: detail}); err != nil {
			log.Debug("failed to record job event", slogError(err))
		}
	})

	started := s.clock()
	manifest, err := s.engine.Synthesize(ctx, req)
	if err != nil {
		retryable := tts.IsRetryable(err)
		log.Warn("narration failed", slogError(err), slog.Bool("retryable", retryable))
		if ferr := s.jobs.Fail(s.ctx, jobID, err.Error(), retryable); ferr != nil {
			log.Warn("failed to update job", slogError(ferr))
		}
		s.publishStatus(protocol.JobStatus{
			JobID:     jobID,
			SourceID:  req.SourceID,
			Status:    string(jobstore.StatusError),
			Error:     err.Error(),
			Retryable: retryable,
		})
		return protocol.SynthesizeReply{
			JobID:     jobID,
			Status:    string(jobstore.StatusError),
			Error:     err.Error(),
			Retryable: retryable,
		}
	}

	if err := s.jobs.Complete(s.ctx, jobID, string(manifest.Provider), manifest.ManifestLocation); err != nil {
		log.Warn("failed to update job", slogError(err))
	}
	s.publishStatus(protocol.JobStatus{
		JobID:            jobID,
		SourceID:         req.SourceID,
		Status:           string(jobstore.StatusReady),
		Provider:         string(manifest.Provider),
		ManifestLocation: manifest.ManifestLocation,
	})
	log.Info("narration ready",
		slog.Int("segments", len(manifest.Segments)),
		slog.Duration("elapsed", s.clock().Sub(started)))
	return protocol.SynthesizeReply{JobID: jobID, Status: string(jobstore.StatusReady), Manifest: manifest}
}

func (s *Service) handleJobGet(msg *nats.Msg) {
	var query protocol.JobQuery
	if err := json.Unmarshal(msg.Data, &query); err != nil {
		s.respond(msg, protocol.JobReply{Error: "invalid request: " + err.Error()})
		return
	}
	job, err := s.jobs.Get(s.ctx, query.JobID)
	if err != nil {
		if !errors.Is(err, jobstore.ErrNotFound) {
			s.logger.Warn("failed to load job", slogError(err), slog.String("job_id", query.JobID))
		}
		s.respond(msg, protocol.JobReply{Error: err.Error()})
		return
	}
	events, err := s.jobs.ListEvents(s.ctx, job.ID, 0)
	if err != nil {
		s.logger.Warn("failed to load job events", slogError(err), slog.String("job_id", job.ID))
	}

	reply := protocol.JobReply{Job: &protocol.JobStatus{
		JobID:            job.ID,
		SourceID:         job.SourceID,
		Status:           string(job.Status),
		Provider:         job.Provider,
		ManifestLocation: job.ManifestLocation,
		Error:            job.Error,
		Retryable:        job.Retryable,
		Timestamp:        job.UpdatedAt,
	}}
	for _, e := range events {
		reply.Events = append(reply.Events, protocol.JobEvent{Kind: e.Kind, Detail: e.Detail, Timestamp: e.CreatedAt})
	}
	s.respond(msg, reply)
}

func (s *Service) publishStatus(status protocol.JobStatus) {
	if status.Timestamp.IsZero() {
		status.Timestamp = s.clock().UTC()
	}
	subject := s.subject(s.cfg.StatusSubject, protocol.SubjectJobStatus)
	if err := s.bus.PublishJSON(subject, status); err != nil {
		s.logger.Warn("failed to publish job status", slogError(err))
	}
}

func (s *Service) respond(msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to marshal reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
