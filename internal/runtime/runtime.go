package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/narrator/internal/config"
	"github.com/loqalabs/narrator/internal/jobstore"
	"github.com/loqalabs/narrator/internal/narration"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	telemetry     *telemetry
	components    *Components
	jobs          *jobstore.Store
	narration     *narration.Service
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel

	components, err := Assemble(ctx, r.cfg, r.cfg.Narration.Enabled, r.logger)
	if err != nil {
		r.shutdownTelemetry()
		return fmt.Errorf("failed to assemble pipeline: %w", err)
	}
	r.components = components

	jobs, err := jobstore.Open(ctx, r.cfg.Jobs, r.logger.With(slog.String("component", "jobstore")))
	if err != nil {
		components.Close()
		r.shutdownTelemetry()
		return fmt.Errorf("failed to open job store: %w", err)
	}
	r.jobs = jobs

	if components.Bus != nil {
		r.narration = narration.NewService(ctx, r.cfg.Narration, components.Bus, components.Engine, jobs, r.logger)
		if err := r.narration.Start(); err != nil {
			r.stopServices()
			r.shutdownTelemetry()
			return fmt.Errorf("failed to start narration service: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler := tel.metrics; metricsHandler != nil {
		if bind := r.cfg.Telemetry.PrometheusBind; bind != "" {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", metricsHandler)
			r.metricsServer = &http.Server{
				Addr:              bind,
				Handler:           metricsMux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			r.serve(r.metricsServer, "metrics")
		} else {
			mux.Handle("/metrics", metricsHandler)
		}
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if r.cfg.Jobs.Enabled && r.cfg.Jobs.RetentionDays > 0 {
		r.wg.Add(1)
		go r.pruneLoop(ctx)
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.Any("providers", components.Providers.Names()))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	r.stopServices()
	r.shutdownTelemetry()
	return nil
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error(name+" server failed", slog.String("error", err.Error()))
		}
	}()
}

func (r *Runtime) pruneLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.jobs.Prune(ctx); err != nil {
				r.logger.Warn("job prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Runtime) stopServices() {
	if r.narration != nil {
		r.narration.Close()
	}
	if r.jobs != nil {
		if err := r.jobs.Close(); err != nil {
			r.logger.Error("job store close error", slog.String("error", err.Error()))
		}
	}
	if r.components != nil {
		r.components.Close()
	}
}

func (r *Runtime) shutdownTelemetry() {
	if r.telemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.telemetry.Shutdown(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
	r.telemetry = nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.isReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) isReady() bool {
	if !r.ready.Load() {
		return false
	}
	if c := r.components; c != nil {
		if c.NATS != nil && !c.NATS.Running() {
			return false
		}
		if c.Bus != nil && !c.Bus.Healthy() {
			return false
		}
	}
	return r.narration == nil || r.narration.Healthy()
}
