package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/loqalabs/narrator/internal/audio"
	"github.com/loqalabs/narrator/internal/blob"
	"github.com/loqalabs/narrator/internal/bus"
	"github.com/loqalabs/narrator/internal/cache"
	"github.com/loqalabs/narrator/internal/config"
	"github.com/loqalabs/narrator/internal/natsserver"
	"github.com/loqalabs/narrator/internal/pipeline"
	"github.com/loqalabs/narrator/internal/segment"
	"github.com/loqalabs/narrator/internal/tts"
)

// Components are the pieces shared by the daemon and one-shot commands.
type Components struct {
	NATS      *natsserver.EmbeddedServer
	Bus       *bus.Client
	Cache     cache.Cache
	Store     blob.Store
	Providers *tts.Registry
	Engine    *pipeline.Engine

	closers []func()
}

// Assemble builds the synthesis stack from cfg. withBus forces a bus
// connection even when the storage backend does not need one.
func Assemble(ctx context.Context, cfg config.Config, withBus bool, logger *slog.Logger, opts ...pipeline.Option) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	if withBus || cfg.Storage.Backend == "nats" {
		srv, err := natsserver.Start(cfg.Bus, logger)
		if err != nil {
			return nil, fmt.Errorf("start embedded nats: %w", err)
		}
		if srv != nil {
			c.NATS = srv
			c.closers = append(c.closers, srv.Shutdown)
		}
		busCfg := cfg.Bus
		if srv != nil && len(busCfg.Servers) == 0 {
			busCfg.Servers = []string{srv.ClientURL()}
		}
		client, err := bus.Connect(ctx, busCfg, cfg.ServiceName, logger)
		if err != nil {
			return nil, err
		}
		c.Bus = client
		c.closers = append(c.closers, client.Close)
	}

	ch, err := cache.New(cache.Options{
		Backend:       cfg.Cache.Backend,
		Size:          cfg.Cache.Size,
		TTL:           time.Duration(cfg.Cache.TTLMS) * time.Millisecond,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		Prefix:        cfg.Cache.Prefix,
	})
	if err != nil {
		return nil, err
	}
	c.Cache = ch
	if closer, isCloser := ch.(io.Closer); isCloser {
		c.closers = append(c.closers, func() { _ = closer.Close() })
	}

	store, err := buildStore(cfg.Storage, c.Bus)
	if err != nil {
		return nil, err
	}
	c.Store = blob.WithExistsCache(store, ch)

	providers, err := BuildProviders(cfg.Providers)
	if err != nil {
		return nil, err
	}
	if len(providers.Names()) == 0 {
		logger.Warn("no synthesis providers configured")
	}
	c.Providers = providers

	opts = append([]pipeline.Option{
		pipeline.WithSegmenter(segment.NewSplitter(segment.Options{
			TargetSize: cfg.Pipeline.TargetChunkSize,
			HardCap:    cfg.Pipeline.HardChunkCap,
		})),
	}, opts...)
	c.Engine = pipeline.NewEngine(EngineConfig(cfg), providers, c.Store, logger, opts...)
	engine := c.Engine
	c.closers = append(c.closers, func() {
		if err := engine.Close(); err != nil {
			logger.Warn("engine close failed", slog.String("error", err.Error()))
		}
	})

	ok = true
	return c, nil
}

// Close releases everything in reverse order of construction.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func buildStore(cfg config.StorageConfig, client *bus.Client) (blob.Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return blob.NewFSStore(cfg.Root, cfg.BaseURL)
	case "nats":
		if client == nil {
			return nil, errors.New("nats storage requires a bus connection")
		}
		return blob.NewNATSStore(client.JetStream(), cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// BuildProviders registers every backend that has credentials or a
// transport configured.
func BuildProviders(cfg config.ProvidersConfig) (*tts.Registry, error) {
	var providers []tts.Provider

	if cfg.OpenAI.APIKey != "" {
		p := tts.NewOpenAI(cfg.OpenAI.APIKey,
			tts.WithOpenAIBaseURL(cfg.OpenAI.BaseURL),
			tts.WithOpenAIModel(cfg.OpenAI.Model),
			tts.WithOpenAIClient(tts.NewHTTPClient(millis(cfg.OpenAI.TimeoutMS))),
		)
		providers = append(providers, tts.WithRateLimit(p, cfg.OpenAI.RateLimitRPS, 1))
	}
	if cfg.Google.APIKey != "" {
		p := tts.NewGoogle(cfg.Google.APIKey,
			tts.WithGoogleBaseURL(cfg.Google.BaseURL),
			tts.WithGoogleClient(tts.NewHTTPClient(millis(cfg.Google.TimeoutMS))),
		)
		providers = append(providers, tts.WithRateLimit(p, cfg.Google.RateLimitRPS, 1))
	}

	switch cfg.Sidecar.Mode {
	case "":
	case "http":
		if cfg.Sidecar.URL == "" {
			return nil, errors.New("http sidecar requires a url")
		}
		providers = append(providers, tts.NewSidecar(cfg.Sidecar.URL,
			tts.WithSidecarBearer(cfg.Sidecar.Bearer),
			tts.WithSidecarClient(tts.NewHTTPClient(millis(cfg.Sidecar.TimeoutMS))),
		))
	case "exec":
		p, err := tts.NewExecSidecar(cfg.Sidecar.Command)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	case "mock":
		providers = append(providers, tts.NewMockProvider(tts.Kokoro))
	default:
		return nil, fmt.Errorf("unknown sidecar mode %q", cfg.Sidecar.Mode)
	}

	return tts.NewRegistry(providers...), nil
}

// EngineConfig maps the pipeline section of cfg onto the engine.
func EngineConfig(cfg config.Config) pipeline.Config {
	return pipeline.Config{
		Selector: tts.SelectorConfig{
			SidecarConfigured: cfg.Providers.SidecarConfigured(),
			Production:        cfg.Production(),
		},
		Prices: map[tts.Name]float64{
			tts.OpenAI: cfg.Providers.OpenAI.PricePerMillion,
			tts.Google: cfg.Providers.Google.PricePerMillion,
			tts.Kokoro: cfg.Providers.Sidecar.PricePerMillion,
		},
		MaxEstimatedCostUSD: cfg.Pipeline.MaxEstimatedCostUSD,
		StitchWithFFmpeg:    cfg.Pipeline.StitchWithFFmpeg,
		FFmpeg: audio.FFmpegOptions{
			Path:    cfg.Pipeline.FFmpegPath,
			TempDir: cfg.Pipeline.TempDir,
		},
		Concurrency:   cfg.Pipeline.Concurrency,
		EngineVersion: cfg.Pipeline.EngineVersion,
	}
}

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
