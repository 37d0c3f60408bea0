package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
	// TraceExporter is otlp, stdout or none. Empty picks otlp when an
	// endpoint is set and stdout otherwise.
	TraceExporter    string  `yaml:"trace_exporter"`
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Storage     StorageConfig   `yaml:"storage"`
	Cache       CacheConfig     `yaml:"cache"`
	Jobs        JobsConfig      `yaml:"jobs"`
	Providers   ProvidersConfig `yaml:"providers"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	Narration   NarrationConfig `yaml:"narration"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// StorageConfig selects the object store that holds chunk audio, stitched
// tracks and manifests.
type StorageConfig struct {
	Backend          string `yaml:"backend"` // fs, nats
	Root             string `yaml:"root"`
	BaseURL          string `yaml:"base_url"`
	Bucket           string `yaml:"bucket"`
	ExistsCacheTTLMS int    `yaml:"exists_cache_ttl_ms"`
}

type CacheConfig struct {
	Backend       string `yaml:"backend"` // none, memory, redis
	Size          int    `yaml:"size"`
	TTLMS         int    `yaml:"ttl_ms"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
}

type JobsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type ProvidersConfig struct {
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Google  GoogleConfig  `yaml:"google"`
	Sidecar SidecarConfig `yaml:"sidecar"`
}

type OpenAIConfig struct {
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	Model           string  `yaml:"model"`
	PricePerMillion float64 `yaml:"price_per_million"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	TimeoutMS       int     `yaml:"timeout_ms"`
}

type GoogleConfig struct {
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	PricePerMillion float64 `yaml:"price_per_million"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	TimeoutMS       int     `yaml:"timeout_ms"`
}

type SidecarConfig struct {
	Mode            string  `yaml:"mode"` // "", http, exec, mock
	URL             string  `yaml:"url"`
	Bearer          string  `yaml:"bearer"`
	Command         string  `yaml:"command"`
	PricePerMillion float64 `yaml:"price_per_million"`
	TimeoutMS       int     `yaml:"timeout_ms"`
}

type PipelineConfig struct {
	MaxEstimatedCostUSD float64 `yaml:"max_estimated_cost_usd"`
	StitchWithFFmpeg    bool    `yaml:"stitch_with_ffmpeg"`
	FFmpegPath          string  `yaml:"ffmpeg_path"`
	TempDir             string  `yaml:"temp_dir"`
	Concurrency         int     `yaml:"concurrency"`
	EngineVersion       string  `yaml:"engine_version"`
	TargetChunkSize     int     `yaml:"target_chunk_size"`
	HardChunkCap        int     `yaml:"hard_chunk_cap"`
}

type NarrationConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Subject          string `yaml:"subject"`
	StatusSubject    string `yaml:"status_subject"`
	JobSubject       string `yaml:"job_subject"`
	QueueGroup       string `yaml:"queue_group"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

// SidecarConfigured reports whether a self-hosted backend is available.
func (c ProvidersConfig) SidecarConfigured() bool {
	switch c.Sidecar.Mode {
	case "http":
		return c.Sidecar.URL != ""
	case "exec":
		return c.Sidecar.Command != ""
	case "mock":
		return true
	}
	return false
}

// Production reports whether the runtime runs in the production environment.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

func Default() Config {
	return Config{
		ServiceName: "narrator",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:         "info",
			OTLPEndpoint:     "",
			OTLPInsecure:     true,
			PrometheusBind:   ":9091",
			TraceSampleRatio: 1,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Storage: StorageConfig{
			Backend:          "fs",
			Root:             "./data/blob",
			Bucket:           "narrator",
			ExistsCacheTTLMS: 60000,
		},
		Cache: CacheConfig{
			Backend: "memory",
			Size:    4096,
			TTLMS:   300000,
			Prefix:  "narrator",
		},
		Jobs: JobsConfig{
			Enabled:       true,
			Path:          "./data/narrator-jobs.db",
			RetentionDays: 30,
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				BaseURL:         "https://api.openai.com/v1",
				Model:           "tts-1",
				PricePerMillion: 20,
				TimeoutMS:       60000,
			},
			Google: GoogleConfig{
				BaseURL:         "https://texttospeech.googleapis.com",
				PricePerMillion: 16,
				TimeoutMS:       60000,
			},
			Sidecar: SidecarConfig{
				PricePerMillion: 0,
				TimeoutMS:       120000,
			},
		},
		Pipeline: PipelineConfig{
			FFmpegPath:      "ffmpeg",
			Concurrency:     1,
			EngineVersion:   "md-v1",
			TargetChunkSize: 1400,
			HardChunkCap:    4000,
		},
		Narration: NarrationConfig{
			Enabled:          true,
			Subject:          "narrator.synthesize",
			StatusSubject:    "narrator.job.status",
			JobSubject:       "narrator.job.get",
			QueueGroup:       "narrator",
			RequestTimeoutMS: 600000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "NARRATOR_SERVICE_NAME")
	overrideString(&cfg.Environment, "NARRATOR_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "NARRATOR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "NARRATOR_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "NARRATOR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "NARRATOR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "NARRATOR_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "NARRATOR_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Telemetry.TraceExporter, "NARRATOR_TELEMETRY_TRACE_EXPORTER")
	overrideFloat(&cfg.Telemetry.TraceSampleRatio, "NARRATOR_TELEMETRY_TRACE_SAMPLE_RATIO")
	overrideBool(&cfg.Bus.Embedded, "NARRATOR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "NARRATOR_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "NARRATOR_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "NARRATOR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "NARRATOR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "NARRATOR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "NARRATOR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "NARRATOR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "NARRATOR_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Storage.Backend, "NARRATOR_STORAGE_BACKEND")
	overrideString(&cfg.Storage.Root, "NARRATOR_STORAGE_ROOT")
	overrideString(&cfg.Storage.BaseURL, "NARRATOR_STORAGE_BASE_URL")
	overrideString(&cfg.Storage.Bucket, "NARRATOR_STORAGE_BUCKET")
	overrideInt(&cfg.Storage.ExistsCacheTTLMS, "NARRATOR_STORAGE_EXISTS_CACHE_TTL_MS")
	overrideString(&cfg.Cache.Backend, "NARRATOR_CACHE_BACKEND")
	overrideInt(&cfg.Cache.Size, "NARRATOR_CACHE_SIZE")
	overrideInt(&cfg.Cache.TTLMS, "NARRATOR_CACHE_TTL_MS")
	overrideString(&cfg.Cache.RedisAddr, "NARRATOR_CACHE_REDIS_ADDR")
	overrideString(&cfg.Cache.RedisPassword, "NARRATOR_CACHE_REDIS_PASSWORD")
	overrideInt(&cfg.Cache.RedisDB, "NARRATOR_CACHE_REDIS_DB")
	overrideString(&cfg.Cache.Prefix, "NARRATOR_CACHE_PREFIX")
	overrideBool(&cfg.Jobs.Enabled, "NARRATOR_JOBS_ENABLED")
	overrideString(&cfg.Jobs.Path, "NARRATOR_JOBS_PATH")
	overrideInt(&cfg.Jobs.RetentionDays, "NARRATOR_JOBS_RETENTION_DAYS")

	// Legacy names first so the NARRATOR_* variables win when both are set.
	overrideString(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.Providers.OpenAI.APIKey, "NARRATOR_OPENAI_API_KEY")
	overrideString(&cfg.Providers.OpenAI.BaseURL, "NARRATOR_OPENAI_BASE_URL")
	overrideString(&cfg.Providers.OpenAI.Model, "NARRATOR_OPENAI_MODEL")
	overridePositiveFloat(&cfg.Providers.OpenAI.PricePerMillion, "TTS_PRICE_OPENAI_PER_MILLION_CHARS")
	overridePositiveFloat(&cfg.Providers.OpenAI.PricePerMillion, "NARRATOR_OPENAI_PRICE_PER_MILLION")
	overrideFloat(&cfg.Providers.OpenAI.RateLimitRPS, "NARRATOR_OPENAI_RATE_LIMIT_RPS")
	overrideInt(&cfg.Providers.OpenAI.TimeoutMS, "NARRATOR_OPENAI_TIMEOUT_MS")
	overrideString(&cfg.Providers.Google.APIKey, "GOOGLE_API_KEY")
	overrideString(&cfg.Providers.Google.APIKey, "NARRATOR_GOOGLE_API_KEY")
	overrideString(&cfg.Providers.Google.BaseURL, "NARRATOR_GOOGLE_BASE_URL")
	overridePositiveFloat(&cfg.Providers.Google.PricePerMillion, "TTS_PRICE_GOOGLE_PER_MILLION_CHARS")
	overridePositiveFloat(&cfg.Providers.Google.PricePerMillion, "NARRATOR_GOOGLE_PRICE_PER_MILLION")
	overrideFloat(&cfg.Providers.Google.RateLimitRPS, "NARRATOR_GOOGLE_RATE_LIMIT_RPS")
	overrideInt(&cfg.Providers.Google.TimeoutMS, "NARRATOR_GOOGLE_TIMEOUT_MS")
	if url, ok := os.LookupEnv("KOKORO_URL"); ok && strings.TrimSpace(url) != "" {
		cfg.Providers.Sidecar.URL = url
		if cfg.Providers.Sidecar.Mode == "" {
			cfg.Providers.Sidecar.Mode = "http"
		}
	}
	overrideString(&cfg.Providers.Sidecar.Bearer, "KOKORO_BEARER")
	overrideString(&cfg.Providers.Sidecar.Mode, "NARRATOR_SIDECAR_MODE")
	overrideString(&cfg.Providers.Sidecar.URL, "NARRATOR_SIDECAR_URL")
	overrideString(&cfg.Providers.Sidecar.Bearer, "NARRATOR_SIDECAR_BEARER")
	overrideString(&cfg.Providers.Sidecar.Command, "NARRATOR_SIDECAR_COMMAND")
	overrideFloat(&cfg.Providers.Sidecar.PricePerMillion, "NARRATOR_SIDECAR_PRICE_PER_MILLION")
	overrideInt(&cfg.Providers.Sidecar.TimeoutMS, "NARRATOR_SIDECAR_TIMEOUT_MS")

	overrideFloat(&cfg.Pipeline.MaxEstimatedCostUSD, "TTS_MAX_ESTIMATED_COST_USD")
	overrideFloat(&cfg.Pipeline.MaxEstimatedCostUSD, "NARRATOR_PIPELINE_MAX_ESTIMATED_COST_USD")
	overrideBool(&cfg.Pipeline.StitchWithFFmpeg, "TTS_STITCH_WITH_FFMPEG")
	overrideBool(&cfg.Pipeline.StitchWithFFmpeg, "NARRATOR_PIPELINE_STITCH_WITH_FFMPEG")
	overrideString(&cfg.Pipeline.FFmpegPath, "NARRATOR_PIPELINE_FFMPEG_PATH")
	overrideString(&cfg.Pipeline.TempDir, "NARRATOR_PIPELINE_TEMP_DIR")
	overrideInt(&cfg.Pipeline.Concurrency, "NARRATOR_PIPELINE_CONCURRENCY")
	overrideString(&cfg.Pipeline.EngineVersion, "NARRATOR_PIPELINE_ENGINE_VERSION")
	overrideInt(&cfg.Pipeline.TargetChunkSize, "NARRATOR_PIPELINE_TARGET_CHUNK_SIZE")
	overrideInt(&cfg.Pipeline.HardChunkCap, "NARRATOR_PIPELINE_HARD_CHUNK_CAP")

	overrideBool(&cfg.Narration.Enabled, "NARRATOR_NARRATION_ENABLED")
	overrideString(&cfg.Narration.Subject, "NARRATOR_NARRATION_SUBJECT")
	overrideString(&cfg.Narration.StatusSubject, "NARRATOR_NARRATION_STATUS_SUBJECT")
	overrideString(&cfg.Narration.JobSubject, "NARRATOR_NARRATION_JOB_SUBJECT")
	overrideString(&cfg.Narration.QueueGroup, "NARRATOR_NARRATION_QUEUE_GROUP")
	overrideInt(&cfg.Narration.RequestTimeoutMS, "NARRATOR_NARRATION_REQUEST_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// overridePositiveFloat ignores zero, negative and unparsable values so a
// blank price never replaces the built-in default.
func overridePositiveFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed > 0 {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Telemetry.TraceExporter {
	case "", "stdout", "none":
	case "otlp":
		if cfg.Telemetry.OTLPEndpoint == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of otlp|stdout|none")
	}
	if cfg.Telemetry.TraceSampleRatio < 0 || cfg.Telemetry.TraceSampleRatio > 1 {
		return errors.New("telemetry.trace_sample_ratio must be between 0 and 1")
	}
	switch cfg.Storage.Backend {
	case "fs":
		if cfg.Storage.Root == "" {
			return errors.New("storage.root must be set when backend=fs")
		}
	case "nats":
		if cfg.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when backend=nats")
		}
	default:
		return errors.New("storage.backend must be one of fs|nats")
	}
	switch cfg.Cache.Backend {
	case "none", "":
	case "memory":
		if cfg.Cache.Size <= 0 {
			return errors.New("cache.size must be positive when backend=memory")
		}
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr must be set when backend=redis")
		}
	default:
		return errors.New("cache.backend must be one of none|memory|redis")
	}
	if cfg.Cache.TTLMS < 0 {
		return errors.New("cache.ttl_ms must be >= 0")
	}
	if cfg.Jobs.Enabled && cfg.Jobs.Path == "" {
		return errors.New("jobs.path must not be empty when jobs are enabled")
	}
	if cfg.Jobs.RetentionDays < 0 {
		return errors.New("jobs.retention_days must be >= 0")
	}
	switch cfg.Providers.Sidecar.Mode {
	case "", "mock":
	case "http":
		if cfg.Providers.Sidecar.URL == "" {
			return errors.New("providers.sidecar.url must be set when mode=http")
		}
	case "exec":
		if cfg.Providers.Sidecar.Command == "" {
			return errors.New("providers.sidecar.command must be set when mode=exec")
		}
	default:
		return errors.New("providers.sidecar.mode must be one of http|exec|mock")
	}
	if cfg.Providers.OpenAI.PricePerMillion < 0 || cfg.Providers.Google.PricePerMillion < 0 || cfg.Providers.Sidecar.PricePerMillion < 0 {
		return errors.New("providers.*.price_per_million must be >= 0")
	}
	if cfg.Pipeline.Concurrency <= 0 {
		return errors.New("pipeline.concurrency must be >= 1")
	}
	if cfg.Pipeline.EngineVersion == "" {
		return errors.New("pipeline.engine_version must not be empty")
	}
	if cfg.Pipeline.StitchWithFFmpeg && cfg.Pipeline.FFmpegPath == "" {
		return errors.New("pipeline.ffmpeg_path must be set when stitch_with_ffmpeg is enabled")
	}
	if cfg.Pipeline.TargetChunkSize <= 0 || cfg.Pipeline.HardChunkCap < cfg.Pipeline.TargetChunkSize {
		return errors.New("pipeline.hard_chunk_cap must be >= target_chunk_size > 0")
	}
	if cfg.Narration.Enabled && cfg.Narration.Subject == "" {
		return errors.New("narration.subject must not be empty when narration is enabled")
	}
	return nil
}
