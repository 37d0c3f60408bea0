package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Pipeline.EngineVersion != "md-v1" {
		t.Fatalf("expected engine version md-v1, got %q", cfg.Pipeline.EngineVersion)
	}
	if cfg.Pipeline.Concurrency != 1 {
		t.Fatalf("expected sequential default, got %d", cfg.Pipeline.Concurrency)
	}
	if cfg.Providers.OpenAI.PricePerMillion != 20 || cfg.Providers.Google.PricePerMillion != 16 {
		t.Fatalf("unexpected default prices: %+v", cfg.Providers)
	}
	if cfg.Providers.SidecarConfigured() {
		t.Fatal("sidecar must not be configured by default")
	}
	if cfg.Production() {
		t.Fatal("default environment must not be production")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NARRATOR_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("NARRATOR_BUS_USERNAME", "alice")
	t.Setenv("NARRATOR_BUS_PASSWORD", "secret")
	t.Setenv("NARRATOR_BUS_TLS_INSECURE", "true")
	t.Setenv("NARRATOR_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("NARRATOR_ENVIRONMENT", "production")
	t.Setenv("NARRATOR_STORAGE_BACKEND", "nats")
	t.Setenv("NARRATOR_STORAGE_BUCKET", "audio")
	t.Setenv("NARRATOR_CACHE_BACKEND", "redis")
	t.Setenv("NARRATOR_CACHE_REDIS_ADDR", "localhost:6379")
	t.Setenv("NARRATOR_JOBS_PATH", "./tmp.db")
	t.Setenv("NARRATOR_JOBS_RETENTION_DAYS", "7")
	t.Setenv("NARRATOR_PIPELINE_CONCURRENCY", "4")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if !cfg.Production() {
		t.Fatal("expected production environment")
	}
	if cfg.Storage.Backend != "nats" || cfg.Storage.Bucket != "audio" {
		t.Fatalf("expected storage override, got %+v", cfg.Storage)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisAddr != "localhost:6379" {
		t.Fatalf("expected cache override, got %+v", cfg.Cache)
	}
	if cfg.Jobs.Path != "./tmp.db" || cfg.Jobs.RetentionDays != 7 {
		t.Fatalf("expected jobs override, got %+v", cfg.Jobs)
	}
	if cfg.Pipeline.Concurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.Pipeline.Concurrency)
	}
}

func TestLegacyEnvNames(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("GOOGLE_API_KEY", "g-legacy")
	t.Setenv("KOKORO_URL", "http://kokoro:8880")
	t.Setenv("KOKORO_BEARER", "tok")
	t.Setenv("TTS_MAX_ESTIMATED_COST_USD", "10")
	t.Setenv("TTS_PRICE_OPENAI_PER_MILLION_CHARS", "15")
	t.Setenv("TTS_PRICE_GOOGLE_PER_MILLION_CHARS", "0")
	t.Setenv("TTS_STITCH_WITH_FFMPEG", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-legacy" || cfg.Providers.Google.APIKey != "g-legacy" {
		t.Fatalf("expected api keys from legacy names")
	}
	if cfg.Providers.Sidecar.Mode != "http" || cfg.Providers.Sidecar.URL != "http://kokoro:8880" {
		t.Fatalf("expected sidecar http mode, got %+v", cfg.Providers.Sidecar)
	}
	if cfg.Providers.Sidecar.Bearer != "tok" {
		t.Fatalf("expected sidecar bearer")
	}
	if !cfg.Providers.SidecarConfigured() {
		t.Fatal("expected sidecar configured")
	}
	if cfg.Pipeline.MaxEstimatedCostUSD != 10 {
		t.Fatalf("expected ceiling 10, got %v", cfg.Pipeline.MaxEstimatedCostUSD)
	}
	if cfg.Providers.OpenAI.PricePerMillion != 15 {
		t.Fatalf("expected openai price 15, got %v", cfg.Providers.OpenAI.PricePerMillion)
	}
	if cfg.Providers.Google.PricePerMillion != 16 {
		t.Fatalf("zero price must keep default, got %v", cfg.Providers.Google.PricePerMillion)
	}
	if !cfg.Pipeline.StitchWithFFmpeg {
		t.Fatal("expected ffmpeg stitching enabled")
	}
}

func TestNarratorEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "legacy")
	t.Setenv("NARRATOR_OPENAI_API_KEY", "preferred")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "preferred" {
		t.Fatalf("expected preferred key, got %q", cfg.Providers.OpenAI.APIKey)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narrator.yaml")
	data := []byte(`
service_name: narrator-test
providers:
  sidecar:
    mode: exec
    command: "python3 kokoro.py"
pipeline:
  concurrency: 3
  max_estimated_cost_usd: 2.5
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServiceName != "narrator-test" {
		t.Fatalf("expected service name from file, got %q", cfg.ServiceName)
	}
	if cfg.Providers.Sidecar.Command != "python3 kokoro.py" || !cfg.Providers.SidecarConfigured() {
		t.Fatalf("expected exec sidecar, got %+v", cfg.Providers.Sidecar)
	}
	if cfg.Pipeline.Concurrency != 3 || cfg.Pipeline.MaxEstimatedCostUSD != 2.5 {
		t.Fatalf("unexpected pipeline config: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.EngineVersion != "md-v1" {
		t.Fatalf("expected defaults to survive partial file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"NARRATOR_STORAGE_BACKEND":              "s3",
		"NARRATOR_CACHE_BACKEND":                "memcached",
		"NARRATOR_SIDECAR_MODE":                 "grpc",
		"NARRATOR_PIPELINE_CONCURRENCY":         "0",
		"NARRATOR_TELEMETRY_TRACE_EXPORTER":     "jaeger",
		"NARRATOR_TELEMETRY_TRACE_SAMPLE_RATIO": "1.5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
