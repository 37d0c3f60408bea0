package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loqalabs/narrator/internal/config"
	"github.com/loqalabs/narrator/internal/pipeline"
	"github.com/loqalabs/narrator/internal/runtime"
	"github.com/loqalabs/narrator/internal/tts"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "narratord",
		Short:         "Narrate markdown documents with cloud or self-hosted speech synthesis",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	root.SetOut(out)

	root.AddCommand(
		newServeCommand(&configPath),
		newSynthCommand(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print version and exit",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the narration daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(*configPath, os.Stdout)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := runtime.New(cfg, logger).Start(ctx); err != nil {
				logger.Error("runtime exited with error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}

type synthOptions struct {
	sourceID     string
	provider     string
	voice        string
	speed        float64
	format       string
	language     string
	sampleRate   int
	title        string
	output       string
	estimateOnly bool
}

func newSynthCommand(configPath *string) *cobra.Command {
	var opts synthOptions
	cmd := &cobra.Command{
		Use:   "synth <file.md>",
		Short: "Narrate one markdown file and print its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs go to stderr so stdout carries only the manifest.
			cfg, logger, err := load(*configPath, os.Stderr)
			if err != nil {
				return err
			}
			return runSynth(cmd.Context(), cmd.OutOrStdout(), cfg, logger, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.sourceID, "source-id", "", "Document identifier (defaults to the file name)")
	f.StringVar(&opts.provider, "provider", "", "Provider: openai, google or kokoro")
	f.StringVar(&opts.voice, "voice", "", "Voice id (provider default when empty)")
	f.Float64Var(&opts.speed, "speed", 1, "Speaking rate multiplier")
	f.StringVar(&opts.format, "format", "mp3", "Output format: mp3, ogg or wav")
	f.StringVar(&opts.language, "language", "", "BCP-47 language code")
	f.IntVar(&opts.sampleRate, "sample-rate", 0, "Requested sample rate")
	f.StringVar(&opts.title, "title", "", "Title stored in the manifest")
	f.StringVarP(&opts.output, "output", "o", "", "Write the manifest to this file instead of stdout")
	f.BoolVar(&opts.estimateOnly, "estimate", false, "Print the cost estimate without synthesizing")
	return cmd
}

func runSynth(ctx context.Context, out io.Writer, cfg config.Config, logger *slog.Logger, path string, opts synthOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	sourceID := opts.sourceID
	if sourceID == "" {
		sourceID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	req := pipeline.Request{
		SourceID:     sourceID,
		Text:         string(data),
		Provider:     opts.provider,
		VoiceID:      opts.voice,
		Speed:        opts.speed,
		Format:       tts.Format(opts.format),
		LanguageCode: opts.language,
		SampleRate:   opts.sampleRate,
		TitleHint:    opts.title,
	}

	components, err := runtime.Assemble(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	var result any
	if opts.estimateOnly {
		result, err = components.Engine.Estimate(req)
	} else {
		result, err = components.Engine.Synthesize(ctx, req)
	}
	if err != nil {
		var budget *pipeline.BudgetExceededError
		if errors.As(err, &budget) {
			logger.Error("budget exceeded", slog.Float64("estimated_usd", budget.EstimatedUSD))
		}
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if opts.output != "" {
		return os.WriteFile(opts.output, append(encoded, '\n'), 0o644)
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}

func load(path string, logOut io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		slog.New(slog.NewJSONHandler(logOut, nil)).Error("failed to load config", slog.String("error", err.Error()))
		return cfg, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: logLevel(cfg.Telemetry.LogLevel)}))
	return cfg, logger, nil
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
