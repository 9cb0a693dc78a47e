package main

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/taskline/internal/ai/gemini"
	"github.com/zulandar/taskline/internal/ai/openai"
	"github.com/zulandar/taskline/internal/config"
	"github.com/zulandar/taskline/internal/intent"
	"github.com/zulandar/taskline/internal/media"
	"go.uber.org/zap"
)

// provider is a model backend serving extraction, transcription and vision.
type provider interface {
	intent.Completer
	media.Transcriber
	media.Vision
}

// newProvider builds the configured model backend.
func newProvider(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (provider, error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	switch cfg.Provider {
	case "gemini":
		c, err := gemini.New(ctx, gemini.Opts{
			APIKey:             cfg.APIKey,
			BaseURL:            cfg.BaseURL,
			Model:              cfg.Model,
			VisionModel:        cfg.VisionModel,
			TranscriptionModel: cfg.TranscriptionModel,
			Timeout:            timeout,
			Logger:             logger,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "openai":
		return openai.New(openai.Opts{
			APIKey:             cfg.APIKey,
			BaseURL:            cfg.BaseURL,
			Model:              cfg.Model,
			VisionModel:        cfg.VisionModel,
			TranscriptionModel: cfg.TranscriptionModel,
			Language:           cfg.Language,
			Timeout:            timeout,
			Logger:             logger,
		}), nil
	default:
		return nil, fmt.Errorf("ai: unsupported provider %q", cfg.Provider)
	}
}

// pipeline holds the model-backed stages handed to the daemon.
type pipeline struct {
	extractor *intent.Extractor
	audio     *media.AudioInterpreter
	image     *media.ImageInterpreter
}

func newPipeline(p provider, cfg *config.Config, logger *zap.Logger) (*pipeline, error) {
	extractor, err := intent.NewExtractor(intent.ExtractorOpts{
		Completer: p,
		Logger:    logger.Named("intent"),
	})
	if err != nil {
		return nil, err
	}
	audio, err := media.NewAudioInterpreter(media.AudioOpts{
		FFmpegPath:  cfg.Audio.FFmpegPath,
		TempDir:     cfg.Audio.TempDir,
		Transcriber: p,
		Logger:      logger.Named("audio"),
	})
	if err != nil {
		return nil, err
	}
	image, err := media.NewImageInterpreter(p)
	if err != nil {
		return nil, err
	}
	return &pipeline{extractor: extractor, audio: audio, image: image}, nil
}
