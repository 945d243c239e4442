package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tourguide/internal/audio"
	"tourguide/internal/cache"
	"tourguide/internal/config"
	"tourguide/internal/domain"
	"tourguide/internal/history"
	"tourguide/internal/logging"
	"tourguide/internal/ports"
	"tourguide/internal/prompt"
	"tourguide/internal/providers/assemblyai"
	"tourguide/internal/providers/deepgram"
	"tourguide/internal/providers/elevenlabs"
	"tourguide/internal/providers/openai"
	"tourguide/internal/rules"
	"tourguide/internal/usecase"
)

const redisConnectTimeout = 5 * time.Second

// Services is the assembled runtime graph.
type Services struct {
	Coordinator *usecase.Coordinator
	Config      config.Config
	Logger      *zap.Logger
	Transcriber ports.Transcriber
	Synthesizer ports.Synthesizer
	History     ports.ConversationLog

	closers []func() error
}

// Close stops the coordinator and releases stores in reverse order.
func (s Services) Close() error {
	if s.Coordinator != nil {
		s.Coordinator.Close()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Logger != nil {
		_ = s.Logger.Sync()
	}
	return errors.Join(errs...)
}

// Build wires all backend dependencies for the current runtime.
func Build(events ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return Services{}, err
	}
	return BuildWith(cfg, events, logger)
}

// BuildWith wires the graph from an already loaded configuration.
func BuildWith(cfg config.Config, events ports.EventSink, logger *zap.Logger) (Services, error) {
	services := Services{Config: cfg, Logger: logger}

	rulesEngine, err := rules.NewEngine(cfg.Rules.File, cfg.Rules.PassLimit)
	if err != nil {
		return Services{}, err
	}
	logger.Info("transcript corrections loaded", zap.String("file", cfg.Rules.File), zap.Int("rules", rulesEngine.Len()))

	openaiClient := openai.New(openai.Config{
		APIKey:             cfg.OpenAI.APIKey,
		BaseURL:            cfg.OpenAI.BaseURL,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		ChatModel:          cfg.OpenAI.ChatModel,
		SpeechModel:        cfg.OpenAI.SpeechModel,
		Voice:              cfg.OpenAI.Voice,
		Language:           cfg.Tour.Language,
		Temperature:        cfg.OpenAI.Temperature,
		Timeout:            cfg.OpenAI.Timeout,
	})

	transcriber, err := selectTranscriber(cfg, openaiClient)
	if err != nil {
		return Services{}, err
	}
	synthesizer, err := selectSynthesizer(cfg, openaiClient)
	if err != nil {
		return Services{}, err
	}

	if cfg.Cache.Enabled {
		speechCache, err := cache.Open(cache.Config{Dir: cfg.Cache.Dir, TTL: cfg.Cache.TTL}, logger)
		if err != nil {
			logger.Warn("speech cache unavailable; synthesizing without cache", zap.String("dir", cfg.Cache.Dir), zap.Error(err))
		} else {
			synthesizer = speechCache.Wrap(synthesizer)
			services.closers = append(services.closers, speechCache.Close)
		}
	}

	store := buildHistory(cfg.History, logger)
	if closer, ok := store.(interface{ Close() error }); ok {
		services.closers = append(services.closers, closer.Close)
	}

	coordinator := usecase.NewCoordinator(
		usecase.Collaborators{
			Capture:     audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
			Transcriber: transcriber,
			Completer:   openaiClient,
			Speech:      audio.NewSpeechSink(synthesizer, audio.NewFFplayPlayer(cfg.Audio.PlayerCommand)),
			Corrector:   rulesEngine,
			Prompts:     prompt.NewBuilder(prompt.Options{MaxSentences: cfg.Session.MaxSentences}),
			History:     store,
		},
		events,
		logger,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			HistoryDepth:   cfg.Session.HistoryDepth,
			HistoryTimeout: cfg.Session.HistoryTimeout,
		},
	)

	if cfg.Tour.Destination != "" {
		tour := domain.TourContext{
			Destination: cfg.Tour.Destination,
			Landmarks:   cfg.Tour.Landmarks,
			Language:    cfg.Tour.Language,
		}
		if err := coordinator.SetTourContext(tour); err != nil {
			coordinator.Close()
			_ = services.Close()
			return Services{}, err
		}
	}

	services.Coordinator = coordinator
	services.Transcriber = transcriber
	services.Synthesizer = synthesizer
	services.History = store
	logger.Info("tour guide ready",
		zap.String("session_id", coordinator.SessionID()),
		zap.String("stt", cfg.STTProvider),
		zap.String("tts", cfg.TTSProvider),
	)
	return services, nil
}

func selectTranscriber(cfg config.Config, openaiClient *openai.Client) (ports.Transcriber, error) {
	switch cfg.STTProvider {
	case "", "openai":
		return openaiClient, nil
	case "deepgram":
		return deepgram.NewTranscriber(deepgram.Config{
			APIKey:          cfg.Deepgram.APIKey,
			APIBaseURL:      cfg.Deepgram.BaseURL,
			Model:           cfg.Deepgram.Model,
			Language:        cfg.Deepgram.Language,
			SmartFormat:     cfg.Deepgram.SmartFormat,
			Keywords:        cfg.Deepgram.Keywords,
			ChunkSize:       cfg.Deepgram.ChunkSize,
			FinalizeTimeout: cfg.Deepgram.FinalizeTimeout,
		}), nil
	case "assemblyai":
		return assemblyai.NewTranscriber(assemblyai.Config{
			APIKey:       cfg.AssemblyAI.APIKey,
			LanguageCode: cfg.AssemblyAI.LanguageCode,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.STTProvider)
	}
}

func selectSynthesizer(cfg config.Config, openaiClient *openai.Client) (ports.Synthesizer, error) {
	switch cfg.TTSProvider {
	case "", "openai":
		return openaiClient, nil
	case "elevenlabs":
		return elevenlabs.NewSynthesizer(elevenlabs.Config{
			APIKey:  cfg.ElevenLabs.APIKey,
			VoiceID: cfg.ElevenLabs.VoiceID,
			ModelID: cfg.ElevenLabs.ModelID,
			BaseURL: cfg.ElevenLabs.BaseURL,
		}), nil
	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.TTSProvider)
	}
}

// buildHistory prefers Redis and falls back to process memory when it is not
// configured or cannot be reached.
func buildHistory(cfg config.HistoryConfig, logger *zap.Logger) ports.ConversationLog {
	if cfg.RedisAddr == "" {
		return history.NewMemory(cfg.MaxLen)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	store, err := history.NewRedisLog(ctx, history.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		MaxLen:   cfg.MaxLen,
		TTL:      cfg.TTL,
		RetryFor: cfg.RetryFor,
	}, logger)
	if err != nil {
		logger.Warn("conversation history falls back to memory", zap.String("redis_addr", cfg.RedisAddr), zap.Error(err))
		return history.NewMemory(cfg.MaxLen)
	}
	return store
}
