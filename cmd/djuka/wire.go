package main

import (
	"context"
	"fmt"
	log "log/slog"

	"djuka/internal/action"
	"djuka/internal/assistant"
	"djuka/internal/audio"
	"djuka/internal/capture"
	"djuka/internal/config"
	"djuka/internal/oracle"
	"djuka/internal/proxy"
	"djuka/internal/store"
	"djuka/internal/tts"
	"djuka/pkg/bus"
	"djuka/pkg/stt"
)

// openStore returns nil when persistence is off or unavailable; the
// conversation then lives in memory only.
func openStore(cfg config.Store) *store.GormStore {
	if cfg.Driver == "none" {
		return nil
	}
	st, err := store.NewGormStore(cfg.Driver, cfg.DSN)
	if err != nil {
		log.Warn("Conversation will not be persisted", "driver", cfg.Driver, "err", err)
		return nil
	}
	log.Debug("Loaded store", "driver", cfg.Driver)
	return st
}

func newOracle(ctx context.Context, cfg config.Oracle) (oracle.Oracle, error) {
	if cfg.Provider == "none" {
		return nil, nil
	}

	httpClient, err := proxy.NewClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("socks proxy %s: %w", cfg.Proxy, err)
	}

	var orc oracle.Oracle
	switch cfg.Provider {
	case "openai":
		orc, err = oracle.NewOpenAI(oracle.OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			HTTPClient: httpClient,
		})
	case "gemini":
		orc, err = oracle.NewGemini(ctx, oracle.GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			HTTPClient: httpClient,
		})
	default:
		err = fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return orc, nil
}

func newExecutor(ctx context.Context, cfg config.Executor, onMessage func(bus.Message)) (action.Executor, *bus.Client, error) {
	switch cfg.Kind {
	case "log":
		return action.LogExecutor{}, nil, nil
	case "bus":
		hub, err := bus.Dial(ctx, bus.Config{
			Shard:     cfg.BusShard,
			URL:       cfg.BusURL,
			OnMessage: onMessage,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to hub: %w", err)
		}
		return action.BusExecutor{Hub: hub, To: cfg.BusTo}, hub, nil
	}
	return action.OpenExecutor{}, nil, nil
}

type espeakSpeaker struct {
	e *tts.Espeak
}

func (s espeakSpeaker) Speak(text string, v assistant.Voice) error {
	return s.e.Speak(text, tts.Voice{Locale: v.Locale, Pitch: v.Pitch, Rate: v.Rate})
}

type silentSpeaker struct{}

func (silentSpeaker) Speak(text string, _ assistant.Voice) error {
	log.Info("Djuka", "says", text)
	return nil
}

func newSpeaker() (assistant.Speaker, func()) {
	e, err := tts.NewEspeak()
	if err != nil {
		log.Warn("Speech output disabled", "err", err)
		return silentSpeaker{}, func() {}
	}
	return espeakSpeaker{e}, e.Close
}

// newCapture returns nil collaborators when no whisper model is configured;
// the listener then refuses to start.
func newCapture(cfg config.Capture) (capture.Source, capture.Transcriber, func()) {
	if cfg.Model == "" {
		log.Info("Voice capture disabled, no whisper model")
		return nil, nil, func() {}
	}

	rec := audio.NewRecorder(audio.RecorderConfig{
		SilenceRMS: cfg.SilenceRMS,
		Silence:    cfg.Silence,
		MaxLength:  cfg.MaxLength,
	})
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		return nil, nil, func() {}
	}
	log.Debug("Loaded recorder")

	tr, err := stt.NewTranscriber(cfg.Model, stt.Options{
		Threads:       cfg.Threads,
		InitialPrompt: stt.DefaultPrompt,
	})
	if err != nil {
		log.Error("Failed to init whisper", "err", err)
		rec.Close()
		return nil, nil, func() {}
	}
	log.Debug("Loaded whisper")

	var src capture.Source = rec
	if cfg.Duck {
		src = duckingSource{rec, audio.NewDucker(audio.Pactl{}, []string{"djuka", "espeak"}, 0.3, 10)}
	}

	return src, tr, func() {
		tr.Close()
		rec.Close()
	}
}

// duckingSource keeps other playback quiet for the length of a recording.
type duckingSource struct {
	capture.Source
	d *audio.Ducker
}

func (s duckingSource) Record(stop <-chan struct{}) ([]float32, error) {
	ctx := context.Background()
	if err := s.d.Duck(ctx); err != nil {
		log.Debug("Failed to duck", "err", err)
	}
	defer func() {
		if err := s.d.Restore(ctx); err != nil {
			log.Debug("Failed to restore volume", "err", err)
		}
	}()
	return s.Source.Record(stop)
}
