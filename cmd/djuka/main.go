package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	log "log/slog"

	"djuka/internal/assistant"
	"djuka/internal/capture"
	"djuka/internal/config"
	"djuka/internal/convo"
	"djuka/internal/ipc"
	"djuka/internal/notify"
)

func main() {
	cfg, err := config.Load(os.Args[1:])

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cfg.Level(),
		TimeFormat: time.Kitchen,
	})))

	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(2)
	}

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logOpts []convo.LogOption
	if st := openStore(cfg.Store); st != nil {
		defer st.Close()
		logOpts = append(logOpts, convo.WithStore(st))
	}
	conv := convo.NewLog(logOpts...)
	conv.Restore(ctx)
	log.Debug("Loaded conversation", "turns", conv.Len())

	orc, err := newOracle(ctx, cfg.Oracle)
	if err != nil {
		log.Error("Failed to set up oracle", "provider", cfg.Oracle.Provider, "err", err)
		os.Exit(1)
	}

	d := &daemon{cfg: cfg}

	exec, hub, err := newExecutor(ctx, cfg.Executor, d.onHubMessage)
	if err != nil {
		log.Error("Failed to set up executor", "executor", cfg.Executor.Kind, "err", err)
		os.Exit(1)
	}
	if hub != nil {
		defer hub.Close()
	}

	speaker, closeSpeaker := newSpeaker()
	defer closeSpeaker()

	var notifier assistant.Notifier = quietNotifier{}
	if cfg.Notices {
		notifier = notify.NewDesktop()
	}

	d.asst = assistant.New(assistant.Options{
		Log:      conv,
		Executor: exec,
		Oracle:   orc,
		Speaker:  speaker,
		Notifier: notifier,
		Voice: assistant.Voice{
			Locale: cfg.Voice.Locale,
			Pitch:  cfg.Voice.Pitch,
			Rate:   cfg.Voice.Rate,
		},
		Active: cfg.Active,
	})
	defer d.asst.Close()
	if hub != nil {
		go hub.Run(ctx)
	}

	src, tr, closeCapture := newCapture(cfg.Capture)
	defer closeCapture()

	beeper := notify.NewBeeper(cfg.Capture.Beep)
	d.listener = capture.NewListener(src, tr, capture.Callbacks{
		OnStart: func() {
			notifier.Notice("Slušam...")
			if err := beeper.Beep(); err != nil {
				log.Debug("No listening cue", "err", err)
			}
		},
		OnResult: func(text string) {
			if _, err := d.asst.Handle(ctx, text); err != nil {
				log.Error("Failed to handle turn", "err", err)
			}
		},
		OnError: d.asst.CaptureFailed,
	})

	srv, err := ipc.Listen(cfg.Socket, d.control)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Error("Control socket stopped", "err", err)
		}
	}()

	log.Info("Boot up - successful", "socket", srv.Path(), "active", d.asst.Active())

	go d.repl(ctx, os.Stdin)

	<-ctx.Done()
	log.Info("Shutting down")

	// Must return before the deferred closeCapture frees recorder and whisper.
	d.listener.Close()

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.asst.Wait(waitCtx); err != nil {
		log.Warn("Dropping unanswered questions", "err", err)
	}
}

type quietNotifier struct{}

func (quietNotifier) Notice(text string) { log.Info("Notice", "text", text) }
