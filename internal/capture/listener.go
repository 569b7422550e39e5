// Package capture turns speech into text turns. A Listener records one
// utterance per Start, transcribes it, and reports through callbacks.
package capture

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"

	"djuka/pkg/audioconv"
)

var (
	ErrListening    = errors.New("already listening")
	ErrNotListening = errors.New("not listening")
	ErrUnavailable  = errors.New("speech recognition unavailable")
	ErrNothingHeard = errors.New("nothing recognized")
	ErrClosed       = errors.New("listener closed")
)

// Source records mono 16 kHz audio until the speaker stops or stop closes.
type Source interface {
	Record(stop <-chan struct{}) ([]float32, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32, lang string) (string, error)
}

type Callbacks struct {
	OnStart  func()
	OnResult func(text string)
	OnError  func(err error)
}

type Listener struct {
	src Source
	tr  Transcriber
	cb  Callbacks

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	closed bool
	files  sync.WaitGroup // TranscribeFile calls in flight
}

func NewListener(src Source, tr Transcriber, cb Callbacks) *Listener {
	return &Listener{src: src, tr: tr, cb: cb}
}

// Start begins recording in the background. It fails straight away when no
// recognizer is configured or a capture is already running.
func (l *Listener) Start(locale string) error {
	if l.src == nil || l.tr == nil {
		return ErrUnavailable
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.stop != nil {
		return ErrListening
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	l.stop, l.done = stop, done

	go func() {
		defer close(done)
		defer l.clear(stop)
		l.run(stop, Language(locale))
	}()
	return nil
}

func (l *Listener) run(stop chan struct{}, lang string) {
	if l.cb.OnStart != nil {
		l.cb.OnStart()
	}

	pcm, err := l.src.Record(stop)
	if err != nil {
		l.fail(fmt.Errorf("record: %w", err))
		return
	}
	log.Info("Recorded", "samples", len(pcm))

	l.deliver(context.Background(), pcm, lang)
}

func (l *Listener) deliver(ctx context.Context, pcm []float32, lang string) {
	text, err := l.tr.Transcribe(ctx, pcm, lang)
	if err != nil {
		l.fail(fmt.Errorf("transcribe: %w", err))
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		l.fail(ErrNothingHeard)
		return
	}

	log.Info("Transcribed", "text", text)
	if l.cb.OnResult != nil {
		l.cb.OnResult(text)
	}
}

func (l *Listener) fail(err error) {
	if l.cb.OnError != nil {
		l.cb.OnError(err)
		return
	}
	log.Error("Capture failed", "err", err)
}

func (l *Listener) clear(stop chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop == stop {
		l.stop, l.done = nil, nil
	}
}

// Stop ends the current recording early. What was heard so far is still
// transcribed.
func (l *Listener) Stop() error {
	l.mu.Lock()
	stop, done := l.stop, l.done
	if stop == nil {
		l.mu.Unlock()
		return ErrNotListening
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	l.mu.Unlock()

	<-done
	return nil
}

// Close ends any recording, waits for pending transcriptions and refuses
// new ones. The recorder and transcriber can be released once it returns.
func (l *Listener) Close() {
	l.mu.Lock()
	l.closed = true
	stop, done := l.stop, l.done
	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
	l.mu.Unlock()

	if done != nil {
		<-done
	}
	l.files.Wait()
}

func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stop != nil
}

// TranscribeFile feeds a recorded voice note through the same path as live
// capture, synchronously.
func (l *Listener) TranscribeFile(ctx context.Context, path, locale string) error {
	if l.tr == nil {
		return ErrUnavailable
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.files.Add(1)
	l.mu.Unlock()
	defer l.files.Done()

	pcm, err := audioconv.FileToPCM16k(ctx, path, audioconv.Options{})
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	l.deliver(ctx, pcm, Language(locale))
	return nil
}

// Language maps a locale such as "sr-RS" to a whisper language code.
func Language(locale string) string {
	lang, _, _ := strings.Cut(strings.TrimSpace(locale), "-")
	if lang == "" {
		return "auto"
	}
	return strings.ToLower(lang)
}
