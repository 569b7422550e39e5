package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
djuka_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0 ? -1 : 0;
}

static int
djuka_say(const char *text, const char *lang, int rate, int pitch)
{
	if (!text || !lang)
	{ return -1; }

	espeak_VOICE specs = { 0 };
	specs.languages = lang;
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ return -2; }

	espeak_SetParameter(espeakRATE, rate, 0);
	espeak_SetParameter(espeakPITCH, pitch, 0);

	if (espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -3; }

	espeak_Synchronize();
	return 0;
}
*/
import "C"

import (
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"unsafe"
)

const (
	baseRate  = 175 // espeak words per minute
	basePitch = 50  // espeak 0..100
)

var ErrBusy = errors.New("speech queue full")

type Voice struct {
	Locale string
	Pitch  float64
	Rate   float64
}

type utterance struct {
	text  string
	voice Voice
}

// Espeak speaks through espeak-ng on a single background goroutine; Speak
// only queues.
type Espeak struct {
	queue chan utterance
	done  chan struct{}
	once  sync.Once
}

func NewEspeak() (*Espeak, error) {
	if rc := C.djuka_init(); rc != 0 {
		return nil, fmt.Errorf("espeak init failed: %d", int(rc))
	}

	e := &Espeak{
		queue: make(chan utterance, 16),
		done:  make(chan struct{}),
	}
	go e.loop()
	return e, nil
}

func (e *Espeak) Speak(text string, v Voice) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	select {
	case e.queue <- utterance{text: text, voice: v}:
		return nil
	default:
		return ErrBusy
	}
}

func (e *Espeak) loop() {
	defer close(e.done)
	for u := range e.queue {
		if err := say(u.text, u.voice); err != nil {
			log.Warn("Failed to voice out", "err", err)
		}
	}
}

func (e *Espeak) Close() {
	e.once.Do(func() {
		close(e.queue)
		<-e.done
		C.espeak_Terminate()
	})
}

func say(text string, v Voice) error {
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(Language(v.Locale))
	defer C.free(unsafe.Pointer(clang))

	pitch := min(scale(basePitch, v.Pitch), 100)
	rc := C.djuka_say(ctext, clang, C.int(scale(baseRate, v.Rate)), C.int(pitch))
	if rc != 0 {
		return fmt.Errorf("espeak say failed: %d", int(rc))
	}
	return nil
}
