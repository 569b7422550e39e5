package notify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

const DefaultBeepFile = "beep.mp3"

// Beeper plays a short cue when the assistant starts listening.
type Beeper struct {
	path string

	mu   sync.Mutex
	rate beep.SampleRate // speaker rate once initialized
}

func NewBeeper(path string) *Beeper {
	if path == "" {
		path = DefaultBeepFile
	}
	return &Beeper{path: path}
}

// Beep blocks until the cue has finished playing.
func (b *Beeper) Beep() error {
	f, err := os.Open(b.path)
	if err != nil {
		return fmt.Errorf("open beep: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode beep: %w", err)
	}
	defer streamer.Close()

	if err := b.init(format.SampleRate); err != nil {
		return err
	}

	var s beep.Streamer = streamer
	if format.SampleRate != b.rate {
		s = beep.Resample(4, format.SampleRate, b.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}

func (b *Beeper) init(rate beep.SampleRate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rate != 0 {
		return nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	b.rate = rate
	return nil
}
