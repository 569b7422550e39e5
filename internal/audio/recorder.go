package audio

import (
	"errors"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate = 16000
	frameSize  = 320 // 20ms
)

var ErrNoSpeech = errors.New("no speech recorded")

type RecorderConfig struct {
	// SilenceRMS is the frame energy below which a frame counts as silence.
	SilenceRMS float64
	// Silence after speech that ends the recording.
	Silence time.Duration
	MaxLength time.Duration
}

var DefaultRecorderConfig = RecorderConfig{
	SilenceRMS: 0.015,
	Silence:    600 * time.Millisecond,
	MaxLength:  10 * time.Second,
}

// Recorder captures mono 16 kHz audio from the default input device.
type Recorder struct {
	cfg RecorderConfig
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.SilenceRMS <= 0 {
		cfg.SilenceRMS = DefaultRecorderConfig.SilenceRMS
	}
	if cfg.Silence <= 0 {
		cfg.Silence = DefaultRecorderConfig.Silence
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultRecorderConfig.MaxLength
	}
	return &Recorder{cfg: cfg}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// Record returns once the speaker goes quiet, stop is closed, or the
// maximum length is reached. Leading silence is dropped.
func (r *Recorder) Record(stop <-chan struct{}) ([]float32, error) {
	buf := make([]float32, frameSize)
	out := make([]float32, 0, sampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	var (
		speaking      bool
		silentFrames  int
		maxFrames     = int(r.cfg.MaxLength.Seconds() * sampleRate / frameSize)
		silenceFrames = int(r.cfg.Silence / (20 * time.Millisecond))
	)

	for i := 0; i < maxFrames; i++ {
		select {
		case <-stop:
			return finish(out)
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		if frameRMS(buf) > r.cfg.SilenceRMS {
			speaking = true
			silentFrames = 0
			out = append(out, buf...)
			continue
		}
		if speaking {
			silentFrames++
			out = append(out, buf...)
			if silentFrames >= silenceFrames {
				break
			}
		}
	}

	return finish(out)
}

func finish(out []float32) ([]float32, error) {
	if len(out) == 0 {
		return nil, ErrNoSpeech
	}
	return out, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
