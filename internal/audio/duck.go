package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id       int
	from, to int
}

// Mixer is the slice of pactl the Ducker needs.
type Mixer interface {
	SinkInputs(ctx context.Context) (string, error)
	SetVolume(ctx context.Context, id, percent int) error
}

type Pactl struct{}

func (Pactl) SinkInputs(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return "", fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return string(out), nil
}

func (Pactl) SetVolume(ctx context.Context, id, percent int) error {
	arg := fmt.Sprintf("%d%%", clamp(percent, 0, maxVolume))
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run()
}

// Ducker lowers every playback stream except our own while the microphone is
// open, and restores them afterwards.
type Ducker struct {
	mixer  Mixer
	self   []string // application.name values left alone
	floor  int
	factor float64
	fade   time.Duration

	mu       sync.Mutex
	ducked   bool
	original map[int]int
}

func NewDucker(mixer Mixer, self []string, factor float64, floor int) *Ducker {
	return &Ducker{
		mixer:    mixer,
		self:     append([]string(nil), self...),
		floor:    clamp(floor, 0, maxVolume),
		factor:   factor,
		fade:     150 * time.Millisecond,
		original: make(map[int]int),
	}
}

func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ducked {
		return nil
	}

	inputs, err := d.others(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int, len(inputs))
	var fades []fade
	for _, s := range inputs {
		to := max(int(math.Round(float64(s.Volume)*d.factor)), d.floor)
		d.original[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: clamp(to, 0, maxVolume)})
	}

	d.ducked = true
	return d.apply(ctx, fades)
}

// Restore fades ducked streams back. Streams that appeared after Duck are
// not touched.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ducked {
		return nil
	}

	inputs, err := d.others(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, s := range inputs {
		if orig, ok := d.original[s.ID]; ok {
			fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
		}
	}

	d.ducked = false
	d.original = make(map[int]int)
	return d.apply(ctx, fades)
}

func (d *Ducker) others(ctx context.Context) ([]sinkInput, error) {
	out, err := d.mixer.SinkInputs(ctx)
	if err != nil {
		return nil, err
	}
	var res []sinkInput
	for _, s := range parseSinkInputs(out) {
		if !d.isSelf(s) {
			res = append(res, s)
		}
	}
	return res, nil
}

func (d *Ducker) isSelf(s sinkInput) bool {
	for _, name := range d.self {
		if s.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) apply(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	steps := max(int(d.fade/(10*time.Millisecond)), 1)
	step := d.fade / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*t))
			if err := d.mixer.SetVolume(ctx, f.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", f.id, err)
			}
		}
		if i < steps {
			time.Sleep(step)
		}
	}
	return nil
}

// parseSinkInputs reads `pactl list sink-inputs` output.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	var res []sinkInput

	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		s := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Volume:") && s.Volume == 0:
				if m := percentRe.FindStringSubmatch(line); m != nil {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			case strings.HasPrefix(line, "application.name =") && s.AppName == "":
				_, v, _ := strings.Cut(line, "=")
				s.AppName = strings.Trim(strings.TrimSpace(v), `"`)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
