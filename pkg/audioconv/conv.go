// Package audioconv turns recorded voice notes into the mono 16 kHz float32
// PCM the transcriber expects.
package audioconv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const SampleRate = 16000

var ErrUnsupported = errors.New("unsupported audio format")

type Options struct {
	// MaxSamples truncates the result; 0 keeps everything.
	MaxSamples int
}

// raw is decoder output before downmixing and resampling. Samples are
// interleaved when Channels > 1.
type raw struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

type decoder func(io.ReadSeeker) (raw, error)

var byExt = map[string][]decoder{
	".wav":  {decodeWAV},
	".mp3":  {decodeMP3},
	".ogg":  {decodeVorbis, decodeOpus},
	".oga":  {decodeVorbis, decodeOpus},
	".opus": {decodeOpus},
}

var byMagic = map[string][]decoder{
	"RIFF":    {decodeWAV},
	"OggS":    {decodeVorbis, decodeOpus},
	"ID3\x03": {decodeMP3},
	"ID3\x04": {decodeMP3},
}

// FileToPCM16k decodes wav, mp3 or ogg (vorbis, and opus when built with
// -tags opus). Unknown extensions are sniffed by magic bytes.
func FileToPCM16k(_ context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoders, ok := byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		magic, _ := bufio.NewReader(f).Peek(4)
		decoders, ok = byMagic[string(magic)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
		}
	}

	return decode(f, decoders, opt)
}

// ToPCM16k is FileToPCM16k for data already in memory.
func ToPCM16k(r io.ReadSeeker, opt Options) ([]float32, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	decoders, ok := byMagic[string(magic)]
	if !ok {
		return nil, ErrUnsupported
	}
	return decode(r, decoders, opt)
}

func decode(r io.ReadSeeker, decoders []decoder, opt Options) ([]float32, error) {
	var errs []error
	for _, dec := range decoders {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		out, err := dec(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return normalize(out, opt), nil
	}
	return nil, fmt.Errorf("decode: %w", errors.Join(errs...))
}

func normalize(in raw, opt Options) []float32 {
	x := downmix(in.Samples, in.Channels)
	x = resample(x, in.SampleRate, SampleRate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}
