package audioconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

func decodeWAV(r io.ReadSeeker) (raw, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return raw{}, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return raw{}, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return raw{}, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}

	out := raw{
		Samples:    intsToFloat(buf.Data, depth),
		SampleRate: 44100,
		Channels:   1,
	}
	if buf.Format != nil {
		if buf.Format.SampleRate > 0 {
			out.SampleRate = buf.Format.SampleRate
		}
		if buf.Format.NumChannels > 0 {
			out.Channels = buf.Format.NumChannels
		}
	}
	return out, nil
}

// go-mp3 always yields 16-bit little endian stereo.
func decodeMP3(r io.ReadSeeker) (raw, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return raw{}, err
	}

	var pcm bytes.Buffer
	if _, err := io.Copy(&pcm, dec); err != nil {
		return raw{}, err
	}
	ints := make([]int16, pcm.Len()/2)
	if err := binary.Read(&pcm, binary.LittleEndian, ints); err != nil {
		return raw{}, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return raw{Samples: int16sToFloat(ints), SampleRate: sr, Channels: 2}, nil
}

func decodeVorbis(r io.ReadSeeker) (raw, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return raw{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return raw{}, errors.New("invalid ogg/vorbis stream")
	}
	return raw{Samples: pcm, SampleRate: format.SampleRate, Channels: format.Channels}, nil
}
