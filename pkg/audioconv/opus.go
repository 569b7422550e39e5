//go:build opus

package audioconv

import (
	"io"

	popus "github.com/pekim/opus"
)

// decodeOpus needs libopus and libopusfile, hence the build tag.
func decodeOpus(r io.ReadSeeker) (raw, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return raw{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		out []float32
		buf = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, int16sToFloat(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw{}, err
		}
	}

	return raw{Samples: out, SampleRate: 48000, Channels: ch}, nil
}
