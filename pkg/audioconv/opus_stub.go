//go:build !opus

package audioconv

import (
	"errors"
	"io"
)

func decodeOpus(io.ReadSeeker) (raw, error) {
	return raw{}, errors.New("opus support not built in (build with -tags opus)")
}
