package codec

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/parcel/internal/parceltype"
)

// Attempt is the outcome of one codec in Smallest.
type Attempt struct {
	Name string

	// Cost is the encoded size plus the dictionary size for codecs that
	// require the dictionary to ship alongside the output.
	Cost int

	Err error
}

// Result is the winning encoding.
type Result struct {
	Codec    Codec
	Data     []byte
	Cost     int
	Attempts []Attempt
}

// Smallest encodes src with every codec in table concurrently and returns
// the cheapest output. Dictionary codecs are skipped when dict is empty.
// On equal cost the earlier table entry wins. Failing codecs are recorded
// in Attempts and skipped; if none succeeds the error wraps ErrNoCodec.
func Smallest(ctx context.Context, table []Codec, src, dict []byte) (*Result, error) {
	outputs := make([][]byte, len(table))
	attempts := make([]Attempt, len(table))

	var g errgroup.Group
	for i, c := range table {
		attempts[i].Name = c.Name()
		if c.NeedsDict() && len(dict) == 0 {
			attempts[i].Err = errSkipped
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				attempts[i].Err = err
				return nil
			}
			out, err := c.Encode(src, dict)
			if err != nil {
				attempts[i].Err = err
				return nil
			}
			outputs[i] = out
			attempts[i].Cost = len(out)
			if c.NeedsDict() {
				attempts[i].Cost += len(dict)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines record errors in attempts
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := -1
	for i := range table {
		if attempts[i].Err != nil {
			continue
		}
		if best < 0 || attempts[i].Cost < attempts[best].Cost {
			best = i
		}
	}
	if best < 0 {
		var errs []error
		for _, a := range attempts {
			if a.Err != nil && !errors.Is(a.Err, errSkipped) {
				errs = append(errs, fmt.Errorf("%s: %w", a.Name, a.Err))
			}
		}
		if len(errs) == 0 {
			return nil, parceltype.ErrNoCodec
		}
		return nil, fmt.Errorf("%w: %w", parceltype.ErrNoCodec, errors.Join(errs...))
	}

	return &Result{
		Codec:    table[best],
		Data:     outputs[best],
		Cost:     attempts[best].Cost,
		Attempts: attempts,
	}, nil
}

// DecodeAny tries each codec in table order and returns the first output
// accepted by accept. Dictionary codecs are skipped when dict is empty.
func DecodeAny(table []Codec, src, dict []byte, limit uint64, accept func([]byte) bool) (Codec, []byte, error) {
	for _, c := range table {
		if c.NeedsDict() && len(dict) == 0 {
			continue
		}
		out, err := c.Decode(src, dict, limit)
		if err != nil {
			continue
		}
		if accept != nil && !accept(out) {
			continue
		}
		return c, out, nil
	}
	return nil, nil, fmt.Errorf("%w: no codec could decode the payload", parceltype.ErrCorruptPayload)
}

var errSkipped = errors.New("skipped: no dictionary")
