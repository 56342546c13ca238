// Package dict trains shared zstd dictionaries from file samples.
package dict

import (
	"errors"
	"fmt"

	kdict "github.com/klauspost/compress/dict"
	"github.com/klauspost/compress/zstd"
)

// DefaultMaxSize is the largest dictionary trained by default.
const DefaultMaxSize = 1 << 20

// ErrNoSamples is returned when fewer than two samples are available.
var ErrNoSamples = errors.New("parcel: not enough dictionary samples")

// Trainer builds a dictionary from samples. Implementations return an error
// rather than an empty dictionary when training yields nothing.
type Trainer interface {
	Train(samples [][]byte) ([]byte, error)
}

// TrainerFunc adapts a function to a Trainer.
type TrainerFunc func(samples [][]byte) ([]byte, error)

// Train calls f(samples).
func (f TrainerFunc) Train(samples [][]byte) ([]byte, error) { return f(samples) }

// Zstd trains with the klauspost dictionary builder.
type Zstd struct {
	// MaxSize bounds the dictionary in bytes.
	MaxSize int
}

// Train implements Trainer.
func (z Zstd) Train(samples [][]byte) ([]byte, error) {
	if z.MaxSize <= 0 {
		return nil, fmt.Errorf("invalid dictionary size %d", z.MaxSize)
	}
	d, err := kdict.BuildZstdDict(samples, kdict.Options{
		MaxDictSize: z.MaxSize,
		HashBytes:   6,
		ZstdDictID:  0,
		ZstdLevel:   zstd.SpeedBestCompression,
	})
	if err != nil {
		return nil, err
	}
	if len(d) == 0 {
		return nil, errors.New("empty dictionary")
	}
	if len(d) > z.MaxSize {
		return nil, fmt.Errorf("dictionary of %d bytes exceeds %d", len(d), z.MaxSize)
	}
	return d, nil
}

// Strategies returns the default ordered training strategies for maxSize:
// the full size first, then a quarter of it.
func Strategies(maxSize int) []Trainer {
	list := []Trainer{Zstd{MaxSize: maxSize}}
	if quarter := maxSize / 4; quarter > 0 {
		list = append(list, Zstd{MaxSize: quarter})
	}
	return list
}

// Train runs each strategy in order and returns the first dictionary
// produced. A panic inside a strategy counts as its failure. When every
// strategy fails the errors are joined.
func Train(strategies []Trainer, samples [][]byte) ([]byte, error) {
	if len(samples) < 2 {
		return nil, ErrNoSamples
	}
	var errs []error
	for i, s := range strategies {
		d, err := safeTrain(s, samples)
		if err == nil {
			return d, nil
		}
		errs = append(errs, fmt.Errorf("strategy %d: %w", i, err))
	}
	if len(errs) == 0 {
		return nil, errors.New("no dictionary strategies configured")
	}
	return nil, errors.Join(errs...)
}

func safeTrain(s Trainer, samples [][]byte) (d []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("dictionary training panicked: %v", r)
		}
	}()
	d, err = s.Train(samples)
	if err == nil && len(d) == 0 {
		err = errors.New("empty dictionary")
	}
	return d, err
}
