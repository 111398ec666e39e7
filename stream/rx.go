package stream

import (
	"fmt"

	"github.com/rjboer/GoPluto/codec"
	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/logging"
)

// RX reads blocks of samples from an ADC device.
type RX struct {
	pipeline
}

// NewRX builds a receive pipeline over dev. The buffer is created on first
// use.
func NewRX(dev *iio.Device, cfg Config, log logging.Logger) *RX {
	return &RX{pipeline: newPipeline(dev, iio.Input, cfg, log)}
}

// BufferedData refills the buffer and returns one decoded run per enabled
// physical channel, in enabled order.
func (r *RX) BufferedData() ([][]int64, error) {
	chans, err := r.channels()
	if err != nil {
		return nil, err
	}
	if r.complex && len(chans)%2 != 0 {
		return nil, fmt.Errorf("%d channels cannot form I/Q pairs: %w", len(chans), iio.ErrState)
	}
	if r.buf == nil {
		if err := r.InitChannels(); err != nil {
			return nil, err
		}
	}
	if err := r.buf.Refill(); err != nil {
		r.DestroyBuffer()
		return nil, err
	}
	r.setState(Streaming)

	out := make([][]int64, 0, len(chans))
	for _, ch := range chans {
		raw, err := r.buf.ChannelBytes(ch)
		if err != nil {
			return nil, err
		}
		vals, err := codec.DecodeAll(raw, ch.Format())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ch, err)
		}
		out = append(out, vals)
	}
	return out, nil
}

// Complex returns one I/Q sequence per enabled logical channel.
func (r *RX) Complex() ([][]complex64, error) {
	runs, err := r.BufferedData()
	if err != nil {
		return nil, err
	}
	if len(runs)%2 != 0 {
		return nil, fmt.Errorf("%d runs cannot form I/Q pairs: %w", len(runs), iio.ErrState)
	}
	out := make([][]complex64, 0, len(runs)/2)
	for i := 0; i < len(runs); i += 2 {
		iq, err := codec.Zip(runs[i], runs[i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, iq)
	}
	return out, nil
}

// NonComplex returns every enabled physical channel as real samples.
func (r *RX) NonComplex() ([][]float32, error) {
	runs, err := r.BufferedData()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(runs))
	for i, run := range runs {
		out[i] = make([]float32, len(run))
		for j, v := range run {
			out[i][j] = float32(v)
		}
	}
	return out, nil
}

// Receive returns complex samples in complex mode and real samples with a
// zero imaginary part otherwise.
func (r *RX) Receive() ([][]complex64, error) {
	if r.complex {
		return r.Complex()
	}
	runs, err := r.NonComplex()
	if err != nil {
		return nil, err
	}
	out := make([][]complex64, len(runs))
	for i, run := range runs {
		out[i] = make([]complex64, len(run))
		for j, v := range run {
			out[i][j] = complex(v, 0)
		}
	}
	return out, nil
}

// Unbuffered is not supported by this driver.
func (r *RX) Unbuffered() ([][]float32, error) {
	return nil, fmt.Errorf("unbuffered rx: %w", iio.ErrNotImplemented)
}

// Scales is not supported by this driver.
func (r *RX) Scales() ([]float64, error) {
	return nil, fmt.Errorf("rx channel scales: %w", iio.ErrNotImplemented)
}

// Offsets is not supported by this driver.
func (r *RX) Offsets() ([]float64, error) {
	return nil, fmt.Errorf("rx channel offsets: %w", iio.ErrNotImplemented)
}

// Annotate is not supported by this driver.
func (r *RX) Annotate(map[string][]float32) error {
	return fmt.Errorf("rx annotation: %w", iio.ErrNotImplemented)
}
