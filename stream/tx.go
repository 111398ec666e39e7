package stream

import (
	"fmt"
	"os"

	"github.com/rjboer/GoPluto/codec"
	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/logging"
)

// DefaultOutputFile receives packed samples when file output is enabled.
const DefaultOutputFile = "out.bin"

// ToneControl switches off the DDS tone generators of a TX device.
type ToneControl interface {
	DisableDDS() error
}

// TX writes blocks of samples to a DAC device.
type TX struct {
	pipeline

	tones      ToneControl
	format     *iio.DataFormat
	pushToFile bool
	outputFile string
}

// TXOption configures a TX pipeline.
type TXOption func(*TX)

// WithToneControl disables tone generation before the first buffer is built.
func WithToneControl(t ToneControl) TXOption {
	return func(tx *TX) { tx.tones = t }
}

// WithFileOutput writes packed samples to path instead of pushing them.
func WithFileOutput(path string) TXOption {
	return func(tx *TX) {
		tx.pushToFile = true
		if path != "" {
			tx.outputFile = path
		}
	}
}

// NewTX builds a transmit pipeline over dev.
func NewTX(dev *iio.Device, cfg Config, log logging.Logger, opts ...TXOption) *TX {
	tx := &TX{pipeline: newPipeline(dev, iio.Output, cfg, log), outputFile: DefaultOutputFile}
	for _, o := range opts {
		o(tx)
	}
	return tx
}

// SetFileOutput switches between pushing to hardware and writing to path.
func (t *TX) SetFileOutput(enabled bool, path string) {
	t.pushToFile = enabled
	if path != "" {
		t.outputFile = path
	}
}

// Mute writes zero to the raw attribute of every output channel of the
// device.
func (t *TX) Mute() error {
	if t.dev == nil {
		return fmt.Errorf("data device: %w", iio.ErrNotFound)
	}
	found := false
	for _, ch := range t.dev.Channels() {
		if !ch.IsOutput() || !ch.Attrs().Has("raw") {
			continue
		}
		found = true
		if err := ch.Attrs().SetInt("raw", 0); err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("%s: output channel with raw attribute: %w", t.dev.Name(), iio.ErrNotFound)
	}
	t.log.Debug("tx muted")
	return nil
}

// sampleFormat returns the format of the first enabled channel, resolved
// once.
func (t *TX) sampleFormat(chans []*iio.Channel) (iio.DataFormat, error) {
	if t.format != nil {
		return *t.format, nil
	}
	if len(chans) == 0 {
		return iio.DataFormat{}, fmt.Errorf("no enabled tx channels: %w", iio.ErrNotFound)
	}
	f := chans[0].Format()
	if f.Length != 16 {
		return f, fmt.Errorf("%s: %d-bit tx samples: %w", chans[0], f.Length, codec.ErrUnsupportedWidth)
	}
	t.format = &f
	return f, nil
}

// Transmit sends one block per enabled logical channel. With no channels
// enabled and no samples it mutes the device instead.
func (t *TX) Transmit(samples [][]complex64) error {
	if len(t.enabled) == 0 && samples == nil {
		return t.Mute()
	}
	if len(samples) != len(t.enabled) {
		return fmt.Errorf("%d sample blocks for %d enabled channels: %w", len(samples), len(t.enabled), iio.ErrState)
	}
	if t.buf != nil && t.cyclic {
		return fmt.Errorf("cyclic buffer already running, destroy it first: %w", iio.ErrState)
	}
	chans, err := t.channels()
	if err != nil {
		return err
	}
	if _, err := t.sampleFormat(chans); err != nil {
		return err
	}

	var data []byte
	if t.complex {
		data, err = codec.PackComplexTX(samples)
	} else {
		data, err = codec.PackRealTX(samples)
	}
	if err != nil {
		return err
	}

	if t.buf == nil {
		if t.tones != nil {
			if err := t.tones.DisableDDS(); err != nil {
				return err
			}
		}
		t.size = len(data) / (2 * len(chans))
		if err := t.InitChannels(); err != nil {
			return err
		}
	}
	if len(data) != t.buf.Len() {
		return fmt.Errorf("%d bytes for a %d byte buffer of %d samples: %w", len(data), t.buf.Len(), t.size, iio.ErrState)
	}

	if t.pushToFile {
		if err := os.WriteFile(t.outputFile, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", t.outputFile, err)
		}
		t.log.Debug("tx written to file", logging.F("path", t.outputFile), logging.F("bytes", len(data)))
		return nil
	}

	t.buf.Write(data)
	if err := t.buf.Push(); err != nil {
		t.DestroyBuffer()
		return err
	}
	t.setState(Streaming)
	return nil
}
