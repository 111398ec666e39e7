package pluto

import (
	"fmt"

	"github.com/rjboer/GoPluto/iio"
)

// DDS drives the tone generators of the TX device, exposed as output
// channels altvoltage0..N.
type DDS struct {
	dev   *iio.Device
	cores int
}

// NewDDS returns a DDS controller for the first cores tone channels of dev.
func NewDDS(dev *iio.Device, cores int) *DDS {
	return &DDS{dev: dev, cores: cores}
}

// Update writes values[i] to attr of altvoltage<i>. It stops quietly at the
// first missing channel or when values run out.
func (d *DDS) Update(attr string, values []string) error {
	for i := range d.dev.Channels() {
		if i >= len(values) {
			return nil
		}
		ch, err := d.dev.FindChannel(fmt.Sprintf("altvoltage%d", i), iio.Output)
		if err != nil {
			return nil
		}
		if err := ch.Attrs().Set(attr, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// SetEnabled switches individual tone generators.
func (d *DDS) SetEnabled(enabled []bool) error {
	values := make([]string, len(enabled))
	for i, on := range enabled {
		values[i] = "0"
		if on {
			values[i] = "1"
		}
	}
	return d.Update("raw", values)
}

// DisableDDS switches every tone generator off.
func (d *DDS) DisableDDS() error {
	return d.SetEnabled(make([]bool, d.cores))
}

// SingleTone is not supported by this driver.
func (d *DDS) SingleTone(frequency int64, scale float64, channel int) error {
	return fmt.Errorf("dds single tone: %w", iio.ErrNotImplemented)
}

// DualTone is not supported by this driver.
func (d *DDS) DualTone(f1 int64, s1 float64, f2 int64, s2 float64, channel int) error {
	return fmt.Errorf("dds dual tone: %w", iio.ErrNotImplemented)
}

// Frequencies is not supported by this driver.
func (d *DDS) Frequencies() ([]int64, error) {
	return nil, fmt.Errorf("dds frequencies: %w", iio.ErrNotImplemented)
}

// Scales is not supported by this driver.
func (d *DDS) Scales() ([]float64, error) {
	return nil, fmt.Errorf("dds scales: %w", iio.ErrNotImplemented)
}

// Phases is not supported by this driver.
func (d *DDS) Phases() ([]int64, error) {
	return nil, fmt.Errorf("dds phases: %w", iio.ErrNotImplemented)
}
