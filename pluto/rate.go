package pluto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/logging"
)

// Rate limits of the AD9361 baseband, in Hz.
const (
	MinSampleRate = 521000
	// LowRateLimit is the highest rate that needs the FIR to decimate enough
	// to reach the converter clock.
	LowRateLimit = 2083333
	// SafeSampleRate is the intermediate rate used while the FIR changes.
	SafeSampleRate = 3000000
)

// Filter is a FIR configuration derived from a sample rate.
type Filter struct {
	Decimation int
	Table      int
	Taps       []int16
}

// SelectFilter picks the decimation factor and FIR table for rate.
func SelectFilter(rate int64) Filter {
	var f Filter
	switch {
	case rate <= 20000000:
		f = Filter{Decimation: 4, Table: 1}
	case rate <= 40000000:
		f = Filter{Decimation: 2, Table: 2}
	case rate <= 53333333:
		f = Filter{Decimation: 2, Table: 3}
	default:
		f = Filter{Decimation: 2, Table: 4}
	}
	f.Taps = FIRTable(f.Table)
	return f
}

// Config renders the filter as the text accepted by filter_fir_config.
func (f Filter) Config() string {
	var b strings.Builder
	fmt.Fprintf(&b, "RX 3 GAIN -6 DEC %d\n", f.Decimation)
	fmt.Fprintf(&b, "TX 3 GAIN 0 INT %d\n", f.Decimation)
	for _, c := range f.Taps {
		fmt.Fprintf(&b, "%d,%d\n", c, c)
	}
	b.WriteString("\n")
	return b.String()
}

// ParseTXPathRates extracts the DAC and TX sample clocks from the
// tx_path_rates attribute, e.g.
// "BBPLL:983040000 DAC:122880000 T2:122880000 T1:61440000 TF:30720000 TXSAMP:30720000".
func ParseTXPathRates(s string) (dac, tx int64, err error) {
	fields := strings.Split(strings.TrimSpace(s), " ")
	if len(fields) < 6 {
		return 0, 0, fmt.Errorf("tx_path_rates %q: %w", s, iio.ErrParse)
	}
	value := func(field string) (int64, error) {
		_, v, ok := strings.Cut(field, ":")
		if !ok {
			return 0, fmt.Errorf("tx_path_rates field %q: %w", field, iio.ErrParse)
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("tx_path_rates field %q: %w", field, iio.ErrParse)
		}
		return n, nil
	}
	if dac, err = value(fields[1]); err != nil {
		return 0, 0, err
	}
	if tx, err = value(fields[5]); err != nil {
		return 0, 0, err
	}
	if tx == 0 {
		return 0, 0, fmt.Errorf("tx_path_rates %q: zero tx rate: %w", s, iio.ErrParse)
	}
	return dac, tx, nil
}

// rateControl is the attribute surface touched by a rate change.
type rateControl struct {
	dev   *iio.Device
	rate  *iio.Registry
	firEn *iio.Registry
	log   logging.Logger
}

func (p *Pluto) rateControl() (*rateControl, error) {
	ch, err := p.ctrl.FindChannel("voltage0", iio.Input)
	if err != nil {
		return nil, err
	}
	fir, err := p.ctrl.FindChannel("out", iio.Input)
	if err != nil {
		return nil, err
	}
	return &rateControl{dev: p.ctrl, rate: ch.Attrs(), firEn: fir.Attrs(), log: p.log}, nil
}

func (r *rateControl) setRate(hz int64) error {
	r.log.Debug("set sampling frequency", logging.F("hz", hz))
	return r.rate.SetInt("sampling_frequency", hz)
}

func (r *rateControl) setFIR(on bool) error {
	r.log.Debug("set fir enable", logging.F("enabled", on))
	if on {
		return r.firEn.SetInt("voltage_filter_fir_en", 1)
	}
	return r.firEn.SetInt("voltage_filter_fir_en", 0)
}

// SampleRate returns the baseband sample rate in Hz.
func (p *Pluto) SampleRate() (int64, error) {
	r, err := p.rateControl()
	if err != nil {
		return 0, err
	}
	return r.rate.Int("sampling_frequency")
}

// SetSampleRate changes the baseband rate, reloading the FIR filter for the
// new band. The sequence always passes through a rate the hardware accepts
// with the filter in either state. It stops at the first failed step.
func (p *Pluto) SetSampleRate(hz int64) error {
	if hz < MinSampleRate {
		return fmt.Errorf("sample rate %d below %d: %w", hz, MinSampleRate, iio.ErrState)
	}
	f := SelectFilter(hz)
	r, err := p.rateControl()
	if err != nil {
		return err
	}

	current, err := r.rate.Int("sampling_frequency")
	if err != nil {
		return err
	}
	firOn, err := r.firEn.Int("voltage_filter_fir_en")
	if err != nil {
		return err
	}
	p.log.Info("changing sample rate",
		logging.F("from", current), logging.F("to", hz),
		logging.F("decimation", f.Decimation), logging.F("table", f.Table))

	if firOn != 0 {
		if current <= LowRateLimit {
			if err := r.setRate(SafeSampleRate); err != nil {
				return err
			}
		}
		if err := r.setFIR(false); err != nil {
			return err
		}
	}

	if err := r.dev.Attrs().Set("filter_fir_config", f.Config()); err != nil {
		return err
	}

	if hz > LowRateLimit {
		if err := r.setRate(hz); err != nil {
			return err
		}
		return r.setFIR(true)
	}

	paths, err := r.dev.Attrs().Get("tx_path_rates")
	if err != nil {
		return err
	}
	dac, tx, err := ParseTXPathRates(paths)
	if err != nil {
		return err
	}
	if maxTaps := (dac / tx) * 16; maxTaps < int64(len(f.Taps)) {
		if err := r.setRate(SafeSampleRate); err != nil {
			return err
		}
	}
	if err := r.setFIR(true); err != nil {
		return err
	}
	return r.setRate(hz)
}
