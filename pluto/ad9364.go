package pluto

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rjboer/GoPluto/iio"
)

// Loopback selects the AD9361 BIST loopback path.
type Loopback int

const (
	LoopbackDisabled Loopback = iota
	LoopbackDigital
	LoopbackRF
)

func (l Loopback) String() string {
	switch l {
	case LoopbackDisabled:
		return "disabled"
	case LoopbackDigital:
		return "digital"
	case LoopbackRF:
		return "rf"
	default:
		return "unknown"
	}
}

// ParseLoopback accepts the names returned by Loopback.String.
func ParseLoopback(s string) (Loopback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "0":
		return LoopbackDisabled, nil
	case "digital", "1":
		return LoopbackDigital, nil
	case "rf", "2":
		return LoopbackRF, nil
	default:
		return 0, fmt.Errorf("loopback %q: %w", s, iio.ErrParse)
	}
}

func (p *Pluto) ctrlChannel(channel string, output bool) (*iio.Registry, error) {
	return p.channelAttrs(p.ctrl, channel, output)
}

// GainControlMode returns the RX AGC mode, e.g. "slow_attack" or "manual".
func (p *Pluto) GainControlMode() (string, error) {
	r, err := p.ctrlChannel("voltage0", iio.Input)
	if err != nil {
		return "", err
	}
	v, err := r.Get("gain_control_mode")
	return strings.TrimSpace(v), err
}

func (p *Pluto) SetGainControlMode(mode string) error {
	r, err := p.ctrlChannel("voltage0", iio.Input)
	if err != nil {
		return err
	}
	return r.Set("gain_control_mode", mode)
}

func (p *Pluto) hardwareGain(output bool) (float64, error) {
	r, err := p.ctrlChannel("voltage0", output)
	if err != nil {
		return 0, err
	}
	// TX attenuation reads as a negative number; the lenient float parser
	// only sees the magnitude.
	v, err := r.Get("hardwaregain")
	if err != nil {
		return 0, err
	}
	neg := strings.HasPrefix(strings.TrimSpace(v), "-")
	g, err := iio.ParseFloat(strings.TrimPrefix(strings.TrimSpace(v), "-"))
	if err != nil {
		return 0, fmt.Errorf("hardwaregain: %w", err)
	}
	if neg {
		g = -g
	}
	return g, nil
}

func (p *Pluto) setHardwareGain(output bool, db float64) error {
	r, err := p.ctrlChannel("voltage0", output)
	if err != nil {
		return err
	}
	return r.SetFloat("hardwaregain", db)
}

// RXHardwareGain is the RX gain of channel 0 in dB.
func (p *Pluto) RXHardwareGain() (float64, error)   { return p.hardwareGain(iio.Input) }
func (p *Pluto) SetRXHardwareGain(db float64) error { return p.setHardwareGain(iio.Input, db) }

// TXHardwareGain is the TX attenuation of channel 0 in dB, zero or negative.
func (p *Pluto) TXHardwareGain() (float64, error)   { return p.hardwareGain(iio.Output) }
func (p *Pluto) SetTXHardwareGain(db float64) error { return p.setHardwareGain(iio.Output, db) }

func (p *Pluto) intAttr(channel string, output bool, attr string) (int64, error) {
	r, err := p.ctrlChannel(channel, output)
	if err != nil {
		return 0, err
	}
	return r.Int(attr)
}

func (p *Pluto) setIntAttr(channel string, output bool, attr string, v int64) error {
	r, err := p.ctrlChannel(channel, output)
	if err != nil {
		return err
	}
	return r.SetInt(attr, v)
}

func (p *Pluto) RXRFBandwidth() (int64, error) { return p.intAttr("voltage0", iio.Input, "rf_bandwidth") }
func (p *Pluto) SetRXRFBandwidth(hz int64) error {
	return p.setIntAttr("voltage0", iio.Input, "rf_bandwidth", hz)
}

func (p *Pluto) TXRFBandwidth() (int64, error) { return p.intAttr("voltage0", iio.Output, "rf_bandwidth") }
func (p *Pluto) SetTXRFBandwidth(hz int64) error {
	return p.setIntAttr("voltage0", iio.Output, "rf_bandwidth", hz)
}

// RXLO is the receive local oscillator frequency in Hz.
func (p *Pluto) RXLO() (int64, error) { return p.intAttr("altvoltage0", iio.Output, "frequency") }
func (p *Pluto) SetRXLO(hz int64) error {
	return p.setIntAttr("altvoltage0", iio.Output, "frequency", hz)
}

// TXLO is the transmit local oscillator frequency in Hz.
func (p *Pluto) TXLO() (int64, error) { return p.intAttr("altvoltage1", iio.Output, "frequency") }
func (p *Pluto) SetTXLO(hz int64) error {
	return p.setIntAttr("altvoltage1", iio.Output, "frequency", hz)
}

// Loopback returns the current BIST loopback mode.
func (p *Pluto) Loopback() (Loopback, error) {
	v, err := p.ctrl.DebugAttrs().Int("loopback")
	if err != nil {
		return 0, err
	}
	return Loopback(v), nil
}

func (p *Pluto) SetLoopback(l Loopback) error {
	return p.ctrl.DebugAttrs().SetInt("loopback", int64(l))
}

// Filter returns the loaded FIR configuration as reported by the driver.
func (p *Pluto) Filter() (string, error) {
	return p.ctrl.Attrs().Get("filter_fir_config")
}

// SetFilterFile uploads a FIR configuration file to the driver.
func (p *Pluto) SetFilterFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read filter %s: %w", path, err)
	}
	return p.ctrl.Attrs().Set("filter_fir_config", string(data))
}

// rates lists the values of sampling_frequency_available on voltage0,
// tolerating the bracketed range syntax.
func rates(dev *iio.Device, output bool) ([]int64, error) {
	ch, err := dev.FindChannel("voltage0", output)
	if err != nil {
		return nil, err
	}
	v, err := ch.Attrs().Get("sampling_frequency_available")
	if err != nil {
		return nil, err
	}
	v = strings.NewReplacer("[", "", "]", "").Replace(strings.TrimSpace(v))
	var out []int64
	for _, f := range strings.Fields(v) {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s sampling_frequency_available %q: %w", dev.Name(), v, iio.ErrParse)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s sampling_frequency_available is empty: %w", dev.Name(), iio.ErrParse)
	}
	return out, nil
}

// fpgaFilterEnabled reports whether the data device runs at its lowest
// available rate, which is the case when the FPGA x8 filter is engaged.
func fpgaFilterEnabled(dev *iio.Device, output bool) (bool, error) {
	avail, err := rates(dev, output)
	if err != nil {
		return false, err
	}
	ch, err := dev.FindChannel("voltage0", output)
	if err != nil {
		return false, err
	}
	cur, err := ch.Attrs().Int("sampling_frequency")
	if err != nil {
		return false, err
	}
	low := avail[0]
	for _, r := range avail[1:] {
		low = min(low, r)
	}
	return cur == low, nil
}

func setFPGAFilter(dev *iio.Device, output, on bool) error {
	avail, err := rates(dev, output)
	if err != nil {
		return err
	}
	if len(avail) < 2 {
		return fmt.Errorf("%s offers %d rates: %w", dev.Name(), len(avail), iio.ErrNotFound)
	}
	rate := avail[0]
	if on {
		rate = avail[1]
	}
	ch, err := dev.FindChannel("voltage0", output)
	if err != nil {
		return err
	}
	return ch.Attrs().SetInt("sampling_frequency", rate)
}

// RXDec8FilterEnabled reports whether the FPGA decimate-by-8 filter is on.
func (p *Pluto) RXDec8FilterEnabled() (bool, error) { return fpgaFilterEnabled(p.rxd, iio.Input) }
func (p *Pluto) SetRXDec8Filter(on bool) error      { return setFPGAFilter(p.rxd, iio.Input, on) }

// TXInt8FilterEnabled reports whether the FPGA interpolate-by-8 filter is on.
func (p *Pluto) TXInt8FilterEnabled() (bool, error) { return fpgaFilterEnabled(p.txd, iio.Output) }
func (p *Pluto) SetTXInt8Filter(on bool) error      { return setFPGAFilter(p.txd, iio.Output, on) }
