package main

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/dsp"
	"github.com/rjboer/GoPluto/internal/logging"
	"github.com/rjboer/GoPluto/pluto"
)

func newTable(headers ...string) *table.Table {
	return table.New().Border(lipgloss.NormalBorder()).Headers(headers...)
}

type scanCmd struct{}

func (c *scanCmd) Run(a *app) error {
	start := time.Now()
	infos, err := iio.Scan(a.ctx, a.opener)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintf(a.out, "No contexts found (%s)\n", time.Since(start).Truncate(time.Millisecond))
		return nil
	}
	t := newTable("#", "URI", "Description")
	for i, info := range infos {
		t.Row(strconv.Itoa(i+1), info.URI, info.Description)
	}
	fmt.Fprintln(a.out, t.String())
	return nil
}

type infoCmd struct {
	Attrs bool `help:"Also read every device and channel attribute."`
}

func (c *infoCmd) Run(a *app) error {
	ctx, err := a.openContext()
	if err != nil {
		return err
	}
	defer ctx.Close()

	major, minor, git := ctx.Version()
	fmt.Fprintf(a.out, "Context:     %s\n", ctx.Name())
	fmt.Fprintf(a.out, "Description: %s\n", ctx.Description())
	fmt.Fprintf(a.out, "Backend:     %d.%d (%s)\n", major, minor, git)
	for _, kv := range sortedMap(ctx.Attrs()) {
		fmt.Fprintf(a.out, "  %s: %s\n", kv[0], kv[1])
	}

	for _, d := range ctx.Devices() {
		fmt.Fprintf(a.out, "\n%s: %s\n", d.ID(), d.Name())
		t := newTable("Channel", "Name", "Dir", "Scan", "Format")
		for _, ch := range d.Channels() {
			dir := "in"
			if ch.IsOutput() {
				dir = "out"
			}
			scan, format := "-", "-"
			if ch.IsScanElement() {
				scan, format = strconv.Itoa(ch.Index()), ch.Format().String()
			}
			t.Row(ch.ID(), ch.Name(), dir, scan, format)
		}
		fmt.Fprintln(a.out, t.String())

		if !c.Attrs {
			continue
		}
		printAttrs(a, d.ID(), d.Attrs())
		for _, ch := range d.Channels() {
			printAttrs(a, ch.String(), ch.Attrs())
		}
	}
	return nil
}

func printAttrs(a *app, owner string, r *iio.Registry) {
	for _, name := range r.Names() {
		v, err := r.Get(name)
		if err != nil {
			a.log.Warn("attribute read failed", logging.F("owner", owner), logging.F("attr", name), logging.F("err", err))
			continue
		}
		fmt.Fprintf(a.out, "  %s %s = %s\n", owner, name, v)
	}
}

// sortedMap returns the entries of m ordered by key.
func sortedMap(m map[string]string) [][2]string {
	out := make([][2]string, 0, len(m))
	for k, v := range m {
		out = append(out, [2]string{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

type rateCmd struct {
	Hz int64 `arg:"" optional:"" help:"New sample rate in Hz."`
}

func (c *rateCmd) Run(a *app) error {
	p, err := a.openPluto(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	if c.Hz > 0 {
		if err := p.SetSampleRate(c.Hz); err != nil {
			return err
		}
	}
	rate, err := p.SampleRate()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "sample rate: %d Hz\n", rate)
	return nil
}

type loCmd struct {
	RX int64 `name:"rx" help:"RX LO frequency in Hz."`
	TX int64 `name:"tx" help:"TX LO frequency in Hz."`
}

func (c *loCmd) Run(a *app) error {
	p, err := a.openPluto(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	if c.RX > 0 {
		if err := p.SetRXLO(c.RX); err != nil {
			return err
		}
	}
	if c.TX > 0 {
		if err := p.SetTXLO(c.TX); err != nil {
			return err
		}
	}
	rx, err := p.RXLO()
	if err != nil {
		return err
	}
	tx, err := p.TXLO()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "rx lo: %d Hz\ntx lo: %d Hz\n", rx, tx)
	return nil
}

type gainCmd struct {
	Mode string `help:"RX gain control mode: manual, slow_attack, fast_attack or hybrid."`
	RX   string `name:"rx" help:"RX hardware gain in dB."`
	TX   string `name:"tx" help:"TX hardware gain in dB (attenuation is negative)."`
}

func (c *gainCmd) Run(a *app) error {
	p, err := a.openPluto(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	if c.Mode != "" {
		if err := p.SetGainControlMode(c.Mode); err != nil {
			return err
		}
	}
	for _, g := range []struct {
		value string
		set   func(float64) error
	}{{c.RX, p.SetRXHardwareGain}, {c.TX, p.SetTXHardwareGain}} {
		if g.value == "" {
			continue
		}
		db, err := strconv.ParseFloat(g.value, 64)
		if err != nil {
			return fmt.Errorf("gain %q: %w", g.value, err)
		}
		if err := g.set(db); err != nil {
			return err
		}
	}

	mode, err := p.GainControlMode()
	if err != nil {
		return err
	}
	rx, err := p.RXHardwareGain()
	if err != nil {
		return err
	}
	tx, err := p.TXHardwareGain()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "mode: %s\nrx gain: %.2f dB\ntx gain: %.2f dB\n", mode, rx, tx)
	return nil
}

type rxCmd struct {
	Buffers int    `help:"Number of buffers to capture." default:"1"`
	Out     string `help:"Append the first channel to this file as little-endian float32 I/Q pairs." type:"path"`
}

func (c *rxCmd) Run(a *app) error {
	if c.Buffers <= 0 {
		return errors.New("buffers must be positive")
	}
	p, err := a.openPluto(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	var captured [][]complex64
	for i := 0; i < c.Buffers; i++ {
		if err := a.ctx.Err(); err != nil {
			return err
		}
		blocks, err := p.RXComplex()
		if err != nil {
			return err
		}
		if captured == nil {
			captured = make([][]complex64, len(blocks))
		}
		for ch, b := range blocks {
			captured[ch] = append(captured[ch], b...)
		}
	}

	rate, err := p.SampleRate()
	if err != nil {
		return err
	}
	fullScale := dsp.FullScale(rxBits(p))
	var an dsp.Analyzer
	for ch, samples := range captured {
		rms, peak := summarize(samples)
		off, db := an.Peak(samples, float64(rate), fullScale)
		fmt.Fprintf(a.out, "channel %d: %d samples, rms %.1f, peak %.1f, tone %+.0f Hz at %.1f dBFS\n",
			ch, len(samples), rms, peak, off, db)
	}
	if c.Out != "" && len(captured) > 0 {
		if err := appendCFile(c.Out, captured[0]); err != nil {
			return err
		}
		a.log.Info("samples written", logging.F("path", c.Out), logging.F("samples", len(captured[0])))
	}
	return nil
}

// rxBits is the converter resolution reported by the first RX scan element.
func rxBits(p *pluto.Pluto) uint {
	dev, err := p.Context().FindDevice(pluto.RXDevice)
	if err != nil {
		return 0
	}
	elems := dev.ScanElements(false)
	if len(elems) == 0 {
		return 0
	}
	return elems[0].Format().Bits
}

// summarize returns the RMS and peak magnitude of samples.
func summarize(samples []complex64) (rms, peak float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		m := cmplx.Abs(complex128(s))
		sum += m * m
		peak = math.Max(peak, m)
	}
	return math.Sqrt(sum / float64(len(samples))), peak
}

type txMuteCmd struct{}

func (c *txMuteCmd) Run(a *app) error {
	p, err := a.openPluto(nil)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := p.TX().Mute(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "tx muted")
	return nil
}

type toneFileCmd struct {
	File string        `arg:"" help:"Little-endian float32 I/Q pairs in [-1, 1], rounded to the DAC levels -1, 0 and 1." type:"existingfile"`
	Hold time.Duration `help:"Stop after this long. Zero waits for an interrupt."`
}

func (c *toneFileCmd) Run(a *app) error {
	samples, err := readCFile(c.File)
	if err != nil {
		return err
	}
	if samples, err = toDAC(samples); err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	p, err := a.openPluto(func(o *pluto.Options) {
		o.TXCyclic = true
		o.TXEnabled = []int{0}
	})
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Transmit([][]complex64{samples}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "transmitting %d samples from %s\n", len(samples), c.File)

	var hold <-chan time.Time
	if c.Hold > 0 {
		hold = time.After(c.Hold)
	}
	select {
	case <-a.ctx.Done():
	case <-hold:
	}
	a.log.Info("transmission stopped", logging.F("file", c.File), logging.F("channels", strings.Join(p.TX().ChannelNames(), ",")))
	return nil
}
