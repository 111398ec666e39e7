// Package pluto drives an AD9363/AD9364 transceiver such as the ADALM-Pluto:
// RF configuration through the control device and sample streaming through
// the RX and TX data devices.
package pluto

import (
	"context"
	"fmt"
	"time"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/logging"
	"github.com/rjboer/GoPluto/stream"
)

// Device names of the AD936x IIO driver.
const (
	ControlDevice = "ad9361-phy"
	RXDevice      = "cf-ad9361-lpc"
	TXDevice      = "cf-ad9361-dds-core-lpc"
	DefaultURI    = "ip:192.168.2.1"
	DeviceName    = "PlutoSDR"
)

// Options configures a Pluto.
type Options struct {
	// URI selects a context directly. When empty the opener is scanned for a
	// context named Name (DeviceName by default), then for one holding the
	// radio's devices.
	URI     string
	Name    string
	Timeout time.Duration

	Complex    bool
	RXChannels []string
	TXChannels []string
	RXEnabled  []int
	TXEnabled  []int
	BufferSize int
	TXCyclic   bool
	// TXFile, when set, receives packed TX samples instead of the hardware.
	TXFile string

	Logger logging.Logger
}

// DefaultOptions returns the AD9364 defaults: one complex channel per
// direction on voltage0/voltage1.
func DefaultOptions() Options {
	return Options{
		Complex:    true,
		RXChannels: []string{"voltage0", "voltage1"},
		TXChannels: []string{"voltage0", "voltage1"},
		BufferSize: stream.DefaultBufferSize,
	}
}

// AttributeAccess reads and writes attributes of the control device.
type AttributeAccess interface {
	Attr(channel, attr string, output bool) (string, error)
	SetAttr(channel, attr string, output bool, value string) error
	DeviceAttr(attr string) (string, error)
	SetDeviceAttr(attr, value string) error
	DebugAttr(attr string) (string, error)
	SetDebugAttr(attr, value string) error
}

// Receiver reads samples.
type Receiver interface {
	RXBufferedData() ([][]int64, error)
	RXComplex() ([][]complex64, error)
	RXDestroyBuffer()
}

// Transmitter writes samples.
type Transmitter interface {
	Transmit(samples [][]complex64) error
	TXDestroyBuffer()
}

// RateConfigurator owns the baseband sample rate.
type RateConfigurator interface {
	SampleRate() (int64, error)
	SetSampleRate(hz int64) error
}

// ToneGenerator controls the DDS cores of the TX device.
type ToneGenerator interface {
	DisableDDS() error
	SetDDSEnabled(enabled []bool) error
	UpdateDDS(attr string, values []string) error
}

var (
	_ AttributeAccess  = (*Pluto)(nil)
	_ Receiver         = (*Pluto)(nil)
	_ Transmitter      = (*Pluto)(nil)
	_ RateConfigurator = (*Pluto)(nil)
	_ ToneGenerator    = (*Pluto)(nil)
)

// Pluto is an open AD936x radio.
type Pluto struct {
	ctx  *iio.Context
	ctrl *iio.Device
	rxd  *iio.Device
	txd  *iio.Device
	rx   *stream.RX
	tx   *stream.TX
	dds  *DDS
	log  logging.Logger
}

// Open connects through o according to opts.
func Open(ctx context.Context, o iio.Opener, opts Options) (*Pluto, error) {
	var (
		c   *iio.Context
		err error
	)
	switch {
	case opts.URI != "":
		c, err = iio.Open(ctx, o, opts.URI)
	default:
		name := opts.Name
		if name == "" {
			name = DeviceName
		}
		c, err = iio.OpenByName(ctx, o, name)
		if err != nil {
			c, err = iio.OpenWithDevices(ctx, o, ControlDevice, RXDevice)
		}
	}
	if err != nil {
		return nil, err
	}
	p, err := New(c, opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	return p, nil
}

// New builds a Pluto over an open context.
func New(c *iio.Context, opts Options) (*Pluto, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	p := &Pluto{ctx: c, log: log.With(logging.F("context", c.Name()))}

	var err error
	if p.ctrl, err = c.FindDevice(ControlDevice); err != nil {
		return nil, err
	}
	if p.rxd, err = c.FindDevice(RXDevice); err != nil {
		return nil, err
	}
	if p.txd, err = c.FindDevice(TXDevice); err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		if err := c.SetTimeout(opts.Timeout); err != nil {
			return nil, err
		}
	}

	p.dds = NewDDS(p.txd, 2*len(opts.TXChannels))
	p.rx = stream.NewRX(p.rxd, stream.Config{
		ChannelNames: opts.RXChannels,
		Enabled:      opts.RXEnabled,
		Complex:      opts.Complex,
		BufferSize:   opts.BufferSize,
	}, p.log)
	txOpts := []stream.TXOption{stream.WithToneControl(p.dds)}
	if opts.TXFile != "" {
		txOpts = append(txOpts, stream.WithFileOutput(opts.TXFile))
	}
	p.tx = stream.NewTX(p.txd, stream.Config{
		ChannelNames: opts.TXChannels,
		Enabled:      opts.TXEnabled,
		Complex:      opts.Complex,
		BufferSize:   opts.BufferSize,
		Cyclic:       opts.TXCyclic,
	}, p.log, txOpts...)

	p.log.Debug("radio ready")
	return p, nil
}

func (p *Pluto) Context() *iio.Context { return p.ctx }
func (p *Pluto) Control() *iio.Device  { return p.ctrl }
func (p *Pluto) RX() *stream.RX        { return p.rx }
func (p *Pluto) TX() *stream.TX        { return p.tx }
func (p *Pluto) DDS() *DDS             { return p.dds }

// Close releases buffers and the connection.
func (p *Pluto) Close() error {
	p.rx.DestroyBuffer()
	p.tx.DestroyBuffer()
	return p.ctx.Close()
}

func (p *Pluto) channelAttrs(dev *iio.Device, channel string, output bool) (*iio.Registry, error) {
	ch, err := dev.FindChannel(channel, output)
	if err != nil {
		return nil, err
	}
	return ch.Attrs(), nil
}

// Attr reads a channel attribute of the control device.
func (p *Pluto) Attr(channel, attr string, output bool) (string, error) {
	r, err := p.channelAttrs(p.ctrl, channel, output)
	if err != nil {
		return "", err
	}
	return r.Get(attr)
}

// SetAttr writes a channel attribute of the control device.
func (p *Pluto) SetAttr(channel, attr string, output bool, value string) error {
	r, err := p.channelAttrs(p.ctrl, channel, output)
	if err != nil {
		return err
	}
	return r.Set(attr, value)
}

func (p *Pluto) DeviceAttr(attr string) (string, error) { return p.ctrl.Attrs().Get(attr) }
func (p *Pluto) SetDeviceAttr(attr, value string) error { return p.ctrl.Attrs().Set(attr, value) }
func (p *Pluto) DebugAttr(attr string) (string, error)  { return p.ctrl.DebugAttrs().Get(attr) }
func (p *Pluto) SetDebugAttr(attr, value string) error  { return p.ctrl.DebugAttrs().Set(attr, value) }

func (p *Pluto) RXBufferedData() ([][]int64, error)   { return p.rx.BufferedData() }
func (p *Pluto) RXComplex() ([][]complex64, error)    { return p.rx.Complex() }
func (p *Pluto) RXDestroyBuffer()                     { p.rx.DestroyBuffer() }
func (p *Pluto) Transmit(samples [][]complex64) error { return p.tx.Transmit(samples) }
func (p *Pluto) TXDestroyBuffer()                     { p.tx.DestroyBuffer() }

func (p *Pluto) DisableDDS() error                  { return p.dds.DisableDDS() }
func (p *Pluto) SetDDSEnabled(enabled []bool) error { return p.dds.SetEnabled(enabled) }
func (p *Pluto) UpdateDDS(attr string, values []string) error {
	return p.dds.Update(attr, values)
}

// String identifies the radio for logs.
func (p *Pluto) String() string {
	return fmt.Sprintf("%s (%s)", DeviceName, p.ctx.Description())
}
