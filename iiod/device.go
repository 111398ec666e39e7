package iiod

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/connectionmgr"
	"github.com/rjboer/GoPluto/internal/logging"
)

type device struct {
	c        *Context
	id       string
	name     string
	label    string
	attrs    *attrs
	debug    *attrs
	buffer   *attrs
	channels []*channel
}

var _ iio.DeviceHandle = (*device)(nil)

func newDevice(c *Context, x *deviceXML) (*device, error) {
	d := &device{c: c, id: x.ID, name: x.Name, label: x.Label}
	d.attrs = &attrs{c: c, target: connectionmgr.Device(x.ID), names: attrNames(x.Attributes), files: make(map[string]string)}
	for _, a := range x.Attributes {
		d.attrs.files[a.Name] = a.Name
	}
	d.debug = &attrs{c: c, target: connectionmgr.Debug(x.ID), names: attrNames(x.DebugAttrs)}
	d.buffer = &attrs{c: c, target: connectionmgr.Buffer(x.ID), names: attrNames(x.BufferAttrs)}

	for i := range x.Channels {
		ch, err := newChannel(d, &x.Channels[i])
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", x.ID, err)
		}
		d.channels = append(d.channels, ch)
	}
	return d, nil
}

func (d *device) ID() string              { return d.id }
func (d *device) Name() string            { return d.name }
func (d *device) Label() string           { return d.label }
func (d *device) Attrs() iio.AttrIO       { return d.attrs }
func (d *device) DebugAttrs() iio.AttrIO  { return d.debug }
func (d *device) BufferAttrs() iio.AttrIO { return d.buffer }

func (d *device) Channels() []iio.ChannelHandle {
	out := make([]iio.ChannelHandle, len(d.channels))
	for i, ch := range d.channels {
		out[i] = ch
	}
	return out
}

func (d *device) SetKernelBuffersCount(n uint) error {
	return d.c.m.SetBuffersCount(d.id, n)
}

// mask renders the enabled scan elements as IIOD expects them: one 32-bit
// hex word per 32 channels, most significant word first.
func (d *device) mask() (string, []iio.ScanElement) {
	words := make([]uint32, (len(d.channels)+31)/32)
	if len(words) == 0 {
		words = make([]uint32, 1)
	}
	var enabled []iio.ScanElement
	for _, ch := range d.channels {
		if !ch.scan || !ch.IsEnabled() {
			continue
		}
		if ch.index/32 >= len(words) {
			grown := make([]uint32, ch.index/32+1)
			copy(grown, words)
			words = grown
		}
		words[ch.index/32] |= 1 << (ch.index % 32)
		enabled = append(enabled, ch)
	}
	var b strings.Builder
	for i := len(words) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%08x", words[i])
	}
	return b.String(), enabled
}

func (d *device) CreateBuffer(samples int, cyclic bool) (iio.BufferHandle, error) {
	mask, enabled := d.mask()
	layout := iio.NewLayout(enabled)
	if layout.FrameSize == 0 {
		return nil, fmt.Errorf("%s: no channels enabled: %w", d.id, iio.ErrResource)
	}
	if err := d.c.m.OpenBuffer(d.id, samples, mask, cyclic); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", d.id, iio.ErrResource, err)
	}
	d.c.log.Debug("buffer created", logging.F("device", d.id), logging.F("samples", samples), logging.F("mask", mask))
	return &buffer{dev: d, data: make([]byte, samples*layout.FrameSize), frame: layout.FrameSize}, nil
}

type channel struct {
	dev    *device
	id     string
	name   string
	output bool
	scan   bool
	index  int
	format iio.DataFormat
	attrs  *attrs

	mu      sync.Mutex
	enabled bool
}

var _ iio.ChannelHandle = (*channel)(nil)

func newChannel(d *device, x *channelXML) (*channel, error) {
	ch := &channel{dev: d, id: x.ID, name: x.Name, output: x.Type == "output"}
	index, f, ok, err := x.scanFormat()
	if err != nil {
		return nil, err
	}
	ch.scan, ch.index, ch.format = ok, index, f

	dir := "in"
	if ch.output {
		dir = "out"
	}
	ch.attrs = &attrs{
		c:      d.c,
		target: connectionmgr.Channel(d.id, x.ID, ch.output),
		names:  attrNames(x.Attributes),
		files:  make(map[string]string, len(x.Attributes)),
	}
	for _, a := range x.Attributes {
		file := a.Filename
		if file == "" {
			file = fmt.Sprintf("%s_%s_%s", dir, x.ID, a.Name)
		}
		ch.attrs.files[a.Name] = file
	}
	return ch, nil
}

func (ch *channel) ID() string             { return ch.id }
func (ch *channel) Name() string           { return ch.name }
func (ch *channel) IsOutput() bool         { return ch.output }
func (ch *channel) IsScanElement() bool    { return ch.scan }
func (ch *channel) Index() int             { return ch.index }
func (ch *channel) Format() iio.DataFormat { return ch.format }
func (ch *channel) Attrs() iio.AttrIO      { return ch.attrs }

// Enable, Disable and IsEnabled track the mask sent with the next OPEN.
func (ch *channel) Enable() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.enabled = true
}

func (ch *channel) Disable() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.enabled = false
}

func (ch *channel) IsEnabled() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.enabled
}

// buffer is an open IIOD buffer. Samples travel with READBUF and WRITEBUF.
type buffer struct {
	dev   *device
	data  []byte
	frame int

	mu        sync.Mutex
	cancelled bool
	closed    bool
}

var _ iio.BufferHandle = (*buffer)(nil)

func (b *buffer) Bytes() []byte { return b.data }

func (b *buffer) check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.cancelled {
		return fmt.Errorf("%s buffer: %w", b.dev.id, iio.ErrState)
	}
	return nil
}

func (b *buffer) Refill() (int, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	n, mask, err := b.dev.c.m.ReadBuffer(b.dev.id, b.data)
	if err != nil {
		return n, err
	}
	b.dev.c.log.Debug("refill", logging.F("device", b.dev.id), logging.F("bytes", n), logging.F("mask", mask))
	if n < len(b.data) {
		return -1, nil
	}
	return n, nil
}

func (b *buffer) Push(samples int) (int, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	size := samples * b.frame
	if samples < 0 || size > len(b.data) {
		return 0, fmt.Errorf("push %d samples into %d: %w", samples, len(b.data)/b.frame, iio.ErrState)
	}
	return b.dev.c.m.WriteBuffer(b.dev.id, b.data[:size])
}

// Cancel makes further transfers fail. IIOD has no abort command, so an
// in-flight transfer still runs to completion or timeout.
func (b *buffer) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = true
}

func (b *buffer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.dev.c.m.CloseBuffer(b.dev.id)
}
