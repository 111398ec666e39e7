// Package iiotest provides an in-memory IIO backend for tests. Attribute
// writes are recorded in a shared journal so tests can assert on the exact
// sequence a driver produced.
package iiotest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rjboer/GoPluto/iio"
)

// Write is one recorded attribute write.
type Write struct {
	Owner string
	Attr  string
	Value string
}

func (w Write) String() string { return fmt.Sprintf("%s %s=%q", w.Owner, w.Attr, w.Value) }

// Journal records attribute writes across a whole fake context.
type Journal struct {
	Writes []Write
}

// Reset forgets every recorded write.
func (j *Journal) Reset() { j.Writes = nil }

// Attrs is a fake attribute namespace.
type Attrs struct {
	owner   string
	journal *Journal
	values  map[string]string
	// Reject maps attribute names to the count returned for writes to them.
	Reject map[string]int
}

func newAttrs(owner string, j *Journal) *Attrs {
	return &Attrs{owner: owner, journal: j, values: make(map[string]string), Reject: make(map[string]int)}
}

// Set stores a value without recording it as a write.
func (a *Attrs) Set(name, value string) *Attrs {
	a.values[name] = value
	return a
}

// Value returns the stored value of name.
func (a *Attrs) Value(name string) string { return a.values[name] }

func (a *Attrs) Names() []string {
	out := make([]string, 0, len(a.values))
	for n := range a.values {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (a *Attrs) Read(name string) (string, error) {
	v, ok := a.values[name]
	if !ok {
		return "", fmt.Errorf("%s %s: %w", a.owner, name, iio.ErrNotFound)
	}
	return v, nil
}

func (a *Attrs) Write(name, value string) (int, error) {
	a.journal.Writes = append(a.journal.Writes, Write{Owner: a.owner, Attr: name, Value: value})
	if n, ok := a.Reject[name]; ok {
		return n, nil
	}
	a.values[name] = value
	return len(value), nil
}

// Context is a fake iio.ContextHandle.
type Context struct {
	Journal     *Journal
	NameV       string
	DescV       string
	XMLV        string
	ContextAttr map[string]string
	Timeout     time.Duration
	Closed      bool
	devices     []*Device
}

// NewContext returns an empty fake context.
func NewContext(name string) *Context {
	return &Context{Journal: &Journal{}, NameV: name, DescV: name, ContextAttr: map[string]string{}}
}

// AddDevice adds a device with no attributes or channels.
func (c *Context) AddDevice(id, name string) *Device {
	d := &Device{ctx: c, id: id, name: name}
	d.attrs = newAttrs(name, c.Journal)
	d.debug = newAttrs(name+" debug", c.Journal)
	d.buffer = newAttrs(name+" buffer", c.Journal)
	c.devices = append(c.devices, d)
	return d
}

func (c *Context) Name() string                     { return c.NameV }
func (c *Context) Description() string              { return c.DescV }
func (c *Context) XML() string                      { return c.XMLV }
func (c *Context) Version() (uint, uint, string)    { return 0, 25, "fake" }
func (c *Context) Attrs() map[string]string         { return c.ContextAttr }
func (c *Context) SetTimeout(d time.Duration) error { c.Timeout = d; return nil }
func (c *Context) Close() error                     { c.Closed = true; return nil }
func (c *Context) Devices() []iio.DeviceHandle {
	out := make([]iio.DeviceHandle, len(c.devices))
	for i, d := range c.devices {
		out[i] = d
	}
	return out
}

// Device is a fake iio.DeviceHandle.
type Device struct {
	ctx      *Context
	id, name string
	LabelV   string
	attrs    *Attrs
	debug    *Attrs
	buffer   *Attrs
	channels []*Channel

	// RXData is copied, repeated, into the buffer on every refill.
	RXData []byte
	// Pushed holds a copy of the bytes handed over by each push.
	Pushed [][]byte
	// FailBuffers makes CreateBuffer fail.
	FailBuffers bool
	// RefillStatus, when non-zero, is returned by refill instead of the length.
	RefillStatus int
	// Buffers counts successful CreateBuffer calls.
	Buffers       int
	LastCyclic    bool
	KernelBuffers uint
	Cancelled     int
}

func (d *Device) ID() string              { return d.id }
func (d *Device) Name() string            { return d.name }
func (d *Device) Label() string           { return d.LabelV }
func (d *Device) Attrs() iio.AttrIO       { return d.attrs }
func (d *Device) DebugAttrs() iio.AttrIO  { return d.debug }
func (d *Device) BufferAttrs() iio.AttrIO { return d.buffer }

// Attr, Debug and BufferAttr return the concrete namespaces for setup.
func (d *Device) Attr() *Attrs       { return d.attrs }
func (d *Device) Debug() *Attrs      { return d.debug }
func (d *Device) BufferAttr() *Attrs { return d.buffer }

func (d *Device) SetKernelBuffersCount(n uint) error {
	d.KernelBuffers = n
	return nil
}

func (d *Device) Channels() []iio.ChannelHandle {
	out := make([]iio.ChannelHandle, len(d.channels))
	for i, c := range d.channels {
		out[i] = c
	}
	return out
}

// AddChannel adds a channel that is not a scan element.
func (d *Device) AddChannel(id string, output bool) *Channel {
	dir := "in"
	if output {
		dir = "out"
	}
	ch := &Channel{id: id, output: output, index: -1}
	ch.attrs = newAttrs(fmt.Sprintf("%s/%s/%s", d.name, dir, id), d.ctx.Journal)
	d.channels = append(d.channels, ch)
	return ch
}

// AddScanElement adds a streaming channel with the given scan index and format.
func (d *Device) AddScanElement(id string, output bool, index int, format string) *Channel {
	f, err := iio.ParseDataFormat(format)
	if err != nil {
		panic(err)
	}
	ch := d.AddChannel(id, output)
	ch.scan = true
	ch.index = index
	ch.format = f
	return ch
}

// Channel returns the fake channel with id and direction.
func (d *Device) Channel(id string, output bool) *Channel {
	for _, c := range d.channels {
		if c.id == id && c.output == output {
			return c
		}
	}
	return nil
}

func (d *Device) CreateBuffer(samples int, cyclic bool) (iio.BufferHandle, error) {
	if d.FailBuffers {
		return nil, fmt.Errorf("%s: allocation refused", d.name)
	}
	var elems []iio.ScanElement
	for _, c := range d.channels {
		if c.scan && c.enabled {
			elems = append(elems, c)
		}
	}
	layout := iio.NewLayout(elems)
	if layout.FrameSize == 0 {
		return nil, fmt.Errorf("%s: no channels enabled", d.name)
	}
	d.Buffers++
	d.LastCyclic = cyclic
	return &Buffer{dev: d, data: make([]byte, samples*layout.FrameSize), frame: layout.FrameSize}, nil
}

// Channel is a fake iio.ChannelHandle.
type Channel struct {
	id      string
	NameV   string
	output  bool
	scan    bool
	index   int
	format  iio.DataFormat
	enabled bool
	attrs   *Attrs
}

func (c *Channel) ID() string             { return c.id }
func (c *Channel) Name() string           { return c.NameV }
func (c *Channel) IsOutput() bool         { return c.output }
func (c *Channel) IsScanElement() bool    { return c.scan }
func (c *Channel) Index() int             { return c.index }
func (c *Channel) Format() iio.DataFormat { return c.format }
func (c *Channel) Attrs() iio.AttrIO      { return c.attrs }
func (c *Channel) Attr() *Attrs           { return c.attrs }
func (c *Channel) Enable()                { c.enabled = true }
func (c *Channel) Disable()               { c.enabled = false }
func (c *Channel) IsEnabled() bool        { return c.enabled }

// Buffer is a fake iio.BufferHandle.
type Buffer struct {
	dev       *Device
	data      []byte
	frame     int
	Cancelled bool
	Closed    bool
}

func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Refill() (int, error) {
	if b.dev.RefillStatus != 0 {
		return b.dev.RefillStatus, nil
	}
	if len(b.dev.RXData) == 0 {
		return len(b.data), nil
	}
	for off := 0; off < len(b.data); off += len(b.dev.RXData) {
		copy(b.data[off:], b.dev.RXData)
	}
	return len(b.data), nil
}

func (b *Buffer) Push(samples int) (int, error) {
	n := samples * b.frame
	b.dev.Pushed = append(b.dev.Pushed, append([]byte(nil), b.data[:n]...))
	return n, nil
}

func (b *Buffer) Cancel() {
	b.Cancelled = true
	b.dev.Cancelled++
}

func (b *Buffer) Close() error {
	b.Closed = true
	return nil
}

// Opener is a fake iio.Opener serving a fixed set of contexts.
type Opener struct {
	Contexts map[string]*Context
	Infos    []iio.ContextInfo
}

func (o *Opener) Open(_ context.Context, uri string) (iio.ContextHandle, error) {
	c, ok := o.Contexts[uri]
	if !ok {
		return nil, fmt.Errorf("uri %q: %w", uri, iio.ErrNotFound)
	}
	return c, nil
}

func (o *Opener) Scan(context.Context) ([]iio.ContextInfo, error) {
	return o.Infos, nil
}
