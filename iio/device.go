package iio

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const regAccessAttr = "direct_reg_access"

// Device is a hardware endpoint with three attribute namespaces and a set of
// channels enumerated on first use.
type Device struct {
	h        DeviceHandle
	attrs    *Registry
	debug    *Registry
	buffer   *Registry
	channels func() []*Channel
}

func newDevice(h DeviceHandle) *Device {
	d := &Device{h: h}
	name := d.Name()
	d.attrs = newRegistry(name, h.Attrs())
	d.debug = newRegistry(name+" debug", h.DebugAttrs())
	d.buffer = newRegistry(name+" buffer", h.BufferAttrs())
	d.channels = sync.OnceValue(func() []*Channel {
		hs := h.Channels()
		out := make([]*Channel, 0, len(hs))
		for _, ch := range hs {
			out = append(out, newChannel(d, ch))
		}
		return out
	})
	return d
}

func (d *Device) ID() string    { return d.h.ID() }
func (d *Device) Label() string { return d.h.Label() }

// Name returns the device name, falling back to its id.
func (d *Device) Name() string {
	if n := d.h.Name(); n != "" {
		return n
	}
	return d.h.ID()
}

func (d *Device) Attrs() *Registry       { return d.attrs }
func (d *Device) DebugAttrs() *Registry  { return d.debug }
func (d *Device) BufferAttrs() *Registry { return d.buffer }

// Channels returns every channel of the device.
func (d *Device) Channels() []*Channel { return d.channels() }

// FindChannel resolves a channel by id or name in the given direction.
func (d *Device) FindChannel(nameOrID string, output bool) (*Channel, error) {
	for _, ch := range d.channels() {
		if ch.IsOutput() != output {
			continue
		}
		if ch.ID() == nameOrID || (ch.Name() != "" && ch.Name() == nameOrID) {
			return ch, nil
		}
	}
	dir := "input"
	if output {
		dir = "output"
	}
	return nil, fmt.Errorf("%s: %s channel %q: %w", d.Name(), dir, nameOrID, ErrNotFound)
}

// ScanElements returns the scan-element channels of one direction.
func (d *Device) ScanElements(output bool) []*Channel {
	var out []*Channel
	for _, ch := range d.channels() {
		if ch.IsScanElement() && ch.IsOutput() == output {
			out = append(out, ch)
		}
	}
	return out
}

// EnabledChannels returns the enabled scan elements ordered by scan index.
func (d *Device) EnabledChannels() []*Channel {
	var out []*Channel
	for _, ch := range d.channels() {
		if ch.IsScanElement() && ch.Enabled() {
			out = append(out, ch)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index() < out[j].Index() })
	return out
}

// Layout is the buffer frame layout for the enabled channels.
func (d *Device) Layout() Layout {
	enabled := d.EnabledChannels()
	elems := make([]ScanElement, len(enabled))
	for i, ch := range enabled {
		elems[i] = ch
	}
	return NewLayout(elems)
}

// SampleSize is the byte size of one frame across the enabled channels.
func (d *Device) SampleSize() (int, error) {
	size := d.Layout().FrameSize
	if size == 0 {
		return 0, fmt.Errorf("%s: no enabled channels: %w", d.Name(), ErrResource)
	}
	return size, nil
}

// SetKernelBuffersCount sets the number of kernel blocks used for streaming.
func (d *Device) SetKernelBuffersCount(n uint) error {
	if n == 0 {
		return fmt.Errorf("%s: kernel buffer count must be positive: %w", d.Name(), ErrParse)
	}
	if err := d.h.SetKernelBuffersCount(n); err != nil {
		return fmt.Errorf("%s: set kernel buffers count: %w", d.Name(), err)
	}
	return nil
}

// RegWrite writes a chip register through the debug interface.
func (d *Device) RegWrite(addr, value uint32) error {
	return d.debug.Set(regAccessAttr, fmt.Sprintf("0x%x 0x%x", addr, value))
}

// RegRead reads a chip register through the debug interface.
func (d *Device) RegRead(addr uint32) (uint32, error) {
	if err := d.debug.Set(regAccessAttr, fmt.Sprintf("0x%x", addr)); err != nil {
		return 0, err
	}
	v, err := d.debug.Get(regAccessAttr)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: register 0x%x value %q: %w", d.Name(), addr, v, ErrParse)
	}
	return uint32(n), nil
}
