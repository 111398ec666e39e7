package iio

import (
	"fmt"
)

// Buffer is a DMA-backed sample region owned by one device. Its frame layout
// is fixed at creation from the channels enabled at that moment.
type Buffer struct {
	dev     *Device
	h       BufferHandle
	samples int
	cyclic  bool
	layout  Layout
	dead    bool
}

// NewBuffer allocates a buffer of samples frames for the enabled channels of dev.
func NewBuffer(dev *Device, samples int, cyclic bool) (*Buffer, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("%s: buffer of %d samples: %w", dev.Name(), samples, ErrResource)
	}
	layout := dev.Layout()
	if layout.FrameSize == 0 {
		return nil, fmt.Errorf("%s: no enabled channels: %w", dev.Name(), ErrResource)
	}
	h, err := dev.h.CreateBuffer(samples, cyclic)
	if err != nil {
		return nil, fmt.Errorf("%s: create buffer: %w: %w", dev.Name(), ErrResource, err)
	}
	if want := samples * layout.FrameSize; len(h.Bytes()) != want {
		h.Close()
		return nil, fmt.Errorf("%s: buffer region is %d bytes, want %d: %w", dev.Name(), len(h.Bytes()), want, ErrResource)
	}
	return &Buffer{dev: dev, h: h, samples: samples, cyclic: cyclic, layout: layout}, nil
}

func (b *Buffer) Device() *Device { return b.dev }
func (b *Buffer) Samples() int    { return b.samples }
func (b *Buffer) Cyclic() bool    { return b.cyclic }
func (b *Buffer) Layout() Layout  { return b.layout }

// Len is the byte length of the backing region.
func (b *Buffer) Len() int { return b.samples * b.layout.FrameSize }

func (b *Buffer) usable() error {
	if b.dead {
		return fmt.Errorf("%s: buffer cancelled or failed: %w", b.dev.Name(), ErrState)
	}
	return nil
}

// Refill pulls one full buffer of samples from the hardware. A device-side
// error leaves the buffer unusable.
func (b *Buffer) Refill() error {
	if err := b.usable(); err != nil {
		return err
	}
	n, err := b.h.Refill()
	if err != nil {
		b.dead = true
		return fmt.Errorf("%s: refill: %w", b.dev.Name(), err)
	}
	if n < 0 {
		b.dead = true
		return fmt.Errorf("%s: refill returned %d: %w", b.dev.Name(), n, ErrResource)
	}
	return nil
}

// Push hands the whole buffer to the hardware.
func (b *Buffer) Push() error {
	return b.PushPartial(b.samples)
}

// PushPartial hands the first samples frames to the hardware.
func (b *Buffer) PushPartial(samples int) error {
	if err := b.usable(); err != nil {
		return err
	}
	if samples <= 0 || samples > b.samples {
		return fmt.Errorf("%s: push %d of %d samples: %w", b.dev.Name(), samples, b.samples, ErrState)
	}
	n, err := b.h.Push(samples)
	if err != nil {
		b.dead = true
		return fmt.Errorf("%s: push: %w", b.dev.Name(), err)
	}
	if n < 0 {
		b.dead = true
		return fmt.Errorf("%s: push returned %d: %w", b.dev.Name(), n, ErrResource)
	}
	return nil
}

// Cancel aborts any transfer in flight. The buffer cannot be used afterwards.
func (b *Buffer) Cancel() {
	b.h.Cancel()
	b.dead = true
}

// Close releases the buffer.
func (b *Buffer) Close() error {
	b.dead = true
	return b.h.Close()
}

// region runs fn over the backing region, clipped to the configured length.
func (b *Buffer) region(fn func(p []byte)) {
	p := b.h.Bytes()
	if n := b.Len(); len(p) > n {
		p = p[:n]
	}
	fn(p)
}

// Read returns a copy of the backing region.
func (b *Buffer) Read() []byte {
	var out []byte
	b.region(func(p []byte) {
		out = make([]byte, len(p))
		copy(out, p)
	})
	return out
}

// Write zero-fills the backing region and copies as much of p as fits into
// it. It returns the number of bytes copied.
func (b *Buffer) Write(p []byte) int {
	var n int
	b.region(func(r []byte) {
		clear(r)
		n = copy(r, p)
	})
	return n
}

// ChannelBytes returns the raw bytes of ch, frame by frame, without any
// conversion.
func (b *Buffer) ChannelBytes(ch *Channel) ([]byte, error) {
	if ch.Device() != b.dev {
		return nil, fmt.Errorf("%s does not belong to %s: %w", ch, b.dev.Name(), ErrNotFound)
	}
	slot, ok := b.layout.Find(ch.Index())
	if !ok || !ch.IsScanElement() {
		return nil, fmt.Errorf("%s is not part of the buffer: %w", ch, ErrNotFound)
	}
	out := make([]byte, 0, slot.Size*b.samples)
	b.region(func(p []byte) {
		for off := 0; off+b.layout.FrameSize <= len(p); off += b.layout.FrameSize {
			out = append(out, p[off+slot.Offset:off+slot.Offset+slot.Size]...)
		}
	})
	return out, nil
}
