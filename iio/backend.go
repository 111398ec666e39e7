package iio

import (
	"context"
	"time"
)

// AttrIO is one attribute namespace of a hardware object. Values travel as
// strings; writes report the signed byte count returned by the hardware.
type AttrIO interface {
	Names() []string
	Read(name string) (string, error)
	Write(name, value string) (int, error)
}

// ContextHandle is a connection to one IIO context as exposed by a backend.
type ContextHandle interface {
	Name() string
	Description() string
	XML() string
	Version() (major, minor uint, git string)
	Attrs() map[string]string
	Devices() []DeviceHandle
	SetTimeout(d time.Duration) error
	Close() error
}

// DeviceHandle is a backend device.
type DeviceHandle interface {
	ID() string
	Name() string
	Label() string
	Attrs() AttrIO
	DebugAttrs() AttrIO
	BufferAttrs() AttrIO
	Channels() []ChannelHandle
	SetKernelBuffersCount(n uint) error
	// CreateBuffer allocates a buffer for the currently enabled channels.
	CreateBuffer(samples int, cyclic bool) (BufferHandle, error)
}

// ChannelHandle is a backend channel.
type ChannelHandle interface {
	ID() string
	Name() string
	IsOutput() bool
	IsScanElement() bool
	// Index is the scan index; -1 for channels that are not scan elements.
	Index() int
	Format() DataFormat
	Attrs() AttrIO
	Enable()
	Disable()
	IsEnabled() bool
}

// BufferHandle is a backend buffer. Refill and Push return a signed status:
// negative values are device-side errors.
type BufferHandle interface {
	// Bytes exposes the backing region. Only Buffer touches it.
	Bytes() []byte
	Refill() (int, error)
	Push(samples int) (int, error)
	Cancel()
	Close() error
}

// ContextInfo describes a context found by a scan.
type ContextInfo struct {
	URI         string
	Description string
}

// Opener opens contexts by URI and lists reachable contexts.
type Opener interface {
	Open(ctx context.Context, uri string) (ContextHandle, error)
	Scan(ctx context.Context) ([]ContextInfo, error)
}
