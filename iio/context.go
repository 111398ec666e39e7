package iio

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Context owns one connection to the hardware and the devices behind it.
type Context struct {
	h       ContextHandle
	devices []*Device
}

// NewContext wraps an open backend context and enumerates its devices.
func NewContext(h ContextHandle) *Context {
	c := &Context{h: h}
	for _, d := range h.Devices() {
		c.devices = append(c.devices, newDevice(d))
	}
	return c
}

// Open connects to the context at uri.
func Open(ctx context.Context, o Opener, uri string) (*Context, error) {
	h, err := o.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", uri, err)
	}
	return NewContext(h), nil
}

// Scan lists the contexts reachable through o.
func Scan(ctx context.Context, o Opener) ([]ContextInfo, error) {
	infos, err := o.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan contexts: %w", err)
	}
	return infos, nil
}

// OpenByName scans for contexts and opens the first one whose description
// mentions name.
func OpenByName(ctx context.Context, o Opener, name string) (*Context, error) {
	infos, err := Scan(ctx, o)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if strings.Contains(info.Description, name) {
			return Open(ctx, o, info.URI)
		}
	}
	return nil, fmt.Errorf("context matching %q: %w", name, ErrNotFound)
}

// OpenWithDevices scans for contexts and opens the first one that contains
// every named device.
func OpenWithDevices(ctx context.Context, o Opener, devices ...string) (*Context, error) {
	infos, err := Scan(ctx, o)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		c, err := Open(ctx, o, info.URI)
		if err != nil {
			continue
		}
		if c.hasDevices(devices) {
			return c, nil
		}
		c.Close()
	}
	return nil, fmt.Errorf("context with devices %v: %w", devices, ErrNotFound)
}

func (c *Context) hasDevices(names []string) bool {
	for _, n := range names {
		if _, err := c.FindDevice(n); err != nil {
			return false
		}
	}
	return true
}

func (c *Context) Name() string             { return c.h.Name() }
func (c *Context) Description() string      { return c.h.Description() }
func (c *Context) XML() string              { return c.h.XML() }
func (c *Context) Attrs() map[string]string { return c.h.Attrs() }
func (c *Context) Devices() []*Device       { return c.devices }

// Version returns the backend version triple.
func (c *Context) Version() (major, minor uint, git string) {
	return c.h.Version()
}

// FindDevice resolves a device by name, id or label.
func (c *Context) FindDevice(key string) (*Device, error) {
	for _, d := range c.devices {
		if d.ID() == key || d.h.Name() == key || (d.Label() != "" && d.Label() == key) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device %q: %w", key, ErrNotFound)
}

// SetTimeout configures the backend I/O timeout. Zero disables it.
func (c *Context) SetTimeout(d time.Duration) error {
	if err := c.h.SetTimeout(d); err != nil {
		return fmt.Errorf("set timeout: %w", err)
	}
	return nil
}

// Close releases the connection.
func (c *Context) Close() error {
	return c.h.Close()
}
