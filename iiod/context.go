// Package iiod is the network backend of the iio package. It talks to an
// IIOD server with the ASCII protocol and builds the device tree from the
// XML context description.
package iiod

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/connectionmgr"
	"github.com/rjboer/GoPluto/internal/logging"
)

// FileWriter writes an attribute file of a device directly, bypassing IIOD.
// It serves servers that refuse attribute writes.
type FileWriter interface {
	WriteFile(ctx context.Context, device, file, value string) error
}

// FileReader is implemented by fallbacks that can also read attribute files.
type FileReader interface {
	ReadFile(ctx context.Context, device, file string) (string, error)
}

// refused reports whether errno means the server does not serve the
// attribute, as opposed to rejecting the value.
func refused(errno syscall.Errno) bool {
	return errno == syscall.ENOSYS || errno == syscall.EOPNOTSUPP
}

// Context is an IIOD connection exposed as an iio.ContextHandle.
type Context struct {
	uri      string
	m        *connectionmgr.Manager
	doc      *contextXML
	xml      string
	attrs    map[string]string
	devices  []*device
	fallback FileWriter
	log      logging.Logger

	versionOnce sync.Once
	major       uint
	minor       uint
	git         string
}

var _ iio.ContextHandle = (*Context)(nil)

// NewContext fetches the context description over m and builds the device
// tree. fallback may be nil.
func NewContext(uri string, m *connectionmgr.Manager, fallback FileWriter, log logging.Logger) (*Context, error) {
	if log == nil {
		log = logging.Default()
	}
	data, err := m.FetchXML()
	if err != nil {
		return nil, err
	}
	doc, err := parseContextXML(data)
	if err != nil {
		return nil, err
	}

	c := &Context{
		uri:      uri,
		m:        m,
		doc:      doc,
		xml:      string(data),
		attrs:    make(map[string]string, len(doc.Attributes)),
		fallback: fallback,
		log:      log.With(logging.F("uri", uri)),
	}
	for _, a := range doc.Attributes {
		c.attrs[a.Name] = a.Value
	}
	for i := range doc.Devices {
		d, err := newDevice(c, &doc.Devices[i])
		if err != nil {
			return nil, err
		}
		c.devices = append(c.devices, d)
	}
	c.log.Debug("context loaded", logging.F("devices", len(c.devices)))
	return c, nil
}

// Name is the URI the context was opened with.
func (c *Context) Name() string { return c.uri }

// Description combines the server description with the hardware model.
func (c *Context) Description() string {
	desc := c.doc.Description
	if model, ok := c.attrs["hw_model"]; ok && model != "" {
		if desc == "" {
			return model
		}
		return desc + " " + model
	}
	return desc
}

func (c *Context) XML() string              { return c.xml }
func (c *Context) Attrs() map[string]string { return c.attrs }

// Version prefers the version in the XML and asks the server otherwise.
func (c *Context) Version() (major, minor uint, git string) {
	c.versionOnce.Do(func() {
		if ma, mi, g, ok := c.doc.version(); ok {
			c.major, c.minor, c.git = ma, mi, g
			return
		}
		ma, mi, g, err := c.m.Version()
		if err != nil {
			c.log.Warn("version unavailable", logging.F("err", err))
			return
		}
		c.major, c.minor, c.git = ma, mi, g
	})
	return c.major, c.minor, c.git
}

func (c *Context) Devices() []iio.DeviceHandle {
	out := make([]iio.DeviceHandle, len(c.devices))
	for i, d := range c.devices {
		out[i] = d
	}
	return out
}

// SetTimeout applies d both on the server and to the local socket.
func (c *Context) SetTimeout(d time.Duration) error {
	if err := c.m.SetServerTimeout(d); err != nil {
		return err
	}
	c.m.SetTimeout(d)
	return nil
}

func (c *Context) Close() error {
	return c.m.Close()
}

// attrs is one attribute namespace served over IIOD.
type attrs struct {
	c      *Context
	target connectionmgr.AttrTarget
	names  []string
	// files maps attribute names to sysfs file names for the fallback path.
	files map[string]string
}

func (a *attrs) Names() []string { return a.names }

func (a *attrs) Read(name string) (string, error) {
	v, err := a.c.m.ReadAttr(a.target, name)
	var se *connectionmgr.StatusError
	if err == nil || !errors.As(err, &se) || !refused(se.Errno()) {
		return v, err
	}
	r, ok := a.c.fallback.(FileReader)
	file, known := a.files[name]
	if !ok || !known {
		return v, err
	}
	a.c.log.Info("attribute read refused, using sysfs", logging.F("device", a.target.Device), logging.F("file", file))
	v, ferr := r.ReadFile(context.Background(), a.target.Device, file)
	if ferr != nil {
		return "", fmt.Errorf("sysfs fallback: %w", ferr)
	}
	return v, nil
}

func (a *attrs) Write(name, value string) (int, error) {
	n, err := a.c.m.WriteAttr(a.target, name, value)
	if err != nil || n >= 0 || a.c.fallback == nil || a.files == nil {
		return n, err
	}
	if !refused(syscall.Errno(-n)) {
		return n, nil
	}
	file, ok := a.files[name]
	if !ok {
		return n, nil
	}
	a.c.log.Info("attribute write refused, using sysfs", logging.F("device", a.target.Device), logging.F("file", file))
	if err := a.c.fallback.WriteFile(context.Background(), a.target.Device, file, value); err != nil {
		return n, fmt.Errorf("sysfs fallback: %w", err)
	}
	return len(value), nil
}
