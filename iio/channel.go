package iio

import "fmt"

// Direction selectors for Device.FindChannel.
const (
	Input  = false
	Output = true
)

// Channel is one input or output channel of a Device.
type Channel struct {
	dev   *Device
	h     ChannelHandle
	attrs *Registry
}

func newChannel(dev *Device, h ChannelHandle) *Channel {
	owner := fmt.Sprintf("%s/%s", dev.Name(), h.ID())
	return &Channel{dev: dev, h: h, attrs: newRegistry(owner, h.Attrs())}
}

func (c *Channel) ID() string          { return c.h.ID() }
func (c *Channel) Name() string        { return c.h.Name() }
func (c *Channel) IsOutput() bool      { return c.h.IsOutput() }
func (c *Channel) IsScanElement() bool { return c.h.IsScanElement() }
func (c *Channel) Index() int          { return c.h.Index() }
func (c *Channel) Format() DataFormat  { return c.h.Format() }
func (c *Channel) Device() *Device     { return c.dev }
func (c *Channel) Attrs() *Registry    { return c.attrs }
func (c *Channel) Enabled() bool       { return c.h.IsEnabled() }

// Enable marks the channel for inclusion in the next buffer.
func (c *Channel) Enable() { c.h.Enable() }

// Disable removes the channel from the next buffer.
func (c *Channel) Disable() { c.h.Disable() }

func (c *Channel) String() string {
	dir := "input"
	if c.IsOutput() {
		dir = "output"
	}
	return fmt.Sprintf("%s %s %s", c.dev.Name(), dir, c.ID())
}
