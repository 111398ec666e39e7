// Package stream drives buffered RX and TX transfers over a data device:
// channel selection, buffer lifetime and sample conversion.
package stream

import (
	"fmt"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/logging"
)

// State is the lifecycle position of a pipeline.
type State int

const (
	Uninitialized State = iota
	ChannelsEnabled
	BufferReady
	Streaming
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case ChannelsEnabled:
		return "channels-enabled"
	case BufferReady:
		return "buffer-ready"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// DefaultBufferSize is the sample count used when none is configured.
const DefaultBufferSize = 1024

// Config selects the channels and buffer shape of a pipeline.
type Config struct {
	// ChannelNames lists physical channel ids. Empty means every scan
	// element of the device in the pipeline's direction.
	ChannelNames []string
	// Enabled lists logical channel indices. Nil means all of them.
	Enabled []int
	// Complex pairs physical channels 2i and 2i+1 into logical channel i.
	Complex    bool
	BufferSize int
	Cyclic     bool
}

// PhysicalChannels maps logical channel indices to indices in the channel
// name list.
func PhysicalChannels(enabled []int, complexData bool) []int {
	out := make([]int, 0, 2*len(enabled))
	for _, i := range enabled {
		if complexData {
			out = append(out, 2*i, 2*i+1)
		} else {
			out = append(out, i)
		}
	}
	return out
}

type pipeline struct {
	dev     *iio.Device
	output  bool
	names   []string
	enabled []int
	complex bool
	size    int
	cyclic  bool

	buf   *iio.Buffer
	state State
	log   logging.Logger
}

func newPipeline(dev *iio.Device, output bool, cfg Config, log logging.Logger) pipeline {
	p := pipeline{
		dev:     dev,
		output:  output,
		names:   cfg.ChannelNames,
		enabled: cfg.Enabled,
		complex: cfg.Complex,
		size:    cfg.BufferSize,
		cyclic:  cfg.Cyclic,
		log:     log,
	}
	if p.log == nil {
		p.log = logging.Default()
	}
	if dev != nil {
		p.log = p.log.With(logging.F("device", dev.Name()))
		if len(p.names) == 0 {
			for _, ch := range dev.ScanElements(output) {
				p.names = append(p.names, ch.ID())
			}
		}
	}
	if p.size <= 0 {
		p.size = DefaultBufferSize
	}
	if p.enabled == nil {
		n := len(p.names)
		if p.complex {
			n /= 2
		}
		for i := 0; i < n; i++ {
			p.enabled = append(p.enabled, i)
		}
	}
	return p
}

func (p *pipeline) setState(s State) {
	if p.state != s {
		p.log.Debug("pipeline state", logging.F("from", p.state), logging.F("to", s))
	}
	p.state = s
}

// State returns the current lifecycle state.
func (p *pipeline) State() State { return p.state }

// Buffer returns the live buffer, or nil.
func (p *pipeline) Buffer() *iio.Buffer { return p.buf }

func (p *pipeline) ChannelNames() []string { return append([]string(nil), p.names...) }
func (p *pipeline) EnabledChannels() []int { return append([]int(nil), p.enabled...) }
func (p *pipeline) BufferSize() int        { return p.size }
func (p *pipeline) Cyclic() bool           { return p.cyclic }
func (p *pipeline) ComplexData() bool      { return p.complex }

// NumEnabled is the number of logical channels enabled.
func (p *pipeline) NumEnabled() int { return len(p.enabled) }

// SetEnabledChannels changes the logical channel selection. Any buffer built
// for the previous selection is destroyed.
func (p *pipeline) SetEnabledChannels(enabled []int) {
	p.DestroyBuffer()
	p.enabled = append([]int(nil), enabled...)
}

// SetBufferSize changes the sample count. Any existing buffer is destroyed.
func (p *pipeline) SetBufferSize(samples int) {
	p.DestroyBuffer()
	p.size = samples
}

// SetCyclic changes the buffer mode. Any existing buffer is destroyed.
func (p *pipeline) SetCyclic(cyclic bool) {
	p.DestroyBuffer()
	p.cyclic = cyclic
}

// DestroyBuffer releases the buffer and returns to Uninitialized.
func (p *pipeline) DestroyBuffer() {
	if p.buf != nil {
		if err := p.buf.Close(); err != nil {
			p.log.Warn("close buffer", logging.F("error", err))
		}
		p.buf = nil
	}
	p.setState(Uninitialized)
}

// channels resolves the enabled physical channels in enabled order.
func (p *pipeline) channels() ([]*iio.Channel, error) {
	if p.dev == nil {
		return nil, fmt.Errorf("data device: %w", iio.ErrNotFound)
	}
	if len(p.names) == 0 {
		return nil, fmt.Errorf("%s: channel names: %w", p.dev.Name(), iio.ErrNotFound)
	}
	idx := PhysicalChannels(p.enabled, p.complex)
	out := make([]*iio.Channel, 0, len(idx))
	for _, i := range idx {
		if i < 0 || i >= len(p.names) {
			return nil, fmt.Errorf("%s: channel index %d of %d names: %w", p.dev.Name(), i, len(p.names), iio.ErrNotFound)
		}
		ch, err := p.dev.FindChannel(p.names[i], p.output)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// InitChannels enables the selected channels, disables the other scan
// elements of the same direction and allocates the buffer.
func (p *pipeline) InitChannels() error {
	chans, err := p.channels()
	if err != nil {
		return err
	}
	if p.buf != nil {
		p.DestroyBuffer()
	}
	for _, ch := range p.dev.ScanElements(p.output) {
		ch.Disable()
	}
	for _, ch := range chans {
		if !ch.IsScanElement() {
			return fmt.Errorf("%s is not a scan element: %w", ch, iio.ErrState)
		}
		ch.Enable()
	}
	p.setState(ChannelsEnabled)

	buf, err := iio.NewBuffer(p.dev, p.size, p.cyclic)
	if err != nil {
		return err
	}
	p.buf = buf
	p.setState(BufferReady)
	p.log.Debug("buffer ready", logging.F("samples", p.size), logging.F("channels", len(chans)), logging.F("cyclic", p.cyclic))
	return nil
}
