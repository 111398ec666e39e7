package connectionmgr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rjboer/GoPluto/internal/logging"
)

// AttrKind selects the attribute namespace addressed by a READ or WRITE.
type AttrKind int

const (
	DeviceAttr AttrKind = iota
	DebugAttr
	BufferAttr
	ChannelAttr
)

// AttrTarget names the owner of an attribute.
type AttrTarget struct {
	Device  string
	Kind    AttrKind
	Channel string
	Output  bool
}

// Device, Debug, Buffer and Channel build targets.
func Device(dev string) AttrTarget { return AttrTarget{Device: dev} }
func Debug(dev string) AttrTarget  { return AttrTarget{Device: dev, Kind: DebugAttr} }
func Buffer(dev string) AttrTarget { return AttrTarget{Device: dev, Kind: BufferAttr} }
func Channel(dev, ch string, output bool) AttrTarget {
	return AttrTarget{Device: dev, Kind: ChannelAttr, Channel: ch, Output: output}
}

// prefix renders the part of the command between the verb and the attribute
// name, e.g. "iio:device0 INPUT voltage0".
func (t AttrTarget) prefix() (string, error) {
	if t.Device == "" {
		return "", errors.New("device id is required")
	}
	switch t.Kind {
	case DeviceAttr:
		return t.Device, nil
	case DebugAttr:
		return t.Device + " DEBUG", nil
	case BufferAttr:
		return t.Device + " BUFFER", nil
	case ChannelAttr:
		if t.Channel == "" {
			return "", errors.New("channel id is required")
		}
		dir := "INPUT"
		if t.Output {
			dir = "OUTPUT"
		}
		return fmt.Sprintf("%s %s %s", t.Device, dir, t.Channel), nil
	default:
		return "", fmt.Errorf("attribute kind %d", t.Kind)
	}
}

// ReadAttr reads one attribute value.
//
//	READ <target> <attr>\r\n
//	-> length or negative errno
//	-> <length> bytes, then '\n'
func (m *Manager) ReadAttr(t AttrTarget, attr string) (string, error) {
	p, err := t.prefix()
	if err != nil {
		return "", err
	}
	if attr == "" {
		return "", errors.New("attribute name is required")
	}
	cmd := fmt.Sprintf("READ %s %s", p, attr)

	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.exec(cmd)
	if err != nil {
		return "", err
	}
	if err := statusErr(cmd, n); err != nil {
		return "", err
	}
	buf := make([]byte, n+1)
	if err := m.readAll(buf); err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	v := strings.TrimRight(string(buf[:n]), "\x00")
	m.log.Debug("attr read", logging.F("cmd", cmd), logging.F("value", v))
	return v, nil
}

// WriteAttr writes one attribute value and returns the server's reply: the
// number of bytes accepted, or a negative errno.
//
//	WRITE <target> <attr> <len>\r\n<value>
//	-> count or negative errno
func (m *Manager) WriteAttr(t AttrTarget, attr, value string) (int, error) {
	p, err := t.prefix()
	if err != nil {
		return 0, err
	}
	if attr == "" {
		return 0, errors.New("attribute name is required")
	}
	payload := []byte(value)
	cmd := fmt.Sprintf("WRITE %s %s %d", p, attr, len(payload))

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeLine(cmd); err != nil {
		return 0, err
	}
	if err := m.writeAll(payload); err != nil {
		return 0, err
	}
	ret, err := m.readInteger()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	m.log.Debug("attr write", logging.F("cmd", cmd), logging.F("value", value), logging.F("ret", ret))
	return ret, nil
}
