package connectionmgr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rjboer/GoPluto/internal/logging"
)

const maxMaskLine = 1024

func (m *Manager) status(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret, err := m.exec(cmd)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return statusErr(cmd, ret)
}

// SetServerTimeout sets the server side I/O timeout.
func (m *Manager) SetServerTimeout(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("negative timeout %s", d)
	}
	return m.status(fmt.Sprintf("TIMEOUT %d", d.Milliseconds()))
}

// SetBuffersCount sets the number of kernel buffers of a device.
func (m *Manager) SetBuffersCount(dev string, n uint) error {
	if n == 0 {
		return errors.New("buffer count must be positive")
	}
	return m.status(fmt.Sprintf("SET %s BUFFERS_COUNT %d", dev, n))
}

// FetchXML sends PRINT and returns the context description.
func (m *Manager) FetchXML() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.exec("PRINT")
	if err != nil {
		return nil, fmt.Errorf("PRINT: %w", err)
	}
	if n <= 0 {
		return nil, fmt.Errorf("PRINT returned length %d", n)
	}

	buf := make([]byte, n+1) // +1 for trailing '\n'
	if err := m.readAll(buf); err != nil {
		return nil, fmt.Errorf("read xml: %w", err)
	}
	return buf[:n], nil
}

// Version asks the server for its protocol version, e.g. "0.25.0000000".
func (m *Manager) Version() (major, minor uint, git string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeLine("VERSION"); err != nil {
		return 0, 0, "", err
	}
	line, err := m.readLine(64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("VERSION: %w", err)
	}
	parts := strings.SplitN(strings.TrimSpace(line), ".", 3)
	if len(parts) < 2 {
		return 0, 0, "", fmt.Errorf("VERSION reply %q", line)
	}
	ma, err1 := strconv.ParseUint(parts[0], 10, 32)
	mi, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, "", fmt.Errorf("VERSION reply %q", line)
	}
	if len(parts) == 3 {
		git = parts[2]
	}
	return uint(ma), uint(mi), git, nil
}

// OpenBuffer opens a device buffer of samples samples per channel. maskHex
// is the channel mask exactly as IIOD expects it, e.g. "00000003".
func (m *Manager) OpenBuffer(dev string, samples int, maskHex string, cyclic bool) error {
	if samples <= 0 {
		return fmt.Errorf("buffer of %d samples", samples)
	}
	cmd := fmt.Sprintf("OPEN %s %d %s", dev, samples, maskHex)
	if cyclic {
		cmd += " CYCLIC"
	}
	if err := m.status(cmd); err != nil {
		return err
	}
	m.log.Debug("buffer open", logging.F("dev", dev), logging.F("samples", samples), logging.F("mask", maskHex), logging.F("cyclic", cyclic))
	return nil
}

// CloseBuffer closes the open buffer of dev.
func (m *Manager) CloseBuffer(dev string) error {
	return m.status("CLOSE " + dev)
}

// ReadBuffer fills dst from the open buffer of dev and returns the byte count
// and the channel mask reported with the first chunk.
//
//	READBUF <dev> <len>
//	-> integer N
//	   N > 0: mask line (first chunk only), then N bytes
//	   N == 0: done
//	   N < 0: errno
func (m *Manager) ReadBuffer(dev string, dst []byte) (int, string, error) {
	if len(dst) == 0 {
		return 0, "", nil
	}
	cmd := fmt.Sprintf("READBUF %s %d", dev, len(dst))

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeLine(cmd); err != nil {
		return 0, "", err
	}

	var (
		mask    string
		gotMask bool
	)
	total := 0
	for total < len(dst) {
		n, err := m.readInteger()
		if err != nil {
			return total, mask, fmt.Errorf("%s: %w", cmd, err)
		}
		if n < 0 {
			return total, mask, statusErr(cmd, n)
		}
		if n == 0 {
			break
		}
		if !gotMask {
			if mask, err = m.readLine(maxMaskLine); err != nil {
				return total, mask, fmt.Errorf("%s: mask: %w", cmd, err)
			}
			gotMask = true
		}
		if total+n > len(dst) {
			if err := m.discard(n); err != nil {
				return total, mask, fmt.Errorf("%s: %w", cmd, err)
			}
			return total, mask, fmt.Errorf("%s: server sent %d bytes with %d left", cmd, n, len(dst)-total)
		}
		if err := m.readAll(dst[total : total+n]); err != nil {
			return total, mask, fmt.Errorf("%s: %w", cmd, err)
		}
		total += n
	}
	return total, mask, nil
}

// WriteBuffer sends src to the open buffer of dev and returns the byte count
// the server accepted.
//
//	WRITEBUF <dev> <len>
//	-> integer status
//	<len> bytes
//	-> count or errno
func (m *Manager) WriteBuffer(dev string, src []byte) (int, error) {
	cmd := fmt.Sprintf("WRITEBUF %s %d", dev, len(src))

	m.mu.Lock()
	defer m.mu.Unlock()

	ret, err := m.exec(cmd)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	if err := statusErr(cmd, ret); err != nil {
		return 0, err
	}
	if err := m.writeAll(src); err != nil {
		return 0, err
	}
	ret, err = m.readInteger()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	if err := statusErr(cmd, ret); err != nil {
		return 0, err
	}
	return ret, nil
}
