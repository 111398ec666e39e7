package connectionmgr

import (
	"fmt"
	"strconv"
	"syscall"
)

// StatusError is a negative errno returned by the server for a command.
type StatusError struct {
	Cmd  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: iiod status %d (%s)", e.Cmd, e.Code, syscall.Errno(-e.Code))
}

// Errno returns the positive error number.
func (e *StatusError) Errno() syscall.Errno { return syscall.Errno(-e.Code) }

func statusErr(cmd string, code int) error {
	if code >= 0 {
		return nil
	}
	return &StatusError{Cmd: cmd, Code: code}
}

// readInteger reads a single ASCII integer terminated by '\n'.
// Stray CR, LF and non-numeric bytes before the number are skipped, matching
// libiio's iiod_client_read_integer().
func (m *Manager) readInteger() (int, error) {
	if m.conn == nil {
		return 0, ErrNotConnected
	}

	var buf []byte
	var one [1]byte
	started := false

	for {
		m.applyReadDeadline()
		if _, err := m.conn.Read(one[:]); err != nil {
			return 0, fmt.Errorf("read integer: %w", err)
		}

		b := one[0]
		if b == '\n' {
			if started {
				break
			}
			continue
		}
		if (b >= '0' && b <= '9') || (b == '-' && !started) {
			started = true
			buf = append(buf, b)
		}
	}

	val, err := strconv.Atoi(string(buf))
	if err != nil {
		return 0, fmt.Errorf("parse integer %q: %w", string(buf), err)
	}
	return val, nil
}

// hasLineEnding checks whether the string already ends with CR or LF.
func hasLineEnding(s string) bool {
	return len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r')
}

// writeLine writes a command line terminated with CRLF.
func (m *Manager) writeLine(cmd string) error {
	if !hasLineEnding(cmd) {
		cmd += "\r\n"
	}
	return m.writeAll([]byte(cmd))
}

func (m *Manager) exec(cmd string) (int, error) {
	if err := m.writeLine(cmd); err != nil {
		return 0, err
	}
	return m.readInteger()
}

// ExecCommand sends a single ASCII command and returns the integer reply.
// Negative replies are returned as is; the caller decides what they mean.
func (m *Manager) ExecCommand(cmd string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exec(cmd)
}
