// Package connectionmgr speaks the IIOD ASCII protocol over a single TCP
// connection. Every command is a request line followed by an integer reply;
// some carry a payload in one direction or the other.
package connectionmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/GoPluto/internal/logging"
)

// DefaultPort is the TCP port IIOD listens on.
const DefaultPort = 30431

// ErrNotConnected is returned by every command issued before Connect.
var ErrNotConnected = errors.New("not connected")

type Manager struct {
	Address string
	// Timeout bounds each read and write on the socket. Zero disables it.
	Timeout time.Duration
	// Retries is the number of extra dial attempts made by Connect.
	Retries uint64

	log  logging.Logger
	mu   sync.Mutex
	conn net.Conn
}

// ---------- Construction / lifecycle ----------

func New(addr string) *Manager {
	return &Manager{
		Address: addr,
		Timeout: 5 * time.Second,
		Retries: 3,
		log:     logging.Default().With(logging.F("iiod", addr)),
	}
}

// Connect dials Address, retrying with exponential backoff until Retries
// extra attempts have failed or ctx is done.
func (m *Manager) Connect(ctx context.Context) error {
	var d net.Dialer
	attempt := 0
	dial := func() error {
		attempt++
		dctx := ctx
		if m.Timeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, m.Timeout)
			defer cancel()
		}
		c, err := d.DialContext(dctx, "tcp", m.Address)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.conn = c
		m.mu.Unlock()
		return nil
	}

	// WithMaxRetries treats zero as unlimited, so a single attempt needs StopBackOff.
	var base backoff.BackOff = &backoff.StopBackOff{}
	if m.Retries > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxElapsedTime = 0
		base = backoff.WithMaxRetries(b, m.Retries)
	}
	policy := backoff.WithContext(base, ctx)
	notify := func(err error, wait time.Duration) {
		m.log.Warn("dial failed", logging.F("attempt", attempt), logging.F("retry_in", wait), logging.F("err", err))
	}
	if err := backoff.RetryNotify(dial, policy, notify); err != nil {
		return fmt.Errorf("connect %s: %w", m.Address, err)
	}
	m.log.Debug("connected", logging.F("attempts", attempt))
	return nil
}

// SetConn injects an established connection (tests, SSH tunnels, etc.).
func (m *Manager) SetConn(conn net.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = conn
}

// SetTimeout changes the local socket timeout.
func (m *Manager) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Timeout = d
}

func (m *Manager) SetLogger(l logging.Logger) {
	m.log = l
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// ---------- Raw I/O (NO BUFFERING) ----------
//
// Reads go straight to the socket so no reply bytes are consumed ahead of the
// command that owns them. Callers hold m.mu.

func (m *Manager) applyReadDeadline() {
	if m.Timeout > 0 {
		_ = m.conn.SetReadDeadline(time.Now().Add(m.Timeout))
	}
}

func (m *Manager) applyWriteDeadline() {
	if m.Timeout > 0 {
		_ = m.conn.SetWriteDeadline(time.Now().Add(m.Timeout))
	}
}

// writeAll writes the full buffer, handling short writes.
func (m *Manager) writeAll(b []byte) error {
	if m.conn == nil {
		return ErrNotConnected
	}
	for len(b) > 0 {
		m.applyWriteDeadline()
		n, err := m.conn.Write(b)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		b = b[n:]
	}
	return nil
}

// readAll reads exactly len(b) bytes.
func (m *Manager) readAll(b []byte) error {
	if m.conn == nil {
		return ErrNotConnected
	}
	m.applyReadDeadline()
	if _, err := io.ReadFull(m.conn, b); err != nil {
		return fmt.Errorf("read %d bytes: %w", len(b), err)
	}
	return nil
}

// readLine reads up to and including the next LF, at most maxLen bytes, and
// returns the line without its terminator.
func (m *Manager) readLine(maxLen int) (string, error) {
	if m.conn == nil {
		return "", ErrNotConnected
	}
	var (
		line []byte
		one  [1]byte
	)
	for len(line) < maxLen {
		m.applyReadDeadline()
		if _, err := m.conn.Read(one[:]); err != nil {
			return "", fmt.Errorf("read line: %w", err)
		}
		if one[0] == '\n' {
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			return string(line), nil
		}
		line = append(line, one[0])
	}
	return "", fmt.Errorf("line longer than %d bytes", maxLen)
}

// discard drains exactly n bytes.
func (m *Manager) discard(n int) error {
	if n <= 0 {
		return nil
	}
	tmp := make([]byte, min(n, 4096))
	for n > 0 {
		chunk := min(n, len(tmp))
		if err := m.readAll(tmp[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
