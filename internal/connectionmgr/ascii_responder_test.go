package connectionmgr

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"testing"
	"time"
)

// asciiMockStep is one exchange with the fake server: it reads a command line
// (unless noLine is set) and then expectPayload, then answers with an
// integer status and raw reply bytes.
type asciiMockStep struct {
	name           string
	expectLine     string
	noLine         bool
	expectPayload  []byte
	responseStatus *int
	responseRaw    []byte
}

type asciiMockResponder struct {
	t     *testing.T
	conn  net.Conn
	steps []asciiMockStep
	done  chan struct{}
	errCh chan error
}

func newASCIIMockResponder(t *testing.T, steps []asciiMockStep) (net.Conn, *asciiMockResponder) {
	t.Helper()

	client, server := net.Pipe()
	responder := &asciiMockResponder{
		t:     t,
		conn:  server,
		steps: steps,
		done:  make(chan struct{}),
		errCh: make(chan error, 1),
	}

	go responder.run()

	return client, responder
}

func (r *asciiMockResponder) run() {
	defer close(r.done)
	defer close(r.errCh)

	reader := bufio.NewReader(r.conn)
	for idx, step := range r.steps {
		if !step.noLine {
			line, err := reader.ReadString('\n')
			if err != nil {
				r.errCh <- fmt.Errorf("step %d (%s): read command: %w", idx, step.name, err)
				return
			}
			if line != step.expectLine {
				r.errCh <- fmt.Errorf("step %d (%s): unexpected command %q", idx, step.name, line)
				return
			}
		}

		if len(step.expectPayload) > 0 {
			payload := make([]byte, len(step.expectPayload))
			if _, err := io.ReadFull(reader, payload); err != nil {
				r.errCh <- fmt.Errorf("step %d (%s): read payload: %w", idx, step.name, err)
				return
			}
			if !bytes.Equal(step.expectPayload, payload) {
				r.errCh <- fmt.Errorf("step %d (%s): payload mismatch: %q", idx, step.name, payload)
				return
			}
		}

		if step.responseStatus != nil {
			if _, err := r.conn.Write(integerLine(*step.responseStatus)); err != nil {
				r.errCh <- fmt.Errorf("step %d (%s): write status: %w", idx, step.name, err)
				return
			}
		}
		if len(step.responseRaw) > 0 {
			if _, err := r.conn.Write(step.responseRaw); err != nil {
				r.errCh <- fmt.Errorf("step %d (%s): write payload: %w", idx, step.name, err)
				return
			}
		}
	}
}

func (r *asciiMockResponder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		r.conn.Close()
		t.Fatalf("mock responder did not finish")
	}
	if err := <-r.errCh; err != nil {
		t.Fatalf("mock responder error: %v", err)
	}
}

// integerLine renders a status the way iiod does on older firmware: the
// number padded with NUL bytes up to a fixed size line.
func integerLine(val int) []byte {
	payload := make([]byte, 64)
	copy(payload, fmt.Sprintf("%d", val))
	payload[len(payload)-1] = '\n'
	return payload
}

func intPtr(v int) *int {
	return &v
}

func newTestManager(conn net.Conn) *Manager {
	m := New("pipe")
	m.SetConn(conn)
	return m
}
