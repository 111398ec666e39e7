package iiod

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const plutoXML = `<?xml version="1.0" encoding="utf-8"?>
<context name="network" version-major="0" version-minor="25" version-git="v0.25" description="192.168.2.1 Linux (none) 4.14.0">
<context-attribute name="hw_model" value="Analog Devices PlutoSDR Rev.B (Z7010-AD9363A)" />
<context-attribute name="fw_version" value="v0.31" />
<device id="iio:device0" name="ad9361-phy">
<channel id="voltage0" type="input">
<attribute name="hardwaregain" filename="in_voltage0_hardwaregain" />
<attribute name="rf_bandwidth" filename="in_voltage_rf_bandwidth" />
</channel>
<channel id="altvoltage0" name="RX_LO" type="output">
<attribute name="frequency" />
</channel>
<attribute name="ensm_mode" />
<debug-attribute name="direct_reg_access" />
</device>
<device id="iio:device3" name="cf-ad9361-dds-core-lpc">
<channel id="voltage0" type="output">
<scan-element index="0" format="le:S16/16&gt;&gt;0" />
<attribute name="raw" filename="out_voltage0_raw" />
</channel>
<channel id="voltage1" type="output">
<scan-element index="1" format="le:S16/16&gt;&gt;0" />
</channel>
</device>
<device id="iio:device4" name="cf-ad9361-lpc">
<channel id="voltage0" type="input">
<scan-element index="0" format="le:S12/16&gt;&gt;0" />
</channel>
<channel id="voltage1" type="input">
<scan-element index="1" format="le:S12/16&gt;&gt;0" scale="0.5" />
</channel>
<buffer-attribute name="watermark" />
</device>
</context>`

// fakeIIOD is a minimal IIOD server speaking the ASCII protocol on
// localhost.
type fakeIIOD struct {
	ln  net.Listener
	xml string

	mu      sync.Mutex
	attrs   map[string]string
	replies map[string]int
	cmds    []string
	written map[string]string
	rx      []byte
	pushed  []byte
}

func newFakeIIOD(t *testing.T, doc string) *fakeIIOD {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeIIOD{
		ln:      ln,
		xml:     doc,
		attrs:   make(map[string]string),
		replies: make(map[string]int),
		written: make(map[string]string),
	}
	t.Cleanup(func() { ln.Close() })
	go f.accept()
	return f
}

func (f *fakeIIOD) uri() string {
	return "ip:" + f.ln.Addr().String()
}

func (f *fakeIIOD) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeIIOD) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func (f *fakeIIOD) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attrs[key] = value
}

// reply makes the server answer READ and WRITE of key with code.
func (f *fakeIIOD) reply(key string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[key] = code
}

func (f *fakeIIOD) setRX(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = append([]byte(nil), data...)
}

func (f *fakeIIOD) writtenValue(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written[key]
}

func (f *fakeIIOD) pushedBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.pushed...)
}

func (f *fakeIIOD) accept() {
	for {
		c, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.serve(c)
	}
}

func (f *fakeIIOD) serve(c net.Conn) {
	defer c.Close()
	r := bufio.NewReader(c)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if err := f.handle(line, r, c); err != nil {
			return
		}
	}
}

func (f *fakeIIOD) handle(line string, r *bufio.Reader, w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, line)

	verb, rest, _ := strings.Cut(line, " ")
	fields := strings.Fields(rest)
	switch verb {
	case "PRINT":
		_, err := fmt.Fprintf(w, "%d\n%s\n", len(f.xml), f.xml)
		return err
	case "VERSION":
		_, err := io.WriteString(w, "0.25.abc1234\n")
		return err
	case "TIMEOUT", "SET", "OPEN", "CLOSE":
		_, err := io.WriteString(w, "0\n")
		return err
	case "READ":
		v, ok := f.attrs[rest]
		if code, refused := f.replies[rest]; refused {
			_, err := fmt.Fprintf(w, "%d\n", code)
			return err
		}
		if !ok {
			_, err := io.WriteString(w, "-2\n")
			return err
		}
		_, err := fmt.Fprintf(w, "%d\n%s\n", len(v), v)
		return err
	case "WRITE":
		n, _ := strconv.Atoi(fields[len(fields)-1])
		key := strings.Join(fields[:len(fields)-1], " ")
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return err
		}
		if code, refused := f.replies[key]; refused {
			_, err := fmt.Fprintf(w, "%d\n", code)
			return err
		}
		f.written[key] = string(payload)
		f.attrs[key] = string(payload)
		_, err := fmt.Fprintf(w, "%d\n", n)
		return err
	case "READBUF":
		n, _ := strconv.Atoi(fields[1])
		chunk := f.rx[:min(n, len(f.rx))]
		if len(chunk) > 0 {
			if _, err := fmt.Fprintf(w, "%d\n00000003\n", len(chunk)); err != nil {
				return err
			}
			if _, err := w.Write(chunk); err != nil {
				return err
			}
		}
		if len(chunk) < n {
			_, err := io.WriteString(w, "0\n")
			return err
		}
		return nil
	case "WRITEBUF":
		n, _ := strconv.Atoi(fields[1])
		if _, err := io.WriteString(w, "0\n"); err != nil {
			return err
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return err
		}
		f.pushed = append(f.pushed, payload...)
		_, err := fmt.Fprintf(w, "%d\n", n)
		return err
	default:
		_, err := io.WriteString(w, "-22\n")
		return err
	}
}
