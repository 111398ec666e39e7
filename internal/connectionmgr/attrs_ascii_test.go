package connectionmgr

import (
	"errors"
	"strings"
	"testing"
)

func TestReadAttrTargets(t *testing.T) {
	tests := []struct {
		name   string
		target AttrTarget
		attr   string
		line   string
		value  string
	}{
		{"device", Device("iio:device0"), "calib_mode", "READ iio:device0 calib_mode\r\n", "auto"},
		{"debug", Debug("iio:device0"), "loopback", "READ iio:device0 DEBUG loopback\r\n", "0"},
		{"buffer", Buffer("iio:device3"), "watermark", "READ iio:device3 BUFFER watermark\r\n", "2048"},
		{"input", Channel("iio:device0", "voltage0", false), "hardwaregain", "READ iio:device0 INPUT voltage0 hardwaregain\r\n", "71.000000 dB"},
		{"output", Channel("iio:device0", "altvoltage1", true), "frequency", "READ iio:device0 OUTPUT altvoltage1 frequency\r\n", "2450000000"},
		{"long", Device("iio:device0"), "filter_fir_config", "READ iio:device0 filter_fir_config\r\n", strings.Repeat("z", 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, responder := newASCIIMockResponder(t, []asciiMockStep{{
				name:           tt.name,
				expectLine:     tt.line,
				responseStatus: intPtr(len(tt.value)),
				responseRaw:    []byte(tt.value + "\n"),
			}})
			m := newTestManager(client)

			got, err := m.ReadAttr(tt.target, tt.attr)
			responder.wait(t)
			if err != nil {
				t.Fatalf("ReadAttr returned error: %v", err)
			}
			if got != tt.value {
				t.Fatalf("unexpected value: got %q want %q", got, tt.value)
			}
		})
	}
}

func TestReadAttrEmptyValue(t *testing.T) {
	client, responder := newASCIIMockResponder(t, []asciiMockStep{{
		name:           "READ",
		expectLine:     "READ iio:device0 label\r\n",
		responseStatus: intPtr(0),
		responseRaw:    []byte("\n"),
	}})
	m := newTestManager(client)

	got, err := m.ReadAttr(Device("iio:device0"), "label")
	responder.wait(t)
	if err != nil || got != "" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
}

func TestReadAttrErrno(t *testing.T) {
	client, responder := newASCIIMockResponder(t, []asciiMockStep{{
		name:           "READ",
		expectLine:     "READ iio:device0 INPUT voltage9 raw\r\n",
		responseStatus: intPtr(-19),
	}})
	m := newTestManager(client)

	_, err := m.ReadAttr(Channel("iio:device0", "voltage9", false), "raw")
	responder.wait(t)

	var se *StatusError
	if !errors.As(err, &se) || se.Code != -19 {
		t.Fatalf("expected status -19, got %v", err)
	}
}

func TestWriteAttrPayloadOrdering(t *testing.T) {
	client, responder := newASCIIMockResponder(t, []asciiMockStep{{
		name:           "WRITE",
		expectLine:     "WRITE iio:device0 INPUT voltage0 sampling_frequency 7\r\n",
		expectPayload:  []byte("1000000"),
		responseStatus: intPtr(7),
	}})
	m := newTestManager(client)

	n, err := m.WriteAttr(Channel("iio:device0", "voltage0", false), "sampling_frequency", "1000000")
	responder.wait(t)
	if err != nil {
		t.Fatalf("WriteAttr returned error: %v", err)
	}
	if n != 7 {
		t.Fatalf("unexpected count %d", n)
	}
}

func TestWriteAttrRejected(t *testing.T) {
	client, responder := newASCIIMockResponder(t, []asciiMockStep{{
		name:           "WRITE",
		expectLine:     "WRITE iio:device0 DEBUG loopback 1\r\n",
		expectPayload:  []byte("7"),
		responseStatus: intPtr(-22),
	}})
	m := newTestManager(client)

	n, err := m.WriteAttr(Debug("iio:device0"), "loopback", "7")
	responder.wait(t)
	if err != nil {
		t.Fatalf("a rejected write is not a transport error: %v", err)
	}
	if n != -22 {
		t.Fatalf("unexpected count %d", n)
	}
}

func TestAttrTargetValidation(t *testing.T) {
	m := New("unused")
	if _, err := m.ReadAttr(AttrTarget{}, "x"); err == nil {
		t.Fatalf("expected error for missing device")
	}
	if _, err := m.ReadAttr(Channel("iio:device0", "", true), "x"); err == nil {
		t.Fatalf("expected error for missing channel")
	}
	if _, err := m.WriteAttr(Device("iio:device0"), "", "1"); err == nil {
		t.Fatalf("expected error for missing attribute")
	}
}
