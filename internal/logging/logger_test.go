package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": Debug, "": Info, "WARNING": Warn, " error ": Error}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": JSON, "text": Text, "logfmt": Logfmt, "": Text} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Debug, JSON, &buf).With(F("device", "cf-ad9361-lpc"))
	l.Info("buffer ready", F("samples", 1024))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "buffer ready" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["device"] != "cf-ad9361-lpc" {
		t.Fatalf("missing inherited field: %v", entry)
	}
	if entry["samples"] != float64(1024) {
		t.Fatalf("missing call field: %v", entry)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, Text, &buf)
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestDefaultIsReplaceable(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	SetDefault(New(Info, Logfmt, &buf))
	Default().Info("hello", F("k", "v"))
	if !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("default logger not replaced: %q", buf.String())
	}
	SetDefault(nil)
	if Default() == nil {
		t.Fatalf("SetDefault(nil) cleared the logger")
	}
}
