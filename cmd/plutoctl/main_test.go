package main

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/config"
	"github.com/rjboer/GoPluto/internal/iiotest"
	"github.com/rjboer/GoPluto/internal/logging"
)

func newTestApp(t *testing.T) (*iiotest.Pluto, *app, *bytes.Buffer) {
	t.Helper()
	fake := iiotest.NewPluto()
	info := iio.ContextInfo{URI: fake.NameV, Description: fake.DescV}
	out := &bytes.Buffer{}
	a := &app{
		ctx: context.Background(),
		cfg: config.Default(),
		log: logging.New(logging.Debug, logging.Text, io.Discard),
		out: out,
		opener: &iiotest.Opener{
			Contexts: map[string]*iiotest.Context{info.URI: fake.Context},
			Infos:    []iio.ContextInfo{info},
		},
	}
	return fake, a, out
}

func TestGrammar(t *testing.T) {
	tone := filepath.Join(t.TempDir(), "tone.cf32")
	require.NoError(t, os.WriteFile(tone, make([]byte, 16), 0o600))

	parser, err := kong.New(&cli, kong.Name("plutoctl"), kong.Exit(func(int) { t.Fatal("exit") }))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"-u", "ip:10.0.0.2", "info", "--attrs"})
	require.NoError(t, err)
	assert.Equal(t, "ip:10.0.0.2", cli.URI)
	assert.True(t, cli.Info.Attrs)

	for _, args := range [][]string{
		{"scan"},
		{"rate", "3000000"},
		{"lo", "--rx", "433920000", "--tx", "915000000"},
		{"gain", "--mode", "manual", "--rx", "30", "--tx=-20"},
		{"rx", "--buffers", "4"},
		{"tx-mute"},
		{"tone-file", tone, "--hold", "1s"},
	} {
		_, err := parser.Parse(args)
		assert.NoError(t, err, args)
	}
	assert.Equal(t, time.Second, cli.ToneFile.Hold)
}

func TestScan(t *testing.T) {
	_, a, out := newTestApp(t)
	require.NoError(t, (&scanCmd{}).Run(a))
	assert.Contains(t, out.String(), "ip:192.168.2.1")
	assert.Contains(t, out.String(), "PlutoSDR Rev.C")

	out.Reset()
	a.opener = &iiotest.Opener{}
	require.NoError(t, (&scanCmd{}).Run(a))
	assert.Contains(t, out.String(), "No contexts found")
}

func TestInfo(t *testing.T) {
	_, a, out := newTestApp(t)
	require.NoError(t, (&infoCmd{Attrs: true}).Run(a))

	s := out.String()
	assert.Contains(t, s, "Description: 192.168.2.1 Linux")
	assert.Contains(t, s, "hw_model: Analog Devices PlutoSDR Rev.C")
	assert.Contains(t, s, "iio:device0: ad9361-phy")
	assert.Contains(t, s, "le:S12/16>>0")
	assert.Contains(t, s, "frequency = 2400000000")
}

func TestInfoByURI(t *testing.T) {
	_, a, _ := newTestApp(t)
	a.cfg.URI = "ip:10.9.9.9"
	assert.ErrorIs(t, (&infoCmd{}).Run(a), iio.ErrNotFound)
}

func TestRate(t *testing.T) {
	_, a, out := newTestApp(t)
	require.NoError(t, (&rateCmd{}).Run(a))
	assert.Equal(t, "sample rate: 30720000 Hz\n", out.String())

	assert.ErrorIs(t, (&rateCmd{Hz: 500000}).Run(a), iio.ErrState)
}

func TestLO(t *testing.T) {
	fake, a, out := newTestApp(t)
	require.NoError(t, (&loCmd{RX: 433920000}).Run(a))
	assert.Equal(t, "rx lo: 433920000 Hz\ntx lo: 2450000000 Hz\n", out.String())
	assert.Len(t, fake.Journal.Writes, 1)
}

func TestGain(t *testing.T) {
	_, a, out := newTestApp(t)
	require.NoError(t, (&gainCmd{Mode: "manual", RX: "30", TX: "-20"}).Run(a))
	assert.Equal(t, "mode: manual\nrx gain: 30.00 dB\ntx gain: -20.00 dB\n", out.String())

	assert.Error(t, (&gainCmd{RX: "loud"}).Run(a))
}

func TestConfiguredSettingsApplied(t *testing.T) {
	fake, a, _ := newTestApp(t)
	a.cfg.TX.LO = 915000000
	require.NoError(t, (&txMuteCmd{}).Run(a))
	assert.Equal(t, "915000000", fake.Phy.Channel("altvoltage1", true).Attr().Value("frequency"))
}

func TestRX(t *testing.T) {
	fake, a, out := newTestApp(t)
	fake.RX.RXData = []byte{0x05, 0x00, 0xfb, 0xff}
	path := filepath.Join(t.TempDir(), "rx.cf32")

	require.NoError(t, (&rxCmd{Buffers: 2, Out: path}).Run(a))
	assert.Contains(t, out.String(), "channel 0: 2048 samples, rms 7.1, peak 7.1")
	assert.Contains(t, out.String(), "tone +0 Hz at -49.2 dBFS")

	samples, err := readCFile(path)
	require.NoError(t, err)
	require.Len(t, samples, 2048)
	assert.Equal(t, complex64(complex(5, -5)), samples[0])

	assert.Error(t, (&rxCmd{}).Run(a))
}

func TestTXMute(t *testing.T) {
	fake, a, out := newTestApp(t)
	require.NoError(t, (&txMuteCmd{}).Run(a))
	assert.Equal(t, "tx muted\n", out.String())
	assert.Equal(t, "0", fake.TX.Channel("altvoltage0", true).Attr().Value("raw"))
}

func TestToneFile(t *testing.T) {
	fake, a, out := newTestApp(t)
	path := filepath.Join(t.TempDir(), "tone.cf32")
	require.NoError(t, appendCFile(path, []complex64{complex(1, -1), complex(0.7, 0.2)}))

	require.NoError(t, (&toneFileCmd{File: path, Hold: time.Millisecond}).Run(a))
	assert.Contains(t, out.String(), "transmitting 2 samples")
	require.Len(t, fake.TX.Pushed, 1)
	assert.Equal(t, []byte{0x00, 0x40, 0x00, 0xc0, 0x00, 0x40, 0x00, 0x00}, fake.TX.Pushed[0])
}

func TestToneFileFractionalToneIsNotSilent(t *testing.T) {
	fake, a, _ := newTestApp(t)
	tone := make([]complex64, 64)
	for i := range tone {
		phase := 2 * math.Pi * float64(i) / 16
		tone[i] = complex(float32(0.7*math.Cos(phase)), float32(0.7*math.Sin(phase)))
	}
	path := filepath.Join(t.TempDir(), "tone.cf32")
	require.NoError(t, appendCFile(path, tone))

	require.NoError(t, (&toneFileCmd{File: path, Hold: time.Millisecond}).Run(a))
	require.Len(t, fake.TX.Pushed, 1)
	require.Len(t, fake.TX.Pushed[0], 256)
	nonZero := 0
	for _, b := range fake.TX.Pushed[0] {
		if b != 0 {
			nonZero++
		}
	}
	assert.NotZero(t, nonZero)
}

func TestToneFileRejectsOutOfRange(t *testing.T) {
	fake, a, _ := newTestApp(t)
	path := filepath.Join(t.TempDir(), "tone.cf32")
	require.NoError(t, appendCFile(path, []complex64{complex(0.5, 0), complex(2, 0)}))

	assert.ErrorContains(t, (&toneFileCmd{File: path}).Run(a), "outside [-1, 1]")
	assert.Empty(t, fake.TX.Pushed)
}

func TestToDAC(t *testing.T) {
	got, err := toDAC([]complex64{complex(0.49, -0.51), complex(-1, 1)})
	require.NoError(t, err)
	assert.Equal(t, []complex64{complex(0, -1), complex(-1, 1)}, got)

	_, err = toDAC([]complex64{complex(float32(math.NaN()), 0)})
	assert.Error(t, err)
}

func TestToneFileStopsOnCancel(t *testing.T) {
	_, a, _ := newTestApp(t)
	path := filepath.Join(t.TempDir(), "tone.cf32")
	require.NoError(t, appendCFile(path, []complex64{0, 0}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.ctx = ctx
	require.NoError(t, (&toneFileCmd{File: path}).Run(a))
}

func TestCFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.cf32")
	require.NoError(t, appendCFile(path, []complex64{complex(0.25, -0.5)}))
	require.NoError(t, appendCFile(path, []complex64{complex(1, 0)}))

	got, err := readCFile(path)
	require.NoError(t, err)
	assert.Equal(t, []complex64{complex(0.25, -0.5), complex(1, 0)}, got)

	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o600))
	_, err = readCFile(path)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	rms, peak := summarize(nil)
	assert.Zero(t, rms)
	assert.Zero(t, peak)

	rms, peak = summarize([]complex64{complex(3, 4), 0})
	assert.InDelta(t, 3.5355, rms, 1e-3)
	assert.Equal(t, 5.0, peak)
}
