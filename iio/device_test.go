package iio_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoPluto/iio"
	"github.com/rjboer/GoPluto/internal/iiotest"
)

func TestParseDataFormat(t *testing.T) {
	f, err := iio.ParseDataFormat("le:S12/16>>0")
	require.NoError(t, err)
	assert.Equal(t, iio.DataFormat{Length: 16, Bits: 12, Repeat: 1, IsSigned: true, IsFullyDefined: true}, f)
	assert.Equal(t, "le:S12/16>>0", f.String())

	f, err = iio.ParseDataFormat("be:u8/16X2>>4")
	require.NoError(t, err)
	assert.Equal(t, iio.DataFormat{Length: 16, Bits: 8, Shift: 4, Repeat: 2, IsBE: true}, f)
	assert.Equal(t, "be:u8/16X2>>4", f.String())

	for _, bad := range []string{"", "xx:S12/16>>0", "le:Q12/16>>0", "le:S12>>0", "le:S12/16", "le:S20/16>>0", "le:S12/12>>0"} {
		_, err := iio.ParseDataFormat(bad)
		assert.ErrorIs(t, err, iio.ErrParse, "format %q", bad)
	}
}

type elem struct {
	idx int
	f   string
}

func (e elem) Index() int { return e.idx }
func (e elem) Format() iio.DataFormat {
	f, _ := iio.ParseDataFormat(e.f)
	return f
}

func TestLayoutAlignment(t *testing.T) {
	l := iio.NewLayout([]iio.ScanElement{
		elem{idx: 2, f: "le:s32/32>>0"},
		elem{idx: 0, f: "le:s16/16>>0"},
		elem{idx: 1, f: "le:u8/8>>0"},
	})
	assert.Equal(t, []iio.Slot{
		{Index: 0, Offset: 0, Size: 2},
		{Index: 1, Offset: 2, Size: 1},
		{Index: 2, Offset: 4, Size: 4},
	}, l.Slots)
	assert.Equal(t, 8, l.FrameSize)

	_, ok := l.Find(7)
	assert.False(t, ok)
}

func TestFindDevice(t *testing.T) {
	p := iiotest.NewPluto()
	p.RX.LabelV = "rx-adc"
	ctx := iio.NewContext(p.Context)

	for _, key := range []string{iiotest.RXName, "iio:device3", "rx-adc"} {
		d, err := ctx.FindDevice(key)
		require.NoError(t, err, key)
		assert.Equal(t, iiotest.RXName, d.Name())
	}
	_, err := ctx.FindDevice("nope")
	assert.ErrorIs(t, err, iio.ErrNotFound)
}

func TestFindChannelDirection(t *testing.T) {
	p := iiotest.NewPluto()
	ctx := iio.NewContext(p.Context)
	phy, err := ctx.FindDevice(iiotest.PhyName)
	require.NoError(t, err)

	in, err := phy.FindChannel("voltage0", iio.Input)
	require.NoError(t, err)
	out, err := phy.FindChannel("voltage0", iio.Output)
	require.NoError(t, err)
	assert.False(t, in.IsOutput())
	assert.True(t, out.IsOutput())
	assert.NotSame(t, in, out)

	_, err = phy.FindChannel("altvoltage0", iio.Input)
	assert.ErrorIs(t, err, iio.ErrNotFound)

	// Enumeration happens once.
	assert.Same(t, in, phy.Channels()[0])
}

func TestSampleSizeFollowsEnabledChannels(t *testing.T) {
	p := iiotest.NewPluto()
	ctx := iio.NewContext(p.Context)
	rx, err := ctx.FindDevice(iiotest.RXName)
	require.NoError(t, err)

	_, err = rx.SampleSize()
	assert.ErrorIs(t, err, iio.ErrResource)

	for _, ch := range rx.ScanElements(iio.Input)[:2] {
		ch.Enable()
	}
	size, err := rx.SampleSize()
	require.NoError(t, err)
	assert.Equal(t, 4, size)
	assert.Len(t, rx.EnabledChannels(), 2)
}

func TestRegisterAccess(t *testing.T) {
	p := iiotest.NewPluto()
	ctx := iio.NewContext(p.Context)
	phy, err := ctx.FindDevice(iiotest.PhyName)
	require.NoError(t, err)

	require.NoError(t, phy.RegWrite(0x37, 0x12))
	assert.Equal(t, "0x37 0x12", p.Phy.Debug().Value("direct_reg_access"))

	// The fake keeps the address write as the readback value.
	v, err := phy.RegRead(0x37)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x37), v)

	p.Phy.Debug().Reject["direct_reg_access"] = -19
	_, err = phy.RegRead(0x37)
	assert.ErrorIs(t, err, iio.ErrWriteRejected)
}

func TestKernelBuffersCount(t *testing.T) {
	p := iiotest.NewPluto()
	ctx := iio.NewContext(p.Context)
	rx, err := ctx.FindDevice(iiotest.RXName)
	require.NoError(t, err)

	require.NoError(t, rx.SetKernelBuffersCount(4))
	assert.Equal(t, uint(4), p.RX.KernelBuffers)
	assert.ErrorIs(t, rx.SetKernelBuffersCount(0), iio.ErrParse)
}

func TestOpenByName(t *testing.T) {
	p := iiotest.NewPluto()
	o := &iiotest.Opener{
		Contexts: map[string]*iiotest.Context{"ip:192.168.2.1": p.Context},
		Infos: []iio.ContextInfo{
			{URI: "ip:10.0.0.9", Description: "ADALM2000"},
			{URI: "ip:192.168.2.1", Description: "PlutoSDR Rev.C"},
		},
	}

	ctx, err := iio.OpenByName(context.Background(), o, "PlutoSDR")
	require.NoError(t, err)
	assert.Equal(t, p.Description(), ctx.Description())

	_, err = iio.OpenByName(context.Background(), o, "FMCOMMS")
	assert.ErrorIs(t, err, iio.ErrNotFound)

	ctx, err = iio.OpenWithDevices(context.Background(), o, iiotest.PhyName, iiotest.RXName)
	require.NoError(t, err)
	require.NoError(t, ctx.SetTimeout(3*time.Second))
	assert.Equal(t, 3*time.Second, p.Timeout)
	require.NoError(t, ctx.Close())
	assert.True(t, p.Closed)
}
