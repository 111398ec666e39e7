// Package codec converts between raw buffer bytes and integer or complex
// samples.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rjboer/GoPluto/iio"
)

// TXShift is the left shift applied to transmit samples so that the DAC code
// lands in the upper bits of a 16-bit word.
const TXShift = 14

// ErrUnsupportedWidth reports a sample width other than 8, 16, 32 or 64 bits.
var ErrUnsupportedWidth = errors.New("unsupported sample width")

func order(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func checkWidth(bits uint, have int) error {
	switch bits {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("%d bits: %w: %w", bits, ErrUnsupportedWidth, iio.ErrState)
	}
	if have < int(bits/8) {
		return fmt.Errorf("%d bytes for a %d-bit sample: %w", have, bits, iio.ErrParse)
	}
	return nil
}

// Decode interprets the first bits/8 bytes of b as one sample. Unsigned
// 64-bit values are returned with their bit pattern unchanged.
func Decode(b []byte, bigEndian, signed bool, bits uint) (int64, error) {
	if err := checkWidth(bits, len(b)); err != nil {
		return 0, err
	}
	bo := order(bigEndian)
	switch bits {
	case 8:
		if signed {
			return int64(int8(b[0])), nil
		}
		return int64(b[0]), nil
	case 16:
		v := bo.Uint16(b)
		if signed {
			return int64(int16(v)), nil
		}
		return int64(v), nil
	case 32:
		v := bo.Uint32(b)
		if signed {
			return int64(int32(v)), nil
		}
		return int64(v), nil
	default:
		return int64(bo.Uint64(b)), nil
	}
}

// Encode is the inverse of Decode.
func Encode(v int64, bigEndian, signed bool, bits uint) ([]byte, error) {
	if err := checkWidth(bits, int(bits/8)); err != nil {
		return nil, err
	}
	if !fits(v, signed, bits) {
		return nil, fmt.Errorf("value %d does not fit %d bits: %w", v, bits, iio.ErrParse)
	}
	out := make([]byte, bits/8)
	bo := order(bigEndian)
	switch bits {
	case 8:
		out[0] = byte(v)
	case 16:
		bo.PutUint16(out, uint16(v))
	case 32:
		bo.PutUint32(out, uint32(v))
	default:
		bo.PutUint64(out, uint64(v))
	}
	return out, nil
}

func fits(v int64, signed bool, bits uint) bool {
	if bits == 64 {
		return true
	}
	if signed {
		limit := int64(1) << (bits - 1)
		return v >= -limit && v < limit
	}
	return v >= 0 && v < int64(1)<<bits
}

// DecodeAll splits a run of raw channel bytes into samples using f. Repeated
// formats yield Repeat values per frame.
func DecodeAll(b []byte, f iio.DataFormat) ([]int64, error) {
	step := f.Bytes()
	if err := checkWidth(f.Length, step); err != nil {
		return nil, err
	}
	if len(b)%step != 0 {
		return nil, fmt.Errorf("%d bytes is not a multiple of %d: %w", len(b), step, iio.ErrParse)
	}
	out := make([]int64, 0, len(b)/step)
	for off := 0; off < len(b); off += step {
		v, err := Decode(b[off:off+step], f.IsBE, f.IsSigned, f.Length)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Zip pairs real and imaginary runs into complex samples.
func Zip(re, im []int64) ([]complex64, error) {
	if len(re) != len(im) {
		return nil, fmt.Errorf("I has %d samples, Q has %d: %w", len(re), len(im), iio.ErrState)
	}
	out := make([]complex64, len(re))
	for i := range re {
		out[i] = complex(float32(re[i]), float32(im[i]))
	}
	return out, nil
}

func sampleCount(channels [][]complex64) (int, error) {
	if len(channels) == 0 {
		return 0, fmt.Errorf("no channels to pack: %w", iio.ErrState)
	}
	n := len(channels[0])
	for c, ch := range channels {
		if len(ch) != n {
			return 0, fmt.Errorf("channel %d has %d samples, channel 0 has %d: %w", c, len(ch), n, iio.ErrState)
		}
	}
	return n, nil
}

func dacWord(v float32) uint16 {
	return uint16(int16(int32(v) << TXShift))
}

// PackComplexTX interleaves complex channels for the DAC. For sample t of
// channel c out of N, I lands at byte (t*N+c)*4 and Q two bytes later.
func PackComplexTX(channels [][]complex64) ([]byte, error) {
	n, err := sampleCount(channels)
	if err != nil {
		return nil, err
	}
	nch := len(channels)
	out := make([]byte, nch*4*n)
	for t := 0; t < n; t++ {
		for c, ch := range channels {
			off := (t*nch + c) * 4
			binary.LittleEndian.PutUint16(out[off:], dacWord(real(ch[t])))
			binary.LittleEndian.PutUint16(out[off+2:], dacWord(imag(ch[t])))
		}
	}
	return out, nil
}

// PackRealTX interleaves the real parts of each channel, one 16-bit word per
// sample.
func PackRealTX(channels [][]complex64) ([]byte, error) {
	n, err := sampleCount(channels)
	if err != nil {
		return nil, err
	}
	nch := len(channels)
	out := make([]byte, nch*2*n)
	for t := 0; t < n; t++ {
		for c, ch := range channels {
			binary.LittleEndian.PutUint16(out[(t*nch+c)*2:], dacWord(real(ch[t])))
		}
	}
	return out, nil
}
