package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Sample files hold interleaved little-endian float32 I/Q pairs, the layout
// GNU Radio calls a complex file.

func readCFile(path string) ([]complex64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%8 != 0 {
		return nil, fmt.Errorf("%s: %d bytes is not a whole number of I/Q pairs", path, len(data))
	}
	out := make([]complex64, len(data)/8)
	for i := range out {
		re := math.Float32frombits(binary.LittleEndian.Uint32(data[8*i:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(data[8*i+4:]))
		out[i] = complex(re, im)
	}
	return out, nil
}

func appendCFile(path string, samples []complex64) error {
	buf := make([]byte, 8*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[8*i:], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(buf[8*i+4:], math.Float32bits(imag(s)))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// toDAC maps file samples in [-1, 1] onto the levels the TX packer can
// represent after its 14-bit shift: -1, 0 and 1.
func toDAC(samples []complex64) ([]complex64, error) {
	out := make([]complex64, len(samples))
	for i, s := range samples {
		re, im := float64(real(s)), float64(imag(s))
		if !(math.Abs(re) <= 1 && math.Abs(im) <= 1) {
			return nil, fmt.Errorf("sample %d (%v) is outside [-1, 1]", i, s)
		}
		out[i] = complex(float32(math.Round(re)), float32(math.Round(im)))
	}
	return out, nil
}
