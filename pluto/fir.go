package pluto

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/window"
)

// FIR tables for the AD9361 programmable filter, one per rate band. Each is
// a windowed-sinc low-pass whose taps sum to unity gain in Q16, quantized to
// int16.
var (
	firTable1 = sync.OnceValue(func() []int16 { return designFIR(128, 0.5/4*0.9) })
	firTable2 = sync.OnceValue(func() []int16 { return designFIR(128, 0.5/2*0.9) })
	firTable3 = sync.OnceValue(func() []int16 { return designFIR(96, 0.5/2*0.85) })
	firTable4 = sync.OnceValue(func() []int16 { return designFIR(64, 0.5/2*0.8) })
)

// FIRTable returns the coefficients of table n (1 to 4).
func FIRTable(n int) []int16 {
	var t []int16
	switch n {
	case 1:
		t = firTable1()
	case 2:
		t = firTable2()
	case 3:
		t = firTable3()
	case 4:
		t = firTable4()
	default:
		return nil
	}
	return append([]int16(nil), t...)
}

// designFIR builds a Blackman-windowed sinc low-pass of the given length with
// cutoff expressed as a fraction of the sample rate.
func designFIR(taps int, cutoff float64) []int16 {
	h := make([]float64, taps)
	mid := float64(taps-1) / 2
	for i := range h {
		x := float64(i) - mid
		if x == 0 {
			h[i] = 2 * cutoff
			continue
		}
		h[i] = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
	}
	h = window.Blackman(h)

	var sum float64
	for _, v := range h {
		sum += v
	}
	out := make([]int16, taps)
	for i, v := range h {
		q := math.Round(v / sum * 65536)
		out[i] = int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, q)))
	}
	return out
}
