package dsp

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyzer finds the strongest tone in blocks of IQ samples. The window and
// FFT plan are kept between calls and rebuilt when the block length changes.
type Analyzer struct {
	mu  sync.Mutex
	n   int
	win []float64
	fft *fourier.CmplxFFT
}

func (a *Analyzer) prepare(n int) {
	if a.n == n {
		return
	}
	a.n = n
	a.win = Hamming(n)
	a.fft = fourier.NewCmplxFFT(n)
}

// Spectrum returns the centered, window-normalized spectrum of samples.
func (a *Analyzer) Spectrum(samples []complex64) []complex128 {
	if len(samples) == 0 {
		return []complex128{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prepare(len(samples))
	return spectrum(a.fft, a.win, samples)
}

// Peak returns the offset from the carrier of the strongest bin and its
// level relative to fullScale.
func (a *Analyzer) Peak(samples []complex64, sampleRate, fullScale float64) (offsetHz, dbfs float64) {
	bins := a.Spectrum(samples)
	if len(bins) == 0 {
		return 0, math.Inf(-1)
	}
	db := DBFS(bins, fullScale)
	best := 0
	for i := range db {
		if db[i] > db[best] {
			best = i
		}
	}
	n := len(bins)
	return float64(best-n/2) * sampleRate / float64(n), db[best]
}
