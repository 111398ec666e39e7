package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FullScale is the largest magnitude a signed converter of the given width
// can report, 2048 for the 12-bit AD9361.
func FullScale(bits uint) float64 {
	if bits == 0 {
		return 1
	}
	return math.Ldexp(1, int(bits)-1)
}

// FFTShift returns the FFT output shifted so that DC is centered.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	out := make([]complex128, n)
	if n == 0 {
		return out
	}
	half := n / 2
	copy(out, data[half:])
	copy(out[n-half:], data[:half])
	return out
}

// DBFS converts the magnitude of each bin to dB relative to fullScale.
// Empty bins map to -Inf.
func DBFS(bins []complex128, fullScale float64) []float64 {
	out := make([]float64, len(bins))
	for i, v := range bins {
		mag := cmplx.Abs(v)
		if mag == 0 {
			out[i] = math.Inf(-1)
			continue
		}
		out[i] = 20 * math.Log10(mag/fullScale)
	}
	return out
}

// FFTAndDBFS performs an FFT on the provided complex64 samples, applies a Hamming window,
// normalizes by the window sum, and converts the magnitude to dBFS.
func FFTAndDBFS(samples []complex64, fullScale float64) ([]complex128, []float64) {
	if len(samples) == 0 {
		return []complex128{}, []float64{}
	}
	win := Hamming(len(samples))
	shifted := spectrum(fourier.NewCmplxFFT(len(samples)), win, samples)
	return shifted, DBFS(shifted, fullScale)
}

func spectrum(fft *fourier.CmplxFFT, win []float64, samples []complex64) []complex128 {
	coeffs := fft.Coefficients(nil, ApplyWindow(samples, win))
	sumWin := 0.0
	for _, v := range win {
		sumWin += v
	}
	for i := range coeffs {
		coeffs[i] /= complex(sumWin, 0)
	}
	return FFTShift(coeffs)
}
