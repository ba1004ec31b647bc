package audio

import (
	"math"

	"github.com/example/qwen3-asr-go/internal/asrerr"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// WindowLength is the analysis window length in samples (25ms @ 16kHz).
	WindowLength = 400
	// HopLength is the frame hop in samples (10ms @ 16kHz).
	HopLength = 160
	// FFTSize is the zero-padded transform size per frame.
	FFTSize = 512
	// MelBins is the number of mel filterbank output bins.
	MelBins = 128
	// FMax is the upper edge of the mel filterbank in Hz.
	FMax = 8000.0

	logFloor = 1e-10
)

var (
	hannWindow  [WindowLength]float32
	melFilters  [][]float32 // [MelBins][FFTSize/2+1]
	initialized bool
)

func init() {
	for i := 0; i < WindowLength; i++ {
		hannWindow[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(WindowLength-1)))
	}

	melFilters = buildMelFilterbank(MelBins, FFTSize, ExpectedSampleRate, 0, FMax)
	initialized = true
}

// MelSpectrogram converts a mono float32 waveform at 16 kHz into a log-mel
// spectrogram. n_frames = ceil(n_samples/hop); the tail is zero-padded to a
// full final frame. Output layout is mel[bin*n_frames + frame] (column
// major over frames), matching the spec's 4.4.
func MelSpectrogram(samples []float32) (mel []float32, nFrames int, err error) {
	if !initialized {
		return nil, 0, &asrerr.InvalidArgumentError{Reason: "mel filterbank not initialized"}
	}

	n := len(samples)
	nFrames = (n + HopLength - 1) / HopLength
	if n == 0 {
		nFrames = 0
	}

	mel = make([]float32, MelBins*nFrames)
	if nFrames == 0 {
		return mel, 0, nil
	}

	fft := fourier.NewFFT(FFTSize)
	frame := make([]float64, FFTSize)
	power := make([]float64, FFTSize/2+1)

	for t := 0; t < nFrames; t++ {
		start := t * HopLength

		for i := 0; i < WindowLength; i++ {
			idx := start + i

			var s float32
			if idx < n {
				s = samples[idx]
			}

			frame[i] = float64(s) * float64(hannWindow[i])
		}

		for i := WindowLength; i < FFTSize; i++ {
			frame[i] = 0
		}

		coeffs := fft.Coefficients(nil, frame)

		for k, c := range coeffs {
			power[k] = real(c)*real(c) + imag(c)*imag(c)
		}

		for b := 0; b < MelBins; b++ {
			var energy float64

			filt := melFilters[b]
			for k, w := range filt {
				if w != 0 {
					energy += float64(w) * power[k]
				}
			}

			logE := math.Log(math.Max(logFloor, energy))
			mel[b*nFrames+t] = float32(clampMel(logE))
		}
	}

	return mel, nFrames, nil
}

// clampMel clips the log-mel value to the range [-12, 4]; no global offset
// is subtracted before clamping. -12..4 brackets the dynamic range a log(power) mel spectrum of 16-bit PCM audio
// produces in practice.
func clampMel(v float64) float64 {
	const lo, hi = -12.0, 4.0
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

// buildMelFilterbank constructs a slaney-normalized triangular mel
// filterbank of nMels rows over nFFT/2+1 frequency bins spanning
// [fMin,fMax] Hz at the given sample rate.
func buildMelFilterbank(nMels, nFFT, sampleRate int, fMin, fMax float64) [][]float32 {
	nBins := nFFT/2 + 1

	melMin := hzToMelSlaney(fMin)
	melMax := hzToMelSlaney(fMax)

	melPoints := make([]float64, nMels+2)
	for i := range melPoints {
		melPoints[i] = melMin + (melMax-melMin)*float64(i)/float64(nMels+1)
	}

	hzPoints := make([]float64, nMels+2)
	for i, m := range melPoints {
		hzPoints[i] = melToHzSlaney(m)
	}

	binFreqs := make([]float64, nBins)
	for k := range binFreqs {
		binFreqs[k] = float64(k) * float64(sampleRate) / float64(nFFT)
	}

	filters := make([][]float32, nMels)

	for m := 0; m < nMels; m++ {
		lower := hzPoints[m]
		center := hzPoints[m+1]
		upper := hzPoints[m+2]

		row := make([]float32, nBins)
		enorm := 2.0 / (upper - lower)

		for k, f := range binFreqs {
			var w float64

			switch {
			case f > lower && f < center:
				w = (f - lower) / (center - lower)
			case f >= center && f < upper:
				w = (upper - f) / (upper - center)
			}

			if w > 0 {
				row[k] = float32(w * enorm)
			}
		}

		filters[m] = row
	}

	return filters
}

func hzToMelSlaney(freq float64) float64 {
	const (
		fSP       = 200.0 / 3.0
		minLogHz  = 1000.0
		logstep   = 0.06875177742094912 // ln(6.4)/27
	)

	minLogMel := minLogHz / fSP

	if freq < minLogHz {
		return freq / fSP
	}

	return minLogMel + math.Log(freq/minLogHz)/logstep
}

func melToHzSlaney(mel float64) float64 {
	const (
		fSP      = 200.0 / 3.0
		minLogHz = 1000.0
		logstep  = 0.06875177742094912
	)

	minLogMel := minLogHz / fSP

	if mel < minLogMel {
		return mel * fSP
	}

	return minLogHz * math.Exp(logstep*(mel-minLogMel))
}
