package mfcc

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type resolvedConfig struct {
	sampleRate      int
	frameLength     int
	frameStep       int
	nfft            int
	numFilters      int
	numCoefficients int
	preEmphasis     float64
	deltaOrder      int
	deltaWindow     int
}

func resolveConfig(sampleRate int, cfg Config) (resolvedConfig, error) {
	var r resolvedConfig
	if sampleRate <= 0 {
		return r, errors.Wrapf(ErrInput, "invalid sample rate: %dHz", sampleRate)
	}

	switch {
	case cfg.FrameDuration < 0:
		return r, errors.Wrapf(ErrInput, "invalid frame duration: %s", cfg.FrameDuration)
	case cfg.StrideDuration < 0:
		return r, errors.Wrapf(ErrInput, "invalid stride duration: %s", cfg.StrideDuration)
	case cfg.NumFilters < 0:
		return r, errors.Wrapf(ErrInput, "invalid num filters: %d", cfg.NumFilters)
	case cfg.NumCoefficients < 0:
		return r, errors.Wrapf(ErrInput, "invalid num coefficients: %d", cfg.NumCoefficients)
	case cfg.FFTSize < 0:
		return r, errors.Wrapf(ErrInput, "invalid fft size: %d", cfg.FFTSize)
	case cfg.DeltaOrder < 0 || cfg.DeltaOrder > 2:
		return r, errors.Wrapf(ErrInput, "unsupported delta order: %d", cfg.DeltaOrder)
	case cfg.DeltaWindow < 0:
		return r, errors.Wrapf(ErrInput, "invalid delta window: %d", cfg.DeltaWindow)
	}

	frameDuration := orDefault(cfg.FrameDuration, defaultFrameDuration)
	strideDuration := orDefault(cfg.StrideDuration, defaultStrideDuration)
	r.sampleRate = sampleRate
	r.numFilters = orDefault(cfg.NumFilters, defaultNumFilters)
	r.numCoefficients = orDefault(cfg.NumCoefficients, defaultNumCoefficients)
	r.nfft = orDefault(cfg.FFTSize, defaultFFTSize)
	r.deltaOrder = cfg.DeltaOrder
	r.deltaWindow = orDefault(cfg.DeltaWindow, defaultDeltaWindow)

	if !cfg.DisablePreEmphasis {
		r.preEmphasis = orDefault(cfg.PreEmphasis, defaultPreEmphasis)
		if r.preEmphasis < 0 || r.preEmphasis >= 1 {
			return r, errors.Wrapf(ErrInput, "pre-emphasis must be in [0,1): %g", r.preEmphasis)
		}
	}

	r.frameLength = int(math.Round(frameDuration.Seconds() * float64(sampleRate)))
	r.frameStep = int(math.Round(strideDuration.Seconds() * float64(sampleRate)))
	if r.frameLength <= 0 {
		return r, errors.Wrapf(ErrInput, "frame duration %s is too short for %dHz", frameDuration, sampleRate)
	}
	if r.frameStep <= 0 {
		return r, errors.Wrapf(ErrInput, "stride duration %s is too short for %dHz", strideDuration, sampleRate)
	}

	if r.nfft&(r.nfft-1) != 0 {
		return r, errors.Wrapf(ErrInput, "fft size must be a power of two: %d", r.nfft)
	}
	if r.nfft < r.frameLength {
		return r, errors.Wrapf(ErrInput, "fft size %d is smaller than frame length %d", r.nfft, r.frameLength)
	}
	if r.numCoefficients > r.numFilters {
		return r, errors.Wrapf(ErrInput, "num coefficients (%d) exceed num filters (%d)", r.numCoefficients, r.numFilters)
	}
	return r, nil
}

func orDefault[T int | float64 | ~int64](v, def T) T {
	if v == 0 {
		return def
	}
	return v
}

func validateSamples(samples []float64) error {
	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInput, "invalid sample at index %d: %v", i, v)
		}
	}
	return nil
}

// numFrames = ceil((n - frameLength) / frameStep) + 1, 최소 1.
func numFrames(n, frameLength, frameStep int) int {
	if n <= frameLength {
		return 1
	}
	return 1 + (n-frameLength+frameStep-1)/frameStep
}

func preEmphasize(samples []float64, alpha float64) []float64 {
	out := make([]float64, len(samples))
	out[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		out[i] = samples[i] - alpha*samples[i-1]
	}
	return out
}

func hammingWindow(n int) []float64 {
	if n == 1 {
		return []float64{1}
	}
	return window.Hamming(n)
}

func (e *Extractor) calculate(samples []float64) *Matrix {
	emphasized := preEmphasize(samples, e.preEmphasis)

	frames := numFrames(len(emphasized), e.frameLength, e.frameStep)
	padded := make([]float64, (frames-1)*e.frameStep+e.frameLength)
	copy(padded, emphasized)

	binCount := e.nfft/2 + 1
	powerScale := 1.0 / float64(e.nfft)
	power := mat.NewDense(frames, binCount, nil)
	windowed := make([]float64, e.nfft)

	for i := range frames {
		clear(windowed)
		frame := padded[i*e.frameStep : i*e.frameStep+e.frameLength]
		for j, v := range frame {
			windowed[j] = v * e.hamming[j]
		}

		spectrum := fft.FFTReal(windowed)
		row := power.RawRowView(i)
		for k := range row {
			re, im := real(spectrum[k]), imag(spectrum[k])
			row[k] = (re*re + im*im) * powerScale
		}
	}

	var energies mat.Dense
	energies.Mul(power, e.filterBank.T())
	for i := range frames {
		row := energies.RawRowView(i)
		for j, v := range row {
			if v <= 0 {
				v = math.SmallestNonzeroFloat64
			}
			row[j] = 20 * math.Log10(v)
		}
	}

	ceps := mat.NewDense(frames, e.numCoefficients, nil)
	ceps.Mul(&energies, e.dctMatrix.T())
	return &Matrix{data: ceps}
}

// createFilterBank는 0Hz~나이퀴스트 구간의 삼각 멜 필터뱅크를 [numFilters, nfft/2+1] 행렬로 만든다.
func createFilterBank(nfft, sampleRate, numFilters int) *mat.Dense {
	binCount := nfft/2 + 1
	filterBank := mat.NewDense(numFilters, binCount, nil)

	lower := hzToMel(0)
	upper := hzToMel(float64(sampleRate) / 2)
	melPoints := linspace(lower, upper, numFilters+2)

	// mel 점을 FFT bin 인덱스로 바꾼다
	binPoints := make([]int, len(melPoints))
	for i, mel := range melPoints {
		binPoints[i] = int(math.Floor(float64(nfft+1) * melToHz(mel) / float64(sampleRate)))
	}

	for m := 1; m <= numFilters; m++ {
		left, center, right := binPoints[m-1], binPoints[m], binPoints[m+1]
		row := filterBank.RawRowView(m - 1)
		for k := max(left, 0); k < center && k < binCount; k++ {
			row[k] = float64(k-left) / float64(center-left)
		}
		for k := max(center, 0); k < right && k < binCount; k++ {
			row[k] = float64(right-k) / float64(right-center)
		}
	}

	return filterBank
}

// createDCTMatrix는 정규직교 DCT-II 행렬의 앞쪽 numCoefficients개 행을 만든다.
func createDCTMatrix(numCoefficients, numFilters int) *mat.Dense {
	dct := mat.NewDense(numCoefficients, numFilters, nil)
	n := float64(numFilters)
	for k := range numCoefficients {
		scale := math.Sqrt(2 / n)
		if k == 0 {
			scale = math.Sqrt(1 / n)
		}
		row := dct.RawRowView(k)
		for j := range row {
			row[j] = scale * math.Cos(math.Pi*float64(k)*(2*float64(j)+1)/(2*n))
		}
	}
	return dct
}

func linspace(start, end float64, numPoints int) []float64 {
	if numPoints <= 1 {
		return []float64{start}
	}

	step := (end - start) / float64(numPoints-1)
	points := make([]float64, numPoints)

	for i := range points {
		points[i] = start + float64(i)*step
	}

	return points
}

// https://en.wikipedia.org/wiki/Mel_scale
func hzToMel(freq float64) float64 {
	return 2_595 * math.Log10(1+freq/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2_595) - 1)
}
