package mfcc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultFrameDuration   = 25 * time.Millisecond
	defaultStrideDuration  = 10 * time.Millisecond
	defaultNumFilters      = 26
	defaultNumCoefficients = 13
	defaultFFTSize         = 512
	defaultPreEmphasis     = 0.97
	defaultDeltaWindow     = 2
)

// Config는 MFCC 계산에 사용할 설정값을 담는다.
// 0으로 남긴 값은 DefaultConfig의 기본값으로 채워진다.
type Config struct {
	FrameDuration      time.Duration `yaml:"frame_duration"`
	StrideDuration     time.Duration `yaml:"stride_duration"`
	NumFilters         int           `yaml:"num_filters"`
	NumCoefficients    int           `yaml:"num_coefficients"`
	FFTSize            int           `yaml:"fft_size"`
	PreEmphasis        float64       `yaml:"pre_emphasis"`
	DisablePreEmphasis bool          `yaml:"disable_pre_emphasis"`
	// DeltaOrder가 1 또는 2이면 delta(+ delta-delta) 계수를 열 방향으로 덧붙인다.
	DeltaOrder  int `yaml:"delta_order"`
	DeltaWindow int `yaml:"delta_window"`
}

// DefaultConfig는 MFCC 계산에 사용되는 기본 설정을 반환한다.
func DefaultConfig() Config {
	return Config{
		FrameDuration:   defaultFrameDuration,
		StrideDuration:  defaultStrideDuration,
		NumFilters:      defaultNumFilters,
		NumCoefficients: defaultNumCoefficients,
		FFTSize:         defaultFFTSize,
		PreEmphasis:     defaultPreEmphasis,
		DeltaWindow:     defaultDeltaWindow,
	}
}

// Extractor는 샘플레이트와 설정에 맞춰 필터뱅크, DCT 행렬, 윈도를 미리 계산해 둔 MFCC 추출기다.
// 상태를 변경하지 않으므로 여러 고루틴에서 동시에 사용해도 된다.
type Extractor struct {
	sampleRate      int
	frameLength     int
	frameStep       int
	nfft            int
	numFilters      int
	numCoefficients int
	preEmphasis     float64
	deltaOrder      int
	deltaWindow     int

	hamming    []float64
	filterBank *mat.Dense // [numFilters, nfft/2+1]
	dctMatrix  *mat.Dense // [numCoefficients, numFilters]
}

// NewExtractor는 재사용 가능한 MFCC 추출기를 생성한다.
func NewExtractor(sampleRate int, cfg Config) (*Extractor, error) {
	resolved, err := resolveConfig(sampleRate, cfg)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		sampleRate:      resolved.sampleRate,
		frameLength:     resolved.frameLength,
		frameStep:       resolved.frameStep,
		nfft:            resolved.nfft,
		numFilters:      resolved.numFilters,
		numCoefficients: resolved.numCoefficients,
		preEmphasis:     resolved.preEmphasis,
		deltaOrder:      resolved.deltaOrder,
		deltaWindow:     resolved.deltaWindow,
		hamming:         hammingWindow(resolved.frameLength),
		filterBank:      createFilterBank(resolved.nfft, resolved.sampleRate, resolved.numFilters),
		dctMatrix:       createDCTMatrix(resolved.numCoefficients, resolved.numFilters),
	}, nil
}

// SampleRate는 Extractor가 참조하는 샘플레이트를 반환한다.
func (e *Extractor) SampleRate() int {
	if e == nil {
		return 0
	}
	return e.sampleRate
}

// FrameLength는 분석 프레임의 길이를 샘플 단위로 반환한다.
func (e *Extractor) FrameLength() int {
	if e == nil {
		return 0
	}
	return e.frameLength
}

// FrameStep은 프레임 간 간격(stride)을 샘플 단위로 반환한다.
func (e *Extractor) FrameStep() int {
	if e == nil {
		return 0
	}
	return e.frameStep
}

// FFTSize는 FFT 길이를 반환한다.
func (e *Extractor) FFTSize() int {
	if e == nil {
		return 0
	}
	return e.nfft
}

// NumFilters는 멜 필터 개수를 반환한다.
func (e *Extractor) NumFilters() int {
	if e == nil {
		return 0
	}
	return e.numFilters
}

// NumCoefficients는 프레임당 출력 계수 개수(delta 포함)를 반환한다.
func (e *Extractor) NumCoefficients() int {
	if e == nil {
		return 0
	}
	return e.numCoefficients * (1 + e.deltaOrder)
}

// Fingerprint는 특징 공간을 결정하는 해석된 설정값을 한 줄로 요약한다.
// 값이 다른 두 추출기의 출력은 모양이 같아도 서로 비교하거나 함께 학습하면 안 된다.
func (e *Extractor) Fingerprint() string {
	if e == nil {
		return ""
	}
	deltaWindow := 0
	if e.deltaOrder > 0 {
		deltaWindow = e.deltaWindow
	}
	return fmt.Sprintf("mfcc/v1 rate=%d frame=%d step=%d fft=%d filters=%d ceps=%d preemph=%s delta=%d/%d",
		e.sampleRate, e.frameLength, e.frameStep, e.nfft, e.numFilters, e.numCoefficients,
		strconv.FormatFloat(e.preEmphasis, 'g', -1, 64), e.deltaOrder, deltaWindow)
}

// NumFrames는 길이 n인 입력에서 만들어질 프레임 수를 반환한다.
func (e *Extractor) NumFrames(n int) int {
	if e == nil {
		return 0
	}
	return numFrames(n, e.frameLength, e.frameStep)
}

// Calculate는 입력 샘플에서 MFCC 행렬을 계산한다.
func (e *Extractor) Calculate(samples []float64) (*Matrix, error) {
	if e == nil {
		return nil, errors.New("extractor is nil")
	}
	if len(samples) == 0 {
		return nil, errors.Wrap(ErrInput, "empty waveform")
	}
	if err := validateSamples(samples); err != nil {
		return nil, err
	}

	ceps := e.calculate(samples)
	if e.deltaOrder > 0 {
		return AppendDeltas(ceps, e.deltaWindow, e.deltaOrder)
	}
	return ceps, nil
}

// Extract는 지정한 설정으로 파형에서 MFCC 행렬을 계산한다.
func Extract(samples []float64, sampleRate int, cfg Config) (*Matrix, error) {
	extractor, err := NewExtractor(sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	return extractor.Calculate(samples)
}

// ExtractDefault는 기본 설정으로 MFCC 행렬을 계산한다.
func ExtractDefault(samples []float64, sampleRate int) (*Matrix, error) {
	return Extract(samples, sampleRate, DefaultConfig())
}
