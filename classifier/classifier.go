// Package classifier는 평탄화된 MFCC 벡터로 학습하는 선형 다중 클래스 분류기다.
//
// 특징을 z-score로 표준화한 뒤 라벨마다 one-vs-rest 선형 SVM을 학습하고,
// 결정값을 Platt 시그모이드로 보정해 라벨별 확률을 낸다.
package classifier

import (
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/zrma/go-wakeword/mfcc"
)

const (
	defaultLambda     = 0.01
	defaultIterations = 500
)

// ErrNoModel은 아직 학습된 모델이 없을 때 반환된다. mfcc.ErrStorage로도 구분된다.
var ErrNoModel = errors.Wrap(mfcc.ErrStorage, "no trained model")

// Sample은 학습용 (특징 벡터, 라벨) 쌍이다.
// Fingerprint는 특징을 만든 추출 설정(mfcc.Extractor.Fingerprint)이다.
type Sample struct {
	Features    []float64
	Label       string
	Fingerprint string
}

// Config는 학습 하이퍼파라미터다. 0으로 남긴 값은 기본값을 쓴다.
type Config struct {
	// Lambda는 L2 정규화 강도다.
	Lambda float64 `yaml:"lambda"`
	// Iterations는 전체 배치 subgradient 반복 횟수다.
	Iterations int `yaml:"iterations"`
}

// DefaultConfig는 기본 학습 설정을 반환한다.
func DefaultConfig() Config {
	return Config{Lambda: defaultLambda, Iterations: defaultIterations}
}

// Prediction은 Predict 결과다. Probabilities는 Labels와 같은 순서이고 합이 1이다.
type Prediction struct {
	Label         string
	Confidence    float64
	Labels        []string
	Probabilities []float64
}

// Model은 학습된 분류기다. 생성 후에는 바뀌지 않으므로 동시에 읽어도 된다.
type Model struct {
	fingerprint string
	labels      []string
	mean    []float64
	scale   []float64
	weights *mat.Dense // [classes, dim]
	bias    []float64
	plattA  []float64
	plattB  []float64
}

// Train은 기본 설정으로 모델을 학습한다.
func Train(samples []Sample) (*Model, error) {
	return TrainWithConfig(samples, DefaultConfig())
}

// TrainWithConfig는 샘플 전체로 모델을 처음부터 학습한다.
// 샘플이 2개 미만이거나 라벨 종류가 2개 미만이면 mfcc.ErrInsufficientData를 반환한다.
func TrainWithConfig(samples []Sample, cfg Config) (*Model, error) {
	if cfg.Lambda < 0 || cfg.Iterations < 0 {
		return nil, errors.Wrapf(mfcc.ErrInput, "invalid training config: lambda=%g iterations=%d", cfg.Lambda, cfg.Iterations)
	}
	if cfg.Lambda == 0 {
		cfg.Lambda = defaultLambda
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = defaultIterations
	}

	labels, err := validateSamples(samples)
	if err != nil {
		return nil, err
	}
	fingerprint := samples[0].Fingerprint

	n, dim := len(samples), len(samples[0].Features)
	x := mat.NewDense(n, dim, nil)
	for i, s := range samples {
		x.SetRow(i, s.Features)
	}
	mean, scale := standardize(x)

	m := &Model{
		fingerprint: fingerprint,
		labels:      labels,
		mean:        mean,
		scale:       scale,
		weights:     mat.NewDense(len(labels), dim, nil),
		bias:        make([]float64, len(labels)),
		plattA:      make([]float64, len(labels)),
		plattB:      make([]float64, len(labels)),
	}

	y := make([]float64, n)
	scores := make([]float64, n)
	for c, label := range labels {
		for i, s := range samples {
			y[i] = -1
			if s.Label == label {
				y[i] = 1
			}
		}

		w, b := fitLinearSVM(x, y, cfg.Lambda, cfg.Iterations)
		m.weights.SetRow(c, w)
		m.bias[c] = b

		for i := range n {
			scores[i] = mat.Dot(x.RowView(i), mat.NewVecDense(dim, w)) + b
		}
		m.plattA[c], m.plattB[c] = fitPlatt(scores, y)
	}
	return m, nil
}

func validateSamples(samples []Sample) ([]string, error) {
	if len(samples) < 2 {
		return nil, errors.Wrapf(mfcc.ErrInsufficientData, "need at least 2 samples, got %d", len(samples))
	}

	dim := len(samples[0].Features)
	if dim == 0 {
		return nil, errors.Wrap(mfcc.ErrInput, "empty feature vector")
	}

	var labels []string
	for i, s := range samples {
		if s.Label == "" {
			return nil, errors.Wrapf(mfcc.ErrInput, "sample %d has no label", i)
		}
		if len(s.Features) != dim {
			return nil, errors.Wrapf(mfcc.ErrConfigMismatch, "sample %d has %d features, want %d", i, len(s.Features), dim)
		}
		if s.Fingerprint != samples[0].Fingerprint {
			return nil, errors.Wrapf(mfcc.ErrConfigMismatch, "sample %d was extracted with %q, want %q", i, s.Fingerprint, samples[0].Fingerprint)
		}
		for j, v := range s.Features {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Wrapf(mfcc.ErrInput, "sample %d has invalid feature at index %d: %v", i, j, v)
			}
		}
		if !slices.Contains(labels, s.Label) {
			labels = append(labels, s.Label)
		}
	}
	if len(labels) < 2 {
		return nil, errors.Wrapf(mfcc.ErrInsufficientData, "need at least 2 distinct labels, got %d", len(labels))
	}

	slices.Sort(labels)
	return labels, nil
}

// standardize는 x의 각 열을 평균 0, 표준편차 1로 제자리 변환하고 사용한 평균과 배율을 반환한다.
// 분산이 0인 열은 배율 1로 둔다.
func standardize(x *mat.Dense) (mean, scale []float64) {
	n, dim := x.Dims()
	mean = make([]float64, dim)
	scale = make([]float64, dim)
	col := make([]float64, n)
	for j := range dim {
		mat.Col(col, j, x)
		mu, sd := stat.MeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		mean[j], scale[j] = mu, sd
		for i := range n {
			x.Set(i, j, (col[i]-mu)/sd)
		}
	}
	return mean, scale
}

// Labels는 확률 벡터 순서와 같은 라벨 목록의 복사본을 반환한다.
func (m *Model) Labels() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.labels)
}

// Fingerprint는 학습 샘플의 추출 설정을 반환한다.
func (m *Model) Fingerprint() string {
	if m == nil {
		return ""
	}
	return m.fingerprint
}

// Dim은 모델이 기대하는 평탄화된 특징 길이를 반환한다.
func (m *Model) Dim() int {
	if m == nil {
		return 0
	}
	return len(m.mean)
}

// Predict는 features가 속할 라벨과 라벨별 확률을 계산한다.
func (m *Model) Predict(features []float64) (*Prediction, error) {
	if m == nil {
		return nil, ErrNoModel
	}
	if len(features) != m.Dim() {
		return nil, errors.Wrapf(mfcc.ErrConfigMismatch, "feature length %d does not match model dimension %d", len(features), m.Dim())
	}
	for j, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrapf(mfcc.ErrInput, "invalid feature at index %d: %v", j, v)
		}
	}

	z := mat.NewVecDense(len(features), nil)
	for j, v := range features {
		z.SetVec(j, (v-m.mean[j])/m.scale[j])
	}
	var scores mat.VecDense
	scores.MulVec(m.weights, z)

	probs := make([]float64, len(m.labels))
	total := 0.0
	for c := range probs {
		probs[c] = plattProbability(scores.AtVec(c)+m.bias[c], m.plattA[c], m.plattB[c])
		total += probs[c]
	}
	if total > 0 {
		for c := range probs {
			probs[c] /= total
		}
	} else {
		for c := range probs {
			probs[c] = 1 / float64(len(probs))
		}
	}

	best := 0
	for c, p := range probs {
		if p > probs[best] {
			best = c
		}
	}
	return &Prediction{
		Label:         m.labels[best],
		Confidence:    probs[best],
		Labels:        slices.Clone(m.labels),
		Probabilities: probs,
	}, nil
}
