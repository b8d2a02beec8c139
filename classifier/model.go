package classifier

import (
	"io"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"

	"github.com/zrma/go-wakeword/mfcc"
)

const modelVersion = 1

type modelDocument struct {
	Version     int         `msgpack:"version"`
	Fingerprint string      `msgpack:"fingerprint"`
	Labels      []string    `msgpack:"labels"`
	Mean        []float64   `msgpack:"mean"`
	Scale       []float64   `msgpack:"scale"`
	Weights     [][]float64 `msgpack:"weights"`
	Bias        []float64   `msgpack:"bias"`
	PlattA      []float64   `msgpack:"platt_a"`
	PlattB      []float64   `msgpack:"platt_b"`
}

// Save는 모델을 버전이 붙은 msgpack 문서로 기록한다.
func (m *Model) Save(w io.Writer) error {
	if m == nil {
		return ErrNoModel
	}

	classes, _ := m.weights.Dims()
	weights := make([][]float64, classes)
	for c := range weights {
		weights[c] = mat.Row(nil, c, m.weights)
	}

	doc := modelDocument{
		Version:     modelVersion,
		Fingerprint: m.fingerprint,
		Labels:      m.labels,
		Mean:        m.mean,
		Scale:       m.scale,
		Weights:     weights,
		Bias:        m.bias,
		PlattA:      m.plattA,
		PlattB:      m.plattB,
	}
	if err := msgpack.NewEncoder(w).Encode(&doc); err != nil {
		return errors.Wrap(err, "encode model failed")
	}
	return nil
}

// Load는 Save로 기록한 모델을 읽는다. 손상된 문서는 mfcc.ErrStorage로 보고한다.
func Load(r io.Reader) (*Model, error) {
	var doc modelDocument
	if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrapf(mfcc.ErrStorage, "decode model failed: %v", err)
	}
	if doc.Version != modelVersion {
		return nil, errors.Wrapf(mfcc.ErrStorage, "unsupported model version: %d", doc.Version)
	}

	classes, dim := len(doc.Labels), len(doc.Mean)
	switch {
	case classes < 2:
		return nil, errors.Wrapf(mfcc.ErrStorage, "model has %d labels", classes)
	case dim == 0 || len(doc.Scale) != dim:
		return nil, errors.Wrapf(mfcc.ErrStorage, "model standardization has mismatched lengths: mean=%d scale=%d", dim, len(doc.Scale))
	case len(doc.Weights) != classes || len(doc.Bias) != classes || len(doc.PlattA) != classes || len(doc.PlattB) != classes:
		return nil, errors.Wrapf(mfcc.ErrStorage, "model parameters do not match %d labels", classes)
	}

	weights := mat.NewDense(classes, dim, nil)
	for c, row := range doc.Weights {
		if len(row) != dim {
			return nil, errors.Wrapf(mfcc.ErrStorage, "weights for %q have %d values, want %d", doc.Labels[c], len(row), dim)
		}
		weights.SetRow(c, row)
	}
	for j, s := range doc.Scale {
		if s == 0 {
			return nil, errors.Wrapf(mfcc.ErrStorage, "model scale at index %d is zero", j)
		}
	}

	return &Model{
		fingerprint: doc.Fingerprint,
		labels:      doc.Labels,
		mean:        doc.Mean,
		scale:       doc.Scale,
		weights:     weights,
		bias:        doc.Bias,
		plattA:      doc.PlattA,
		plattB:      doc.PlattB,
	}, nil
}
