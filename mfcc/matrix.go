package mfcc

import (
	"encoding/json"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Matrix는 [프레임 수, 계수 수] 모양의 MFCC 행렬이다.
// 행은 시간 순서, 열은 켑스트럼 계수 순서(0이 가장 낮은 계수)이며, 생성 이후에는 바뀌지 않는다.
type Matrix struct {
	data *mat.Dense
}

// NewMatrix는 행 우선(row-major) 순서의 data로 행렬을 만든다. data는 복사된다.
func NewMatrix(frames, coefficients int, data []float64) (*Matrix, error) {
	if frames <= 0 || coefficients <= 0 {
		return nil, errors.Wrapf(ErrInput, "invalid matrix shape: [%d, %d]", frames, coefficients)
	}
	if len(data) != frames*coefficients {
		return nil, errors.Wrapf(ErrInput, "matrix data length %d does not match shape [%d, %d]", len(data), frames, coefficients)
	}
	return &Matrix{data: mat.NewDense(frames, coefficients, slices.Clone(data))}, nil
}

// FromRows는 프레임별 계수 슬라이스로 행렬을 만든다. 모든 행의 길이가 같아야 한다.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.Wrap(ErrInput, "empty matrix rows")
	}
	cols := len(rows[0])
	buf := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.Wrapf(ErrInput, "row %d has %d coefficients, want %d", i, len(row), cols)
		}
		buf = append(buf, row...)
	}
	return &Matrix{data: mat.NewDense(len(rows), cols, buf)}, nil
}

// Shape은 (프레임 수, 계수 수)를 반환한다.
func (m *Matrix) Shape() (frames, coefficients int) {
	if m == nil || m.data == nil {
		return 0, 0
	}
	return m.data.Dims()
}

// NumFrames는 프레임 수를 반환한다.
func (m *Matrix) NumFrames() int {
	frames, _ := m.Shape()
	return frames
}

// NumCoefficients는 프레임당 계수 수를 반환한다.
func (m *Matrix) NumCoefficients() int {
	_, coefficients := m.Shape()
	return coefficients
}

// At은 i번째 프레임의 j번째 계수를 반환한다.
func (m *Matrix) At(i, j int) float64 {
	return m.data.At(i, j)
}

// Row는 i번째 프레임의 계수 복사본을 반환한다.
func (m *Matrix) Row(i int) []float64 {
	return slices.Clone(m.data.RawRowView(i))
}

// Rows는 전체 행렬을 프레임별 슬라이스로 복사해 반환한다.
func (m *Matrix) Rows() [][]float64 {
	frames, _ := m.Shape()
	out := make([][]float64, frames)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// Flatten은 시간 우선, 계수 보조 순서로 펼친 벡터를 반환한다.
// 같은 추출 설정에서 나온 행렬만 같은 길이로 펼쳐진다.
func (m *Matrix) Flatten() []float64 {
	frames, coefficients := m.Shape()
	out := make([]float64, 0, frames*coefficients)
	for i := range frames {
		out = append(out, m.data.RawRowView(i)...)
	}
	return out
}

// Mean은 프레임 축으로 평균한 계수별 평균 벡터를 반환한다.
func (m *Matrix) Mean() []float64 {
	frames, coefficients := m.Shape()
	if frames == 0 {
		return nil
	}
	mean := make([]float64, coefficients)
	for j := range mean {
		mean[j] = mat.Sum(m.data.ColView(j)) / float64(frames)
	}
	return mean
}

// Dense는 gonum 행렬 사본을 반환한다. 사본을 고쳐도 m은 바뀌지 않는다.
func (m *Matrix) Dense() *mat.Dense {
	if m == nil || m.data == nil {
		return nil
	}
	return mat.DenseCopyOf(m.data)
}

// Equal은 두 행렬의 모양과 값이 정확히 같은지 확인한다.
func (m *Matrix) Equal(other *Matrix) bool {
	if m == nil || other == nil {
		return m == other
	}
	return mat.Equal(m.data, other.data)
}

type matrixJSON struct {
	Shape [2]int      `json:"shape"`
	Data  [][]float64 `json:"data"`
}

// MarshalJSON은 {"shape":[frames,coefficients],"data":[[...]]} 형태로 직렬화한다.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	frames, coefficients := m.Shape()
	return json.Marshal(matrixJSON{
		Shape: [2]int{frames, coefficients},
		Data:  m.Rows(),
	})
}

// UnmarshalJSON은 MarshalJSON의 역이다. 선언된 shape와 data가 다르면 실패한다.
func (m *Matrix) UnmarshalJSON(b []byte) error {
	var v matrixJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return errors.Wrap(err, "decode matrix json failed")
	}
	decoded, err := FromRows(v.Data)
	if err != nil {
		return err
	}
	if frames, coefficients := decoded.Shape(); frames != v.Shape[0] || coefficients != v.Shape[1] {
		return errors.Wrapf(ErrInput, "matrix shape %v does not match data [%d, %d]", v.Shape, frames, coefficients)
	}
	m.data = decoded.data
	return nil
}

// MarshalBinary는 gonum의 바이너리 인코딩을 사용해 모양까지 그대로 보존한다.
func (m *Matrix) MarshalBinary() ([]byte, error) {
	if m == nil || m.data == nil {
		return nil, errors.Wrap(ErrInput, "nil matrix")
	}
	return m.data.MarshalBinary()
}

// UnmarshalBinary는 MarshalBinary로 만든 바이트열을 복원한다.
func (m *Matrix) UnmarshalBinary(b []byte) error {
	var dense mat.Dense
	if err := dense.UnmarshalBinary(b); err != nil {
		return errors.Wrap(ErrStorage, err.Error())
	}
	if frames, coefficients := dense.Dims(); frames == 0 || coefficients == 0 {
		return errors.Wrap(ErrStorage, "empty matrix")
	}
	m.data = &dense
	return nil
}
