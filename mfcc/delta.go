package mfcc

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ComputeDelta는 주어진 특징 행렬의 1차 회귀 델타를 계산한다.
// 경계 프레임은 가장자리 프레임을 반복해서 채운다.
func ComputeDelta(features *Matrix, window int) (*Matrix, error) {
	frameCount, coeffCount := features.Shape()
	if frameCount == 0 || coeffCount == 0 {
		return nil, errors.Wrap(ErrInput, "no features to compute delta")
	}
	if window <= 0 {
		return nil, errors.Wrapf(ErrInput, "invalid delta window: %d", window)
	}

	denom := 0.0
	for n := 1; n <= window; n++ {
		nf := float64(n)
		denom += nf * nf
	}
	denom *= 2

	delta := mat.NewDense(frameCount, coeffCount, nil)
	for t := range frameCount {
		dst := delta.RawRowView(t)
		for k := range dst {
			sum := 0.0
			for n := 1; n <= window; n++ {
				prev := max(t-n, 0)
				next := min(t+n, frameCount-1)
				sum += float64(n) * (features.At(next, k) - features.At(prev, k))
			}
			dst[k] = sum / denom
		}
	}

	return &Matrix{data: delta}, nil
}

// AppendDeltas는 원본 + delta(+ delta-delta)를 열 방향으로 결합한 행렬을 반환한다.
func AppendDeltas(features *Matrix, window, order int) (*Matrix, error) {
	frameCount, coeffCount := features.Shape()
	if frameCount == 0 || coeffCount == 0 {
		return nil, errors.Wrap(ErrInput, "no features to append deltas")
	}
	if order <= 0 {
		return &Matrix{data: mat.DenseCopyOf(features.data)}, nil
	}
	if order > 2 {
		return nil, errors.Wrapf(ErrInput, "unsupported delta order: %d", order)
	}

	parts := []*Matrix{features}
	prev := features
	for range order {
		next, err := ComputeDelta(prev, window)
		if err != nil {
			return nil, err
		}
		parts = append(parts, next)
		prev = next
	}

	out := mat.NewDense(frameCount, coeffCount*len(parts), nil)
	for i := range frameCount {
		row := out.RawRowView(i)
		for p, part := range parts {
			copy(row[p*coeffCount:(p+1)*coeffCount], part.data.RawRowView(i))
		}
	}

	return &Matrix{data: out}, nil
}
