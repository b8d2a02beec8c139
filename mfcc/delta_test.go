package mfcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestComputeDelta_Ramp(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	// 기울기 1인 선형 증가 열은 경계를 제외하면 delta가 정확히 1이다.
	rows := make([][]float64, 8)
	for i := range rows {
		rows[i] = []float64{float64(i), 5}
	}
	features, err := FromRows(rows)
	require.NoError(t, err)

	delta, err := ComputeDelta(features, 2)
	require.NoError(t, err)
	require.Equal(t, 8, delta.NumFrames())
	require.Equal(t, 2, delta.NumCoefficients())

	for i := 2; i < 6; i++ {
		assert.InDelta(t, 1.0, delta.At(i, 0), 1e-12)
	}
	for i := range 8 {
		assert.Zero(t, delta.At(i, 1), "constant column has no delta")
	}
	// 가장자리 프레임은 복제되므로 경계 delta가 작아진다.
	assert.InDelta(t, 0.5, delta.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5, delta.At(7, 0), 1e-12)
}

func TestAppendDeltas(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	features, err := FromRows([][]float64{{1, 2}, {2, 4}, {4, 8}})
	require.NoError(t, err)

	same, err := AppendDeltas(features, 2, 0)
	require.NoError(t, err)
	assert.True(t, features.Equal(same))

	withDeltas, err := AppendDeltas(features, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, withDeltas.NumFrames())
	assert.Equal(t, 6, withDeltas.NumCoefficients())
	assert.Equal(t, features.Row(1), withDeltas.Row(1)[:2])

	first, err := ComputeDelta(features, 1)
	require.NoError(t, err)
	assert.Equal(t, first.Row(1), withDeltas.Row(1)[2:4])

	_, err = AppendDeltas(features, 1, 3)
	assert.ErrorIs(t, err, ErrInput)
	_, err = ComputeDelta(features, 0)
	assert.ErrorIs(t, err, ErrInput)
	_, err = ComputeDelta(nil, 1)
	assert.ErrorIs(t, err, ErrInput)
}
