package match

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zrma/go-wakeword/mfcc"
)

func randomRows(r *rand.Rand, frames, coefficients int) [][]float64 {
	rows := make([][]float64, frames)
	for i := range rows {
		frame := make([]float64, coefficients)
		for k := range frame {
			frame[k] = r.NormFloat64()
		}
		rows[i] = frame
	}
	return rows
}

func sliceMatrix(t *testing.T, rows [][]float64, from, to int) *mfcc.Matrix {
	t.Helper()

	m, err := mfcc.FromRows(rows[from:to])
	require.NoError(t, err)
	return m
}

func TestLocateFFT_MatchesNaiveOnExactMatch(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	const (
		coeffCount = 13
		nFrames    = 4096
		mFrames    = 512
		wantOffset = 1234
	)

	r := rand.New(rand.NewSource(1))
	whole := randomRows(r, nFrames, coeffCount)
	chunk := whole[wantOffset : wantOffset+mFrames]

	gotNaive := locateNaive(whole, chunk, coeffCount, locateStartCoeff)
	gotFFT, ok := locateFFT(whole, chunk, coeffCount, locateStartCoeff)
	require.True(t, ok)

	assert.Equal(t, wantOffset, gotNaive.Frame)
	assert.Equal(t, wantOffset, gotFFT.Frame)
	assert.Zero(t, gotNaive.Distance)
	assert.InDelta(t, 0.0, gotFFT.Distance, 1e-6)

	// 공개 API도 같은 크기에서 FFT 경로로 같은 답을 낸다.
	loc, err := Locate(sliceMatrix(t, whole, 0, nFrames), sliceMatrix(t, whole, wantOffset, wantOffset+mFrames))
	require.NoError(t, err)
	assert.Equal(t, wantOffset, loc.Frame)
}

func TestLocate_NoisyCopy(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	r := rand.New(rand.NewSource(7))
	whole := randomRows(r, 300, 13)

	noisy := make([][]float64, 40)
	for i := range noisy {
		noisy[i] = make([]float64, 13)
		for k := range noisy[i] {
			noisy[i][k] = whole[120+i][k] + 0.05*r.NormFloat64()
		}
	}

	loc, err := Locate(sliceMatrix(t, whole, 0, len(whole)), sliceMatrix(t, noisy, 0, len(noisy)))
	require.NoError(t, err)
	assert.Equal(t, 120, loc.Frame)
	assert.Equal(t, 1200*time.Millisecond, loc.Offset(10*time.Millisecond))
}

func TestLocate_IgnoresC0(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	r := rand.New(rand.NewSource(3))
	whole := randomRows(r, 100, 13)

	louder := make([][]float64, 20)
	for i := range louder {
		louder[i] = append([]float64(nil), whole[60+i]...)
		louder[i][0] += 50
	}

	loc, err := Locate(sliceMatrix(t, whole, 0, len(whole)), sliceMatrix(t, louder, 0, len(louder)))
	require.NoError(t, err)
	assert.Equal(t, 60, loc.Frame)
	assert.Zero(t, loc.Distance)
}

func TestLocate_InvalidInput(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	r := rand.New(rand.NewSource(5))
	whole := sliceMatrix(t, randomRows(r, 10, 13), 0, 10)
	longer := sliceMatrix(t, randomRows(r, 11, 13), 0, 11)
	narrow := sliceMatrix(t, randomRows(r, 5, 12), 0, 5)

	_, err := Locate(whole, nil)
	assert.ErrorIs(t, err, mfcc.ErrInput)

	_, err = Locate(whole, longer)
	assert.ErrorIs(t, err, mfcc.ErrInput)

	_, err = Locate(whole, narrow)
	assert.ErrorIs(t, err, mfcc.ErrConfigMismatch)
}
