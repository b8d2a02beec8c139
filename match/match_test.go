package match

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zrma/go-wakeword/mfcc"
)

func constantMatrix(t *testing.T, frames int, values ...float64) *mfcc.Matrix {
	t.Helper()

	rows := make([][]float64, frames)
	for i := range rows {
		rows[i] = append([]float64(nil), values...)
	}
	m, err := mfcc.FromRows(rows)
	require.NoError(t, err)
	return m
}

func TestMatch_Reflexive(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	samples := make([]float64, 16_000)
	for i := range samples {
		samples[i] = 1_000 * math.Sin(2*math.Pi*440*float64(i)/16_000)
	}
	hey, err := mfcc.ExtractDefault(samples, 16_000)
	require.NoError(t, err)
	require.Equal(t, 99, hey.NumFrames())
	require.Equal(t, 13, hey.NumCoefficients())

	other, err := mfcc.ExtractDefault(make([]float64, 16_000), 16_000)
	require.NoError(t, err)

	got := Match(hey, []Template{
		{Label: "silence", Features: other},
		{Label: "hey", Features: hey},
	})
	assert.True(t, got.Found)
	assert.Equal(t, "hey", got.Label)
	assert.Zero(t, got.Distance)
}

func TestMatch_Nearest(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	templates := []Template{
		{Label: "stop", Features: constantMatrix(t, 3, 10, 10)},
		{Label: "go", Features: constantMatrix(t, 5, 0, 0)},
		{Label: "left", Features: constantMatrix(t, 2, -10, 0)},
	}

	got := Match(constantMatrix(t, 4, 3, 4), templates)
	assert.True(t, got.Found)
	assert.Equal(t, "go", got.Label)
	assert.InDelta(t, 5.0, got.Distance, 1e-12)
}

func TestMatch_TieKeepsFirst(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	templates := []Template{
		{Label: "first", Features: constantMatrix(t, 2, 1, 0)},
		{Label: "second", Features: constantMatrix(t, 2, -1, 0)},
	}

	got := Match(constantMatrix(t, 2, 0, 0), templates)
	assert.Equal(t, "first", got.Label)
	assert.InDelta(t, 1.0, got.Distance, 1e-12)
}

func TestMatch_SkipsIncompatibleTemplates(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	query := constantMatrix(t, 2, 1, 1)
	templates := []Template{
		{Label: "nil"},
		{Label: "wide", Features: constantMatrix(t, 2, 1, 1, 1)},
		{Label: "ok", Features: constantMatrix(t, 1, 2, 2)},
	}

	got := Match(query, templates)
	assert.True(t, got.Found)
	assert.Equal(t, "ok", got.Label)

	got = Match(query, templates[:2])
	assert.False(t, got.Found)
	assert.Empty(t, got.Label)
}

func TestMatch_NoTemplates(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	assert.False(t, Match(constantMatrix(t, 1, 0), nil).Found)
	assert.False(t, Match(nil, []Template{{Label: "a", Features: constantMatrix(t, 1, 0)}}).Found)
}
