package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zrma/go-wakeword/classifier"
	"github.com/zrma/go-wakeword/internal/wavtest"
	"github.com/zrma/go-wakeword/mfcc"
	"github.com/zrma/go-wakeword/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	e, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return e
}

func toneWav(t *testing.T, freq, amplitude float64, n int) []byte {
	t.Helper()
	return wavtest.Bytes(t, 16_000, 16, 1, wavtest.PCM16(wavtest.Sine(freq, amplitude, 16_000, n)))
}

func TestEngine_Analyze(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ctx := context.Background()
	e := newTestEngine(t)
	hey := toneWav(t, 440, 1_000, 16_000)

	a, err := e.Analyze(ctx, hey)
	require.NoError(t, err)
	frames, coefficients := a.Features.Shape()
	assert.Equal(t, 99, frames)
	assert.Equal(t, 13, coefficients)
	assert.Equal(t, 16_000, a.SampleRate)
	assert.Equal(t, time.Second, a.Duration)
	assert.Empty(t, a.Command, "no templates yet")

	_, err = e.Train(ctx, "hey", "hey.wav", hey)
	require.NoError(t, err)
	_, err = e.Train(ctx, "stop", "stop.wav", toneWav(t, 2_000, 1_000, 16_000))
	require.NoError(t, err)

	a, err = e.Analyze(ctx, hey)
	require.NoError(t, err)
	assert.Equal(t, "hey", a.Command)
	assert.Zero(t, a.Distance)
}

func TestEngine_TrainAndDetect(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.Detect(ctx, toneWav(t, 440, 1_000, 16_000))
	assert.ErrorIs(t, err, classifier.ErrNoModel)

	res, err := e.Train(ctx, "low", "a.wav", toneWav(t, 440, 2_000, 16_000))
	require.NoError(t, err)
	assert.Equal(t, store.StatusNotEnoughData, res.Status)
	assert.Equal(t, "low_a.mfcc", res.File)

	for i, amp := range []float64{1_000, 3_000, 5_000} {
		_, err := e.Train(ctx, "high", "h"+string(rune('0'+i)), toneWav(t, 2_500, amp, 16_000))
		require.NoError(t, err)
		_, err = e.Train(ctx, "low", "l"+string(rune('0'+i)), toneWav(t, 440, amp, 16_000))
		require.NoError(t, err)
	}
	require.NotNil(t, e.Store().Model())

	p, err := e.Detect(ctx, toneWav(t, 440, 4_000, 16_000))
	require.NoError(t, err)
	assert.Equal(t, "low", p.Label)
	assert.Equal(t, []string{"high", "low"}, p.Labels)
	assert.Greater(t, p.Confidence, 0.5)

	p, err = e.Detect(ctx, toneWav(t, 2_500, 4_000, 16_000))
	require.NoError(t, err)
	assert.Equal(t, "high", p.Label)

	_, err = e.Detect(ctx, toneWav(t, 440, 1_000, 8_000))
	assert.ErrorIs(t, err, mfcc.ErrConfigMismatch)

	assert.Equal(t, []store.LabelCount{{Label: "low", Count: 4}, {Label: "high", Count: 3}}, e.Labels())
}

func TestEngine_RejectsOtherFeatureSettings(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	e, err := New(ctx, cfg, logger)
	require.NoError(t, err)

	low := toneWav(t, 440, 1_000, 16_000)
	_, err = e.Train(ctx, "low", "a.wav", low)
	require.NoError(t, err)
	_, err = e.Train(ctx, "high", "b.wav", toneWav(t, 2_500, 1_000, 16_000))
	require.NoError(t, err)
	require.NotNil(t, e.Store().Model())

	changed := cfg
	changed.MFCC.NumFilters = 40
	changed.MFCC.DisablePreEmphasis = true
	reopened, err := New(ctx, changed, logger)
	require.NoError(t, err)

	_, err = reopened.Train(ctx, "low", "c.wav", low)
	assert.ErrorIs(t, err, mfcc.ErrConfigMismatch)
	_, err = reopened.Detect(ctx, low)
	assert.ErrorIs(t, err, mfcc.ErrConfigMismatch)

	a, err := reopened.Analyze(ctx, low)
	require.NoError(t, err)
	assert.Empty(t, a.Command)
	assert.Equal(t, []store.LabelCount{{Label: "low", Count: 1}, {Label: "high", Count: 1}}, reopened.Labels())

	again, err := New(ctx, cfg, logger)
	require.NoError(t, err)
	p, err := again.Detect(ctx, low)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low"}, p.Labels)
}

func TestEngine_TrainRejectsBadInput(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.Train(ctx, "", "a.wav", toneWav(t, 440, 1_000, 1_600))
	assert.ErrorIs(t, err, mfcc.ErrInput)

	_, err = e.Train(ctx, "hey", "a.wav", []byte("not audio"))
	assert.ErrorIs(t, err, mfcc.ErrInput)

	_, err = e.Analyze(ctx, nil)
	assert.ErrorIs(t, err, mfcc.ErrInput)

	assert.Empty(t, e.Labels())
}

func TestEngine_TrainGeneratesName(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	e := newTestEngine(t)
	res, err := e.Train(context.Background(), "hey", "", toneWav(t, 440, 1_000, 1_600))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.File, "hey_"))
	assert.Len(t, res.File, len("hey_")+36+len(".mfcc"))
}

func TestEngine_Export(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ctx := context.Background()
	e := newTestEngine(t)

	var buf bytes.Buffer
	assert.ErrorIs(t, e.Export(ctx, &buf), mfcc.ErrStorage)

	_, err := e.Train(ctx, "hey", "a.wav", toneWav(t, 440, 1_000, 1_600))
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, e.Export(ctx, &buf))
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"hey_a.mfcc", "labels.csv"}, names)
}

func TestEngine_Locate(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	const (
		start  = 50 * 160
		length = 4_800
	)
	recording := make([]int, 32_000)
	copy(recording[start:], wavtest.PCM16(wavtest.Sine(660, 3_000, 16_000, length)))
	template := recording[start : start+length]

	e := newTestEngine(t)
	loc, err := e.Locate(context.Background(),
		wavtest.Bytes(t, 16_000, 16, 1, recording),
		wavtest.Bytes(t, 16_000, 16, 1, template),
	)
	require.NoError(t, err)
	assert.Equal(t, 50, loc.Frame)
	assert.Equal(t, 500*time.Millisecond, loc.Offset)
	assert.InDelta(t, 0.0, loc.Distance, 1e-6)
}

func TestNew_RejectsUnusableConfig(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.MFCC.FFTSize = 256

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, mfcc.ErrInput)
}
