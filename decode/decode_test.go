package decode

import (
	"context"
	"math"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"

	"github.com/zrma/go-wakeword/internal/wavtest"
	"github.com/zrma/go-wakeword/mfcc"
)

func TestSniff(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	pcm := wavtest.Bytes(t, 16_000, 16, 1, []int{0, 1, 2, 3})
	var unknown [16]byte
	broken := riff(t, extensibleFmtChunk(t, 1, 16_000, 32, 32, unknown), float32Data(t, 0.1))

	tests := []struct {
		name string
		data []byte
		want Probe
	}{
		{"pcm wav", pcm, Probe{Kind: KindPCM, Format: "wav"}},
		{"unsupported wav", broken, Probe{Kind: KindUnreadable, Format: "wav"}},
		{"mp3 id3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), Probe{Kind: KindTranscode, Format: "mp3"}},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x64}, Probe{Kind: KindTranscode, Format: "mp3"}},
		{"ogg", []byte("OggS\x00\x02"), Probe{Kind: KindTranscode, Format: "ogg"}},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), Probe{Kind: KindTranscode, Format: "flac"}},
		{"mp4", []byte("\x00\x00\x00\x18ftypM4A "), Probe{Kind: KindTranscode, Format: "mp4"}},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F}, Probe{Kind: KindTranscode, Format: "webm"}},
		{"text", []byte("hello, world"), Probe{Kind: KindUnreadable}},
		{"empty", nil, Probe{Kind: KindUnreadable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sniff(tt.data)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, got.Kind.String())
		})
	}
}

func TestDecoder_DecodePCM(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	data := wavtest.Bytes(t, 16_000, 16, 2, []int{1_000, 3_000, -2_000, -1_000})
	d := NewDecoder(DefaultConfig())

	out, err := d.Decode(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 16_000, out.SampleRate)
	assert.Equal(t, 2, out.Channels)
	assert.InDeltaSlice(t, []float64{1_000.0 / 32_768.0, -2_000.0 / 32_768.0}, out.Samples, 1e-9)
}

func TestDecoder_KeepsSourceRateWithoutTarget(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	data := wavtest.Bytes(t, 8_000, 16, 1, wavtest.PCM16(wavtest.Sine(440, 8_000, 8_000, 800)))
	d := NewDecoder(Config{})

	out, err := d.Decode(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 8_000, out.SampleRate)
	assert.Len(t, out.Samples, 800)
	assert.Equal(t, 100*time.Millisecond, out.Duration())
}

func TestDecoder_ResamplesToTarget(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	d := NewDecoder(Config{TargetSampleRate: 16_000})
	for _, rate := range []int{8_000, 22_050, 44_100, 48_000} {
		t.Run(strconv.Itoa(rate), func(t *testing.T) {
			data := wavtest.Bytes(t, rate, 16, 1, wavtest.PCM16(wavtest.Sine(440, 8_000, rate, rate)))

			out, err := d.Decode(context.Background(), data)
			require.NoError(t, err)
			assert.Equal(t, 16_000, out.SampleRate)
			assert.Equal(t, 1, out.Channels)
			require.Len(t, out.Samples, 16_000)
			assert.Equal(t, time.Second, out.Duration())

			// The filter tail must be flushed, not replaced by padding.
			tail := out.Samples[len(out.Samples)-800 : len(out.Samples)-200]
			assert.Greater(t, floats.Norm(tail, 2)/math.Sqrt(float64(len(tail))), 0.1)

			m, err := mfcc.ExtractDefault(out.Samples, out.SampleRate)
			require.NoError(t, err)
			assert.Equal(t, 99, m.NumFrames())
		})
	}
}

func TestResampledLength(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	assert.Equal(t, 16_000, resampledLength(44_100, 44_100, 16_000))
	assert.Equal(t, 1_600, resampledLength(800, 8_000, 16_000))
	assert.Equal(t, 363, resampledLength(1_000, 44_100, 16_000))
}

func TestDecoder_RejectsUnreadableInput(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	var unknown [16]byte
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("definitely not audio")},
		{"unsupported wav", riff(t, extensibleFmtChunk(t, 1, 16_000, 32, 32, unknown), float32Data(t, 0.1))},
		{"header only", riff(t, fmtChunk(t, wavFormatPCM, 1, 16_000, 16), riffChunk{id: "data"})},
	}
	d := NewDecoder(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(context.Background(), tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, mfcc.ErrInput)
		})
	}
}

func TestDecoder_MissingFFmpeg(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	d := NewDecoder(Config{FFmpegPath: "wakeword-test-no-such-ffmpeg"})

	_, err := d.Decode(context.Background(), []byte("ID3\x04\x00\x00\x00\x00\x00\x00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.NotErrorIs(t, err, mfcc.ErrInput)
}

func TestAudio_DurationNil(t *testing.T) {
	var a *Audio
	assert.Zero(t, a.Duration())
}
