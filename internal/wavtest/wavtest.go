// Package wavtest builds WAV fixtures for tests.
package wavtest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// Write encodes interleaved integer PCM into a WAV file at path.
func Write(t testing.TB, path string, sampleRate, bitDepth, numChannels int, data []int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, numChannels, 1)
	buf := &audio.IntBuffer{
		Data: data,
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: bitDepth,
	}

	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

// Bytes encodes interleaved integer PCM and returns the WAV file content.
func Bytes(t testing.TB, sampleRate, bitDepth, numChannels int, data []int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	Write(t, path, sampleRate, bitDepth, numChannels, data)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

// Sine returns n samples of a sine tone.
func Sine(freq, amplitude float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// PCM16 rounds samples to 16-bit integers, clipping at the int16 range.
func PCM16(samples []float64) []int {
	out := make([]int, len(samples))
	for i, v := range samples {
		out[i] = int(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
	}
	return out
}
