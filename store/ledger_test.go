package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zrma/go-wakeword/mfcc"
)

func TestLedger_RoundTrip(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	entries := []Entry{
		{File: "hey_one.mfcc", Label: "hey"},
		{File: "lights_on_two.mfcc", Label: "lights, on"},
		{File: "hey_three.mfcc", Label: "hey"},
	}

	data, err := formatLedger(entries)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hey_one.mfcc,hey\n")
	assert.Contains(t, string(data), `"lights, on"`)

	parsed, err := parseLedger(data)
	require.NoError(t, err)
	assert.Equal(t, entries, parsed)
}

func TestLedger_ParseErrors(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	entries, err := parseLedger(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = parseLedger([]byte("a.mfcc,hey\nb.mfcc\n"))
	assert.ErrorIs(t, err, mfcc.ErrStorage)
}

func TestCountLabels_FirstAppearanceOrder(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	got := countLabels([]Entry{
		{File: "1", Label: "stop"},
		{File: "2", Label: "hey"},
		{File: "3", Label: "stop"},
		{File: "4", Label: "go"},
		{File: "5", Label: "stop"},
	})
	assert.Equal(t, []LabelCount{
		{Label: "stop", Count: 3},
		{Label: "hey", Count: 1},
		{Label: "go", Count: 1},
	}, got)
	assert.Empty(t, countLabels(nil))
}

func TestSampleFile(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	tests := []struct {
		label, name, want string
	}{
		{"hey", "clip.wav", "hey_clip.mfcc"},
		{"hey jarvis", "take 1.mp3", "hey_jarvis_take_1.mfcc"},
		{"stop", "../../etc/passwd", "stop_etcpasswd.mfcc"},
		{"go", "archive.tar.gz", "go_archive.tar.mfcc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SampleFile(tt.label, tt.name), "%q/%q", tt.label, tt.name)
	}
}

func TestValidateLabel(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	for _, ok := range []string{"hey", "Hey Jarvis", "lights-on", "a.b"} {
		assert.NoErrorf(t, ValidateLabel(ok), "label %q", ok)
	}
	for _, bad := range []string{"", "   ", "bad\nlabel", "불켜", string(make([]byte, 65))} {
		assert.ErrorIsf(t, ValidateLabel(bad), mfcc.ErrInput, "label %q", bad)
	}
}
