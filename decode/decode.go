// Package decode turns uploaded audio bytes into a mono PCM waveform.
//
// Every input is first classified by Sniff into one of three kinds: WAV that
// can be read directly, a known compressed container that ffmpeg has to
// transcode, or something unreadable. Decode then follows exactly one path
// for that kind. Multi-channel input is reduced to channel 0.
package decode

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"

	"github.com/zrma/go-wakeword/mfcc"
)

// Kind is the decode path chosen for an input.
type Kind int

const (
	// KindUnreadable inputs are rejected with mfcc.ErrInput.
	KindUnreadable Kind = iota
	// KindPCM inputs are WAV files with integer or float PCM data.
	KindPCM
	// KindTranscode inputs are compressed containers converted by ffmpeg.
	KindTranscode
)

func (k Kind) String() string {
	switch k {
	case KindPCM:
		return "pcm"
	case KindTranscode:
		return "transcode"
	default:
		return "unreadable"
	}
}

// Probe is the result of Sniff.
type Probe struct {
	Kind   Kind
	Format string // "wav", "mp3", "ogg", "flac", "mp4", "webm" or ""
}

// Audio is a decoded single-channel waveform.
type Audio struct {
	Samples    []float64
	SampleRate int
	// Channels is the channel count of the source before channel-0 selection.
	Channels int
}

// Duration returns the playback length of the waveform.
func (a *Audio) Duration() time.Duration {
	if a == nil || a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(a.Samples)) / float64(a.SampleRate) * float64(time.Second))
}

// Sniff classifies data by its magic bytes without decoding the payload.
func Sniff(data []byte) Probe {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		format, err := probeWav(bytes.NewReader(data))
		if err != nil || !format.supported() {
			return Probe{Kind: KindUnreadable, Format: "wav"}
		}
		return Probe{Kind: KindPCM, Format: "wav"}
	case bytes.HasPrefix(data, []byte("ID3")),
		len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return Probe{Kind: KindTranscode, Format: "mp3"}
	case bytes.HasPrefix(data, []byte("OggS")):
		return Probe{Kind: KindTranscode, Format: "ogg"}
	case bytes.HasPrefix(data, []byte("fLaC")):
		return Probe{Kind: KindTranscode, Format: "flac"}
	case len(data) >= 8 && string(data[4:8]) == "ftyp":
		return Probe{Kind: KindTranscode, Format: "mp4"}
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return Probe{Kind: KindTranscode, Format: "webm"}
	default:
		return Probe{Kind: KindUnreadable}
	}
}

// Config controls the Decoder.
type Config struct {
	// TargetSampleRate resamples every decoded waveform to this rate. 0 keeps
	// the source rate.
	TargetSampleRate int `yaml:"target_sample_rate"`
	// FFmpegPath is the ffmpeg binary used for KindTranscode inputs.
	FFmpegPath string `yaml:"ffmpeg_path"`
	// Timeout bounds a single ffmpeg run.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig keeps 16kHz, the rate the default MFCC frame fits into a
// 512-point FFT.
func DefaultConfig() Config {
	return Config{
		TargetSampleRate: 16_000,
		FFmpegPath:       "ffmpeg",
		Timeout:          30 * time.Second,
	}
}

// Decoder decodes uploads into Audio.
type Decoder struct {
	cfg Config
}

// NewDecoder creates a Decoder. Zero fields fall back to DefaultConfig, except
// TargetSampleRate where 0 means "keep the source rate".
func NewDecoder(cfg Config) *Decoder {
	def := DefaultConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Decoder{cfg: cfg}
}

// Decode sniffs data and decodes it along the matching path.
// Errors caused by the input itself wrap mfcc.ErrInput.
func (d *Decoder) Decode(ctx context.Context, data []byte) (*Audio, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(mfcc.ErrInput, "empty audio data")
	}

	probe := Sniff(data)
	var (
		out *Audio
		err error
	)
	switch probe.Kind {
	case KindPCM:
		out, err = readWav(bytes.NewReader(data))
	case KindTranscode:
		var wavData []byte
		wavData, err = d.transcode(ctx, data, probe.Format)
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return nil, err
			}
			return nil, errors.Wrapf(mfcc.ErrInput, "%v", err)
		}
		out, err = readWav(bytes.NewReader(wavData))
	default:
		return nil, errors.Wrapf(mfcc.ErrInput, "unsupported audio container (format=%q)", probe.Format)
	}
	if err != nil {
		return nil, errors.Wrapf(mfcc.ErrInput, "%s decode failed: %v", probe.Format, err)
	}

	if d.cfg.TargetSampleRate > 0 && out.SampleRate != d.cfg.TargetSampleRate {
		return resample(out, d.cfg.TargetSampleRate)
	}
	return out, nil
}
