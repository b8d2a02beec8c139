package decode

import (
	"math"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/pkg/errors"
)

// resample converts a mono waveform to dstRate. Extraction parameters are in
// seconds, so every stored sample must share one rate for its flattened MFCC
// vector to line up with the others.
//
// The output has exactly round(len*dst/src) samples: the filter tail is
// flushed and any remainder is trimmed or zero-padded.
func resample(in *Audio, dstRate int) (*Audio, error) {
	if dstRate <= 0 {
		return nil, errors.Errorf("invalid target sample rate: %dHz", dstRate)
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(in.SampleRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create resampler failed")
	}

	out, err := r.Process(in.Samples)
	if err != nil {
		return nil, errors.Wrap(err, "resample failed")
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, errors.Wrap(err, "flush resampler failed")
	}
	out = append(out, tail...)

	want := resampledLength(len(in.Samples), in.SampleRate, dstRate)
	if want == 0 {
		return nil, errors.Errorf("resampling %d samples from %dHz to %dHz produced no output", len(in.Samples), in.SampleRate, dstRate)
	}
	switch {
	case len(out) > want:
		out = out[:want]
	case len(out) < want:
		out = append(out, make([]float64, want-len(out))...)
	}

	return &Audio{Samples: out, SampleRate: dstRate, Channels: in.Channels}, nil
}

func resampledLength(n, srcRate, dstRate int) int {
	return int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
}
