package decode

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// transcode converts a compressed container to 16-bit WAV with ffmpeg.
// The output goes to a temporary file so ffmpeg can seek back and write
// correct RIFF sizes; a piped WAV would carry placeholder sizes.
func (d *Decoder) transcode(ctx context.Context, data []byte, format string) (out []byte, err error) {
	dir, err := os.MkdirTemp("", "wakeword-transcode-*")
	if err != nil {
		return nil, errors.Wrap(err, "create transcode dir failed")
	}
	defer func() {
		if err0 := os.RemoveAll(dir); err0 != nil {
			err = multierr.Append(err, err0)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	outPath := filepath.Join(dir, "out.wav")
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-af", "pan=mono|c0=c0", // channel 0 only
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"-y", outPath,
	}
	cmd := exec.CommandContext(ctx, d.cfg.FFmpegPath, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "ffmpeg %s transcode timed out", format)
		}
		return nil, errors.Wrapf(err, "ffmpeg %s transcode failed: %s", format, strings.TrimSpace(stderr.String()))
	}

	out, err = os.ReadFile(outPath)
	if err != nil {
		return nil, errors.Wrap(err, "read transcoded wav failed")
	}
	return out, nil
}
