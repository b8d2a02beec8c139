package decode

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE

	maxFmtChunkSize = 1 << 10
)

var (
	wavSubFormatPCM       = [16]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}
	wavSubFormatIEEEFloat = [16]byte{0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}
)

// wavFormat holds the fmt and data chunk details read straight from the RIFF
// chunks. It covers the extensible-format fields and the data size that the
// go-audio/wav decoder does not expose.
type wavFormat struct {
	audioFormat        uint16
	channels           uint16
	sampleRate         uint32
	bitsPerSample      uint16
	validBitsPerSample uint16
	subFormat          [16]byte
	dataChunkSize      uint32
}

func (f wavFormat) isIEEEFloat() bool {
	if f.audioFormat == wavFormatIEEEFloat {
		return true
	}
	return f.audioFormat == wavFormatExtensible && f.subFormat == wavSubFormatIEEEFloat
}

func (f wavFormat) isPCM() bool {
	if f.audioFormat == wavFormatPCM {
		return true
	}
	return f.audioFormat == wavFormatExtensible && f.subFormat == wavSubFormatPCM
}

func (f wavFormat) supported() bool {
	return f.isPCM() || f.isIEEEFloat()
}

func probeWav(r io.ReadSeeker) (wavFormat, error) {
	var f wavFormat
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return f, errors.Wrap(err, "rewind wav reader failed")
	}

	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return f, errors.Wrap(err, "read RIFF header failed")
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return f, errors.New("not a RIFF/WAVE file")
	}

	var foundFmt, foundData bool
	for !foundFmt || !foundData {
		var chunkID [4]byte
		if _, err := io.ReadFull(r, chunkID[:]); err != nil {
			return f, errors.Wrap(err, "read chunk ID failed")
		}
		var chunkSize uint32
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return f, errors.Wrap(err, "read chunk size failed")
		}

		switch string(chunkID[:]) {
		case "fmt ":
			if err := f.readFmt(r, chunkSize); err != nil {
				return f, err
			}
			foundFmt = true
			if err := skipPadding(r, chunkSize); err != nil {
				return f, err
			}
		case "data":
			f.dataChunkSize = chunkSize
			foundData = true
			if !foundFmt {
				if err := skipChunk(r, chunkSize); err != nil {
					return f, errors.Wrap(err, "skip data chunk failed")
				}
			}
		default:
			// Zero-length auxiliary chunks are skipped here too.
			if err := skipChunk(r, chunkSize); err != nil {
				return f, errors.Wrap(err, "skip non-fmt chunk failed")
			}
		}
	}
	return f, nil
}

func (f *wavFormat) readFmt(r io.Reader, chunkSize uint32) error {
	if chunkSize < 16 {
		return errors.New("fmt chunk too short")
	}
	if chunkSize > maxFmtChunkSize {
		return errors.Errorf("fmt chunk too large: %d bytes", chunkSize)
	}

	buf := make([]byte, chunkSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return errors.Wrap(err, "read fmt chunk failed")
	}

	f.audioFormat = binary.LittleEndian.Uint16(buf[0:2])
	f.channels = binary.LittleEndian.Uint16(buf[2:4])
	f.sampleRate = binary.LittleEndian.Uint32(buf[4:8])
	f.bitsPerSample = binary.LittleEndian.Uint16(buf[14:16])
	if f.audioFormat != wavFormatExtensible {
		return nil
	}

	if len(buf) < 18 {
		return errors.New("fmt chunk too short for extensible format")
	}
	extraSize := binary.LittleEndian.Uint16(buf[16:18])
	if extraSize < 22 {
		return errors.Errorf("invalid extensible fmt chunk extra size: %d", extraSize)
	}
	if len(buf) < 18+int(extraSize) {
		return errors.Errorf("fmt chunk too short for extensible format: need %d bytes, got %d", 18+int(extraSize), len(buf))
	}
	// WAVE_FORMAT_EXTENSIBLE stores valid bits (2 bytes), channel mask (4 bytes), and sub-format GUID (16 bytes)
	f.validBitsPerSample = binary.LittleEndian.Uint16(buf[18:20])
	copy(f.subFormat[:], buf[24:40])
	return nil
}

func skipChunk(r io.Seeker, size uint32) error {
	skip := int64(size)
	if size%2 == 1 {
		skip++
	}
	_, err := r.Seek(skip, io.SeekCurrent)
	return err
}

func skipPadding(r io.Seeker, size uint32) error {
	if size%2 == 0 {
		return nil
	}
	if _, err := r.Seek(1, io.SeekCurrent); err != nil {
		return errors.Wrap(err, "skip fmt padding failed")
	}
	return nil
}

// ReadWavFile reads a WAV file and returns its first channel.
func ReadWavFile(path string) (out *Audio, err error) {
	file0, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open wav file failed")
	}
	defer func() {
		if err0 := file0.Close(); err0 != nil {
			err = multierr.Append(err, err0)
		}
	}()

	return readWav(file0)
}

func readWav(r io.ReadSeeker) (*Audio, error) {
	format, err := probeWav(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse wav format failed")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "rewind wav reader failed")
	}

	decoder := wav.NewDecoder(r)
	if err := decoder.FwdToPCM(); err != nil {
		return nil, errors.Wrap(err, "decode wav header failed")
	}

	channels := int(decoder.NumChans)
	if channels <= 0 {
		return nil, errors.Errorf("invalid channel count: %d", decoder.NumChans)
	}
	sampleRate := int(decoder.SampleRate)
	if sampleRate <= 0 {
		return nil, errors.Errorf("invalid sample rate: %dHz", sampleRate)
	}

	var samples []float64
	switch {
	case format.isIEEEFloat():
		samples, err = decodeFloatChannel0(decoder, channels, int(format.dataChunkSize))
		if err != nil {
			return nil, errors.Wrap(err, "decode float wav data failed")
		}
	case format.isPCM():
		buf, err := decoder.FullPCMBuffer()
		if err != nil {
			return nil, errors.Wrap(err, "decode wav file failed")
		}
		samples, err = decodeIntChannel0(buf, format, channels, int(decoder.BitDepth))
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unsupported wav format: code=%d subformat=%x", format.audioFormat, format.subFormat)
	}

	if len(samples) == 0 {
		return nil, errors.New("wav file has no samples")
	}
	return &Audio{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// decodeIntChannel0 extracts channel 0 of interleaved integer PCM, normalized to [-1, 1).
func decodeIntChannel0(buf *audio.IntBuffer, format wavFormat, channels int, decoderBitDepth int) ([]float64, error) {
	if buf == nil || buf.Format == nil {
		return nil, errors.New("invalid PCM buffer or format")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = decoderBitDepth
	}
	if bitDepth <= 0 {
		return nil, errors.New("unknown source bit depth")
	}
	bytesPerSample := (bitDepth-1)/8 + 1
	data := buf.Data
	if format.dataChunkSize > 0 {
		dataSize := int(format.dataChunkSize)
		if dataSize%bytesPerSample != 0 {
			return nil, errors.Errorf("wav data size (%d bytes) is not aligned to sample size (%d bytes)", dataSize, bytesPerSample)
		}
		expected := dataSize / bytesPerSample
		if expected > len(data) {
			return nil, errors.Errorf("wav data truncated: expected %d samples, got %d", expected, len(data))
		}
		data = data[:expected]
	}
	if rem := len(data) % channels; rem != 0 {
		return nil, errors.Errorf("wav data length (%d samples) is not divisible by channel count (%d)", len(data), channels)
	}

	validBits := int(format.validBitsPerSample)
	if validBits > bitDepth {
		return nil, errors.Errorf("valid bits per sample (%d) exceed bit depth (%d)", validBits, bitDepth)
	}
	normalizerBits := bitDepth
	unsigned := bitDepth == 8
	if format.audioFormat == wavFormatExtensible && validBits > 0 && validBits < bitDepth && isRightAlignedPCM(data, validBits, bitDepth) {
		// Extensible files may keep the valid bits at the LSB end; normalize by validBits then.
		normalizerBits = validBits
		unsigned = validBits == 8
	}
	normalizer := math.Pow(2, float64(normalizerBits)-1)
	offset := 0.0
	if unsigned {
		// 8-bit PCM is unsigned and centered on 0x80.
		offset = normalizer
	}

	out := make([]float64, len(data)/channels)
	for i := range out {
		out[i] = (float64(data[i*channels]) - offset) / normalizer
	}
	return out, nil
}

func decodeFloatChannel0(decoder *wav.Decoder, channels int, dataChunkSize int) ([]float64, error) {
	if decoder == nil || decoder.PCMChunk == nil {
		return nil, errors.New("PCM chunk not found")
	}

	bitDepth := int(decoder.BitDepth)
	bytesPerSample := bitDepth / 8
	if bytesPerSample != 4 && bytesPerSample != 8 {
		return nil, errors.Errorf("unsupported float bit depth: %d", bitDepth)
	}
	bytesPerFrame := bytesPerSample * channels

	byteCount := decoder.PCMSize
	if dataChunkSize > 0 {
		if dataChunkSize > decoder.PCMSize {
			return nil, errors.Errorf("wav data size (%d bytes) exceeds available PCM size (%d bytes)", dataChunkSize, decoder.PCMSize)
		}
		byteCount = dataChunkSize
	}

	pcm := make([]byte, byteCount)
	if _, err := io.ReadFull(decoder.PCMChunk, pcm); err != nil {
		return nil, errors.Wrap(err, "read PCM chunk failed")
	}
	if rem := len(pcm) % bytesPerFrame; rem != 0 {
		return nil, errors.Errorf("wav data length (%d bytes) is not divisible by frame size (%d)", len(pcm), bytesPerFrame)
	}

	out := make([]float64, len(pcm)/bytesPerFrame)
	for i := range out {
		sampleBytes := pcm[i*bytesPerFrame : i*bytesPerFrame+bytesPerSample]
		var sample float64
		if bytesPerSample == 4 {
			sample = float64(math.Float32frombits(binary.LittleEndian.Uint32(sampleBytes)))
		} else {
			sample = math.Float64frombits(binary.LittleEndian.Uint64(sampleBytes))
		}
		if math.IsNaN(sample) || math.IsInf(sample, 0) {
			return nil, errors.Errorf("invalid float PCM sample at frame %d", i)
		}
		out[i] = sample
	}
	return out, nil
}

// isRightAlignedPCM reports whether WAVE_FORMAT_EXTENSIBLE samples are LSB
// aligned. validBits is advisory, so only samples whose low bits are actually
// used count as LSB aligned.
func isRightAlignedPCM(samples []int, validBits, bitDepth int) bool {
	shift := bitDepth - validBits
	if validBits <= 0 || shift <= 0 || shift >= 63 {
		return false
	}

	maxValid := int64(1<<(validBits-1)) - 1
	mask := uint64(1<<uint(shift)) - 1

	hasLowBits := false
	for _, sample := range samples {
		if uint64(sample)&mask != 0 {
			hasLowBits = true
		}
		abs := int64(sample)
		if abs < 0 {
			abs = -abs
		}
		if abs > maxValid {
			return false
		}
	}
	return hasLowBits
}
