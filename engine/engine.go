// Package engine wires audio decoding, MFCC extraction, template matching and
// the classifier store into the operations exposed by the server and the CLI.
package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zrma/go-wakeword/classifier"
	"github.com/zrma/go-wakeword/decode"
	"github.com/zrma/go-wakeword/match"
	"github.com/zrma/go-wakeword/mfcc"
	"github.com/zrma/go-wakeword/store"
)

// Config is the application level configuration.
type Config struct {
	DataDir string            `yaml:"data_dir"`
	MFCC    mfcc.Config       `yaml:"mfcc"`
	Decode  decode.Config     `yaml:"decode"`
	Train   classifier.Config `yaml:"train"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		DataDir: "wakeword_data",
		MFCC:    mfcc.DefaultConfig(),
		Decode:  decode.DefaultConfig(),
		Train:   classifier.DefaultConfig(),
	}
}

// Analysis is the result of Analyze.
type Analysis struct {
	Features   *mfcc.Matrix
	SampleRate int
	Duration   time.Duration
	// Command is the label of the nearest stored template; empty when there
	// is nothing to compare against.
	Command  string
	Distance float64
}

// Location is where a template clip occurs inside a recording.
type Location struct {
	Frame    int
	Offset   time.Duration
	Distance float64
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg     Config
	decoder *decode.Decoder
	store   *store.Store
	logger  *slog.Logger

	mu         sync.Mutex
	extractors map[int]*mfcc.Extractor
}

// New opens the sample store under cfg.DataDir and returns a ready engine.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultConfig().DataDir
	}
	if cfg.Decode.TargetSampleRate > 0 {
		// Reject an unusable extraction config at startup rather than on the
		// first upload.
		if _, err := mfcc.NewExtractor(cfg.Decode.TargetSampleRate, cfg.MFCC); err != nil {
			return nil, err
		}
	}

	st, err := store.Open(ctx, store.Options{
		Dir:    cfg.DataDir,
		Train:  cfg.Train,
		Logger: logger.With("component", "store"),
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		decoder:    decode.NewDecoder(cfg.Decode),
		store:      st,
		logger:     logger,
		extractors: make(map[int]*mfcc.Extractor),
	}, nil
}

// Store returns the underlying sample store.
func (e *Engine) Store() *store.Store {
	return e.store
}

func (e *Engine) extractor(sampleRate int) (*mfcc.Extractor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ex, ok := e.extractors[sampleRate]; ok {
		return ex, nil
	}
	ex, err := mfcc.NewExtractor(sampleRate, e.cfg.MFCC)
	if err != nil {
		return nil, err
	}
	e.extractors[sampleRate] = ex
	return ex, nil
}

type features struct {
	matrix    *mfcc.Matrix
	audio     *decode.Audio
	extractor *mfcc.Extractor
}

func (e *Engine) features(ctx context.Context, data []byte) (*features, error) {
	audio, err := e.decoder.Decode(ctx, data)
	if err != nil {
		return nil, err
	}
	ex, err := e.extractor(audio.SampleRate)
	if err != nil {
		return nil, err
	}
	m, err := ex.Calculate(audio.Samples)
	if err != nil {
		return nil, err
	}

	frames, coefficients := m.Shape()
	e.logger.DebugContext(ctx, "features extracted",
		"sample_rate", audio.SampleRate,
		"channels", audio.Channels,
		"duration", audio.Duration(),
		"frames", frames,
		"coefficients", coefficients,
	)
	return &features{matrix: m, audio: audio, extractor: ex}, nil
}

// Analyze extracts MFCC features from an audio upload and matches them
// against the stored templates.
func (e *Engine) Analyze(ctx context.Context, data []byte) (*Analysis, error) {
	f, err := e.features(ctx, data)
	if err != nil {
		return nil, err
	}

	var res match.Result
	if stored := e.store.Fingerprint(); stored == "" || stored == f.extractor.Fingerprint() {
		res = match.Match(f.matrix, e.store.Templates())
	} else {
		e.logger.DebugContext(ctx, "skip templates from other features", "features", f.extractor.Fingerprint(), "stored", stored)
	}
	return &Analysis{
		Features:   f.matrix,
		SampleRate: f.audio.SampleRate,
		Duration:   f.audio.Duration(),
		Command:    res.Label,
		Distance:   res.Distance,
	}, nil
}

// Train stores an audio upload as a labeled sample and retrains the
// classifier. An empty name gets a random one.
func (e *Engine) Train(ctx context.Context, label, name string, data []byte) (*store.AddResult, error) {
	if err := store.ValidateLabel(label); err != nil {
		return nil, err
	}
	if name == "" {
		name = uuid.NewString()
	}

	f, err := e.features(ctx, data)
	if err != nil {
		return nil, err
	}
	return e.store.AddSample(ctx, label, name, f.matrix, f.extractor.Fingerprint())
}

// Detect classifies an audio upload with the current model.
func (e *Engine) Detect(ctx context.Context, data []byte) (*classifier.Prediction, error) {
	if e.store.Model() == nil {
		return nil, classifier.ErrNoModel
	}
	f, err := e.features(ctx, data)
	if err != nil {
		return nil, err
	}
	pred, err := e.store.Predict(f.matrix.Flatten(), f.extractor.Fingerprint())
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "wake word detected", "label", pred.Label, "confidence", pred.Confidence)
	return pred, nil
}

// Labels returns the stored sample count per label.
func (e *Engine) Labels() []store.LabelCount {
	return e.store.Labels()
}

// Export writes the stored dataset as a zip archive.
func (e *Engine) Export(ctx context.Context, w io.Writer) error {
	return e.store.Export(ctx, w)
}

// Locate finds where the template clip occurs inside the recording.
func (e *Engine) Locate(ctx context.Context, recording, template []byte) (*Location, error) {
	rec, err := e.features(ctx, recording)
	if err != nil {
		return nil, errors.Wrap(err, "recording")
	}
	tmpl, err := e.features(ctx, template)
	if err != nil {
		return nil, errors.Wrap(err, "template")
	}
	if rec.audio.SampleRate != tmpl.audio.SampleRate {
		return nil, errors.Wrapf(mfcc.ErrConfigMismatch, "recording is %dHz but template is %dHz", rec.audio.SampleRate, tmpl.audio.SampleRate)
	}

	loc, err := match.Locate(rec.matrix, tmpl.matrix)
	if err != nil {
		return nil, err
	}
	hop := time.Duration(float64(rec.extractor.FrameStep()) / float64(rec.extractor.SampleRate()) * float64(time.Second))
	return &Location{Frame: loc.Frame, Offset: loc.Offset(hop), Distance: loc.Distance}, nil
}
