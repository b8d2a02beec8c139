// Package store persists labeled MFCC samples and the classifier trained on
// them.
//
// Layout under the store root:
//
//	samples/<label>_<name>.mfcc  one feature matrix per labeled sample
//	labels.csv                   ordered (file,label) rows
//	model.msgpack                the current classifier
//	store.yaml                   the feature configuration every sample shares
//
// Every AddSample re-reads all samples listed in the ledger and refits the
// classifier from scratch. This is O(n) work per addition and O(n²) over the
// life of a dataset.
package store

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/zrma/go-wakeword/classifier"
	"github.com/zrma/go-wakeword/match"
	"github.com/zrma/go-wakeword/mfcc"
)

const (
	samplesDir  = "samples"
	sampleExt   = ".mfcc"
	ledgerFile  = "labels.csv"
	modelFile   = "model.msgpack"
	metaFile    = "store.yaml"
	metaVersion = 1

	// StatusRetrained is reported when a new model was trained and saved.
	StatusRetrained = "Model retrained and saved."
	// StatusNotEnoughData is reported when training was skipped and the
	// previous model, if any, was kept.
	StatusNotEnoughData = "Not enough data to retrain model."
)

// Options configures Open.
type Options struct {
	// Dir is the store root. Ignored when Files is set.
	Dir string
	// Files overrides the backing storage.
	Files FileStore
	// Train configures the classifier fit.
	Train classifier.Config
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Sample is a stored labeled feature matrix.
type Sample struct {
	File     string
	Label    string
	Features *mfcc.Matrix
}

// AddResult describes the outcome of AddSample.
type AddResult struct {
	File      string
	Label     string
	Retrained bool
	Status    string
	// Samples is the number of samples the retraining pass saw.
	Samples int
}

type snapshot struct {
	entries     []Entry
	samples     []Sample
	model       *classifier.Model
	fingerprint string
}

type metadata struct {
	Version  int    `yaml:"version"`
	Features string `yaml:"features"`
}

// Store is safe for concurrent use. Writers are serialized; readers see the
// last published snapshot and never block on a writer.
type Store struct {
	files    FileStore
	trainCfg classifier.Config
	logger   *slog.Logger

	mu    sync.Mutex
	state atomic.Pointer[snapshot]
}

// Open loads the ledger, every readable sample and the model. A missing or
// corrupt model is not an error: the store simply has no model.
func Open(ctx context.Context, opts Options) (*Store, error) {
	files := opts.Files
	if files == nil {
		if opts.Dir == "" {
			return nil, errors.Wrap(mfcc.ErrInput, "store directory is required")
		}
		local, err := NewLocal(opts.Dir)
		if err != nil {
			return nil, errors.Wrapf(mfcc.ErrStorage, "open store dir %q: %v", opts.Dir, err)
		}
		files = local
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{files: files, trainCfg: opts.Train, logger: logger}

	entries, err := s.readLedger(ctx)
	if err != nil {
		return nil, err
	}
	fingerprint, err := s.readMetadata(ctx)
	if err != nil {
		return nil, err
	}
	samples := s.loadSamples(ctx, entries)
	model := s.loadModel(ctx)
	if model != nil && fingerprint != "" && model.Fingerprint() != fingerprint {
		s.logger.WarnContext(ctx, "ignore model trained with other features",
			"model", model.Fingerprint(),
			"store", fingerprint,
		)
		model = nil
	}

	s.state.Store(&snapshot{entries: entries, samples: samples, model: model, fingerprint: fingerprint})
	logger.InfoContext(ctx, "store opened",
		"entries", len(entries),
		"samples", len(samples),
		"model", model != nil,
		"features", fingerprint,
	)
	return s, nil
}

func (s *Store) readMetadata(ctx context.Context) (string, error) {
	data, err := readFile(ctx, s.files, metaFile)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(mfcc.ErrStorage, "read metadata failed: %v", err)
	}
	var meta metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return "", errors.Wrapf(mfcc.ErrStorage, "parse %s failed: %v", metaFile, err)
	}
	if meta.Version != metaVersion {
		return "", errors.Wrapf(mfcc.ErrStorage, "unsupported %s version %d", metaFile, meta.Version)
	}
	return meta.Features, nil
}

func (s *Store) writeMetadata(ctx context.Context, fingerprint string) error {
	data, err := yaml.Marshal(metadata{Version: metaVersion, Features: fingerprint})
	if err != nil {
		return err
	}
	if err := writeFile(ctx, s.files, metaFile, data); err != nil {
		return errors.Wrapf(mfcc.ErrStorage, "write metadata failed: %v", err)
	}
	return nil
}

func (s *Store) readLedger(ctx context.Context) ([]Entry, error) {
	data, err := readFile(ctx, s.files, ledgerFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(mfcc.ErrStorage, "read ledger failed: %v", err)
	}
	return parseLedger(data)
}

// loadSamples reads the feature file of every ledger entry. Unreadable files
// are logged and skipped.
func (s *Store) loadSamples(ctx context.Context, entries []Entry) []Sample {
	samples := make([]Sample, 0, len(entries))
	for _, e := range entries {
		data, err := readFile(ctx, s.files, path.Join(samplesDir, e.File))
		if err != nil {
			s.logger.WarnContext(ctx, "skip unreadable sample", "file", e.File, "label", e.Label, "error", err)
			continue
		}
		var m mfcc.Matrix
		if err := m.UnmarshalBinary(data); err != nil {
			s.logger.WarnContext(ctx, "skip corrupt sample", "file", e.File, "label", e.Label, "error", err)
			continue
		}
		samples = append(samples, Sample{File: e.File, Label: e.Label, Features: &m})
	}
	return samples
}

func (s *Store) loadModel(ctx context.Context) *classifier.Model {
	ok, err := s.files.Exists(ctx, modelFile)
	if err != nil || !ok {
		if err != nil {
			s.logger.WarnContext(ctx, "stat model failed", "error", err)
		}
		return nil
	}

	data, err := readFile(ctx, s.files, modelFile)
	if err != nil {
		s.logger.WarnContext(ctx, "read model failed", "error", err)
		return nil
	}
	model, err := classifier.Load(bytes.NewReader(data))
	if err != nil {
		s.logger.WarnContext(ctx, "ignore corrupt model", "error", err)
		return nil
	}
	return model
}

// AddSample stores m under label, appends it to the ledger and retrains the
// classifier on every stored sample. fingerprint identifies the extraction
// settings that produced m (see mfcc.Extractor.Fingerprint).
//
// A feature matrix whose flattened length or fingerprint differs from the
// stored samples is rejected with mfcc.ErrConfigMismatch before anything is
// written. So is a name whose sample file already belongs to another label.
// Not having enough data to train is reported through AddResult.Status, not
// as an error.
func (s *Store) AddSample(ctx context.Context, label, name string, m *mfcc.Matrix, fingerprint string) (*AddResult, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	if SafeName(name) == "" {
		return nil, errors.Wrapf(mfcc.ErrInput, "invalid sample name: %q", name)
	}
	if m.NumFrames() == 0 {
		return nil, errors.Wrap(mfcc.ErrInput, "empty feature matrix")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cur := s.state.Load()
	dim := len(m.Flatten())
	if len(cur.samples) > 0 {
		if want := len(cur.samples[0].Features.Flatten()); want != dim {
			return nil, errors.Wrapf(mfcc.ErrConfigMismatch, "feature length %d does not match stored samples (%d)", dim, want)
		}
	}

	if len(cur.entries) > 0 && cur.fingerprint != "" && cur.fingerprint != fingerprint {
		return nil, errors.Wrapf(mfcc.ErrConfigMismatch, "features %q do not match stored samples %q", fingerprint, cur.fingerprint)
	}

	file := SampleFile(label, name)
	existing := slices.IndexFunc(cur.entries, func(e Entry) bool { return e.File == file })
	if existing >= 0 && cur.entries[existing].Label != label {
		return nil, errors.Wrapf(mfcc.ErrInput, "sample file %s already holds label %q", file, cur.entries[existing].Label)
	}

	data, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	entries := slices.Clone(cur.entries)
	if existing < 0 {
		entries = append(entries, Entry{File: file, Label: label})
	}
	ledger, err := formatLedger(entries)
	if err != nil {
		return nil, err
	}

	if fingerprint != cur.fingerprint {
		if len(cur.entries) > 0 {
			s.logger.WarnContext(ctx, "adopt features for unversioned store", "features", fingerprint)
		}
		if err := s.writeMetadata(ctx, fingerprint); err != nil {
			return nil, err
		}
	}

	samplePath := path.Join(samplesDir, file)
	var previous []byte
	if existing >= 0 {
		previous, _ = readFile(ctx, s.files, samplePath)
	}
	if err := writeFile(ctx, s.files, samplePath, data); err != nil {
		return nil, errors.Wrapf(mfcc.ErrStorage, "write sample %s failed: %v", file, err)
	}
	if err := writeFile(ctx, s.files, ledgerFile, ledger); err != nil {
		err = errors.Wrapf(mfcc.ErrStorage, "write ledger failed: %v", err)
		return nil, multierr.Append(err, s.restoreSample(ctx, samplePath, previous))
	}

	next := &snapshot{
		entries:     entries,
		samples:     s.loadSamples(ctx, entries),
		model:       cur.model,
		fingerprint: fingerprint,
	}
	res := &AddResult{File: file, Label: label, Samples: len(next.samples)}

	model, err := s.retrain(ctx, next.samples, fingerprint)
	switch {
	case errors.Is(err, mfcc.ErrInsufficientData):
		res.Status = StatusNotEnoughData
	case err != nil:
		// The sample and ledger are on disk already; publish them with the old model.
		s.state.Store(next)
		return nil, err
	default:
		next.model = model
		res.Retrained = true
		res.Status = StatusRetrained
	}
	s.state.Store(next)

	s.logger.InfoContext(ctx, "sample added",
		"file", file,
		"label", label,
		"samples", res.Samples,
		"status", res.Status,
	)
	return res, nil
}

// restoreSample undoes a sample write whose ledger update failed. previous is
// nil when the file did not exist before.
func (s *Store) restoreSample(ctx context.Context, samplePath string, previous []byte) error {
	if previous == nil {
		return s.files.Delete(ctx, samplePath)
	}
	return writeFile(ctx, s.files, samplePath, previous)
}

func (s *Store) retrain(ctx context.Context, samples []Sample, fingerprint string) (*classifier.Model, error) {
	train := make([]classifier.Sample, len(samples))
	for i, sample := range samples {
		train[i] = classifier.Sample{
			Features:    sample.Features.Flatten(),
			Label:       sample.Label,
			Fingerprint: fingerprint,
		}
	}

	model, err := classifier.TrainWithConfig(train, s.trainCfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := model.Save(&buf); err != nil {
		return nil, err
	}
	if err := writeFile(ctx, s.files, modelFile, buf.Bytes()); err != nil {
		return nil, errors.Wrapf(mfcc.ErrStorage, "write model failed: %v", err)
	}
	return model, nil
}

// Model returns the current classifier, or nil if none has been trained.
func (s *Store) Model() *classifier.Model {
	return s.state.Load().model
}

// Samples returns the stored samples in ledger order.
func (s *Store) Samples() []Sample {
	return slices.Clone(s.state.Load().samples)
}

// Templates returns one match.Template per stored sample.
func (s *Store) Templates() []match.Template {
	samples := s.state.Load().samples
	out := make([]match.Template, len(samples))
	for i, sample := range samples {
		out[i] = match.Template{Label: sample.Label, Features: sample.Features}
	}
	return out
}

// Labels returns the sample count per label in order of first appearance.
func (s *Store) Labels() []LabelCount {
	return countLabels(s.state.Load().entries)
}

// Fingerprint returns the extraction settings shared by the stored samples,
// or "" for an empty or unversioned store.
func (s *Store) Fingerprint() string {
	return s.state.Load().fingerprint
}

// Predict classifies a flattened feature vector with the current model.
// fingerprint must match the settings the model was trained with.
func (s *Store) Predict(features []float64, fingerprint string) (*classifier.Prediction, error) {
	model := s.state.Load().model
	if model == nil {
		return nil, classifier.ErrNoModel
	}
	if model.Fingerprint() != fingerprint {
		return nil, errors.Wrapf(mfcc.ErrConfigMismatch, "features %q do not match model %q", fingerprint, model.Fingerprint())
	}
	return model.Predict(features)
}
