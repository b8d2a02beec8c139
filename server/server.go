// Package server exposes the wake word engine over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/zrma/go-wakeword/classifier"
	"github.com/zrma/go-wakeword/engine"
	"github.com/zrma/go-wakeword/mfcc"
	"github.com/zrma/go-wakeword/store"
)

const (
	// DefaultMaxUploadBytes bounds a single multipart request.
	DefaultMaxUploadBytes = 32 << 20

	datasetFilename = "wakeword_dataset.zip"
	noModelMessage  = "No trained model found. Please train a wake word first."
	shutdownTimeout = 5 * time.Second
)

// Engine is the subset of engine.Engine the handlers use.
type Engine interface {
	Analyze(ctx context.Context, data []byte) (*engine.Analysis, error)
	Train(ctx context.Context, label, name string, data []byte) (*store.AddResult, error)
	Detect(ctx context.Context, data []byte) (*classifier.Prediction, error)
	Labels() []store.LabelCount
	Export(ctx context.Context, w io.Writer) error
}

// Server wraps the HTTP routes around an Engine.
type Server struct {
	addr           string
	engine         Engine
	logger         *slog.Logger
	maxUploadBytes int64
	mux            *http.ServeMux
}

// New creates a server listening on addr. A nil logger uses slog.Default().
func New(addr string, eng Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:           addr,
		engine:         eng,
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
		mux:            http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("POST /train_wakeword", s.handleTrain)
	s.mux.HandleFunc("POST /detect_wakeword", s.handleDetect)
	s.mux.HandleFunc("GET /list_wakewords", s.handleList)
	s.mux.HandleFunc("GET /download_wakeword_dataset", s.handleDownload)
}

// Handler returns the routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.InfoContext(ctx, "server started", "addr", s.addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown failed")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen failed")
	}
	s.logger.Info("server stopped", "addr", s.addr)
	return nil
}

type uploadResponse struct {
	Status    string      `json:"status"`
	Filename  string      `json:"filename"`
	Command   *string     `json:"command"`
	MFCC      [][]float64 `json:"mfcc"`
	MFCCShape [2]int      `json:"mfcc_shape"`
}

type trainResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Label    string `json:"label"`
	MFCCFile string `json:"mfcc_file"`
	Retrain  string `json:"retrain"`
}

type detectResponse struct {
	PredictedLabel string    `json:"predicted_label"`
	Confidence     float64   `json:"confidence"`
	Labels         []string  `json:"labels"`
	Probabilities  []float64 `json:"probabilities"`
}

type listResponse struct {
	Wakewords []store.LabelCount `json:"wakewords"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	res, err := s.engine.Analyze(r.Context(), data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	frames, coefficients := res.Features.Shape()
	resp := uploadResponse{
		Status:    "processed",
		Filename:  store.SafeName(name),
		MFCC:      res.Features.Rows(),
		MFCCShape: [2]int{frames, coefficients},
	}
	if res.Command != "" {
		resp.Command = &res.Command
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	label := r.FormValue("label")
	if label == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing file or label"})
		return
	}

	res, err := s.engine.Train(r.Context(), label, name, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, trainResponse{
		Status:   "wake word trained",
		Filename: store.SafeName(label + "_" + name),
		Label:    res.Label,
		MFCCFile: res.File,
		Retrain:  res.Status,
	})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	_, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	pred, err := s.engine.Detect(r.Context(), data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detectResponse{
		PredictedLabel: pred.Label,
		Confidence:     pred.Confidence,
		Labels:         pred.Labels,
		Probabilities:  pred.Probabilities,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	labels := s.engine.Labels()
	if labels == nil {
		labels = []store.LabelCount{}
	}
	writeJSON(w, http.StatusOK, listResponse{Wakewords: labels})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	// Buffer the archive so a failure halfway can still become an error response.
	var buf bytes.Buffer
	if err := s.engine.Export(r.Context(), &buf); err != nil {
		if errors.Is(err, mfcc.ErrStorage) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "No wake word data found."})
			return
		}
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+datasetFilename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.WarnContext(r.Context(), "write dataset failed", "error", err)
	}
}

// readUpload returns the name and contents of the "file" form field. On
// failure it writes the error response itself and reports false.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "File too large"})
			return "", nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file part"})
		return "", nil, false
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file part"})
		return "", nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.writeError(w, r, errors.Wrap(err, "read upload failed"))
		return "", nil, false
	}
	return header.Filename, data, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, classifier.ErrNoModel):
		status = http.StatusBadRequest
		msg = noModelMessage
	case errors.Is(err, mfcc.ErrInput), errors.Is(err, mfcc.ErrConfigMismatch):
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.WarnContext(r.Context(), "request rejected", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start),
		)
	})
}
