// Package server exposes the ASR Context over HTTP: a single-worker
// collaborator that serializes transcribe calls, since a Context is not
// safe for concurrent use.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level. An
// empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Transcriber runs one transcription call against the loaded model. Callers
// must serialize their own access (see handler.sem below); the interface
// itself makes no concurrency guarantee.
type Transcriber interface {
	Transcribe(samples []float32) (string, error)
	SupportedLanguagesCSV() string
	SetForceLanguage(lang string) error
	SetPrompt(prompt string)
}

// WAVDecoder decodes request bodies into mono 16 kHz float32 samples.
type WAVDecoder func(data []byte) ([]float32, error)

type options struct {
	maxBodyBytes   int64
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxBodyBytes:   32 << 20, // 32 MiB
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxBodyBytes sets the maximum accepted request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithRequestTimeout sets the per-request transcription deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// handler holds the dependencies needed to serve HTTP requests. Every
// request is serialized behind sem (capacity 1) because Transcriber is not
// safe for concurrent use.
type handler struct {
	ctx    Transcriber
	decode WAVDecoder
	opts   options
	sem    chan struct{}
	log    *slog.Logger
}

// NewHandler returns an http.Handler serving /health, /languages, and
// POST /transcribe.
func NewHandler(ctx Transcriber, decode WAVDecoder, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		ctx:    ctx,
		decode: decode,
		opts:   opts,
		sem:    make(chan struct{}, 1),
		log:    opts.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/languages", h.handleLanguages)
	mux.HandleFunc("/transcribe", h.handleTranscribe)

	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"languages": h.ctx.SupportedLanguagesCSV(),
	})
}

type transcribeResponse struct {
	Text string `json:"text"`
}

func (h *handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.opts.maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}

	if int64(len(body)) > h.opts.maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds maximum size of %d bytes", h.opts.maxBodyBytes))
		return
	}

	lang := r.URL.Query().Get("language")
	prompt := r.URL.Query().Get("prompt")

	if !h.acquireWorker(r.Context(), w) {
		return
	}

	// The slot is handed to the transcribe goroutine once it starts, so a
	// timed-out request keeps holding it until Transcribe actually returns.
	released := false

	defer func() {
		if !released {
			<-h.sem
		}
	}()

	ctxTimeout, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	if lang != "" {
		if err := h.ctx.SetForceLanguage(lang); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	h.ctx.SetPrompt(prompt)

	samples, err := h.decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid audio: "+err.Error())
		return
	}

	start := time.Now()

	done := make(chan struct {
		text string
		err  error
	}, 1)

	released = true

	go func() {
		defer func() { <-h.sem }()

		text, err := h.ctx.Transcribe(samples)
		done <- struct {
			text string
			err  error
		}{text, err}
	}()

	select {
	case <-ctxTimeout.Done():
		writeError(w, http.StatusGatewayTimeout, "transcription timed out")
		return
	case result := <-done:
		durationMS := time.Since(start).Milliseconds()

		if result.err != nil {
			h.log.ErrorContext(r.Context(), "transcription failed",
				slog.Int("audio_samples", len(samples)),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", result.err.Error()),
			)
			writeError(w, http.StatusInternalServerError, result.err.Error())

			return
		}

		h.log.InfoContext(r.Context(), "transcription complete",
			slog.Int("audio_samples", len(samples)),
			slog.Int64("duration_ms", durationMS),
		)

		writeJSON(w, http.StatusOK, transcribeResponse{Text: result.text})
	}
}

// acquireWorker tries to acquire the single worker slot, honoring context
// cancellation while waiting.
func (h *handler) acquireWorker(ctx context.Context, w http.ResponseWriter) bool {
	select {
	case h.sem <- struct{}{}:
		return true
	default:
		h.log.Info("request queued for worker slot")

		select {
		case h.sem <- struct{}{}:
			return true
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return false
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server wires the HTTP handler into a net/http.Server with graceful
// shutdown.
type Server struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
}

// New builds a Server around an already-constructed handler.
func New(addr string, h http.Handler, shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	return &Server{addr: addr, handler: h, shutdownTimeout: shutdownTimeout}
}

// Start runs the HTTP server until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP issues a GET /health against addr, for use by the health command
// and integration tests.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}

	return nil
}
