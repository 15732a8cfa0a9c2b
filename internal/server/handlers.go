package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/maauso/audiosplit/internal/archive"
	"github.com/maauso/audiosplit/internal/audio"
	"github.com/maauso/audiosplit/internal/engine"
	"github.com/maauso/audiosplit/internal/segment"
	"github.com/maauso/audiosplit/internal/workspace"
)

// DefaultMaxUploadBytes is the upload limit when none is configured.
const DefaultMaxUploadBytes = 1 << 30

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temporary file.
const multipartMemory = 32 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	ws             *workspace.Workspace
	validator      *validator.Validate
	logger         *slog.Logger
	maxUpload      int64
	allowedOrigins []string
	runCtx         context.Context
	upgrader       websocket.Upgrader
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes limits the size of PUT /api/file bodies.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithAllowedOrigins sets the cross-origin pages allowed to open the event
// stream. Same-origin requests are always allowed.
func WithAllowedOrigins(origins []string) HandlerOption {
	return func(h *Handlers) {
		h.allowedOrigins = origins
	}
}

// WithRunContext sets the context that engine loads and runs execute under.
// They outlive the request that starts them and stop when ctx is cancelled.
func WithRunContext(ctx context.Context) HandlerOption {
	return func(h *Handlers) {
		if ctx != nil {
			h.runCtx = ctx
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ws *workspace.Workspace, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		ws:        ws,
		validator: validator.New(),
		logger:    logger,
		maxUpload: DefaultMaxUploadBytes,
		runCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// State handles GET /api/state requests.
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Snapshot(r.Context()))
}

// LoadEngine handles POST /api/engine/load requests.
func (h *Handlers) LoadEngine(w http.ResponseWriter, r *http.Request) {
	// A dropped client must not leave the engine half loaded.
	if err := h.ws.LoadEngine(h.runCtx); err != nil {
		h.logger.Error("engine load failed",
			slog.String("error", err.Error()),
		)
		if isEngineFailure(err) {
			writeError(w, http.StatusServiceUnavailable, err.Error(), "ENGINE_LOAD_FAILED")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load engine", "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, h.ws.Snapshot(r.Context()))
}

// SelectFile handles PUT /api/file requests.
func (h *Handlers) SelectFile(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit", "FILE_TOO_LARGE")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit", "FILE_TOO_LARGE")
			return
		}
		h.logger.Warn("failed to parse upload",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_MULTIPART")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing form field \"file\"", "MISSING_FILE")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read upload",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read upload", "INTERNAL_ERROR")
		return
	}

	src := audio.NewSourceFile(header.Filename, header.Header.Get("Content-Type"), data)
	if err := h.ws.Select(src); err != nil {
		switch {
		case errors.Is(err, audio.ErrNotAudio):
			writeError(w, http.StatusUnsupportedMediaType, err.Error(), "NOT_AUDIO")
		case errors.Is(err, audio.ErrEmptyFile), errors.Is(err, audio.ErrMissingExtension):
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_FILE")
		case errors.Is(err, workspace.ErrBusy):
			writeError(w, http.StatusConflict, err.Error(), "RUN_IN_PROGRESS")
		default:
			h.logger.Error("failed to select file",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to select file", "INTERNAL_ERROR")
		}
		return
	}

	writeJSON(w, http.StatusOK, h.ws.Snapshot(r.Context()))
}

// ClearFile handles DELETE /api/file requests.
func (h *Handlers) ClearFile(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Clear(); err != nil {
		if errors.Is(err, workspace.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error(), "RUN_IN_PROGRESS")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to clear file", "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, h.ws.Snapshot(r.Context()))
}

// SetDuration handles PUT /api/duration requests. The body carries
// {"minutes": n}; a ?minutes= query value is accepted as a raw text field
// and parsed leniently.
func (h *Handlers) SetDuration(w http.ResponseWriter, r *http.Request) {
	var (
		d   audio.Duration
		err error
	)

	if q := r.URL.Query(); q.Has("minutes") {
		d, err = h.ws.SetDuration(audio.ParseMinutes(q.Get("minutes")))
	} else {
		var req DurationRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			h.logger.Warn("failed to decode request body",
				slog.String("error", decodeErr.Error()),
			)
			writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
			return
		}
		if vErr := h.validator.Struct(req); vErr != nil {
			h.logger.Warn("request validation failed",
				slog.String("error", vErr.Error()),
			)
			writeError(w, http.StatusBadRequest, vErr.Error(), "VALIDATION_ERROR")
			return
		}
		d, err = h.ws.SetMinutes(*req.Minutes)
	}

	if err != nil {
		switch {
		case errors.Is(err, workspace.ErrBusy):
			writeError(w, http.StatusConflict, err.Error(), "RUN_IN_PROGRESS")
		default:
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_DURATION")
		}
		return
	}

	writeJSON(w, http.StatusOK, DurationResponse{
		Minutes: d.Minutes(),
		Seconds: d.Seconds(),
	})
}

// StartRun handles POST /api/runs requests.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	runID, done, err := h.ws.StartAsync(h.runCtx)
	if err != nil {
		switch {
		case errors.Is(err, workspace.ErrNoFile):
			writeError(w, http.StatusPreconditionFailed, err.Error(), "NO_FILE")
		case errors.Is(err, segment.ErrRunInProgress):
			writeError(w, http.StatusConflict, err.Error(), "RUN_IN_PROGRESS")
		case errors.Is(err, segment.ErrEngineNotReady):
			writeError(w, http.StatusServiceUnavailable, err.Error(), "ENGINE_NOT_READY")
		case errors.Is(err, audio.ErrInvalidDuration), errors.Is(err, audio.ErrMissingExtension):
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		default:
			h.logger.Error("failed to start run",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to start run", "INTERNAL_ERROR")
		}
		return
	}

	go func() {
		if err := <-done; err != nil {
			h.logger.Error("background run failed",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, StartRunResponse{
		ID:     runID,
		Status: string(segment.StatusRunning),
	})
}

// GetRun handles GET /api/runs/{id} requests.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "run ID is required", "MISSING_RUN_ID")
		return
	}

	run, err := h.ws.Run(r.Context(), id)
	if err != nil {
		if errors.Is(err, segment.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found", "RUN_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get run",
			slog.String("run_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get run", "INTERNAL_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, newRunResponse(run))
}

// ListRuns handles GET /api/runs requests, oldest run first.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.ws.Runs(r.Context())
	if err != nil {
		h.logger.Error("failed to list runs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
		return
	}

	resp := make([]RunResponse, len(runs))
	for i, run := range runs {
		resp[i] = newRunResponse(run)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSegment handles GET /api/segments/{name} requests. Segments play inline
// unless ?download=1 asks for an attachment.
func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	a, data, err := h.ws.Segment(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "segment not found", "SEGMENT_NOT_FOUND")
		return
	}

	disposition := "inline"
	if v := r.URL.Query().Get("download"); v == "1" || v == "true" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": a.Name}))

	// ServeContent handles range requests so players can seek.
	http.ServeContent(w, r, a.Name, time.Time{}, bytes.NewReader(data))
}

// GetArchive handles GET /api/segments.zip requests.
func (h *Handlers) GetArchive(w http.ResponseWriter, r *http.Request) {
	data, err := h.ws.Archive(r.Context())
	if err != nil {
		h.logger.Error("failed to package segments",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to package segments", "ARCHIVE_FAILED")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": archive.ArchiveName}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write archive",
			slog.String("error", err.Error()),
		)
	}
}

// isEngineFailure reports whether err came from engine initialization.
func isEngineFailure(err error) bool {
	return errors.Is(err, engine.ErrInitialization)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
