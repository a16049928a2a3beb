package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/tracelab-ai/tracelab/internal/report"
	"github.com/tracelab-ai/tracelab/pkg/types"
)

type handlers struct {
	store    TraceStore
	pipeline Finalizer
	logger   *slog.Logger
	version  string
	maxBody  int64
}

// traceCreateRequest is the POST /api/traces body: a complete trace minus
// the server-assigned id and status.
type traceCreateRequest struct {
	DeveloperID    string        `json:"developer_id"`
	RepoURL        string        `json:"repo_url"`
	BugDescription string        `json:"bug_description"`
	Events         []types.Event `json:"events"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

// handleCreateTrace ingests a complete trace and runs the QA pipeline
// synchronously. The response carries the terminal trace: completed with
// qa_results, or failed with error_detail.
func (h *handlers) handleCreateTrace(w http.ResponseWriter, r *http.Request) {
	var req traceCreateRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if msg := validateCreate(&req); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	trace := &types.Trace{
		TraceID:        uuid.NewString(),
		DeveloperID:    req.DeveloperID,
		RepoURL:        req.RepoURL,
		BugDescription: req.BugDescription,
		Status:         types.StatusPending,
		Events:         req.Events,
	}
	if err := h.store.CreateTrace(r.Context(), trace); err != nil {
		h.logger.Error("create trace", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create trace")
		return
	}

	if !h.finalize(w, r, trace) {
		return
	}
	writeJSON(w, http.StatusCreated, trace)
}

func (h *handlers) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	trace, err := h.store.GetTrace(r.Context(), r.PathValue("trace_id"))
	if errors.Is(err, types.ErrTraceNotFound) {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	if err != nil {
		h.logger.Error("get trace", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load trace")
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// handleAddEvents appends one event to a pending trace. Incremental
// ingestion lets clients stream events during a session instead of
// uploading everything at the end.
func (h *handlers) handleAddEvents(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("trace_id")

	var event types.Event
	if err := h.decodeJSON(w, r, &event); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := event.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	err := h.store.AppendEvents(r.Context(), traceID, []types.Event{event})
	switch {
	case errors.Is(err, types.ErrTraceNotFound):
		writeError(w, http.StatusNotFound, "trace not found")
	case errors.Is(err, types.ErrTraceFrozen):
		writeError(w, http.StatusConflict, "trace is no longer accepting events")
	case err != nil:
		h.logger.Error("append event", "trace_id", traceID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to append event")
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"trace_id": traceID, "added": 1})
	}
}

// handleFinalizeTrace closes an incrementally built trace and runs the QA
// pipeline on it.
func (h *handlers) handleFinalizeTrace(w http.ResponseWriter, r *http.Request) {
	trace, err := h.store.GetTrace(r.Context(), r.PathValue("trace_id"))
	if errors.Is(err, types.ErrTraceNotFound) {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	if err != nil {
		h.logger.Error("get trace", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load trace")
		return
	}
	if types.TerminalStatus(trace.Status) {
		writeError(w, http.StatusConflict, fmt.Sprintf("trace is already %s", trace.Status))
		return
	}

	if !h.finalize(w, r, trace) {
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// handleTraceReport renders an evaluation report for a trace. The default
// format is JSON; ?format=markdown returns the human-readable rendering.
func (h *handlers) handleTraceReport(w http.ResponseWriter, r *http.Request) {
	trace, err := h.store.GetTrace(r.Context(), r.PathValue("trace_id"))
	if errors.Is(err, types.ErrTraceNotFound) {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	if err != nil {
		h.logger.Error("get trace", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load trace")
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		data, err := report.GenerateJSONReport(trace)
		if err != nil {
			h.logger.Error("render report", "trace_id", trace.TraceID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to render report")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := report.GenerateMarkdown(w, trace); err != nil {
			h.logger.Error("render report", "trace_id", trace.TraceID, "err", err)
		}
	default:
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown report format: %q", format))
	}
}

// finalize runs the pipeline and maps its errors onto HTTP responses.
// A judge outage is a terminal trace state, not a transport failure, so the
// failed trace is still returned to the caller. Reports whether the caller
// should write the trace response.
func (h *handlers) finalize(w http.ResponseWriter, r *http.Request, trace *types.Trace) bool {
	_, err := h.pipeline.Finalize(r.Context(), trace)
	var judgeErr *types.JudgeServiceError
	switch {
	case err == nil:
		return true
	case errors.As(err, &judgeErr):
		return true
	case errors.Is(err, types.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
		return false
	default:
		h.logger.Error("finalize trace", "trace_id", trace.TraceID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to evaluate trace")
		return false
	}
}

func validateCreate(req *traceCreateRequest) string {
	if req.DeveloperID == "" {
		return "developer_id is required"
	}
	if req.RepoURL == "" {
		return "repo_url is required"
	}
	if req.BugDescription == "" {
		return "bug_description is required"
	}
	for i := range req.Events {
		if err := req.Events[i].Validate(); err != nil {
			return fmt.Sprintf("events[%d]: %v", i, err)
		}
	}
	return ""
}

func (h *handlers) decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	decoder := json.NewDecoder(body)
	return decoder.Decode(target)
}

// writeDecodeError maps body decode failures onto HTTP statuses. A
// well-formed body carrying an unknown event type is a semantic validation
// failure; anything else is a malformed body.
func writeDecodeError(w http.ResponseWriter, err error) {
	var unknown *types.UnknownEventTypeError
	if errors.As(err, &unknown) {
		writeError(w, http.StatusUnprocessableEntity, unknown.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
}

// writeError matches the {"detail": ...} error shape clients expect.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
