package restserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/chrissnell/signallab/internal/analysis"
	"github.com/chrissnell/signallab/internal/labels"
	"github.com/chrissnell/signallab/internal/scatter"
	"github.com/chrissnell/signallab/internal/storage"
	"github.com/chrissnell/signallab/pkg/recording"
	"github.com/chrissnell/signallab/pkg/responseformat"
)

const defaultRunLimit = 50

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller, maxBodyBytes int64) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(maxBodyBytes),
	}
}

// LabelRequest assigns State to every segment starting within [Start, End]
type LabelRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	State string  `json:"state"`
}

// LabelResponse reports the labels of a run after an assignment
type LabelResponse struct {
	ID      uuid.UUID `json:"id"`
	Changed int       `json:"changed"`
	Labels  []int     `json:"labels"`
}

// HealthResponse is served by /healthz
type HealthResponse struct {
	Status string `json:"status"`
	Store  bool   `json:"store"`
}

// PostAnalyze runs the full pipeline over the posted recording
func (h *Handlers) PostAnalyze(w http.ResponseWriter, req *http.Request) {
	rec, ok := h.decodeRecording(w, req)
	if !ok {
		return
	}

	result, err := h.controller.analyzer.Analyze(req.Context(), rec)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	status := http.StatusOK
	if result.ID != uuid.Nil {
		status = http.StatusCreated
	}
	h.formatter.WriteResponse(w, req, status, result)
}

// PostStats returns the combined segment statistics of the posted recording
func (h *Handlers) PostStats(w http.ResponseWriter, req *http.Request) {
	rec, ok := h.decodeRecording(w, req)
	if !ok {
		return
	}

	combined, err := h.controller.analyzer.Stats(req.Context(), rec)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, combined)
}

// PostHiguchi returns the fractal feature rows of the posted recording
func (h *Handlers) PostHiguchi(w http.ResponseWriter, req *http.Request) {
	rec, ok := h.decodeRecording(w, req)
	if !ok {
		return
	}

	rows, err := h.controller.analyzer.Higuchi(req.Context(), rec)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, rows)
}

// GetRuns lists stored runs, newest first
func (h *Handlers) GetRuns(w http.ResponseWriter, req *http.Request) {
	limit := defaultRunLimit
	if l := req.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			h.formatter.WriteError(w, req, http.StatusBadRequest, fmt.Errorf("invalid limit %q", l))
			return
		}
		limit = n
	}

	runs, err := h.controller.analyzer.ListRuns(req.Context(), limit)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, runs)
}

// GetRun returns one stored result
func (h *Handlers) GetRun(w http.ResponseWriter, req *http.Request) {
	id, ok := h.runID(w, req)
	if !ok {
		return
	}

	result, err := h.controller.analyzer.GetRun(req.Context(), id)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, result)
}

// DeleteRun removes a stored run
func (h *Handlers) DeleteRun(w http.ResponseWriter, req *http.Request) {
	id, ok := h.runID(w, req)
	if !ok {
		return
	}

	if err := h.controller.analyzer.DeleteRun(req.Context(), id); err != nil {
		h.writeError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutLabels assigns a state to a time range of a stored run
func (h *Handlers) PutLabels(w http.ResponseWriter, req *http.Request) {
	id, ok := h.runID(w, req)
	if !ok {
		return
	}

	var body LabelRequest
	if err := h.formatter.DecodeRequest(req, &body); err != nil {
		h.writeDecodeError(w, req, err)
		return
	}
	state, err := labels.Parse(body.State)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	set, changed, err := h.controller.analyzer.Relabel(req.Context(), id, body.Start, body.End, state)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, http.StatusOK, LabelResponse{ID: id, Changed: changed, Labels: set.Ints()})
}

// GetScatter returns a scatter view of a stored run
func (h *Handlers) GetScatter(w http.ResponseWriter, req *http.Request) {
	id, ok := h.runID(w, req)
	if !ok {
		return
	}

	plot, err := h.controller.analyzer.Scatter(req.Context(), id, scatter.Kind(mux.Vars(req)["kind"]))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, plot)
}

// GetSegmentsCSV exports the per-segment features of a stored run
func (h *Handlers) GetSegmentsCSV(w http.ResponseWriter, req *http.Request) {
	id, ok := h.runID(w, req)
	if !ok {
		return
	}

	result, err := h.controller.analyzer.GetRun(req.Context(), id)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	var buf bytes.Buffer
	if err := analysis.WriteSegmentsCSV(&buf, result); err != nil {
		h.writeError(w, req, fmt.Errorf("exporting run %s: %w", id, err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id.String()+".csv"))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.controller.logger.Errorf("error writing export of run %s: %v", id, err)
	}
}

// GetHealth reports liveness
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, http.StatusOK, HealthResponse{
		Status: "ok",
		Store:  h.controller.analyzer.HasStore(),
	})
}

func (h *Handlers) decodeRecording(w http.ResponseWriter, req *http.Request) (*recording.Recording, bool) {
	var rec recording.Recording
	if err := h.formatter.DecodeRequest(req, &rec); err != nil {
		h.writeDecodeError(w, req, err)
		return nil, false
	}
	return &rec, true
}

func (h *Handlers) runID(w http.ResponseWriter, req *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(req)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, fmt.Errorf("invalid run id %q", raw))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) writeDecodeError(w http.ResponseWriter, req *http.Request, err error) {
	status := http.StatusBadRequest
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, responseformat.ErrUnsupportedMediaType):
		status = http.StatusUnsupportedMediaType
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
	}
	h.formatter.WriteError(w, req, status, err)
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.controller.logger.Errorf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	h.formatter.WriteError(w, req, status, err)
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInvalidRecording),
		errors.Is(err, labels.ErrUnknownState),
		errors.Is(err, labels.ErrLabelLength),
		errors.Is(err, scatter.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrNoStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
