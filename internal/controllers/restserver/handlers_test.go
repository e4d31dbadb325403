package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/signallab/internal/analysis"
	"github.com/chrissnell/signallab/internal/labels"
	"github.com/chrissnell/signallab/internal/metrics"
	"github.com/chrissnell/signallab/internal/scatter"
	"github.com/chrissnell/signallab/internal/storage"
	"github.com/chrissnell/signallab/pkg/config"
	"github.com/chrissnell/signallab/pkg/recording"
)

func testRecording(segments int) *recording.Recording {
	rng := rand.New(rand.NewSource(3))
	rec := &recording.Recording{Name: "api"}
	for i := 0; i < segments*30; i++ {
		rec.Times = append(rec.Times, float64(i)/30.0)
		rec.Signal = append(rec.Signal, 700+rng.NormFloat64()*5)
	}
	return rec
}

func newTestServer(t *testing.T, store storage.Store) http.Handler {
	t.Helper()

	logger := zap.NewNop().Sugar()
	m := metrics.New()
	a, err := analysis.NewAnalyzer(analysis.DefaultParams(), store, m, logger)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	t.Cleanup(a.Close)

	ctrl, err := NewController(context.Background(), &sync.WaitGroup{}, config.Default().Server, a, m, logger)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	return ctrl.Handler()
}

func do(t *testing.T, h http.Handler, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func analyze(t *testing.T, h http.Handler, segments int) analysis.Result {
	t.Helper()
	w := do(t, h, "POST", "/api/v1/analyze", "application/json", mustJSON(t, testRecording(segments)))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var result analysis.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid result body: %v", err)
	}
	return result
}

func TestAnalyzeAndFetch(t *testing.T) {
	h := newTestServer(t, storage.NewMemoryStore())
	result := analyze(t, h, 8)

	if result.ID == uuid.Nil || result.Summary.NumSegments != 8 {
		t.Fatalf("unexpected result %+v", result.Summary)
	}

	w := do(t, h, "GET", "/api/v1/runs/"+result.ID.String(), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var fetched analysis.Result
	if err := json.Unmarshal(w.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if fetched.ID != result.ID || len(fetched.Higuchi) != 8 {
		t.Errorf("fetched run does not match: %+v", fetched.Summary)
	}

	w = do(t, h, "GET", "/api/v1/runs?limit=5", "", nil)
	var runs []storage.Run
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil || len(runs) != 1 {
		t.Errorf("unexpected listing %s: %v", w.Body.String(), err)
	}

	w = do(t, h, "GET", "/api/v1/runs/"+result.ID.String()+"/segments.csv", "", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/csv" {
		t.Errorf("unexpected CSV export: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if lines := strings.Count(w.Body.String(), "\n"); lines != 9 {
		t.Errorf("expected 9 CSV lines, got %d", lines)
	}

	w = do(t, h, "DELETE", "/api/v1/runs/"+result.ID.String(), "", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	w = do(t, h, "GET", "/api/v1/runs/"+result.ID.String(), "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestAnalyzeMsgPack(t *testing.T) {
	h := newTestServer(t, nil)

	body, err := msgpack.Marshal(testRecording(4))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	w := do(t, h, "POST", "/api/v1/analyze?format=msgpack", "application/x-msgpack", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 without a store, got %d: %s", w.Code, w.Body.String())
	}

	var decoded map[string]interface{}
	if err := msgpack.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid MessagePack body: %v", err)
	}
	if _, ok := decoded["summary"]; !ok {
		t.Errorf("expected a summary field, got keys %v", decoded)
	}
}

func TestStatsAndHiguchiEndpoints(t *testing.T) {
	h := newTestServer(t, nil)
	body := mustJSON(t, testRecording(5))

	w := do(t, h, "POST", "/api/v1/stats", "application/json", body)
	var combined struct {
		Segments []map[string]float64 `json:"segments"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &combined); err != nil || len(combined.Segments) != 5 {
		t.Errorf("unexpected stats response %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, "POST", "/api/v1/higuchi", "application/json", body)
	var rows []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil || len(rows) != 5 {
		t.Errorf("unexpected higuchi response %d %s", w.Code, w.Body.String())
	}
}

func TestLabelsAndScatter(t *testing.T) {
	h := newTestServer(t, storage.NewMemoryStore())
	result := analyze(t, h, 10)
	base := "/api/v1/runs/" + result.ID.String()

	w := do(t, h, "PUT", base+"/labels", "application/json", []byte(`{"start": 2, "end": 4, "state": "Clot"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp LabelResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.Changed != 3 || resp.Labels[2] != int(labels.Clot) || resp.Labels[5] != int(labels.Unknown) {
		t.Errorf("unexpected label response %+v", resp)
	}

	w = do(t, h, "GET", base+"/scatter/higuchi", "", nil)
	var plot scatter.Plot
	if err := json.Unmarshal(w.Body.Bytes(), &plot); err != nil {
		t.Fatalf("invalid scatter body: %v", err)
	}
	if plot.Kind != scatter.KindHiguchi || len(plot.Groups[labels.Clot].X) != 3 {
		t.Errorf("unexpected scatter %+v", plot)
	}

	w = do(t, h, "PUT", base+"/labels", "application/json", []byte(`{"start": 0, "end": 1, "state": "Plasma"}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown state, got %d", w.Code)
	}
	w = do(t, h, "GET", base+"/scatter/pie", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown scatter kind, got %d", w.Code)
	}
}

func TestErrorStatuses(t *testing.T) {
	h := newTestServer(t, storage.NewMemoryStore())

	mismatched := testRecording(2)
	mismatched.Times = mismatched.Times[:10]

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        []byte
		want        int
	}{
		{"shape mismatch", "POST", "/api/v1/analyze", "application/json", mustJSON(t, mismatched), http.StatusBadRequest},
		{"broken body", "POST", "/api/v1/analyze", "application/json", []byte("{"), http.StatusBadRequest},
		{"wrong media type", "POST", "/api/v1/analyze", "text/csv", []byte("time,signal\n"), http.StatusUnsupportedMediaType},
		{"bad id", "GET", "/api/v1/runs/not-a-uuid", "", nil, http.StatusBadRequest},
		{"unknown run", "GET", "/api/v1/runs/" + uuid.New().String(), "", nil, http.StatusNotFound},
		{"bad limit", "GET", "/api/v1/runs?limit=lots", "", nil, http.StatusBadRequest},
		{"wrong method", "GET", "/api/v1/analyze", "", nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.contentType, tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestRunsWithoutStore(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(t, h, "GET", "/api/v1/runs", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a store, got %d", w.Code)
	}

	w = do(t, h, "GET", "/healthz", "", nil)
	var health HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil || health.Status != "ok" || health.Store {
		t.Errorf("unexpected health response %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, storage.NewMemoryStore())
	analyze(t, h, 3)

	w := do(t, h, "GET", "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, name := range []string{"signallab_analyses_total", "signallab_runs_stored 1"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("expected %q in metrics output", name)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", storage.ErrRunNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: %w", analysis.ErrInvalidRecording, recording.ErrNonMonotonic), http.StatusBadRequest},
		{labels.ErrLabelLength, http.StatusBadRequest},
		{analysis.ErrNoStore, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSegmentsCSVReportsExportFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newTestServer(t, store)
	result := analyze(t, h, 6)

	// Stored labels no longer cover every segment
	if err := store.UpdateLabels(context.Background(), result.ID, []int{0, 1}); err != nil {
		t.Fatalf("UpdateLabels failed: %v", err)
	}

	w := do(t, h, "GET", "/api/v1/runs/"+result.ID.String()+"/segments.csv", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected a JSON error body, got content type %q", ct)
	}
	if w.Header().Get("Content-Disposition") != "" {
		t.Errorf("failed export should not be offered as an attachment")
	}
	if !strings.Contains(w.Body.String(), "label") {
		t.Errorf("expected the label error in the body, got %q", w.Body.String())
	}
}
