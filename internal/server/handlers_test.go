package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"burnish/internal/config"
	"burnish/internal/jobs"
	"burnish/internal/logging"
	"burnish/internal/server"
	"burnish/internal/testsupport"
)

type recordingSpawner struct {
	spawned []string
	err     error
}

func (r *recordingSpawner) Spawn(jobID string) error {
	if r.err != nil {
		return r.err
	}
	r.spawned = append(r.spawned, jobID)
	return nil
}

func newTestServer(t *testing.T) (*config.Config, *jobs.Store, *recordingSpawner, http.Handler) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	spawner := &recordingSpawner{}
	srv, err := server.New(cfg, store, "", logging.NewNop(), server.WithSpawner(spawner))
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	return cfg, store, spawner, srv.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) jobs.Job {
	t.Helper()

	var job jobs.Job
	if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
		t.Fatalf("decode job response: %v", err)
	}
	return job
}

func TestSubmitCreatesJobAndSpawnsWorker(t *testing.T) {
	_, store, spawner, handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/jobs", map[string]any{
		"inputDir":  "/srv/photos/in",
		"outputDir": "/srv/photos/out",
		"scale":     7,
		"format":    "JPEG",
		"quality":   150,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	job := decodeJob(t, rec)
	if job.Status != jobs.StatusQueued {
		t.Fatalf("status = %s, want queued", job.Status)
	}
	if job.Payload.Scale != 4 || job.Payload.Format != jobs.FormatJPG || job.Payload.Quality != 100 {
		t.Fatalf("payload not normalized: %+v", job.Payload)
	}
	if !job.Payload.UseAI {
		t.Fatal("useAI must default to true")
	}
	if len(spawner.spawned) != 1 || spawner.spawned[0] != job.ID {
		t.Fatalf("spawner calls = %v", spawner.spawned)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil || stored == nil {
		t.Fatalf("job not persisted: %v", err)
	}
}

func TestSubmitRejectsNonJSONContentType(t *testing.T) {
	_, _, spawner, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader("inputDir=/in"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
	if len(spawner.spawned) != 0 {
		t.Fatal("no worker may be spawned for a rejected submission")
	}
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	_, _, _, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader("{nope"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitRejectsMissingDirectories(t *testing.T) {
	_, store, _, handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/jobs", map[string]any{
		"inputDir": "   ",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	list, err := store.List(context.Background(), jobs.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatal("invalid submissions must not be persisted")
	}
}

func TestSubmitSpawnFailureMarksJobFailed(t *testing.T) {
	_, store, spawner, handler := newTestServer(t)
	spawner.err = errors.New("fork failed")

	rec := doJSON(t, handler, http.MethodPost, "/api/jobs", map[string]any{
		"inputDir":  "/in",
		"outputDir": "/out",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	list, err := store.List(context.Background(), jobs.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("job count = %d", len(list))
	}
	if list[0].Status != jobs.StatusError {
		t.Fatalf("status = %s, want error", list[0].Status)
	}
}

func TestListFiltersAndLimits(t *testing.T) {
	_, store, _, handler := newTestServer(t)

	var canceled *jobs.Job
	for i := 0; i < 3; i++ {
		payload := jobs.Payload{InputDir: "/in", OutputDir: "/out", Scale: 2, Format: jobs.FormatWebP, Quality: 92, UseAI: true}
		job := testsupport.NewJob(t, store, payload)
		if i == 0 {
			canceled = job
		}
	}
	if _, err := store.Cancel(context.Background(), canceled.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/jobs?status=canceled", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Jobs []*jobs.Job `json:"jobs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].ID != canceled.ID {
		t.Fatalf("filtered list = %+v", resp.Jobs)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/jobs?limit=2", nil)
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Fatalf("limited list length = %d", len(resp.Jobs))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/jobs?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status code = %d, want 400", rec.Code)
	}
}

func TestShowReturnsJobOr404(t *testing.T) {
	_, store, _, handler := newTestServer(t)
	job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))

	rec := doJSON(t, handler, http.MethodGet, "/api/jobs/"+job.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeJob(t, rec); got.ID != job.ID {
		t.Fatalf("id = %s, want %s", got.ID, job.ID)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/jobs/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	_, store, _, handler := newTestServer(t)
	job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))

	rec := doJSON(t, handler, http.MethodPost, "/api/jobs/"+job.ID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeJob(t, rec); got.Status != jobs.StatusCanceled {
		t.Fatalf("status = %s, want canceled", got.Status)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/jobs/"+job.ID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second cancel status = %d", rec.Code)
	}
	if got := decodeJob(t, rec); got.Status != jobs.StatusCanceled {
		t.Fatalf("second cancel left status %s", got.Status)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/jobs/missing/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing cancel status = %d, want 404", rec.Code)
	}
}

func TestDeleteJob(t *testing.T) {
	_, store, _, handler := newTestServer(t)
	job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))

	rec := doJSON(t, handler, http.MethodDelete, "/api/jobs/"+job.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/jobs/"+job.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestDefaultsReflectConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Upscaler.DefaultInputDir = "/library/incoming"
	cfg.Upscaler.DefaultOutputDir = "/library/upscaled"
	store := testsupport.MustOpenStore(t, cfg)
	srv, err := server.New(cfg, store, "", logging.NewNop(), server.WithSpawner(&recordingSpawner{}))
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/jobs/defaults", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var defaults map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&defaults); err != nil {
		t.Fatalf("decode defaults: %v", err)
	}
	if defaults["inputDir"] != "/library/incoming" {
		t.Fatalf("inputDir = %v", defaults["inputDir"])
	}
	if defaults["format"] != cfg.Upscaler.DefaultFormat {
		t.Fatalf("format = %v", defaults["format"])
	}
	if defaults["useAI"] != true {
		t.Fatalf("useAI = %v", defaults["useAI"])
	}
}

func TestStatusReportsSummary(t *testing.T) {
	_, store, _, handler := newTestServer(t)
	testsupport.NewJob(t, store, testsupport.SamplePayload(t))

	rec := doJSON(t, handler, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var status struct {
		PID       int    `json:"pid"`
		Version   string `json:"version"`
		StorePath string `json:"storePath"`
		Jobs      struct {
			Total  int `json:"total"`
			Queued int `json:"queued"`
		} `json:"jobs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.PID <= 0 || status.Version == "" || status.StorePath == "" {
		t.Fatalf("incomplete status: %+v", status)
	}
	if status.Jobs.Total != 1 || status.Jobs.Queued != 1 {
		t.Fatalf("summary = %+v", status.Jobs)
	}
}
