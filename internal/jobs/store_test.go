package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"burnish/internal/jobs"
	"burnish/internal/testsupport"
)

func TestCreateAssignsUniqueQueuedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	seen := map[string]struct{}{}
	for i := 0; i < 5; i++ {
		job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))
		if job.Status != jobs.StatusQueued {
			t.Fatalf("expected queued status, got %s", job.Status)
		}
		if job.Progress != (jobs.Progress{}) {
			t.Fatalf("expected zero progress, got %+v", job.Progress)
		}
		if _, dup := seen[job.ID]; dup {
			t.Fatalf("duplicate job id %s", job.ID)
		}
		seen[job.ID] = struct{}{}
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	var last string
	for i := 0; i < 4; i++ {
		job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))
		last = job.ID
	}

	listed, err := store.List(ctx, jobs.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(listed))
	}
	if listed[0].ID != last {
		t.Fatalf("expected newest job first, got %s", listed[0].ID)
	}
}

func TestListFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.NewJob(t, store, testsupport.SamplePayload(t))
	b := testsupport.NewJob(t, store, testsupport.SamplePayload(t))
	if _, err := store.Cancel(ctx, b.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	canceled, err := store.List(ctx, jobs.ListOptions{Status: jobs.StatusCanceled})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(canceled) != 1 || canceled[0].ID != b.ID {
		t.Fatalf("status filter mismatch: %+v", canceled)
	}

	queried, err := store.List(ctx, jobs.ListOptions{Query: a.ID[:8]})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	found := false
	for _, job := range queried {
		if job.ID == a.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("query filter did not match %s: %+v", a.ID, queried)
	}

	byType, err := store.List(ctx, jobs.ListOptions{Type: "reindex"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(byType) != 0 {
		t.Fatalf("unexpected jobs for unknown type: %+v", byType)
	}
}

func TestUpdateMergesShallow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewJob(t, store, testsupport.SamplePayload(t))

	status := jobs.StatusRunning
	updated, err := store.Update(ctx, created.ID, jobs.Patch{Status: &status})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != jobs.StatusRunning {
		t.Fatalf("status not updated: %s", updated.Status)
	}
	if updated.Payload != created.Payload {
		t.Fatalf("payload changed by status patch: %+v", updated.Payload)
	}
	if updated.Progress != created.Progress {
		t.Fatalf("progress changed by status patch: %+v", updated.Progress)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) && !updated.UpdatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("updatedAt not refreshed: %v vs %v", updated.UpdatedAt, created.UpdatedAt)
	}
}

func TestUpdateUnknownIDReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	status := jobs.StatusRunning
	job, err := store.Update(context.Background(), "missing", jobs.Patch{Status: &status})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for unknown id, got %+v", job)
	}
}

func TestTerminalJobsRejectWrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))
	if _, err := store.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if _, err := store.MarkDone(ctx, job.ID, jobs.Progress{Total: 1, OK: 1}); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	_, err := store.SetProgress(ctx, job.ID, jobs.Progress{Total: 1, OK: 1, Fail: 0}, nil)
	if !errors.Is(err, jobs.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))

	status := jobs.StatusDone
	_, err := store.Update(ctx, job.ID, jobs.Patch{Status: &status})
	if !errors.Is(err, jobs.ErrTransition) {
		t.Fatalf("expected ErrTransition for queued -> done, got %v", err)
	}
}

func TestProgressMonotonicity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))
	if _, err := store.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	if _, err := store.SetProgress(ctx, job.ID, jobs.Progress{Total: 3, OK: 1, Fail: 0}, nil); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}

	if _, err := store.SetProgress(ctx, job.ID, jobs.Progress{Total: 3, OK: 0, Fail: 0}, nil); err == nil {
		t.Fatal("expected decreasing ok counter to be rejected")
	}
	if _, err := store.SetProgress(ctx, job.ID, jobs.Progress{Total: 3, OK: 2, Fail: 2}, nil); err == nil {
		t.Fatal("expected ok+fail > total to be rejected")
	}
	if _, err := store.SetProgress(ctx, job.ID, jobs.Progress{Total: 5, OK: 2, Fail: 0}, nil); err == nil {
		t.Fatal("expected total change to be rejected")
	}

	if _, err := store.SetProgress(ctx, job.ID, jobs.Progress{Total: 3, OK: 2, Fail: 1}, nil); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}
}

func TestCancelIdempotence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))

	first, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if first.Status != jobs.StatusCanceled {
		t.Fatalf("expected canceled, got %s", first.Status)
	}

	second, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("second Cancel failed: %v", err)
	}
	if second.Status != jobs.StatusCanceled {
		t.Fatalf("cancel not idempotent: %s", second.Status)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatal("terminal cancel should not touch the record")
	}

	missing, err := store.Cancel(ctx, "missing")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown id, got %+v", missing)
	}
}

func TestCancelDoesNotDowngradeDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))
	if _, err := store.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if _, err := store.MarkDone(ctx, job.ID, jobs.Progress{Total: 1, OK: 1}); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	got, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got.Status != jobs.StatusDone {
		t.Fatalf("cancel downgraded terminal status to %s", got.Status)
	}
}

func TestDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))

	removed, err := store.Delete(ctx, job.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !removed {
		t.Fatal("expected delete to remove the record")
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected job gone, got %+v", got)
	}

	removed, err = store.Delete(ctx, job.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if removed {
		t.Fatal("expected second delete to report false")
	}
}

func TestCorruptDocumentFailsOpenAndIsPreserved(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir data dir: %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt store: %v", err)
	}

	ctx := context.Background()
	listed, err := store.List(ctx, jobs.ListOptions{})
	if err != nil {
		t.Fatalf("List over corrupt store failed: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty collection, got %d", len(listed))
	}

	if _, err := os.Stat(store.Path() + ".corrupt"); err != nil {
		t.Fatalf("corrupt document not preserved: %v", err)
	}
}

func TestDocumentShapeOnDisk(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, testsupport.SamplePayload(t))

	raw, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var doc struct {
		Jobs []map[string]any `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("store document is not JSON: %v", err)
	}
	if len(doc.Jobs) != 1 {
		t.Fatalf("expected one job on disk, got %d", len(doc.Jobs))
	}
	record := doc.Jobs[0]
	if record["id"] != job.ID || record["status"] != "queued" || record["type"] != "upscale" {
		t.Fatalf("unexpected record shape: %v", record)
	}
	payload, ok := record["payload"].(map[string]any)
	if !ok || payload["inputDir"] == "" {
		t.Fatalf("payload missing from record: %v", record)
	}
}

func TestConcurrentWritersDoNotLoseRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	storeA := testsupport.MustOpenStore(t, cfg)
	storeB := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	done := make(chan error, 2)
	const perWriter = 10

	for _, store := range []*jobs.Store{storeA, storeB} {
		go func(s *jobs.Store) {
			for i := 0; i < perWriter; i++ {
				payload, err := jobs.NormalizePayload(jobs.Payload{
					InputDir:  "/in",
					OutputDir: "/out",
					Scale:     2,
					Format:    jobs.FormatPNG,
					Quality:   90,
				})
				if err != nil {
					done <- err
					return
				}
				if _, err := s.Create(ctx, payload); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(store)
	}

	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent create failed: %v", err)
		}
	}

	listed, err := storeA.List(ctx, jobs.ListOptions{Limit: 200})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 2*perWriter {
		t.Fatalf("expected %d jobs, got %d", 2*perWriter, len(listed))
	}
}
