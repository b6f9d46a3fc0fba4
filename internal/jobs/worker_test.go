package jobs

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// stubGenerator は Generator のスタブです。
// 実装と同じ進捗メッセージを report 経由で通知します。
type stubGenerator struct {
	markdown string
	err      error
	called   bool
}

func (g *stubGenerator) Generate(ctx context.Context, files []InputFile, theme string, settings Settings, report StatusReporter) (string, error) {
	g.called = true
	report("Analyzing your uploaded files...")
	report("Designing your presentation...")
	report("Preparing the slide content...")
	if g.err != nil {
		return "", g.err
	}
	return g.markdown, nil
}

// stubRenderer は Renderer のスタブです。
type stubRenderer struct {
	pdf  []byte
	html []byte
	err  error
}

func (r *stubRenderer) Render(ctx context.Context, markdown, theme string) ([]byte, []byte, error) {
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.pdf, r.html, nil
}

type workerFixture struct {
	records   *memRecords
	blobs     *memBlobs
	generator *stubGenerator
	renderer  *stubRenderer
	svc       *Service
	worker    *Worker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	records := newMemRecords()
	blobs := newMemBlobs()
	svc := newTestService(t, records, blobs, &stubQueue{})
	generator := &stubGenerator{markdown: "# Slides"}
	renderer := &stubRenderer{pdf: []byte("%PDF-1.7"), html: []byte("<html></html>")}
	worker, err := NewWorker(svc, blobs, generator, renderer, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorker returned error: %v", err)
	}
	return &workerFixture{
		records:   records,
		blobs:     blobs,
		generator: generator,
		renderer:  renderer,
		svc:       svc,
		worker:    worker,
	}
}

// stageJob はキュー投入済み相当のジョブとステージ済みファイルを用意します。
func (f *workerFixture) stageJob(t *testing.T, jobID string) *TaskPayload {
	t.Helper()
	now := time.Now().UTC()
	f.records.putDoc(t, CollectionJobs, jobID, &Job{
		ID:        jobID,
		Status:    StatusQueued,
		Message:   "Job queued",
		CreatedAt: now,
		UpdatedAt: now,
	})
	path := "jobs/" + jobID + "/input.md"
	if err := f.blobs.Put(context.Background(), path, []byte("# input"), "text/markdown"); err != nil {
		t.Fatalf("failed to stage file: %v", err)
	}
	return &TaskPayload{
		JobID: jobID,
		Theme: "default",
		Files: []FileReference{{
			Filename:    "input.md",
			ContentType: "text/markdown",
			StoragePath: path,
		}},
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	f := newWorkerFixture(t)
	payload := f.stageJob(t, "job-ok")

	if err := f.worker.ProcessTask(context.Background(), payload); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	want := []string{
		"Starting slide generation...",
		"Analyzing your uploaded files...",
		"Designing your presentation...",
		"Preparing the slide content...",
		"Finalizing your slides...",
		"Slides generated successfully",
	}
	if got := f.records.statusMessages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("status messages = %v, want %v", got, want)
	}

	job, err := f.svc.GetJob(context.Background(), "job-ok")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	if job.ResultURL != "/v1/results/job-ok" {
		t.Fatalf("resultUrl = %q", job.ResultURL)
	}
	if job.ExpiresAt.IsZero() {
		t.Fatal("completed job should carry expiresAt")
	}

	result, err := f.svc.GetResult(context.Background(), "job-ok")
	if err != nil {
		t.Fatalf("GetResult returned error: %v", err)
	}
	if string(result.PDFData) != "%PDF-1.7" || string(result.HTMLData) != "<html></html>" {
		t.Fatal("result artifacts do not match rendered output")
	}

	// ステージ済みファイルは後始末される
	if f.blobs.count() != 0 {
		t.Fatalf("staged files remaining: %d", f.blobs.count())
	}
}

func TestProcessTaskDownloadFailure(t *testing.T) {
	f := newWorkerFixture(t)
	payload := f.stageJob(t, "job-dl")
	f.blobs.getErr = errors.New("connection refused")

	// 失敗はブローカーへ返し、再配送の判断に委ねる
	if err := f.worker.ProcessTask(context.Background(), payload); err == nil {
		t.Fatal("download failure should be returned to the broker")
	}

	job, err := f.svc.GetJob(context.Background(), "job-dl")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if job.Status != StatusFailed || !strings.HasPrefix(job.Message, "Download error:") {
		t.Fatalf("unexpected terminal state: %s / %s", job.Status, job.Message)
	}
}

func TestProcessTaskGenerateFailure(t *testing.T) {
	f := newWorkerFixture(t)
	payload := f.stageJob(t, "job-gen")
	f.generator.err = errors.New("Documents are too large to process")

	if err := f.worker.ProcessTask(context.Background(), payload); err == nil {
		t.Fatal("generation failure should be returned to the broker")
	}

	job, _ := f.svc.GetJob(context.Background(), "job-gen")
	if job.Status != StatusFailed || !strings.HasPrefix(job.Message, "Failed to generate slides:") {
		t.Fatalf("unexpected terminal state: %s / %s", job.Status, job.Message)
	}
}

func TestProcessTaskRenderFailure(t *testing.T) {
	f := newWorkerFixture(t)
	payload := f.stageJob(t, "job-render")
	f.renderer.err = errors.New("marp exited with status 1")

	if err := f.worker.ProcessTask(context.Background(), payload); err == nil {
		t.Fatal("render failure should be returned to the broker")
	}

	job, _ := f.svc.GetJob(context.Background(), "job-render")
	if job.Status != StatusFailed || !strings.HasPrefix(job.Message, "Failed to generate slides:") {
		t.Fatalf("unexpected terminal state: %s / %s", job.Status, job.Message)
	}
}

func TestProcessTaskStoreFailureIsRetriable(t *testing.T) {
	f := newWorkerFixture(t)
	payload := f.stageJob(t, "job-store")
	f.records.setErr = errors.New("store down")
	f.records.setErrKey = f.records.key(CollectionResults, "job-store")

	if err := f.worker.ProcessTask(context.Background(), payload); err == nil {
		t.Fatal("store failure should be returned for broker retry")
	}

	msgs := f.records.statusMessages()
	if len(msgs) == 0 || !strings.HasPrefix(msgs[len(msgs)-1], "Failed to store:") {
		t.Fatalf("expected Failed to store message, got %v", msgs)
	}
}

func TestProcessTaskSkipsCompletedJob(t *testing.T) {
	f := newWorkerFixture(t)
	now := time.Now().UTC()
	f.records.putDoc(t, CollectionJobs, "job-done", &Job{
		ID:        "job-done",
		Status:    StatusCompleted,
		Message:   "Slides generated successfully",
		ResultURL: "/v1/results/job-done",
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	})

	payload := &TaskPayload{JobID: "job-done", Theme: "default"}
	if err := f.worker.ProcessTask(context.Background(), payload); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}
	if f.generator.called {
		t.Fatal("completed job must not be reprocessed")
	}
}

func TestProcessTaskSkipsFailedJob(t *testing.T) {
	f := newWorkerFixture(t)
	now := time.Now().UTC()
	f.records.putDoc(t, CollectionJobs, "job-failed", &Job{
		ID:        "job-failed",
		Status:    StatusFailed,
		Message:   "Failed to generate slides: upstream error",
		CreatedAt: now,
		UpdatedAt: now,
	})

	// failed の再配送も再処理してはならない（終端状態は再訪しない）
	payload := &TaskPayload{JobID: "job-failed", Theme: "default"}
	if err := f.worker.ProcessTask(context.Background(), payload); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}
	if f.generator.called {
		t.Fatal("failed job must not re-enter processing")
	}

	job, _ := f.svc.GetJob(context.Background(), "job-failed")
	if job.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
}

func TestProcessTaskConcurrentRedeliveryResultCoherent(t *testing.T) {
	records := newMemRecords()
	blobs := newMemBlobs()
	svc := newTestService(t, records, blobs, &stubQueue{})

	workerFor := func(tag string) *Worker {
		gen := &stubGenerator{markdown: "# " + tag}
		ren := &stubRenderer{
			pdf:  []byte("pdf-" + tag),
			html: []byte("html-" + tag),
		}
		w, err := NewWorker(svc, blobs, gen, ren, zap.NewNop())
		if err != nil {
			t.Fatalf("NewWorker returned error: %v", err)
		}
		return w
	}
	workerA := workerFor("A")
	workerB := workerFor("B")

	now := time.Now().UTC()
	records.putDoc(t, CollectionJobs, "job-dup", &Job{
		ID:        "job-dup",
		Status:    StatusQueued,
		Message:   "Job queued",
		CreatedAt: now,
		UpdatedAt: now,
	})
	path := "jobs/job-dup/input.md"
	if err := blobs.Put(context.Background(), path, []byte("# input"), "text/markdown"); err != nil {
		t.Fatalf("failed to stage file: %v", err)
	}
	payload := &TaskPayload{
		JobID: "job-dup",
		Theme: "default",
		Files: []FileReference{{
			Filename:    "input.md",
			ContentType: "text/markdown",
			StoragePath: path,
		}},
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = workerA.ProcessTask(context.Background(), payload)
	}()
	go func() {
		defer wg.Done()
		_ = workerB.ProcessTask(context.Background(), payload)
	}()
	wg.Wait()

	result, err := svc.GetResult(context.Background(), "job-dup")
	if err != nil {
		t.Fatalf("GetResult returned error: %v", err)
	}
	pdf, html := string(result.PDFData), string(result.HTMLData)
	okA := pdf == "pdf-A" && html == "html-A"
	okB := pdf == "pdf-B" && html == "html-B"
	if !okA && !okB {
		t.Fatalf("result mixes writers: pdf=%q html=%q", pdf, html)
	}
}

func TestProcessTaskMissingJobID(t *testing.T) {
	f := newWorkerFixture(t)
	if err := f.worker.ProcessTask(context.Background(), &TaskPayload{}); err == nil {
		t.Fatal("expected error for missing jobId")
	}
}
