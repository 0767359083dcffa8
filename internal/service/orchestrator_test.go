package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dandantas/grabber/internal/clock"
	"github.com/dandantas/grabber/internal/model"
)

type fakeRecorder struct {
	dir   string
	err   error
	state model.SessionState
}

func (r *fakeRecorder) Record(ctx context.Context, run model.RunContext) (string, error) {
	r.state = model.SessionClosed
	if r.err != nil {
		return "", r.err
	}
	path := filepath.Join(r.dir, run.ArtifactStem()+".wav")
	return path, os.WriteFile(path, []byte("RIFF"), 0o644)
}

func (r *fakeRecorder) State() model.SessionState { return r.state }

type fakeRenderer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *fakeRenderer) RenderFile(ctx context.Context, wavPath, pngPath string, start time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, pngPath)
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(pngPath, []byte("PNG"), 0o644)
}

type fakeUploader struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (u *fakeUploader) Upload(ctx context.Context, path string, run model.RunContext) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, path)
	return u.err
}

func testRun(id int64, start time.Time) model.RunContext {
	return model.NewRunContext(id, model.ScheduleSlot{At: start.Add(-30 * time.Second), Nominal: start, Lead: 30 * time.Second}, 10*time.Minute)
}

func newTestOrchestrator(dir string, rec *fakeRecorder, ren *fakeRenderer, up *fakeUploader) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		DownloadDir:    dir,
		MaxFileAgeDays: 7,
		JitterMin:      2 * time.Second,
		JitterMax:      10 * time.Second,
		Workers:        2,
	}, func(sync.Locker) Recorder {
		cp := *rec
		return &cp
	}, ren, up, nil, clock.NewFake(time.Now()))
}

func oldFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "20240101_000000.wav")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecuteSucceeded(t *testing.T) {
	dir := t.TempDir()
	stale := oldFile(t, dir)
	ren, up := &fakeRenderer{}, &fakeUploader{}
	o := newTestOrchestrator(dir, &fakeRecorder{dir: dir}, ren, up)

	status := o.Execute(context.Background(), testRun(1, time.Date(2025, 1, 1, 12, 10, 0, 0, time.UTC)))

	if status.Status != model.OutcomeSucceeded {
		t.Fatalf("status = %s, errors = %+v", status.Status, status.Errors)
	}
	wantPNG := filepath.Join(dir, "20250101_121000.png")
	if status.ImageArtifact != wantPNG || len(up.paths) != 1 || up.paths[0] != wantPNG {
		t.Errorf("image = %q, uploads = %v; want %q", status.ImageArtifact, up.paths, wantPNG)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Error("retention sweep should have removed the stale file")
	}
	if got, ok := o.Store().Get(1); !ok || got.Status != model.OutcomeSucceeded || got.SessionState != "closed" {
		t.Errorf("stored status = %+v", got)
	}
}

func TestExecuteNoArtifact(t *testing.T) {
	dir := t.TempDir()
	stale := oldFile(t, dir)
	ren, up := &fakeRenderer{}, &fakeUploader{}
	o := newTestOrchestrator(dir, &fakeRecorder{dir: dir, err: model.ErrDownloadNotFound}, ren, up)

	status := o.Execute(context.Background(), testRun(1, time.Now()))

	if status.Status != model.OutcomeFailedNoArtifact {
		t.Errorf("status = %s, want failed_no_artifact", status.Status)
	}
	if len(ren.calls) != 0 || len(up.paths) != 0 {
		t.Error("render and upload must be skipped without an artifact")
	}
	if len(status.Errors) != 1 || status.Errors[0].Stage != "session" {
		t.Errorf("errors = %+v", status.Errors)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Error("retention sweep should still run")
	}
}

func TestExecuteStageFailures(t *testing.T) {
	tests := []struct {
		name       string
		renderErr  error
		uploadErr  error
		wantStage  string
		wantUpload int
	}{
		{"render error skips upload", errors.New("bad wav"), nil, "render", 0},
		{"upload error keeps run", nil, errors.New("permission denied"), "upload", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ren, up := &fakeRenderer{err: tt.renderErr}, &fakeUploader{err: tt.uploadErr}
			o := newTestOrchestrator(dir, &fakeRecorder{dir: dir}, ren, up)

			status := o.Execute(context.Background(), testRun(1, time.Now()))

			if status.Status != model.OutcomePartial {
				t.Errorf("status = %s, want partial", status.Status)
			}
			if status.RawArtifact == "" {
				t.Error("raw artifact should be kept")
			}
			if len(status.Errors) != 1 || status.Errors[0].Stage != tt.wantStage {
				t.Errorf("errors = %+v, want one %s error", status.Errors, tt.wantStage)
			}
			if len(up.paths) != tt.wantUpload {
				t.Errorf("uploads = %d, want %d", len(up.paths), tt.wantUpload)
			}
		})
	}
}

func TestExecuteMissingConfig(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(dir, &fakeRecorder{dir: dir}, &fakeRenderer{}, &fakeUploader{})
	o.cfg.CheckConfig = func() error { return model.ErrMissingConfig }

	status := o.Execute(context.Background(), testRun(1, time.Now()))
	if status.Status != model.OutcomeFailedNoArtifact || status.Errors[0].Stage != "config" {
		t.Errorf("status = %+v", status)
	}
}

func TestSubmitRunsOnPool(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(dir, &fakeRecorder{dir: dir}, &fakeRenderer{}, &fakeUploader{})
	o.Start()

	start := time.Date(2025, 1, 1, 12, 10, 0, 0, time.UTC)
	for id := int64(1); id <= 2; id++ {
		if err := o.Submit(testRun(id, start.Add(time.Duration(id-1)*10*time.Minute))); err != nil {
			t.Fatalf("Submit(%d) error = %v", id, err)
		}
	}
	o.Stop(context.Background())

	for id := int64(1); id <= 2; id++ {
		got, ok := o.Store().Get(id)
		if !ok || got.Status != model.OutcomeSucceeded {
			t.Errorf("run %d status = %+v", id, got)
		}
	}
}

func TestJitterWithinRange(t *testing.T) {
	o := newTestOrchestrator(t.TempDir(), &fakeRecorder{}, &fakeRenderer{}, &fakeUploader{})
	for i := 0; i < 100; i++ {
		j := o.jitter()
		if j < 2*time.Second || j > 10*time.Second {
			t.Fatalf("jitter() = %v, outside [2s, 10s]", j)
		}
		if j%time.Second != 0 {
			t.Fatalf("jitter() = %v, want whole seconds", j)
		}
	}
}
