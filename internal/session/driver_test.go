package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dandantas/grabber/internal/clock"
	"github.com/dandantas/grabber/internal/model"
)

var testStart = time.Date(2025, 1, 1, 12, 9, 30, 0, time.UTC)

func testRun(id int64) model.RunContext {
	slot := model.ScheduleSlot{
		At:      testStart,
		Nominal: testStart.Add(30 * time.Second),
		Lead:    30 * time.Second,
	}
	return model.NewRunContext(id, slot, 10*time.Minute)
}

func testConfig(dir string) Config {
	return Config{
		Endpoint:    "http://websdr.example:8901/",
		Marker:      "WebSDR",
		Tuning:      Tuning{BaseFreqHz: 3625000, Lo: "300", Hi: "2700"},
		DownloadDir: dir,
	}
}

func TestConfigureScripts(t *testing.T) {
	got := ConfigureScripts(Tuning{BaseFreqHz: 3625500, Band: 2, Lo: "-2.7", Hi: "-0.3", Mode: 1})
	want := `soundapplet.setparam("f=3625.5&band=2&lo=-2.7&hi=-0.3&mode=1");`
	if len(got) != 4 || got[2] != want {
		t.Errorf("ConfigureScripts()[2] = %q, want %q", got[2], want)
	}
	if got[0] != scriptMute || got[3] != scriptAudioResume {
		t.Errorf("unexpected sequence %v", got)
	}
}

func TestRecordHappyPath(t *testing.T) {
	dir := t.TempDir()
	sess := &fakeSession{title: "Twente WebSDR", found: true, downloadTo: dir}
	clk := clock.NewFake(testStart)
	d := NewDriver(&fakeRemote{session: sess}, testConfig(dir), clk, nil)

	path, err := d.Record(context.Background(), testRun(1))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if want := filepath.Join(dir, "20250101_121000.wav"); path != want {
		t.Errorf("Record() = %q, want %q", path, want)
	}
	if d.State() != model.SessionClosed || sess.closed != 1 {
		t.Errorf("state = %v, closed = %d; want closed once", d.State(), sess.closed)
	}
	if n := sess.count(scriptMute); n != 3 {
		t.Errorf("configure sequence applied %d times, want 3", n)
	}
	if sess.count(scriptRecordStart) != 1 || sess.count(scriptRecordStop) != 1 {
		t.Error("expected exactly one record start and stop")
	}
	if clk.Now().Before(testRun(1).RecordingStop) {
		t.Errorf("driver returned at %v, before recording stop", clk.Now())
	}
}

func TestRecordConfigureExhausted(t *testing.T) {
	dir := t.TempDir()
	sess := &fakeSession{title: "WebSDR", faults: 100, found: true, downloadTo: dir}
	d := NewDriver(&fakeRemote{session: sess}, testConfig(dir), clock.NewFake(testStart), nil)

	_, err := d.Record(context.Background(), testRun(1))
	if !errors.Is(err, model.ErrConfigureExhausted) {
		t.Fatalf("Record() error = %v, want ErrConfigureExhausted", err)
	}
	if n := sess.count(scriptMute); n != 5 {
		t.Errorf("configure attempted %d times, want 5", n)
	}
	if sess.closed != 1 {
		t.Errorf("session closed %d times, want 1", sess.closed)
	}
	if sess.count(scriptRecordStart) != 0 {
		t.Error("recording must not be armed after configure failed")
	}
}

func TestRecordConfigureRecovers(t *testing.T) {
	dir := t.TempDir()
	sess := &fakeSession{title: "WebSDR", faults: 4, found: true, downloadTo: dir}
	d := NewDriver(&fakeRemote{session: sess}, testConfig(dir), clock.NewFake(testStart), nil)

	if _, err := d.Record(context.Background(), testRun(1)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	// four failed attempts, then three repetitions on the fifth
	if n := sess.count(scriptMute); n != 7 {
		t.Errorf("mute executed %d times, want 7", n)
	}
}

func TestRecordFailures(t *testing.T) {
	tests := []struct {
		name    string
		remote  *fakeRemote
		wantErr error
		closes  int
	}{
		{
			name:    "connect error",
			remote:  &fakeRemote{connectErr: errBoom, session: &fakeSession{}},
			wantErr: model.ErrConnect,
			closes:  0,
		},
		{
			name:    "marker missing",
			remote:  &fakeRemote{session: &fakeSession{title: "Some other page"}},
			wantErr: model.ErrMarkerMissing,
			closes:  1,
		},
		{
			name:    "download not found",
			remote:  &fakeRemote{session: &fakeSession{title: "WebSDR"}},
			wantErr: model.ErrDownloadNotFound,
			closes:  1,
		},
		{
			name:    "record start fault",
			remote:  &fakeRemote{session: &fakeSession{title: "WebSDR", armFault: true}},
			wantErr: model.ErrScriptFault,
			closes:  1,
		},
		{
			name:    "download produced no file",
			remote:  &fakeRemote{session: &fakeSession{title: "WebSDR", found: true}},
			wantErr: model.ErrNotFound,
			closes:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDriver(tt.remote, testConfig(t.TempDir()), clock.NewFake(testStart), nil)
			path, err := d.Record(context.Background(), testRun(1))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Record() error = %v, want %v", err, tt.wantErr)
			}
			if path != "" {
				t.Errorf("Record() path = %q, want none", path)
			}
			if tt.remote.session.closed != tt.closes {
				t.Errorf("closed %d times, want %d", tt.remote.session.closed, tt.closes)
			}
			if d.State() != model.SessionClosed {
				t.Errorf("state = %v, want closed", d.State())
			}
		})
	}
}

func TestRecordAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20250101_121000.wav"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	sess := &fakeSession{title: "WebSDR", found: true, downloadTo: dir}
	d := NewDriver(&fakeRemote{session: sess}, testConfig(dir), clock.NewFake(testStart), nil)

	if _, err := d.Record(context.Background(), testRun(1)); !errors.Is(err, model.ErrAlreadyExists) {
		t.Fatalf("Record() error = %v, want ErrAlreadyExists", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "20250101_121000.wav"))
	if string(data) != "old" {
		t.Error("existing artifact was overwritten")
	}
}

func TestConcurrentRunsDownloadAfterCanonicalize(t *testing.T) {
	dir := t.TempDir()
	gate := &sync.Mutex{}

	strayRaw := func() {
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "websdr_") {
				t.Errorf("download started while %s was not yet canonicalized", e.Name())
			}
		}
	}

	first := testRun(1)
	second := testRun(2)
	second.RecordingStart = first.RecordingStart.Add(10 * time.Minute)
	second.RecordingStop = first.RecordingStop.Add(10 * time.Minute)

	var wg sync.WaitGroup
	paths := make([]string, 2)
	for i, run := range []model.RunContext{first, second} {
		sess := &fakeSession{title: "WebSDR", found: true, downloadTo: dir, onActivate: strayRaw}
		d := NewDriver(&fakeRemote{session: sess}, testConfig(dir), clock.NewFake(testStart), gate)

		wg.Add(1)
		go func(i int, run model.RunContext) {
			defer wg.Done()
			p, err := d.Record(context.Background(), run)
			if err != nil {
				t.Errorf("run %d: Record() error = %v", run.ID, err)
			}
			paths[i] = p
		}(i, run)
	}
	wg.Wait()

	if filepath.Base(paths[0]) != "20250101_121000.wav" || filepath.Base(paths[1]) != "20250101_122000.wav" {
		t.Errorf("artifacts misattributed: %v", paths)
	}
}

func TestRecordCancelledWhileArmed(t *testing.T) {
	sess := &fakeSession{title: "WebSDR", found: true}

	run := testRun(1)
	run.RecordingStart = time.Now().Add(time.Hour)
	run.RecordingStop = run.RecordingStart.Add(time.Minute)

	cfg := testConfig(t.TempDir())
	cfg.RepeatPause = time.Millisecond
	d := NewDriver(&fakeRemote{session: sess}, cfg, clock.Real{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := d.Record(ctx, run); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Record() error = %v, want deadline exceeded", err)
	}
	if sess.closed != 1 {
		t.Errorf("session closed %d times, want 1", sess.closed)
	}
}

func TestRetryStrategy(t *testing.T) {
	rs := NewRetryStrategy(RetryConfig{})
	if rs.GetMaxAttempts() != 5 {
		t.Errorf("GetMaxAttempts() = %d, want 5", rs.GetMaxAttempts())
	}
	if d := rs.CalculateDelay(3); d != time.Second {
		t.Errorf("CalculateDelay(3) = %v, want 1s", d)
	}
	fault := &model.ScriptFault{Script: "x", Message: "y"}
	if !rs.ShouldRetry(4, fault) || rs.ShouldRetry(5, fault) {
		t.Error("expected retry through attempt 4 only")
	}
	if rs.ShouldRetry(1, errBoom) {
		t.Error("non-script errors must not be retried")
	}

	exp := NewRetryStrategy(RetryConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond})
	if d := exp.CalculateDelay(3); d != 300*time.Millisecond {
		t.Errorf("CalculateDelay(3) = %v, want capped 300ms", d)
	}
}
