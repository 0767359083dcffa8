package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dandantas/grabber/internal/model"
)

// fakeWebDriverServer emulates the parts of a W3C WebDriver server a
// session uses.
type fakeWebDriverServer struct {
	mu       sync.Mutex
	title    string
	links    map[string]bool
	scripts  []string
	clicked  []string
	deleted  bool
	navigate string
	caps     map[string]any
}

func (f *fakeWebDriverServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	reply := func(status int, value any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"value": value})
	}
	fail := func(status int, code, msg string) {
		reply(status, map[string]any{"error": code, "message": msg, "stacktrace": ""})
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/session":
		f.caps = body
		reply(http.StatusOK, map[string]any{"sessionId": "abc123", "capabilities": map[string]any{}})
	case r.Method == http.MethodPost && path == "/session/abc123/url":
		f.navigate, _ = body["url"].(string)
		reply(http.StatusOK, nil)
	case r.Method == http.MethodGet && path == "/session/abc123/title":
		reply(http.StatusOK, f.title)
	case r.Method == http.MethodPost && path == "/session/abc123/execute/sync":
		script, _ := body["script"].(string)
		f.scripts = append(f.scripts, script)
		if strings.Contains(script, "undefinedThing") {
			fail(http.StatusInternalServerError, "javascript error", "undefinedThing is not defined")
			return
		}
		reply(http.StatusOK, nil)
	case r.Method == http.MethodPost && path == "/session/abc123/element":
		label, _ := body["value"].(string)
		if !f.links[label] {
			fail(http.StatusNotFound, "no such element", "Unable to locate element: "+label)
			return
		}
		reply(http.StatusOK, map[string]any{webElementKey: "el-" + label})
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/session/abc123/element/") && strings.HasSuffix(path, "/click"):
		f.clicked = append(f.clicked, strings.TrimSuffix(strings.TrimPrefix(path, "/session/abc123/element/"), "/click"))
		reply(http.StatusOK, nil)
	case r.Method == http.MethodDelete && path == "/session/abc123":
		f.deleted = true
		reply(http.StatusOK, nil)
	default:
		fail(http.StatusNotFound, "unknown command", path)
	}
}

func TestWebDriverSession(t *testing.T) {
	fake := &fakeWebDriverServer{title: "Twente WebSDR", links: map[string]bool{"download": true}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	remote := NewWebDriver(WebDriverConfig{URL: srv.URL, Headless: true, DownloadDir: "/data/downloads"})
	ctx := context.Background()

	sess, err := remote.Connect(ctx, "http://websdr.example:8901/")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if fake.navigate != "http://websdr.example:8901/" {
		t.Errorf("navigated to %q", fake.navigate)
	}
	prefs := fake.caps["capabilities"].(map[string]any)["alwaysMatch"].(map[string]any)["moz:firefoxOptions"].(map[string]any)["prefs"].(map[string]any)
	if prefs["browser.download.dir"] != "/data/downloads" {
		t.Errorf("download dir pref = %v", prefs["browser.download.dir"])
	}

	ok, err := sess.Verify(ctx, "WebSDR")
	if err != nil || !ok {
		t.Errorf("Verify() = %v, %v; want true", ok, err)
	}
	if ok, _ := sess.Verify(ctx, "KiwiSDR"); ok {
		t.Error("Verify() matched a marker that is not in the title")
	}

	if err := sess.Execute(ctx, scriptMute); err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	err = sess.Execute(ctx, "undefinedThing();")
	var fault *model.ScriptFault
	if !errors.As(err, &fault) || !strings.Contains(fault.Message, "not defined") {
		t.Errorf("Execute() error = %v, want ScriptFault", err)
	}

	found, err := sess.LocateAndActivate(ctx, []string{"save", "download"})
	if err != nil || !found {
		t.Fatalf("LocateAndActivate() = %v, %v", found, err)
	}
	if len(fake.clicked) != 1 || fake.clicked[0] != "el-download" {
		t.Errorf("clicked %v, want [el-download]", fake.clicked)
	}

	if err := sess.Close(ctx); err != nil || !fake.deleted {
		t.Errorf("Close() = %v, deleted = %v", err, fake.deleted)
	}
}

func TestWebDriverLocateNothing(t *testing.T) {
	fake := &fakeWebDriverServer{title: "WebSDR", links: map[string]bool{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	sess, err := NewWebDriver(WebDriverConfig{URL: srv.URL}).Connect(context.Background(), "http://x/")
	if err != nil {
		t.Fatal(err)
	}
	found, err := sess.LocateAndActivate(context.Background(), []string{"save", "download"})
	if err != nil || found {
		t.Errorf("LocateAndActivate() = %v, %v; want false, nil", found, err)
	}
}

func TestWebDriverConnectRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	if _, err := NewWebDriver(WebDriverConfig{URL: srv.URL}).Connect(context.Background(), "http://x/"); err == nil {
		t.Fatal("expected an error connecting to a closed server")
	}
}

func TestWebDriverTraceLogging(t *testing.T) {
	tests := []struct {
		name  string
		trace bool
	}{
		{"debug level", true},
		{"default level", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := NewWebDriver(WebDriverConfig{Trace: tt.trace}).capabilities()
			opts := caps["capabilities"].(map[string]any)["alwaysMatch"].(map[string]any)["moz:firefoxOptions"].(map[string]any)

			logOpts, ok := opts["log"].(map[string]any)
			if ok != tt.trace {
				t.Fatalf("log options present = %t, want %t", ok, tt.trace)
			}
			if tt.trace && logOpts["level"] != "trace" {
				t.Errorf("log level = %v, want trace", logOpts["level"])
			}
		})
	}
}
