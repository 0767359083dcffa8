package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oliveagle/jsonpath"

	"github.com/dandantas/grabber/internal/model"
)

// W3C WebDriver element reference key.
const webElementKey = "element-6066-11e4-a52e-4f735466cecf"

// WebDriverConfig configures the browser a session runs in.
type WebDriverConfig struct {
	URL         string // e.g. geckodriver at http://localhost:4444
	Browser     string
	Headless    bool
	Binary      string
	DownloadDir string
	Timeout     time.Duration
	Trace       bool // geckodriver trace logging
}

// WebDriver is a Remote backed by a W3C WebDriver server. Each Connect
// starts a new browser.
type WebDriver struct {
	cfg        WebDriverConfig
	httpClient *http.Client
}

// NewWebDriver creates a WebDriver remote
func NewWebDriver(cfg WebDriverConfig) *WebDriver {
	if cfg.Browser == "" {
		cfg.Browser = "firefox"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &WebDriver{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// webDriverError is an error reply from the WebDriver server.
type webDriverError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *webDriverError) Error() string {
	return fmt.Sprintf("webdriver %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Connect starts a browser session and opens endpoint in it.
func (w *WebDriver) Connect(ctx context.Context, endpoint string) (Session, error) {
	reply, err := w.call(ctx, http.MethodPost, "/session", w.capabilities())
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	id, err := lookupString(reply, "$.value.sessionId")
	if err != nil {
		return nil, fmt.Errorf("no session id in reply: %w", err)
	}

	sess := &webDriverSession{driver: w, id: id}
	slog.Debug("WebDriver session created", "session_id", id)

	if _, err := sess.call(ctx, http.MethodPost, "/url", map[string]string{"url": endpoint}); err != nil {
		sess.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to open %s: %w", endpoint, err)
	}
	return sess, nil
}

func (w *WebDriver) capabilities() map[string]any {
	prefs := map[string]any{
		"browser.download.folderList":               2,
		"browser.download.manager.showWhenStarting": false,
		"browser.download.dir":                      w.cfg.DownloadDir,
		"browser.helperApps.neverAsk.saveToDisk":    "audio/wav, audio/x-wav",
		"browser.helperApps.alwaysAsk.force":        false,
		"browser.download.useDownloadDir":           true,
	}
	opts := map[string]any{"prefs": prefs}
	if w.cfg.Headless {
		opts["args"] = []string{"-headless"}
	}
	if w.cfg.Binary != "" {
		opts["binary"] = w.cfg.Binary
	}
	if w.cfg.Trace {
		opts["log"] = map[string]any{"level": "trace"}
	}

	return map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"browserName":        w.cfg.Browser,
				"moz:firefoxOptions": opts,
			},
		},
	}
}

// call sends one WebDriver command and returns the decoded reply.
func (w *WebDriver) call(ctx context.Context, method, path string, body any) (any, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal command: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(w.cfg.URL, "/")+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}

	var reply any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, fmt.Errorf("invalid reply (status %d): %w", resp.StatusCode, err)
		}
	}

	if resp.StatusCode >= 400 {
		wdErr := &webDriverError{StatusCode: resp.StatusCode}
		wdErr.Code, _ = lookupString(reply, "$.value.error")
		wdErr.Message, _ = lookupString(reply, "$.value.message")
		return nil, wdErr
	}
	return reply, nil
}

func lookupString(reply any, path string) (string, error) {
	v, err := jsonpath.JsonPathLookup(reply, path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s is %T, not a string", path, v)
	}
	return s, nil
}

type webDriverSession struct {
	driver *WebDriver
	id     string
}

func (s *webDriverSession) call(ctx context.Context, method, path string, body any) (any, error) {
	return s.driver.call(ctx, method, "/session/"+url.PathEscape(s.id)+path, body)
}

// Verify reports whether the page title contains marker.
func (s *webDriverSession) Verify(ctx context.Context, marker string) (bool, error) {
	reply, err := s.call(ctx, http.MethodGet, "/title", nil)
	if err != nil {
		return false, err
	}
	title, err := lookupString(reply, "$.value")
	if err != nil {
		return false, err
	}
	return strings.Contains(title, marker), nil
}

func (s *webDriverSession) Execute(ctx context.Context, script string) error {
	_, err := s.call(ctx, http.MethodPost, "/execute/sync", map[string]any{
		"script": script,
		"args":   []any{},
	})

	var wdErr *webDriverError
	if errors.As(err, &wdErr) && wdErr.Code == "javascript error" {
		return &model.ScriptFault{Script: script, Message: wdErr.Message}
	}
	return err
}

// LocateAndActivate clicks the first link whose text matches a label,
// trying labels in order.
func (s *webDriverSession) LocateAndActivate(ctx context.Context, labels []string) (bool, error) {
	for _, label := range labels {
		reply, err := s.call(ctx, http.MethodPost, "/element", map[string]string{
			"using": "link text",
			"value": label,
		})

		var wdErr *webDriverError
		if errors.As(err, &wdErr) && wdErr.Code == "no such element" {
			continue
		}
		if err != nil {
			return false, err
		}

		elementID, err := elementReference(reply)
		if err != nil {
			return false, err
		}
		if _, err := s.call(ctx, http.MethodPost, "/element/"+url.PathEscape(elementID)+"/click", map[string]any{}); err != nil {
			return false, fmt.Errorf("failed to click %q: %w", label, err)
		}
		slog.Debug("Activated download link", "label", label)
		return true, nil
	}
	return false, nil
}

func elementReference(reply any) (string, error) {
	v, err := jsonpath.JsonPathLookup(reply, "$.value")
	if err != nil {
		return "", err
	}
	element, ok := v.(map[string]any)
	if !ok {
		return "", fmt.Errorf("element reply is %T", v)
	}
	for _, key := range []string{webElementKey, "ELEMENT"} {
		if id, ok := element[key].(string); ok {
			return id, nil
		}
	}
	return "", errors.New("element reply has no reference")
}

// Close ends the browser session.
func (s *webDriverSession) Close(ctx context.Context) error {
	_, err := s.call(ctx, http.MethodDelete, "", nil)
	return err
}
