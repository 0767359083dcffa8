package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dandantas/grabber/internal/model"
)

// fakeRemote is a scripted Remote for driver tests.
type fakeRemote struct {
	connectErr error
	session    *fakeSession
}

func (r *fakeRemote) Connect(ctx context.Context, endpoint string) (Session, error) {
	if r.connectErr != nil {
		return nil, r.connectErr
	}
	return r.session, nil
}

type fakeSession struct {
	mu sync.Mutex

	title      string
	faults     int // number of configure scripts that fail before success
	armFault   bool
	found      bool
	downloadTo string // directory the fake "browser" saves into
	fileName   string
	onActivate func()

	scripts []string
	closed  int
}

func (s *fakeSession) Verify(ctx context.Context, marker string) (bool, error) {
	return s.title != "" && strings.Contains(s.title, marker), nil
}

func (s *fakeSession) Execute(ctx context.Context, script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, script)

	if script == scriptRecordStart && s.armFault {
		return &model.ScriptFault{Script: script, Message: "record_start is not defined"}
	}
	if script == scriptMute && s.faults > 0 {
		s.faults--
		return &model.ScriptFault{Script: script, Message: "soundapplet is undefined"}
	}
	return nil
}

func (s *fakeSession) LocateAndActivate(ctx context.Context, labels []string) (bool, error) {
	if s.onActivate != nil {
		s.onActivate()
	}
	if !s.found {
		return false, nil
	}
	if s.downloadTo != "" {
		name := s.fileName
		if name == "" {
			name = "websdr_recording.wav"
		}
		if err := os.WriteFile(filepath.Join(s.downloadTo, name), []byte("RIFF"), 0o644); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) count(script string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sc := range s.scripts {
		if sc == script {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
