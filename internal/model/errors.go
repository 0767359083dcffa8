package model

import (
	"errors"
	"fmt"
)

var (
	ErrConnect            = errors.New("remote session connect failed")
	ErrMarkerMissing      = errors.New("identifying marker not found in session")
	ErrScriptFault        = errors.New("remote script fault")
	ErrConfigureExhausted = errors.New("configure retries exhausted")
	ErrDownloadNotFound   = errors.New("no download action found")
	ErrNotFound           = errors.New("no matching file")
	ErrAlreadyExists      = errors.New("artifact already exists")
	ErrRender             = errors.New("render failed")
	ErrUpload             = errors.New("upload failed")
	ErrClockAnomaly       = errors.New("system clock moved backwards")
	ErrMissingConfig      = errors.New("missing required configuration")
	ErrPoolSaturated      = errors.New("worker pool saturated")
)

// ScriptFault is a scripting error raised by the remote console.
type ScriptFault struct {
	Script  string
	Message string
}

func (e *ScriptFault) Error() string {
	return fmt.Sprintf("script fault in %q: %s", e.Script, e.Message)
}

func (e *ScriptFault) Unwrap() error { return ErrScriptFault }
