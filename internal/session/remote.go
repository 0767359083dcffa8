// Package session drives one remote recording session through
// connect, configure, arm, download and close.
package session

import (
	"context"
	"fmt"
	"strconv"
)

// Remote opens sessions on a remote receiver console.
type Remote interface {
	Connect(ctx context.Context, endpoint string) (Session, error)
}

// Session is one open remote console. Execute returns a *model.ScriptFault
// when the console rejects a script.
type Session interface {
	Verify(ctx context.Context, marker string) (bool, error)
	Execute(ctx context.Context, script string) error
	LocateAndActivate(ctx context.Context, labels []string) (bool, error)
	Close(ctx context.Context) error
}

// Tuning holds the receiver parameters applied during configure.
type Tuning struct {
	BaseFreqHz int
	Band       int
	Lo         string
	Hi         string
	Mode       int // 0 is USB
}

const (
	scriptMute        = "soundapplet.setvolume('0');"
	scriptBlindMode   = "setview(3);"
	scriptAudioResume = "soundapplet.audioresume();"
	scriptRecordStart = "record_start();"
	scriptRecordStop  = "record_stop();"
)

// ConfigureScripts returns the configure sequence: mute (muting the applet
// would also mute the recording, so volume goes to zero), disable the
// waterfall, set tuning, resume audio.
func ConfigureScripts(t Tuning) []string {
	khz := strconv.FormatFloat(float64(t.BaseFreqHz)/1000, 'f', -1, 64)
	params := fmt.Sprintf("f=%s&band=%d&lo=%s&hi=%s&mode=%d", khz, t.Band, t.Lo, t.Hi, t.Mode)
	return []string{
		scriptMute,
		scriptBlindMode,
		fmt.Sprintf("soundapplet.setparam(%q);", params),
		scriptAudioResume,
	}
}
