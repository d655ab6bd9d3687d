package playback

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelves/internal/shared"
)

// Activator makes a device the account's active device before playback.
//
// A Connect device only accepts play commands reliably once it is active. The protocol pauses
// whatever is playing elsewhere, transfers playback without starting it, waits and then checks.
type Activator struct {
	PauseSettle time.Duration // wait after the best-effort pause
	VerifyBase  time.Duration // wait before verification on the first attempt
	VerifyStep  time.Duration // added to VerifyBase per attempt
	Attempts    int
	Sleep       shared.Sleeper
	Logger      *log.Logger
}

// NewActivator returns an activator with the protocol's default timings.
func NewActivator(logger *log.Logger) *Activator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Activator{
		PauseSettle: 300 * time.Millisecond,
		VerifyBase:  600 * time.Millisecond,
		VerifyStep:  200 * time.Millisecond,
		Attempts:    2,
		Sleep:       shared.Sleep,
		Logger:      logger,
	}
}

func activeDevice(ctx context.Context, api PlayerAPI) (string, error) {
	state, _, err := api.State(ctx)
	if err != nil || state == nil {
		return "", err
	}
	return state.Device.ID, nil
}

// Activate runs up to Attempts activation attempts and reports whether deviceID became active.
//
// Failure is not fatal: callers log it and try to play anyway.
func (a *Activator) Activate(ctx context.Context, api PlayerAPI, deviceID string) bool {
	attempts := max(a.Attempts, 1)
	for attempt := range attempts {
		if a.Once(ctx, api, deviceID, attempt) {
			return true
		}
		if ctx.Err() != nil {
			break
		}
	}
	a.Logger.Warn("device activation failed", "device_id", deviceID, "attempts", attempts)
	return false
}

// Once runs a single activation attempt. attempt (0-based) only stretches the verification wait.
func (a *Activator) Once(ctx context.Context, api PlayerAPI, deviceID string, attempt int) bool {
	if deviceID == "" {
		return false
	}

	active, err := activeDevice(ctx, api)
	if err == nil && active == deviceID {
		return true
	}

	if _, err := api.Pause(ctx, ""); err != nil {
		a.Logger.Debug("pause before transfer failed", "error", err)
	}
	if err := a.Sleep(ctx, a.PauseSettle); err != nil {
		return false
	}

	status, err := api.Transfer(ctx, deviceID, false)
	if err != nil {
		a.Logger.Debug("transfer failed", "device_id", deviceID, "status", status, "error", err)
	}

	if err := a.Sleep(ctx, a.VerifyBase+time.Duration(attempt)*a.VerifyStep); err != nil {
		return false
	}

	active, verr := activeDevice(ctx, api)
	if verr == nil && active == deviceID {
		a.Logger.Debug("device activated", "device_id", deviceID, "attempt", attempt)
		return true
	}
	return status == http.StatusNoContent
}
