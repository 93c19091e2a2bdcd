package pages

import (
	"log/slog"
	"strings"
	"time"

	"github.com/petrijr/uiflow/pkg/api"
)

// ReleaseMarker is written into deployment change logs and release notes
// once provisioning has been disabled. Its presence in the latest release
// short-circuits DisableWorkflowProvisioning.
const ReleaseMarker = "E2E test: Disabled workflow provisioning"

// Settings holds what page flows need to know about the console and about
// pacing. The zero value is completed by withDefaults.
type Settings struct {
	BaseURL string

	// Retry wraps each retried page operation.
	Retry api.RetryPolicy

	// Toggle is used to wait for the "Provision on install" switch to settle.
	Toggle api.StabilizeOptions

	// SaveTimeout bounds the race between the save confirmation and the
	// issues panel.
	SaveTimeout time.Duration

	// Timeout is the default for element waits.
	Timeout time.Duration

	// InstallVerifyDelay is waited before re-checking the catalog after an
	// install. UninstallSettle is waited after a successful uninstall so the
	// catalog reflects it. ScreenSettle is waited after each configuration
	// screen and after accepting permissions.
	InstallVerifyDelay time.Duration
	UninstallSettle    time.Duration
	ScreenSettle       time.Duration

	Logger *slog.Logger
}

// DefaultSettings returns the pacing used against the hosted console.
func DefaultSettings() Settings {
	return Settings{
		Retry: api.DefaultRetryPolicy(),
		Toggle: api.StabilizeOptions{
			RequiredStableReadings: 3,
			PollInterval:           500 * time.Millisecond,
			MaxPolls:               5,
		},
		SaveTimeout:        15 * time.Second,
		Timeout:            10 * time.Second,
		InstallVerifyDelay: 2 * time.Second,
		UninstallSettle:    10 * time.Second,
		ScreenSettle:       2 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Retry.MaxAttempts == 0 {
		s.Retry = d.Retry
	}
	if s.Toggle == (api.StabilizeOptions{}) {
		s.Toggle = d.Toggle
	}
	if s.SaveTimeout <= 0 {
		s.SaveTimeout = d.SaveTimeout
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	return s
}

func (s Settings) url(path string) string {
	return s.BaseURL + path
}
