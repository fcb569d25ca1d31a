// pkg/prompt/prompt.go - user-facing dialogs for interactive deployments.
//
// Silent and NonInteractive modes never show UI: every prompt short-circuits
// to its non-blocking default so the sequence can run unattended.

package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/gonutz/w32/v2"

	"github.com/windowsadmins/deploywrap/pkg/config"
	"github.com/windowsadmins/deploywrap/pkg/logging"
)

// Choice is the user's answer to the close-applications prompt.
type Choice int

const (
	ChoiceContinue Choice = iota
	ChoiceDefer
	ChoiceCancel
)

// mbSetForeground is the Win32 MB_SETFOREGROUND flag, which gonutz/w32 does
// not define.
const mbSetForeground = 0x00010000

// This abstraction allows us to override when testing
var messageBox = func(text, caption string, flags uint) int {
	// gonutz/w32 passes its second argument as the MessageBoxW body text
	// and the third as the window caption.
	return w32.MessageBox(0, text, caption, flags)
}

// CloseAppsPrompt asks the user to close the listed applications before the
// deployment continues. The user may defer up to deferralsRemaining times.
// Non-interactive modes continue immediately.
func CloseAppsPrompt(mode config.DeployMode, appTitle string, runningApps []string, deferralsRemaining int) Choice {
	if !mode.Interactive() {
		logging.Info("Non-interactive mode, closing applications without prompting", "apps", runningApps)
		return ChoiceContinue
	}

	text := fmt.Sprintf(
		"The following applications must be closed before %s can be installed:\n\n%s\n\n"+
			"Select OK to close them now.",
		appTitle, strings.Join(runningApps, "\n"))

	flags := uint(w32.MB_OKCANCEL | w32.MB_ICONEXCLAMATION | w32.MB_SYSTEMMODAL | mbSetForeground)
	if deferralsRemaining > 0 {
		text = fmt.Sprintf("%s\nSelect Cancel to defer (%d deferral(s) remaining).", text, deferralsRemaining)
	}

	switch messageBox(text, appTitle+" - Installation", flags) {
	case w32.IDOK:
		return ChoiceContinue
	case w32.IDCANCEL:
		if deferralsRemaining > 0 {
			return ChoiceDefer
		}
		return ChoiceCancel
	default:
		return ChoiceContinue
	}
}

// Countdown waits up to seconds for the listed applications to exit on their
// own, logging progress. It returns early once no listed application is
// running. Used by the uninstall branch before applications are force closed.
func Countdown(appTitle string, seconds int, stillRunning func() []string) {
	if seconds <= 0 {
		return
	}

	logging.Info("Waiting before closing applications",
		"app", appTitle, "countdown_seconds", seconds)

	const tick = 5 * time.Second
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)

	for time.Now().Before(deadline) {
		running := stillRunning()
		if len(running) == 0 {
			logging.Info("All conflicting applications exited before the countdown ended")
			return
		}
		remaining := int(time.Until(deadline).Seconds())
		logging.Info("Applications will be closed automatically",
			"apps", strings.Join(running, ", "), "seconds_remaining", remaining)

		sleep := tick
		if until := time.Until(deadline); until < sleep {
			sleep = until
		}
		time.Sleep(sleep)
	}
}

// ShowProgress logs a progress message and, in interactive mode, is the hook
// for a future progress window. MessageBox is deliberately not used here: a
// modal dialog would block the sequence.
func ShowProgress(mode config.DeployMode, message string) {
	logging.Info(message)
}

// ShowError displays a blocking error dialog in Interactive mode.
func ShowError(mode config.DeployMode, appTitle, message string) {
	logging.Error("Deployment error shown to user", "message", message)
	if !mode.Interactive() {
		return
	}
	messageBox(message, appTitle+" - Error",
		uint(w32.MB_OK|w32.MB_ICONERROR|w32.MB_SYSTEMMODAL|mbSetForeground))
}

// ShowComplete displays a completion dialog in Interactive mode.
func ShowComplete(mode config.DeployMode, appTitle, message string) {
	logging.Info("Deployment complete", "message", message)
	if !mode.Interactive() {
		return
	}
	messageBox(message, appTitle,
		uint(w32.MB_OK|w32.MB_ICONINFORMATION|mbSetForeground))
}
