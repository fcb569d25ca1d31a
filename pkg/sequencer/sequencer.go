// pkg/sequencer/sequencer.go - the deployment sequence itself.
//
// Run executes a fixed, linear list of external actions for the selected
// deployment type and reports a single exit code. There is no rollback and
// no retry at this level: each step either succeeds, or the whole run fails
// with the script-failure exit code.

package sequencer

import (
	"fmt"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/windowsadmins/deploywrap/pkg/blocking"
	"github.com/windowsadmins/deploywrap/pkg/config"
	"github.com/windowsadmins/deploywrap/pkg/installer"
	"github.com/windowsadmins/deploywrap/pkg/logging"
	"github.com/windowsadmins/deploywrap/pkg/prompt"
	"github.com/windowsadmins/deploywrap/pkg/removal"
	"github.com/windowsadmins/deploywrap/pkg/shortcuts"
	"github.com/windowsadmins/deploywrap/pkg/space"
	"github.com/windowsadmins/deploywrap/pkg/svcctl"
)

// Final exit codes reported by the wrapper.
const (
	ExitSuccess        = 0
	ExitRebootRequired = 3010
	ExitScriptFailure  = 60001
	ExitInitFailure    = 60008
	ExitUserDeferred   = 60012
)

// This abstraction allows us to override when testing
var (
	stopService     = svcctl.StopService
	runningApps     = blocking.RunningApps
	closeApps       = blocking.CloseApps
	verifyFreeSpace = space.VerifyFreeSpace
	closeAppsPrompt = prompt.CloseAppsPrompt
	countdown       = prompt.Countdown
	showProgress    = prompt.ShowProgress
	showError       = prompt.ShowError
	showComplete    = prompt.ShowComplete
	runRemovalTools = removal.RunRemovalTools
	removePrevious  = removal.RemovePreviousVersions
	deleteShortcuts = shortcuts.DeleteShortcuts
	createShortcuts = shortcuts.CreateShortcuts
	runInstall      = installer.RunInstall
	runUninstall    = installer.RunUninstall
)

// Run executes the deployment sequence and returns the final exit code.
// Any panic or step failure inside the sequence maps to ExitScriptFailure
// with the error logged and shown to the user in Interactive mode.
func Run(cfg *config.Configuration) (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Unhandled failure during deployment", "panic", r)
			showError(cfg.DeployMode, cfg.AppName,
				fmt.Sprintf("%s deployment failed unexpectedly: %v", cfg.AppName, r))
			exitCode = ExitScriptFailure
		}
	}()

	logging.Info("Starting deployment",
		"app", cfg.AppName,
		"version", cfg.AppVersion,
		"type", cfg.DeploymentType,
		"mode", cfg.DeployMode)

	if cfg.TerminalServerMode {
		enterTerminalServerInstallMode()
		defer exitTerminalServerInstallMode()
	}

	var err error
	switch cfg.DeploymentType {
	case config.DeploymentUninstall:
		exitCode, err = runUninstallSequence(cfg)
	default:
		exitCode, err = runInstallSequence(cfg)
	}

	if err != nil {
		logging.Error("Deployment failed", "app", cfg.AppName, "error", err)
		showError(cfg.DeployMode, cfg.AppName,
			fmt.Sprintf("%s deployment failed: %v", cfg.AppName, err))
		return ExitScriptFailure
	}

	logging.Info("Deployment finished", "app", cfg.AppName, "exit_code", exitCode)
	return exitCode
}

// runInstallSequence performs the install branch in fixed order.
func runInstallSequence(cfg *config.Configuration) (int, error) {
	// 1) Stop the application service so the installer can replace its files.
	if err := stopService(cfg.ServiceName); err != nil {
		return 0, fmt.Errorf("failed to stop service %s: %w", cfg.ServiceName, err)
	}

	// 2) Disk space and conflicting applications, with user deferral.
	code, err := installWelcome(cfg)
	if err != nil || code != ExitSuccess {
		return code, err
	}

	showProgress(cfg.DeployMode, fmt.Sprintf("Installing %s %s. Please wait...", cfg.AppName, cfg.AppVersion))

	// 3) External removal procedures for leftovers of earlier releases.
	if err := runRemovalTools(cfg.RemovalTools, cfg.InstallerTimeoutMinutes); err != nil {
		return 0, err
	}

	// 4) Uninstall any older versions still registered on the machine.
	if err := removePrevious(cfg.AppName, cfg.AppVersion, cfg.InstallerTimeoutMinutes); err != nil {
		return 0, err
	}

	// 5) Legacy shortcuts; missing files are fine.
	if err := deleteShortcuts(cfg.DeleteShortcuts); err != nil {
		return 0, err
	}

	// 6) The installer runs exactly once.
	installerCode, err := runInstall(cfg)
	if err != nil {
		return 0, err
	}

	// 7) Fresh desktop shortcuts.
	if err := createShortcuts(cfg.ShortcutTool, cfg.Shortcuts); err != nil {
		return 0, err
	}

	showComplete(cfg.DeployMode, cfg.AppName,
		fmt.Sprintf("%s %s was installed successfully.", cfg.AppName, cfg.AppVersion))

	if installer.RebootRequired(installerCode) {
		if cfg.AllowRebootPassThru {
			logging.Info("Installer requested a reboot, passing exit code through", "exit_code", ExitRebootRequired)
			return ExitRebootRequired, nil
		}
		logging.Info("Installer requested a reboot, suppressed by configuration")
	}
	return ExitSuccess, nil
}

// runUninstallSequence performs the uninstall branch in fixed order.
func runUninstallSequence(cfg *config.Configuration) (int, error) {
	// 1) Close conflicting applications after a countdown.
	running := runningApps(cfg.CloseProcesses)
	if len(running) > 0 {
		countdown(cfg.AppName, cfg.CountdownSeconds, func() []string {
			return runningApps(cfg.CloseProcesses)
		})
		if err := closeApps(runningApps(cfg.CloseProcesses)); err != nil {
			return 0, err
		}
	}

	showProgress(cfg.DeployMode, fmt.Sprintf("Uninstalling %s. Please wait...", cfg.AppName))

	// 2) Same removal procedures as the install branch.
	if err := runRemovalTools(cfg.RemovalTools, cfg.InstallerTimeoutMinutes); err != nil {
		return 0, err
	}

	// 3) Same shortcut files as the install branch.
	if err := deleteShortcuts(cfg.DeleteShortcuts); err != nil {
		return 0, err
	}

	// 4) The uninstaller action. The installer is never invoked here.
	if _, err := runUninstall(cfg); err != nil {
		return 0, err
	}

	return ExitSuccess, nil
}

// installWelcome verifies disk space and gets conflicting applications
// closed, honoring up to MaxDeferrals user deferrals in Interactive mode.
func installWelcome(cfg *config.Configuration) (int, error) {
	if cfg.DeployMode.Interactive() {
		if err := verifyFreeSpace(cfg.RequiredDiskSpaceMB); err != nil {
			return 0, err
		}
	}

	running := runningApps(cfg.CloseProcesses)
	if len(running) == 0 {
		return ExitSuccess, nil
	}

	remaining := deferralsRemaining(cfg)
	switch closeAppsPrompt(cfg.DeployMode, cfg.AppName, running, remaining) {
	case prompt.ChoiceDefer:
		recordDeferral(cfg)
		logging.Info("User deferred the installation", "deferrals_remaining", remaining-1)
		return ExitUserDeferred, nil
	case prompt.ChoiceCancel:
		logging.Info("User declined to close applications with no deferrals remaining")
		return ExitUserDeferred, nil
	}

	if err := closeApps(running); err != nil {
		return 0, err
	}
	clearDeferrals(cfg)
	return ExitSuccess, nil
}

// Terminal Services install mode switches for multi-session hosts.

func enterTerminalServerInstallMode() {
	runChangeUser("/install")
}

func exitTerminalServerInstallMode() {
	runChangeUser("/execute")
}

// This abstraction allows us to override when testing
var runChangeUser = func(flag string) {
	cmd := exec.Command("change.exe", "user", flag)
	if runtime.GOOS == "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	}
	if err := cmd.Run(); err != nil {
		logging.Warn("change user failed", "flag", flag, "error", err)
	} else {
		logging.Info("Terminal server user mode changed", "flag", flag)
	}
}
