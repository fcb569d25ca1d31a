// pkg/installer/installer.go - invocation of the installer/uninstaller executable.

package installer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/windowsadmins/deploywrap/pkg/config"
	"github.com/windowsadmins/deploywrap/pkg/logging"
	"github.com/windowsadmins/deploywrap/pkg/utils"
)

var commandMsi = filepath.Join(os.Getenv("WINDIR"), "system32", "msiexec.exe")

// Windows Installer exit codes the sequencer cares about.
const (
	ExitSuccess             = 0
	ExitRebootRequired      = 3010
	ExitRebootInitiated     = 1641
	ExitInstallerInUse      = 1618
	ExitProductNotInstalled = 1605
)

// RebootRequired reports whether an installer exit code means the machine
// needs a restart to finish.
func RebootRequired(exitCode int) bool {
	return exitCode == ExitRebootRequired || exitCode == ExitRebootInitiated
}

// fileExists checks if a file exists on the filesystem.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// hideConsoleWindow keeps child console windows from flashing on screen.
func hideConsoleWindow(cmd *exec.Cmd) {
	if runtime.GOOS == "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			HideWindow: true,
		}
	}
}

// runCMD executes a command and its arguments, returning combined output,
// the process exit code and any execution error.
func runCMD(ctx context.Context, command string, arguments []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, command, arguments...)
	hideConsoleWindow(cmd)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return out.String(), -1, fmt.Errorf("command timed out: %s", command)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return out.String(), exitErr.ExitCode(), nil
		}
		combinedErr := fmt.Errorf("command execution failed: %w | stderr: %s", err, stderr.String())
		return out.String(), -1, combinedErr
	}
	return out.String(), 0, nil
}

// This abstraction allows us to override when testing
var (
	runCommand          = runCMD
	waitForMSIAvailable = WaitForMSIAvailable
)

// msiInstallArgs builds msiexec install arguments for the given deploy mode.
func msiInstallArgs(msiPath string, mode config.DeployMode, extra []string) []string {
	args := []string{"/i", msiPath}
	if mode.Interactive() {
		// Reduced UI with a progress bar; no modal prompts from msiexec itself.
		args = append(args, "/passive")
	} else {
		args = append(args, "/quiet")
	}
	args = append(args, "/norestart")
	return append(args, extra...)
}

// msiUninstallArgs builds msiexec uninstall arguments.
func msiUninstallArgs(msiPath string, mode config.DeployMode, extra []string) []string {
	args := []string{"/x", msiPath}
	if mode.Interactive() {
		args = append(args, "/passive")
	} else {
		args = append(args, "/qn")
	}
	args = append(args, "/norestart")
	return append(args, extra...)
}

// RunInstall invokes the configured installer exactly once and returns its
// exit code. Reboot-required codes are returned as-is for the sequencer to
// classify; any other non-zero code is an error.
func RunInstall(cfg *config.Configuration) (int, error) {
	if !fileExists(cfg.InstallerPath) {
		return -1, fmt.Errorf("installer not found: %s", cfg.InstallerPath)
	}

	timeout := time.Duration(cfg.InstallerTimeoutMinutes) * time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var command string
	var args []string
	switch strings.ToLower(cfg.InstallerType) {
	case "msi":
		if err := waitForMSIAvailable(2); err != nil {
			logging.Warn("MSI service availability check failed", "error", err)
		}
		command = commandMsi
		args = msiInstallArgs(cfg.InstallerPath, cfg.DeployMode, cfg.InstallArguments)
	case "exe":
		command = cfg.InstallerPath
		args = cfg.InstallArguments
	default:
		return -1, fmt.Errorf("unknown installer type: %s", cfg.InstallerType)
	}

	if sum, err := utils.FileSHA256(cfg.InstallerPath); err == nil {
		logging.Info("Installer checksum", "path", cfg.InstallerPath, "sha256", sum)
	}

	logging.Info("Running installer", "command", command, "args", args)
	output, exitCode, err := runCommand(ctx, command, args)
	if err != nil {
		logging.Error("Installer execution failed", "error", err, "output", output)
		return -1, err
	}

	logging.Debug("Installer output", "output", output)
	if exitCode == ExitSuccess || RebootRequired(exitCode) {
		logging.Info("Installer finished", "exit_code", exitCode)
		return exitCode, nil
	}

	return exitCode, fmt.Errorf("installer failed with exit code %d", exitCode)
}

// RunUninstall invokes the configured uninstaller action and returns its
// exit code. A product that is already absent (msiexec 1605) is success.
func RunUninstall(cfg *config.Configuration) (int, error) {
	timeout := time.Duration(cfg.InstallerTimeoutMinutes) * time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var command string
	var args []string
	switch strings.ToLower(cfg.InstallerType) {
	case "msi":
		if err := waitForMSIAvailable(2); err != nil {
			logging.Warn("MSI service availability check failed", "error", err)
		}
		command = commandMsi
		args = msiUninstallArgs(cfg.InstallerPath, cfg.DeployMode, cfg.UninstallArguments)
	case "exe":
		if !fileExists(cfg.InstallerPath) {
			logging.Warn("Uninstaller executable not found, nothing to remove", "path", cfg.InstallerPath)
			return ExitSuccess, nil
		}
		command = cfg.InstallerPath
		args = cfg.UninstallArguments
	default:
		return -1, fmt.Errorf("unknown installer type: %s", cfg.InstallerType)
	}

	logging.Info("Running uninstaller", "command", command, "args", args)
	output, exitCode, err := runCommand(ctx, command, args)
	if err != nil {
		logging.Error("Uninstaller execution failed", "error", err, "output", output)
		return -1, err
	}

	logging.Debug("Uninstaller output", "output", output)
	switch {
	case exitCode == ExitSuccess || RebootRequired(exitCode):
		logging.Info("Uninstaller finished", "exit_code", exitCode)
		return exitCode, nil
	case exitCode == ExitProductNotInstalled:
		logging.Info("Product not installed, treating uninstall as success")
		return ExitSuccess, nil
	}

	return exitCode, fmt.Errorf("uninstaller failed with exit code %d", exitCode)
}
