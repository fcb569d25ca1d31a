// pkg/installer/msibusy.go - Windows Installer service contention handling.
//
// Only one MSI transaction can run at a time. Before invoking msiexec we
// wait for the service to be free, and stale msiexec.exe processes left by
// crashed installers are cleaned up so they do not hold the mutex forever.

package installer

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/windowsadmins/deploywrap/pkg/logging"
	"github.com/windowsadmins/deploywrap/pkg/retry"
)

// This abstraction allows us to override when testing
var (
	checkMSIMutex   = probeMSIMutex
	cleanupOrphaned = CleanupOrphanedMSIProcesses
)

var msiProbeInterval = 10 * time.Second

// WaitForMSIAvailable waits for the Windows Installer service to become available
func WaitForMSIAvailable(maxWaitMinutes int) error {
	logging.Debug("Waiting for MSI service to become available", "maxWaitMinutes", maxWaitMinutes)

	attempts := maxWaitMinutes * 6 // one probe every ~10 seconds
	if attempts < 1 {
		attempts = 1
	}

	return retry.Retry(retry.RetryConfig{
		MaxRetries:      attempts,
		InitialInterval: msiProbeInterval,
		Multiplier:      1.0,
	}, func() error {
		busy, err := checkMSIMutex()
		if err != nil {
			logging.Debug("Error checking MSI mutex", "error", err)
		}
		if busy {
			// A crashed installer can hold the mutex forever; sweep stale
			// msiexec processes before the next probe.
			if err := cleanupOrphaned(); err != nil {
				logging.Debug("Orphaned msiexec cleanup failed", "error", err)
			}
			return fmt.Errorf("MSI service is busy")
		}
		return nil
	})
}

// probeMSIMutex checks if the Windows Installer service mutex is locked
func probeMSIMutex() (bool, error) {
	// Try to run a quick MSI operation to check if installer is busy
	cmd := exec.Command(commandMsi, "/help")
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return false, err
	}
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return err != nil, err
	case <-time.After(5 * time.Second):
		// If it takes more than 5 seconds to show help, installer is probably locked
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return true, fmt.Errorf("MSI service appears to be locked")
	}
}

// CleanupOrphanedMSIProcesses finds and terminates orphaned msiexec.exe processes
func CleanupOrphanedMSIProcesses() error {
	logging.Debug("Checking for orphaned msiexec.exe processes")

	// Get all msiexec.exe processes with creation time
	cmd := exec.Command("wmic", "process", "where", "name='msiexec.exe'", "get", "ProcessId,CreationDate,CommandLine", "/format:csv")
	hideConsoleWindow(cmd)
	output, err := cmd.Output()
	if err != nil {
		logging.Debug("Failed to query msiexec processes (may not exist)", "error", err)
		return nil
	}

	lines := strings.Split(string(output), "\n")
	var oldProcesses []string

	for _, line := range lines {
		if strings.Contains(line, "msiexec.exe") {
			fields := strings.Split(line, ",")
			if len(fields) >= 4 {
				processID := strings.TrimSpace(fields[3])
				creationDate := strings.TrimSpace(fields[2])

				// Parse creation date and check if process is older than 30 minutes
				if isProcessOld(creationDate, 30*time.Minute) {
					oldProcesses = append(oldProcesses, processID)
				}
			}
		}
	}

	if len(oldProcesses) > 0 {
		logging.Warn("Found potentially orphaned msiexec.exe processes", "count", len(oldProcesses))

		for _, pid := range oldProcesses {
			logging.Info("Terminating orphaned msiexec.exe process", "pid", pid)
			killCmd := exec.Command("taskkill", "/F", "/PID", pid)
			hideConsoleWindow(killCmd)
			if err := killCmd.Run(); err != nil {
				logging.Warn("Failed to kill msiexec process", "pid", pid, "error", err)
			}
		}
	}

	return nil
}

// isProcessOld checks if a WMI creation date indicates the process is older than the specified duration
func isProcessOld(wmiDate string, maxAge time.Duration) bool {
	// WMI date format: 20240905162345.123456-480
	if len(wmiDate) < 14 {
		return false
	}

	// Parse the date portion (YYYYMMDDHHMMSS)
	dateStr := wmiDate[:14]
	t, err := time.Parse("20060102150405", dateStr)
	if err != nil {
		logging.Debug("Failed to parse WMI date", "date", wmiDate, "error", err)
		return false
	}

	return time.Since(t) > maxAge
}
