// pkg/blocking/blocking.go - detection and termination of applications that
// conflict with a deployment while it is running.

package blocking

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/windowsadmins/deploywrap/pkg/logging"
)

// procInfo is a point-in-time snapshot of one running process.
type procInfo struct {
	pid  int32
	name string
	exe  string
}

// This abstraction allows us to override when testing
var (
	snapshotProcesses = listProcesses
	closeProcess      = terminateProcess
)

// listProcesses snapshots every running process with its name and path.
func listProcesses() ([]procInfo, error) {
	processes, err := process.Processes()
	if err != nil {
		return nil, err
	}

	infos := make([]procInfo, 0, len(processes))
	for _, proc := range processes {
		name, err := proc.Name()
		if err != nil {
			continue
		}
		exe, _ := proc.Exe()
		infos = append(infos, procInfo{pid: proc.Pid, name: name, exe: exe})
	}
	return infos, nil
}

// matchesProcessName compares a running process name against a configured
// conflicting application entry. Entries may be given with or without the
// .exe suffix, or as a full executable path.
func matchesProcessName(procName, procExe, appName string) bool {
	cleanAppName := strings.ToLower(appName)
	processName := strings.ToLower(procName)

	if strings.HasPrefix(cleanAppName, "/") || strings.HasPrefix(cleanAppName, `c:\`) {
		// Match by exact executable path
		return strings.EqualFold(procExe, appName)
	}
	if strings.HasSuffix(cleanAppName, ".exe") {
		return processName == cleanAppName
	}
	return processName == cleanAppName || processName == cleanAppName+".exe"
}

// IsAppRunning checks if a specific application is currently running
func IsAppRunning(appName string) bool {
	logging.Debug("Checking if application is running", "app", appName)

	procs, err := snapshotProcesses()
	if err != nil {
		logging.Error("Failed to get process list", "error", err)
		return false
	}

	for _, p := range procs {
		if matchesProcessName(p.name, p.exe, appName) {
			logging.Debug("Found running app", "app", appName, "process", p.name)
			return true
		}
	}

	logging.Debug("Application not found running", "app", appName)
	return false
}

// RunningApps returns the subset of appNames that currently have a running process.
func RunningApps(appNames []string) []string {
	var runningApps []string
	for _, appName := range appNames {
		if appName == "" {
			continue
		}
		if IsAppRunning(appName) {
			runningApps = append(runningApps, appName)
		}
	}
	return runningApps
}

// CloseApps terminates every process matching the given application names.
// Every matched application is re-checked after its processes were attacked;
// an application that is still running, including when every close attempt
// failed outright, is reported in the returned error.
func CloseApps(appNames []string) error {
	if len(appNames) == 0 {
		return nil
	}

	procs, err := snapshotProcesses()
	if err != nil {
		return fmt.Errorf("failed to get process list: %w", err)
	}

	var failed []string
	for _, appName := range appNames {
		matched := false
		for _, p := range procs {
			if !matchesProcessName(p.name, p.exe, appName) {
				continue
			}
			matched = true

			logging.Info("Closing conflicting application", "app", appName, "pid", p.pid)
			if !closeProcess(p.pid, p.name) {
				logging.Error("All close attempts failed", "app", appName, "pid", p.pid)
			}
		}

		if !matched {
			continue
		}

		// Give the process tree a moment to exit before re-checking.
		time.Sleep(500 * time.Millisecond)
		if IsAppRunning(appName) {
			failed = append(failed, appName)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("applications still running after close: %s", strings.Join(failed, ", "))
	}
	return nil
}

// terminateProcess escalates from a graceful Terminate to a hard Kill to
// taskkill by image name, reporting whether any attempt succeeded.
func terminateProcess(pid int32, imageName string) bool {
	proc, err := process.NewProcess(pid)
	if err != nil {
		// Already gone.
		return true
	}
	if err := proc.Terminate(); err == nil {
		return true
	}
	if err := proc.Kill(); err == nil {
		return true
	}
	logging.Warn("Failed to terminate process directly, falling back to taskkill",
		"process", imageName, "pid", pid)
	return taskkill(imageName) == nil
}

// taskkill force-terminates every process with the given image name.
func taskkill(imageName string) error {
	if !strings.HasSuffix(strings.ToLower(imageName), ".exe") {
		imageName += ".exe"
	}
	cmd := exec.Command("taskkill", "/F", "/IM", imageName)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	return cmd.Run()
}
