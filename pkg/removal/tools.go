// pkg/removal/tools.go - execution of the external removal tools configured
// for a deployment (vendor cleanup scripts, leftover-file sweepers).

package removal

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

	"github.com/windowsadmins/deploywrap/pkg/logging"
)

// RunRemovalTools runs each configured removal command line exactly once, in
// order. A missing tool is skipped with a warning; a failing tool is an error.
func RunRemovalTools(tools []string, timeoutMinutes int) error {
	for _, tool := range tools {
		tool = strings.TrimSpace(tool)
		if tool == "" {
			continue
		}

		args := SplitCommandLine(tool)
		if len(args) == 0 {
			continue
		}
		if _, err := os.Stat(args[0]); os.IsNotExist(err) {
			logging.Warn("Removal tool not found, skipping", "tool", args[0])
			continue
		}

		logging.Info("Running removal tool", "tool", tool)
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMinutes)*time.Minute)
		output, err := runCommandLine(ctx, tool)
		cancel()

		logToolOutput(filepath.Base(args[0]), output)
		if err != nil {
			return fmt.Errorf("removal tool %s failed: %w", args[0], err)
		}
		logging.Info("Removal tool completed", "tool", args[0])
	}
	return nil
}

// runCommandLine executes a full command line, routing PowerShell scripts
// through powershell.exe the same way plain executables run directly.
func runCommandLine(ctx context.Context, commandLine string) (string, error) {
	args := SplitCommandLine(commandLine)
	if len(args) == 0 {
		return "", fmt.Errorf("empty command line")
	}

	var cmd *exec.Cmd
	if strings.HasSuffix(strings.ToLower(args[0]), ".ps1") {
		psArgs := append([]string{
			"-NoLogo", "-NoProfile", "-NonInteractive",
			"-ExecutionPolicy", "Bypass",
			"-File", args[0],
		}, args[1:]...)
		cmd = exec.CommandContext(ctx, powershellExe(), psArgs...)
		cmd.Dir = filepath.Dir(args[0])
	} else {
		cmd = exec.CommandContext(ctx, args[0], args[1:]...)
	}

	if runtime.GOOS == "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return out.String(), fmt.Errorf("command timed out: %s", args[0])
	}
	return out.String(), err
}

// powershellExe prefers PowerShell 7 and falls back to Windows PowerShell.
func powershellExe() string {
	if psExe, err := exec.LookPath("pwsh.exe"); err == nil {
		return psExe
	}
	return "powershell.exe"
}

// logToolOutput logs each non-empty output line of an external tool.
func logToolOutput(displayName, output string) {
	for _, line := range strings.Split(output, "\n") {
		txt := strings.TrimSpace(line)
		if txt == "" {
			continue
		}
		txt = strings.TrimPrefix(txt, "\ufeff")
		logging.Info(fmt.Sprintf("[%s] %s", displayName, txt))
	}
}

// SplitCommandLine splits a command line into arguments, honoring double
// quotes around paths with spaces.
func SplitCommandLine(commandLine string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false

	for _, r := range commandLine {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}
