// pkg/shortcuts/shortcuts.go - desktop shortcut removal and creation.
//
// Shortcut creation itself is delegated to an external tool; this package
// handles the surrounding filesystem work and prepares icon files.

package shortcuts

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
)

// DeleteShortcuts removes each listed shortcut file. Files that do not
// exist are not an error.
func DeleteShortcuts(paths []string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		err := os.Remove(path)
		if err != nil {
			if os.IsNotExist(err) {
				logging.Debug("Shortcut already absent", "path", path)
				continue
			}
			return fmt.Errorf("failed to delete shortcut %s: %w", path, err)
		}
		logging.Info("Deleted shortcut", "path", path)
	}
	return nil
}

// This abstraction allows us to override when testing
var runShortcutTool = execShortcutTool

// CreateShortcuts invokes the external shortcut-creation tool for each spec.
// Icons given as PNG sources are converted to ICO next to the shortcut
// target before the tool runs.
func CreateShortcuts(tool string, specs []config.ShortcutSpec) error {
	if len(specs) == 0 {
		return nil
	}
	if tool == "" {
		return fmt.Errorf("no shortcut tool configured")
	}
	if _, err := os.Stat(tool); os.IsNotExist(err) {
		return fmt.Errorf("shortcut tool not found: %s", tool)
	}

	for _, spec := range specs {
		iconPath := spec.IconSource
		if strings.HasSuffix(strings.ToLower(iconPath), ".png") {
			converted, err := PrepareIcon(iconPath)
			if err != nil {
				logging.Warn("Failed to convert shortcut icon, using target's own icon",
					"icon", iconPath, "error", err)
				iconPath = ""
			} else {
				iconPath = converted
			}
		}

		args := []string{
			"/name:" + spec.Name,
			"/target:" + spec.Target,
		}
		if spec.Arguments != "" {
			args = append(args, "/args:"+spec.Arguments)
		}
		if spec.WorkingDir != "" {
			args = append(args, "/workdir:"+spec.WorkingDir)
		}
		if iconPath != "" {
			args = append(args, "/icon:"+iconPath)
		}

		logging.Info("Creating shortcut", "name", spec.Name, "target", spec.Target)
		if output, err := runShortcutTool(tool, args); err != nil {
			return fmt.Errorf("shortcut tool failed for %s: %w (output: %s)", spec.Name, err, output)
		}
	}
	return nil
}

// execShortcutTool runs the shortcut-creation executable with fixed arguments.
func execShortcutTool(tool string, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, tool, args...)
	if runtime.GOOS == "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// PrepareIcon converts a PNG icon source into an ICO file next to the
// source, returning the ICO path. An existing up-to-date ICO is reused.
func PrepareIcon(pngPath string) (string, error) {
	icoPath := strings.TrimSuffix(pngPath, filepath.Ext(pngPath)) + ".ico"

	pngInfo, err := os.Stat(pngPath)
	if err != nil {
		return "", err
	}
	if icoInfo, err := os.Stat(icoPath); err == nil && icoInfo.ModTime().After(pngInfo.ModTime()) {
		return icoPath, nil
	}

	if err := ConvertPNGToICO(pngPath, icoPath); err != nil {
		return "", err
	}
	return icoPath, nil
}
