// pkg/removal/removal.go - removal of previously installed versions.
//
// Installed applications are discovered through the registry uninstall keys.
// Anything whose display name matches the target application and whose
// version is older than the version being deployed gets its uninstall
// string executed before the new installer runs.

package removal

import (
	"context"
	"fmt"
	"strings"
	"time"

	version "github.com/hashicorp/go-version"
	"golang.org/x/sys/windows/registry"

	"github.com/windowsadmins/deploywrap/pkg/logging"
)

// RegistryApplication is one entry from the registry uninstall keys.
type RegistryApplication struct {
	Key       string
	Name      string
	Version   string
	Uninstall string
}

// This abstraction allows us to override when testing
var listInstalledApps = getUninstallKeys

// IsOlderVersion reports whether installed is strictly older than target.
// Unparseable versions are treated as older so they still get removed.
func IsOlderVersion(installed, target string) bool {
	vInstalled, errInstalled := version.NewVersion(installed)
	vTarget, errTarget := version.NewVersion(target)
	if errInstalled != nil {
		return true
	}
	if errTarget != nil {
		return false
	}
	return vInstalled.LessThan(vTarget)
}

// FindPreviousVersions returns installed applications matching appName whose
// version is older than targetVersion. An empty targetVersion matches every
// installed copy.
func FindPreviousVersions(appName, targetVersion string) ([]RegistryApplication, error) {
	installedApps, err := listInstalledApps()
	if err != nil {
		return nil, err
	}

	var previous []RegistryApplication
	for _, app := range installedApps {
		if !strings.Contains(strings.ToLower(app.Name), strings.ToLower(appName)) {
			continue
		}
		if targetVersion != "" && !IsOlderVersion(app.Version, targetVersion) {
			logging.Debug("Installed version is current, leaving in place",
				"name", app.Name, "version", app.Version)
			continue
		}
		previous = append(previous, app)
	}
	return previous, nil
}

// RemovePreviousVersions uninstalls every matching older version. Individual
// failures are logged and the remaining versions are still attempted.
func RemovePreviousVersions(appName, targetVersion string, timeoutMinutes int) error {
	previous, err := FindPreviousVersions(appName, targetVersion)
	if err != nil {
		return fmt.Errorf("failed to enumerate installed applications: %w", err)
	}

	if len(previous) == 0 {
		logging.Info("No previous versions found", "app", appName)
		return nil
	}

	var failed []string
	for _, app := range previous {
		logging.Info("Removing previous version", "name", app.Name, "version", app.Version)

		uninstall := toSilentUninstall(app.Uninstall)
		if uninstall == "" {
			logging.Warn("No uninstall string recorded, skipping", "name", app.Name)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMinutes)*time.Minute)
		output, err := runCommandLine(ctx, uninstall)
		cancel()
		if err != nil {
			logging.Error("Failed to remove previous version",
				"name", app.Name, "version", app.Version, "error", err, "output", output)
			failed = append(failed, fmt.Sprintf("%s %s", app.Name, app.Version))
			continue
		}
		logging.Info("Removed previous version", "name", app.Name, "version", app.Version)
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to remove previous versions: %s", strings.Join(failed, ", "))
	}
	return nil
}

// toSilentUninstall rewrites a registry uninstall string for unattended use.
// MSI uninstall strings are recorded as "MsiExec.exe /I{GUID}" or /X{GUID};
// both become a quiet /X invocation.
func toSilentUninstall(uninstall string) string {
	trimmed := strings.TrimSpace(uninstall)
	if trimmed == "" {
		return ""
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "msiexec") {
		if idx := strings.Index(lower, "/i{"); idx >= 0 {
			trimmed = trimmed[:idx] + "/X" + trimmed[idx+2:]
		}
		if !strings.Contains(strings.ToLower(trimmed), "/qn") {
			trimmed += " /qn /norestart"
		}
		return trimmed
	}
	return trimmed
}

// getUninstallKeys enumerates registry for installed apps
func getUninstallKeys() (map[string]RegistryApplication, error) {
	installedApps := make(map[string]RegistryApplication)
	regPaths := []string{
		`Software\Microsoft\Windows\CurrentVersion\Uninstall`,
		`Software\Wow6432Node\Microsoft\Windows\CurrentVersion\Uninstall`,
	}
	for _, rPath := range regPaths {
		key, err := registry.OpenKey(registry.LOCAL_MACHINE, rPath, registry.READ)
		if err != nil {
			logging.Warn("Unable to read registry key", "path", rPath, "error", err)
			continue
		}
		defer key.Close()

		subKeys, err := key.ReadSubKeyNames(0)
		if err != nil {
			logging.Warn("Unable to read sub keys", "path", rPath, "error", err)
			continue
		}
		for _, subKey := range subKeys {
			fullPath := rPath + `\` + subKey
			subKeyObj, err := registry.OpenKey(registry.LOCAL_MACHINE, fullPath, registry.READ)
			if err != nil {
				continue
			}
			defer subKeyObj.Close()

			valNames, err := subKeyObj.ReadValueNames(0)
			if err != nil {
				continue
			}

			if !checkValues(valNames) {
				// skip if missing critical fields
				continue
			}
			var app RegistryApplication
			app.Key = fullPath

			if name, _, err := subKeyObj.GetStringValue("DisplayName"); err == nil {
				app.Name = name
			}
			if versionStr, _, err := subKeyObj.GetStringValue("DisplayVersion"); err == nil {
				app.Version = versionStr
			}
			if uninstallStr, _, err := subKeyObj.GetStringValue("UninstallString"); err == nil {
				app.Uninstall = uninstallStr
			}
			if app.Name != "" {
				installedApps[app.Name] = app
			}
		}
	}
	return installedApps, nil
}

// checkValues ensures the subkey has at least DisplayName / DisplayVersion / UninstallString
func checkValues(values []string) bool {
	var haveName, haveVersion, haveUninstall bool
	for _, v := range values {
		switch v {
		case "DisplayName":
			haveName = true
		case "DisplayVersion":
			haveVersion = true
		case "UninstallString":
			haveUninstall = true
		}
	}
	return haveName && haveVersion && haveUninstall
}
