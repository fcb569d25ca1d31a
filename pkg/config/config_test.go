package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeploymentType(t *testing.T) {
	tests := []struct {
		in      string
		want    DeploymentType
		wantErr bool
	}{
		{"Install", DeploymentInstall, false},
		{"install", DeploymentInstall, false},
		{"", DeploymentInstall, false},
		{"UNINSTALL", DeploymentUninstall, false},
		{"repair", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDeploymentType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseDeployMode(t *testing.T) {
	tests := []struct {
		in      string
		want    DeployMode
		wantErr bool
	}{
		{"Interactive", ModeInteractive, false},
		{"", ModeInteractive, false},
		{"silent", ModeSilent, false},
		{"NonInteractive", ModeNonInteractive, false},
		{"quiet", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDeployMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestDeployModeInteractive(t *testing.T) {
	assert.True(t, ModeInteractive.Interactive())
	assert.False(t, ModeSilent.Interactive())
	assert.False(t, ModeNonInteractive.Interactive())
}

func TestLoadConfigFrom(t *testing.T) {
	t.Setenv("DEPLOY_ROOT", `C:\Deploy`)

	yamlContent := `
AppName: ContosoApp
AppVersion: 2.4.0
AppVendor: Contoso
ServiceName: ContosoSvc
CloseProcesses:
  - contoso
  - contosotray
InstallerPath: '%DEPLOY_ROOT%\contoso.msi'
InstallerType: msi
InstallArguments:
  - ALLUSERS=1
RemovalTools:
  - '%DEPLOY_ROOT%\cleanup.ps1'
DeleteShortcuts:
  - 'C:\Users\Public\Desktop\Contoso.lnk'
CountdownSeconds: 30
`
	path := filepath.Join(t.TempDir(), "Config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "ContosoApp", cfg.AppName)
	assert.Equal(t, "2.4.0", cfg.AppVersion)
	assert.Equal(t, []string{"contoso", "contosotray"}, cfg.CloseProcesses)
	assert.Equal(t, `C:\Deploy\contoso.msi`, cfg.InstallerPath, "environment references expanded")
	assert.Equal(t, []string{`C:\Deploy\cleanup.ps1`}, cfg.RemovalTools)
	assert.Equal(t, 30, cfg.CountdownSeconds, "explicit value kept")

	// Fields absent from the file carry defaults.
	assert.Equal(t, 3, cfg.MaxDeferrals)
	assert.Equal(t, 15, cfg.InstallerTimeoutMinutes)
	assert.Equal(t, uint64(500), cfg.RequiredDiskSpaceMB)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.True(t, cfg.LoggingEnabled)
	assert.Equal(t, DeploymentInstall, cfg.DeploymentType)
	assert.Equal(t, ModeInteractive, cfg.DeployMode)
}

func TestLoadConfigFromMissingFile(t *testing.T) {
	_, err := LoadConfigFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigFromInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("AppName: [unclosed"), 0644))

	_, err := LoadConfigFrom(path)
	assert.Error(t, err)
}

func TestSaveConfigToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "Config.yaml")

	cfg := GetDefaultConfig()
	cfg.AppName = "ContosoApp"
	cfg.AppVersion = "2.4.0"
	cfg.CloseProcesses = []string{"contoso"}
	require.NoError(t, SaveConfigTo(path, cfg))

	loaded, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "ContosoApp", loaded.AppName)
	assert.Equal(t, "2.4.0", loaded.AppVersion)
	assert.Equal(t, []string{"contoso"}, loaded.CloseProcesses)
}

func TestValidate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.AppName = "ContosoApp"
	cfg.InstallerPath = `C:\Deploy\contoso.msi`
	assert.NoError(t, cfg.Validate())

	missing := GetDefaultConfig()
	missing.InstallerPath = `C:\Deploy\contoso.msi`
	assert.Error(t, missing.Validate(), "AppName required")

	noInstaller := GetDefaultConfig()
	noInstaller.AppName = "ContosoApp"
	assert.Error(t, noInstaller.Validate(), "InstallerPath required for install")

	uninstallOnly := GetDefaultConfig()
	uninstallOnly.AppName = "ContosoApp"
	uninstallOnly.DeploymentType = DeploymentUninstall
	assert.NoError(t, uninstallOnly.Validate(), "uninstall may omit InstallerPath")

	badType := GetDefaultConfig()
	badType.AppName = "ContosoApp"
	badType.InstallerPath = `C:\Deploy\contoso.zip`
	badType.InstallerType = "zip"
	assert.Error(t, badType.Validate())
}

func TestApplyDefaultsClampsZeroValues(t *testing.T) {
	cfg := &Configuration{}
	applyDefaults(cfg)

	assert.Equal(t, 3, cfg.MaxDeferrals)
	assert.Equal(t, 60, cfg.CountdownSeconds)
	assert.Equal(t, 15, cfg.InstallerTimeoutMinutes)
	assert.Equal(t, uint64(500), cfg.RequiredDiskSpaceMB)
	assert.Equal(t, "msi", cfg.InstallerType)
	assert.Equal(t, DeploymentInstall, cfg.DeploymentType)
	assert.Equal(t, ModeInteractive, cfg.DeployMode)
}
