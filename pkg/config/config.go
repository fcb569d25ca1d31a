// pkg/config/config.go - configuration settings for DeployWrap.

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/windows/registry"
	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/deploywrap/pkg/utils"
)

const ConfigPath = `C:\ProgramData\DeployWrap\Config.yaml`

// CSP OMA-URI registry path for enterprise policy configuration
const CSPRegistryPath = `SOFTWARE\DeployWrap\Config`

// DeploymentType selects the install or uninstall branch of the sequence.
type DeploymentType string

const (
	DeploymentInstall   DeploymentType = "Install"
	DeploymentUninstall DeploymentType = "Uninstall"
)

// ParseDeploymentType validates a deployment type given on the command line.
func ParseDeploymentType(s string) (DeploymentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "install", "":
		return DeploymentInstall, nil
	case "uninstall":
		return DeploymentUninstall, nil
	}
	return "", fmt.Errorf("unknown deployment type: %q (expected Install or Uninstall)", s)
}

// DeployMode controls how much UI the sequence is allowed to show.
type DeployMode string

const (
	ModeInteractive    DeployMode = "Interactive"
	ModeSilent         DeployMode = "Silent"
	ModeNonInteractive DeployMode = "NonInteractive"
)

// ParseDeployMode validates a deploy mode given on the command line.
func ParseDeployMode(s string) (DeployMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interactive", "":
		return ModeInteractive, nil
	case "silent":
		return ModeSilent, nil
	case "noninteractive":
		return ModeNonInteractive, nil
	}
	return "", fmt.Errorf("unknown deploy mode: %q (expected Interactive, Silent or NonInteractive)", s)
}

// Interactive reports whether the mode permits blocking dialogs.
func (m DeployMode) Interactive() bool {
	return m == ModeInteractive
}

// ShortcutSpec describes one desktop shortcut created after a successful install.
type ShortcutSpec struct {
	Name       string `yaml:"Name"`
	Target     string `yaml:"Target"`
	Arguments  string `yaml:"Arguments"`
	WorkingDir string `yaml:"WorkingDir"`
	IconSource string `yaml:"IconSource"`
}

// Configuration holds the configurable options for DeployWrap in YAML format
type Configuration struct {
	AppName    string `yaml:"AppName"`
	AppVersion string `yaml:"AppVersion"`
	AppVendor  string `yaml:"AppVendor"`

	// Service stopped before installation begins.
	ServiceName string `yaml:"ServiceName"`

	// Processes that must not be running while the installer works.
	CloseProcesses []string `yaml:"CloseProcesses"`

	// Installer invocation.
	InstallerPath      string   `yaml:"InstallerPath"`
	InstallerType      string   `yaml:"InstallerType"` // "msi" or "exe"
	InstallArguments   []string `yaml:"InstallArguments"`
	UninstallArguments []string `yaml:"UninstallArguments"`

	// External removal tools run before install and during uninstall.
	RemovalTools []string `yaml:"RemovalTools"`

	// Shortcut handling.
	ShortcutTool    string         `yaml:"ShortcutTool"`
	Shortcuts       []ShortcutSpec `yaml:"Shortcuts"`
	DeleteShortcuts []string       `yaml:"DeleteShortcuts"`

	// Prompting and preflight checks.
	RequiredDiskSpaceMB uint64 `yaml:"RequiredDiskSpaceMB"`
	MaxDeferrals        int    `yaml:"MaxDeferrals"`
	CountdownSeconds    int    `yaml:"CountdownSeconds"`

	// Installer timeout settings
	InstallerTimeoutMinutes int `yaml:"InstallerTimeoutMinutes"`

	LogLevel string `yaml:"LogLevel"`
	Debug    bool   `yaml:"Debug"`
	Verbose  bool   `yaml:"Verbose"`

	// Runtime options from the command line (not exposed in YAML).
	DeploymentType      DeploymentType `yaml:"-"`
	DeployMode          DeployMode     `yaml:"-"`
	AllowRebootPassThru bool           `yaml:"-"`
	TerminalServerMode  bool           `yaml:"-"`
	LoggingEnabled      bool           `yaml:"-"`
}

// LoadConfig loads the configuration from the default YAML path.
// If the YAML file doesn't exist, it falls back to CSP OMA-URI registry settings.
func LoadConfig() (*Configuration, error) {
	if _, err := os.Stat(ConfigPath); os.IsNotExist(err) {
		log.Printf("Configuration file does not exist: %s", ConfigPath)
		log.Printf("Attempting to load configuration from CSP OMA-URI registry settings...")

		config, cspErr := LoadConfigFromCSP()
		if cspErr == nil {
			log.Printf("Successfully loaded configuration from CSP OMA-URI registry settings")
			return config, nil
		}

		log.Printf("Failed to load from CSP registry: %v", cspErr)
		return nil, fmt.Errorf("configuration file does not exist and CSP fallback failed: %w", err)
	}

	return LoadConfigFrom(ConfigPath)
}

// LoadConfigFrom loads the configuration from an explicit YAML path.
func LoadConfigFrom(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Failed to read configuration file: %v", err)
		return nil, err
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		log.Printf("Failed to parse configuration file: %v", err)
		return nil, err
	}

	applyDefaults(config)
	return config, nil
}

// SaveConfig saves the current configuration to the default YAML path.
func SaveConfig(config *Configuration) error {
	return SaveConfigTo(ConfigPath, config)
}

// SaveConfigTo saves the configuration to an explicit YAML path.
func SaveConfigTo(path string, config *Configuration) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		log.Printf("Failed to serialize configuration: %v", err)
		return err
	}

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		log.Printf("Failed to create configuration directory: %v", err)
		return err
	}

	err = os.WriteFile(path, data, 0644)
	if err != nil {
		log.Printf("Failed to write configuration file: %v", err)
		return err
	}

	return nil
}

// GetDefaultConfig provides default configuration values in YAML format.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		LogLevel:                "INFO",
		InstallerType:           "msi",
		RequiredDiskSpaceMB:     500,
		MaxDeferrals:            3,
		CountdownSeconds:        60,
		InstallerTimeoutMinutes: 15,
		LoggingEnabled:          true,
		DeploymentType:          DeploymentInstall,
		DeployMode:              ModeInteractive,
	}
}

// applyDefaults fills in zero-valued fields after a YAML load.
func applyDefaults(config *Configuration) {
	if config.MaxDeferrals <= 0 {
		config.MaxDeferrals = 3
	}
	if config.CountdownSeconds <= 0 {
		config.CountdownSeconds = 60
	}
	if config.InstallerTimeoutMinutes <= 0 {
		config.InstallerTimeoutMinutes = 15
	}
	if config.RequiredDiskSpaceMB == 0 {
		config.RequiredDiskSpaceMB = 500
	}
	if config.LogLevel == "" {
		config.LogLevel = "INFO"
	}
	if config.InstallerType == "" {
		config.InstallerType = "msi"
	}
	if config.DeploymentType == "" {
		config.DeploymentType = DeploymentInstall
	}
	if config.DeployMode == "" {
		config.DeployMode = ModeInteractive
	}

	// Configured paths may reference %VAR% style environment variables.
	config.InstallerPath = utils.ExpandPath(config.InstallerPath)
	config.ShortcutTool = utils.ExpandPath(config.ShortcutTool)
	config.RemovalTools = utils.ExpandPaths(config.RemovalTools)
	config.DeleteShortcuts = utils.ExpandPaths(config.DeleteShortcuts)
	for i := range config.Shortcuts {
		config.Shortcuts[i].Target = utils.ExpandPath(config.Shortcuts[i].Target)
		config.Shortcuts[i].WorkingDir = utils.ExpandPath(config.Shortcuts[i].WorkingDir)
		config.Shortcuts[i].IconSource = utils.ExpandPath(config.Shortcuts[i].IconSource)
	}
}

// Validate checks fields that the sequencer cannot run without.
func (c *Configuration) Validate() error {
	if c.AppName == "" {
		return fmt.Errorf("AppName must be set")
	}
	if c.DeploymentType == DeploymentInstall && c.InstallerPath == "" {
		return fmt.Errorf("InstallerPath must be set for an install deployment")
	}
	switch strings.ToLower(c.InstallerType) {
	case "msi", "exe":
	default:
		return fmt.Errorf("unsupported InstallerType: %q", c.InstallerType)
	}
	return nil
}

// LoadConfigFromCSP loads configuration from Windows CSP OMA-URI registry settings.
// This serves as a fallback when the Config.yaml file doesn't exist.
func LoadConfigFromCSP() (*Configuration, error) {
	config := GetDefaultConfig()

	err := loadCSPFromRegistryPath(CSPRegistryPath, config)
	if err != nil {
		return nil, fmt.Errorf("failed to load from CSP registry path: %v", err)
	}

	log.Printf("Loaded CSP configuration from registry path: %s", CSPRegistryPath)

	if config.AppName == "" {
		return nil, fmt.Errorf("essential CSP configuration missing: AppName not set")
	}

	applyDefaults(config)
	return config, nil
}

// loadCSPFromRegistryPath loads configuration values from a specific registry path.
func loadCSPFromRegistryPath(registryPath string, config *Configuration) error {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, registryPath, registry.READ)
	if err != nil {
		return fmt.Errorf("failed to open CSP registry key %s: %v", registryPath, err)
	}
	defer key.Close()

	// Load string configuration values
	loadStringFromRegistry(key, "AppName", &config.AppName)
	loadStringFromRegistry(key, "AppVersion", &config.AppVersion)
	loadStringFromRegistry(key, "AppVendor", &config.AppVendor)
	loadStringFromRegistry(key, "ServiceName", &config.ServiceName)
	loadStringFromRegistry(key, "InstallerPath", &config.InstallerPath)
	loadStringFromRegistry(key, "InstallerType", &config.InstallerType)
	loadStringFromRegistry(key, "ShortcutTool", &config.ShortcutTool)
	loadStringFromRegistry(key, "LogLevel", &config.LogLevel)

	// Load integer configuration values
	loadIntFromRegistry(key, "MaxDeferrals", &config.MaxDeferrals)
	loadIntFromRegistry(key, "CountdownSeconds", &config.CountdownSeconds)
	loadIntFromRegistry(key, "InstallerTimeoutMinutes", &config.InstallerTimeoutMinutes)
	loadUintFromRegistry(key, "RequiredDiskSpaceMB", &config.RequiredDiskSpaceMB)

	// Load boolean configuration values
	loadBoolFromRegistry(key, "Debug", &config.Debug)
	loadBoolFromRegistry(key, "Verbose", &config.Verbose)

	// Load array configuration values
	loadStringArrayFromRegistry(key, "CloseProcesses", &config.CloseProcesses)
	loadStringArrayFromRegistry(key, "InstallArguments", &config.InstallArguments)
	loadStringArrayFromRegistry(key, "UninstallArguments", &config.UninstallArguments)
	loadStringArrayFromRegistry(key, "RemovalTools", &config.RemovalTools)
	loadStringArrayFromRegistry(key, "DeleteShortcuts", &config.DeleteShortcuts)

	return nil
}

// loadStringFromRegistry loads a string value from registry if it exists.
func loadStringFromRegistry(key registry.Key, valueName string, target *string) {
	if val, _, err := key.GetStringValue(valueName); err == nil && val != "" {
		*target = val
		log.Printf("CSP: Loaded %s = %s", valueName, val)
	}
}

// loadBoolFromRegistry loads a boolean value from registry if it exists.
// Accepts various formats: "true"/"false", "1"/"0", DWORD 1/0
func loadBoolFromRegistry(key registry.Key, valueName string, target *bool) {
	// Try string value first
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.ParseBool(val); parseErr == nil {
			*target = parsed
			log.Printf("CSP: Loaded %s = %t", valueName, parsed)
			return
		}
	}

	// Try DWORD value
	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = val != 0
		log.Printf("CSP: Loaded %s = %t", valueName, val != 0)
	}
}

// loadIntFromRegistry loads an integer value from registry if it exists.
func loadIntFromRegistry(key registry.Key, valueName string, target *int) {
	// Try string value first
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.Atoi(val); parseErr == nil {
			*target = parsed
			log.Printf("CSP: Loaded %s = %d", valueName, parsed)
			return
		}
	}

	// Try DWORD value
	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = int(val)
		log.Printf("CSP: Loaded %s = %d", valueName, int(val))
	}
}

// loadUintFromRegistry loads an unsigned integer value from registry if it exists.
func loadUintFromRegistry(key registry.Key, valueName string, target *uint64) {
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.ParseUint(val, 10, 64); parseErr == nil {
			*target = parsed
			log.Printf("CSP: Loaded %s = %d", valueName, parsed)
			return
		}
	}

	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = val
		log.Printf("CSP: Loaded %s = %d", valueName, val)
	}
}

// loadStringArrayFromRegistry loads a string array from registry.
// Arrays can be stored as comma-separated values or multi-string (REG_MULTI_SZ).
func loadStringArrayFromRegistry(key registry.Key, valueName string, target *[]string) {
	// Try multi-string value first (REG_MULTI_SZ)
	if vals, _, err := key.GetStringsValue(valueName); err == nil && len(vals) > 0 {
		filtered := make([]string, 0, len(vals))
		for _, val := range vals {
			if strings.TrimSpace(val) != "" {
				filtered = append(filtered, strings.TrimSpace(val))
			}
		}
		if len(filtered) > 0 {
			*target = filtered
			log.Printf("CSP: Loaded %s = %v", valueName, filtered)
			return
		}
	}

	// Try single string value with comma separation
	if val, _, err := key.GetStringValue(valueName); err == nil && val != "" {
		parts := strings.Split(val, ",")
		filtered := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				filtered = append(filtered, trimmed)
			}
		}
		if len(filtered) > 0 {
			*target = filtered
			log.Printf("CSP: Loaded %s = %v", valueName, filtered)
		}
	}
}
