// cmd/deploywrap/main.go

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/deploywrap/pkg/config"
	"github.com/windowsadmins/deploywrap/pkg/logging"
	"github.com/windowsadmins/deploywrap/pkg/sequencer"
	"github.com/windowsadmins/deploywrap/pkg/utils"
	"github.com/windowsadmins/deploywrap/pkg/version"
)

func main() {
	utils.PatchWindowsArgs()

	// Define command-line flags.
	deploymentType := pflag.String("deployment-type", "Install", "Deployment type: Install or Uninstall.")
	deployMode := pflag.String("deploy-mode", "Interactive", "Deploy mode: Interactive, Silent or NonInteractive.")
	allowRebootPassThru := pflag.Bool("allow-reboot-passthru", false, "Pass a reboot-required installer exit code through to the caller.")
	terminalServerMode := pflag.Bool("terminal-server-mode", false, "Switch a Remote Desktop Session Host into install mode for the deployment.")
	disableLogging := pflag.Bool("disable-logging", false, "Disable file logging for this run.")
	showConfig := pflag.Bool("show-config", false, "Display the current configuration and exit.")
	initConfig := pflag.Bool("init-config", false, "Write a starter configuration file and exit.")
	versionFlag := pflag.Bool("version", false, "Print the version and exit.")

	// Count the number of -v flags.
	var verbosity int
	pflag.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv, -vvv)")
	pflag.Parse()

	// Handle --version flag before anything touches the filesystem.
	if *versionFlag {
		if verbosity > 0 {
			version.PrintFull()
		} else {
			version.Print()
		}
		os.Exit(0)
	}

	if *initConfig {
		if err := config.SaveConfig(config.GetDefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write configuration file: %v\n", err)
			os.Exit(sequencer.ExitInitFailure)
		}
		fmt.Printf("Wrote %s\n", config.ConfigPath)
		os.Exit(0)
	}

	parsedType, err := config.ParseDeploymentType(*deploymentType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(sequencer.ExitInitFailure)
	}
	parsedMode, err := config.ParseDeployMode(*deployMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(sequencer.ExitInitFailure)
	}

	// Load configuration (only once)
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(sequencer.ExitInitFailure)
	}

	cfg.DeploymentType = parsedType
	cfg.DeployMode = parsedMode
	cfg.AllowRebootPassThru = *allowRebootPassThru
	cfg.TerminalServerMode = *terminalServerMode
	cfg.LoggingEnabled = !*disableLogging

	// Dynamically override LogLevel based on the number of -v flags.
	switch verbosity {
	case 0:
		// Keep the configured level.
	case 1:
		cfg.LogLevel = "INFO"
	default:
		cfg.LogLevel = "DEBUG"
	}

	if *showConfig {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render configuration: %v\n", err)
			os.Exit(sequencer.ExitInitFailure)
		}
		fmt.Print(string(data))
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(sequencer.ExitInitFailure)
	}

	// Initialize logger.
	logger := logging.New(verbosity > 0)
	if err := logging.Init(cfg); err != nil {
		logger.Error("Error initializing logger: %v", err)
		os.Exit(sequencer.ExitInitFailure)
	}
	if dir := logging.GetCurrentLogDir(); dir != "" {
		logger.Info("Session %s, logs in %s", logging.GetSessionID(), dir)
	}

	code := sequencer.Run(cfg)
	if code == sequencer.ExitSuccess {
		logger.Success("%s deployment finished", cfg.AppName)
	} else {
		logger.Warning("%s deployment exited with code %d", cfg.AppName, code)
	}
	logging.CloseLogger()
	os.Exit(code)
}
