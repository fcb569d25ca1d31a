// pkg/svcctl/svcctl.go - Windows service control used before installation.

package svcctl

import (
	"fmt"
	"time"

	"github.com/yusufpapurcu/wmi"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/windowsadmins/deploywrap/pkg/logging"
)

// win32Service mirrors the WMI Win32_Service fields we query.
type win32Service struct {
	Name      string
	State     string
	StartMode string
}

// QueryState returns the WMI-reported state of a service ("Running",
// "Stopped", ...) or an empty string if the service does not exist.
func QueryState(name string) (string, error) {
	var services []win32Service
	query := fmt.Sprintf("SELECT Name, State, StartMode FROM Win32_Service WHERE Name = '%s'", name)
	if err := wmi.Query(query, &services); err != nil {
		return "", fmt.Errorf("WMI query for service %s failed: %w", name, err)
	}
	if len(services) == 0 {
		return "", nil
	}
	return services[0].State, nil
}

// StopService stops the named service and waits for it to reach Stopped.
// A service that is not installed or already stopped is not an error.
func StopService(name string) error {
	if name == "" {
		return nil
	}

	state, err := QueryState(name)
	if err != nil {
		logging.Warn("Could not query service state, attempting stop anyway", "service", name, "error", err)
	} else if state == "" {
		logging.Info("Service not installed, nothing to stop", "service", name)
		return nil
	} else if state == "Stopped" {
		logging.Info("Service already stopped", "service", name)
		return nil
	}

	logging.Info("Stopping service", "service", name)
	return controlService(name, svc.Stop, svc.Stopped)
}

// controlService sends a control code and waits for the target state.
func controlService(name string, c svc.Cmd, to svc.State) error {
	m, err := mgr.Connect()
	if err != nil {
		return err
	}
	defer m.Disconnect()
	s, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("could not access service: %v", err)
	}
	defer s.Close()
	status, err := s.Control(c)
	if err != nil {
		return fmt.Errorf("could not send control=%d: %v", c, err)
	}
	timeout := time.Now().Add(30 * time.Second)
	for status.State != to {
		if timeout.Before(time.Now()) {
			return fmt.Errorf("timeout waiting for service to go to state=%d", to)
		}
		time.Sleep(300 * time.Millisecond)
		status, err = s.Query()
		if err != nil {
			return fmt.Errorf("could not retrieve service status: %v", err)
		}
	}
	return nil
}
