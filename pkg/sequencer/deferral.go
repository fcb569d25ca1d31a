// pkg/sequencer/deferral.go - persisted deferral counting.
//
// Deferrals must survive across runs: a user who postpones the install
// today has one fewer deferral when the deployment comes back tomorrow.
// The count lives next to the CSP configuration in the registry.

package sequencer

import (
	"golang.org/x/sys/windows/registry"

	"github.com/windowsadmins/deploywrap/pkg/config"
	"github.com/windowsadmins/deploywrap/pkg/logging"
)

const deferralRegistryPath = `SOFTWARE\DeployWrap\Deferrals`

// This abstraction allows us to override when testing
var (
	loadDeferralCount  = loadDeferralCountFromRegistry
	storeDeferralCount = storeDeferralCountInRegistry
)

// deferralsRemaining returns how many deferrals the user still has for
// this application.
func deferralsRemaining(cfg *config.Configuration) int {
	used := loadDeferralCount(cfg.AppName)
	remaining := cfg.MaxDeferrals - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// recordDeferral increments the persisted deferral count.
func recordDeferral(cfg *config.Configuration) {
	storeDeferralCount(cfg.AppName, loadDeferralCount(cfg.AppName)+1)
}

// clearDeferrals resets the count once the deployment proceeds.
func clearDeferrals(cfg *config.Configuration) {
	storeDeferralCount(cfg.AppName, 0)
}

func loadDeferralCountFromRegistry(appName string) int {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, deferralRegistryPath, registry.QUERY_VALUE)
	if err != nil {
		return 0
	}
	defer key.Close()

	val, _, err := key.GetIntegerValue(appName)
	if err != nil {
		return 0
	}
	return int(val)
}

func storeDeferralCountInRegistry(appName string, count int) {
	key, _, err := registry.CreateKey(registry.LOCAL_MACHINE, deferralRegistryPath, registry.SET_VALUE)
	if err != nil {
		logging.Warn("Could not persist deferral count", "app", appName, "error", err)
		return
	}
	defer key.Close()

	if err := key.SetDWordValue(appName, uint32(count)); err != nil {
		logging.Warn("Could not persist deferral count", "app", appName, "error", err)
	}
}
