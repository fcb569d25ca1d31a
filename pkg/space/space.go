// pkg/space/space.go - free disk space verification before installation.

package space

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/windowsadmins/deploywrap/pkg/logging"
)

const systemDrive = `C:\`

// This abstraction allows us to override when testing
var diskUsage = disk.Usage

// VerifyFreeSpace checks that the system drive has at least requiredMB
// megabytes free. A zero requirement disables the check.
func VerifyFreeSpace(requiredMB uint64) error {
	if requiredMB == 0 {
		return nil
	}

	usage, err := diskUsage(systemDrive)
	if err != nil {
		return fmt.Errorf("failed to query disk usage for %s: %w", systemDrive, err)
	}

	freeMB := usage.Free / (1024 * 1024)
	logging.Debug("Disk space check", "drive", systemDrive, "free_mb", freeMB, "required_mb", requiredMB)

	if freeMB < requiredMB {
		return fmt.Errorf("insufficient disk space on %s: %d MB free, %d MB required",
			systemDrive, freeMB, requiredMB)
	}
	return nil
}
