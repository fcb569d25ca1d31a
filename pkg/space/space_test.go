package space

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
)

func stubDiskUsage(t *testing.T, freeBytes uint64, err error) {
	t.Helper()
	orig := diskUsage
	t.Cleanup(func() { diskUsage = orig })
	diskUsage = func(path string) (*disk.UsageStat, error) {
		if err != nil {
			return nil, err
		}
		return &disk.UsageStat{Path: path, Free: freeBytes}, nil
	}
}

func TestVerifyFreeSpaceEnough(t *testing.T) {
	stubDiskUsage(t, 2048*1024*1024, nil)
	assert.NoError(t, VerifyFreeSpace(500))
}

func TestVerifyFreeSpaceInsufficient(t *testing.T) {
	stubDiskUsage(t, 100*1024*1024, nil)
	err := VerifyFreeSpace(500)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient disk space")
}

func TestVerifyFreeSpaceZeroDisablesCheck(t *testing.T) {
	stubDiskUsage(t, 0, errors.New("must not be called"))
	assert.NoError(t, VerifyFreeSpace(0))
}

func TestVerifyFreeSpaceQueryError(t *testing.T) {
	stubDiskUsage(t, 0, errors.New("device not ready"))
	assert.Error(t, VerifyFreeSpace(500))
}
