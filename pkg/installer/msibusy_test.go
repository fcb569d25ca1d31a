package installer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stubMSIProbe(t *testing.T, probe func() (bool, error)) *int {
	t.Helper()
	cleanups := 0
	origCheck := checkMSIMutex
	origCleanup := cleanupOrphaned
	origInterval := msiProbeInterval
	t.Cleanup(func() {
		checkMSIMutex = origCheck
		cleanupOrphaned = origCleanup
		msiProbeInterval = origInterval
	})
	checkMSIMutex = probe
	cleanupOrphaned = func() error {
		cleanups++
		return nil
	}
	msiProbeInterval = time.Millisecond
	return &cleanups
}

func TestWaitForMSIAvailableFreeImmediately(t *testing.T) {
	cleanups := stubMSIProbe(t, func() (bool, error) { return false, nil })

	assert.NoError(t, WaitForMSIAvailable(1))
	assert.Zero(t, *cleanups, "no orphan sweep when the service is free")
}

func TestWaitForMSIAvailableSweepsOrphansWhileBusy(t *testing.T) {
	probes := 0
	cleanups := stubMSIProbe(t, func() (bool, error) {
		probes++
		return probes < 3, nil
	})

	assert.NoError(t, WaitForMSIAvailable(1))
	assert.Equal(t, 3, probes)
	assert.Equal(t, 2, *cleanups, "each busy probe sweeps stale msiexec processes")
}

func TestWaitForMSIAvailableGivesUp(t *testing.T) {
	stubMSIProbe(t, func() (bool, error) { return true, nil })

	assert.Error(t, WaitForMSIAvailable(0))
}

func TestIsProcessOld(t *testing.T) {
	// Offsets stay clear of any timezone skew in the naive WMI timestamp.
	old := time.Now().UTC().Add(-48 * time.Hour).Format("20060102150405") + ".123456-480"
	assert.True(t, isProcessOld(old, 30*time.Minute))

	fresh := time.Now().UTC().Add(24 * time.Hour).Format("20060102150405") + ".123456-480"
	assert.False(t, isProcessOld(fresh, 30*time.Minute))

	assert.False(t, isProcessOld("garbage", 30*time.Minute))
	assert.False(t, isProcessOld("", 30*time.Minute))
	assert.False(t, isProcessOld("2024bad2162345.123456-480", 30*time.Minute))
}
