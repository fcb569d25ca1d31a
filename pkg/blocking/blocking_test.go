package blocking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesProcessName(t *testing.T) {
	tests := []struct {
		name     string
		procName string
		procExe  string
		appName  string
		want     bool
	}{
		{
			name:     "bare name matches process",
			procName: "contoso.exe",
			appName:  "contoso",
			want:     true,
		},
		{
			name:     "bare name matches without exe suffix",
			procName: "contoso",
			appName:  "contoso",
			want:     true,
		},
		{
			name:     "explicit exe suffix matches exactly",
			procName: "contoso.exe",
			appName:  "Contoso.EXE",
			want:     true,
		},
		{
			name:     "explicit exe suffix does not match bare process",
			procName: "contoso",
			appName:  "contoso.exe",
			want:     false,
		},
		{
			name:     "full path matches by executable path",
			procName: "contoso.exe",
			procExe:  `C:\Program Files\Contoso\contoso.exe`,
			appName:  `C:\Program Files\Contoso\contoso.exe`,
			want:     true,
		},
		{
			name:     "full path mismatch",
			procName: "contoso.exe",
			procExe:  `C:\Other\contoso.exe`,
			appName:  `C:\Program Files\Contoso\contoso.exe`,
			want:     false,
		},
		{
			name:     "different application",
			procName: "fabrikam.exe",
			appName:  "contoso",
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesProcessName(tt.procName, tt.procExe, tt.appName))
		})
	}
}

func stubSnapshot(t *testing.T, fn func() ([]procInfo, error)) {
	t.Helper()
	orig := snapshotProcesses
	t.Cleanup(func() { snapshotProcesses = orig })
	snapshotProcesses = fn
}

func stubCloseProcess(t *testing.T, result bool) *int {
	t.Helper()
	calls := 0
	orig := closeProcess
	t.Cleanup(func() { closeProcess = orig })
	closeProcess = func(pid int32, imageName string) bool {
		calls++
		return result
	}
	return &calls
}

func TestIsAppRunning(t *testing.T) {
	stubSnapshot(t, func() ([]procInfo, error) {
		return []procInfo{{pid: 100, name: "contoso.exe"}}, nil
	})

	assert.True(t, IsAppRunning("contoso"))
	assert.False(t, IsAppRunning("fabrikam"))
}

func TestRunningApps(t *testing.T) {
	stubSnapshot(t, func() ([]procInfo, error) {
		return []procInfo{{pid: 100, name: "contoso.exe"}}, nil
	})

	assert.Equal(t, []string{"contoso"}, RunningApps([]string{"contoso", "fabrikam", ""}))
}

func TestCloseAppsEmptyList(t *testing.T) {
	assert.NoError(t, CloseApps(nil))
}

func TestCloseAppsSucceeds(t *testing.T) {
	snapshots := 0
	stubSnapshot(t, func() ([]procInfo, error) {
		snapshots++
		if snapshots == 1 {
			return []procInfo{{pid: 100, name: "contoso.exe"}}, nil
		}
		// The process is gone on the post-close recheck.
		return nil, nil
	})
	closes := stubCloseProcess(t, true)

	assert.NoError(t, CloseApps([]string{"contoso"}))
	assert.Equal(t, 1, *closes)
}

func TestCloseAppsReportsAppStillRunning(t *testing.T) {
	stubSnapshot(t, func() ([]procInfo, error) {
		return []procInfo{{pid: 100, name: "contoso.exe"}}, nil
	})
	closes := stubCloseProcess(t, false)

	err := CloseApps([]string{"contoso"})
	assert.Error(t, err, "an application that survives every close attempt is a failure")
	assert.Contains(t, err.Error(), "contoso")
	assert.Equal(t, 1, *closes)
}

func TestCloseAppsNoMatchingProcess(t *testing.T) {
	stubSnapshot(t, func() ([]procInfo, error) {
		return []procInfo{{pid: 100, name: "fabrikam.exe"}}, nil
	})
	closes := stubCloseProcess(t, true)

	assert.NoError(t, CloseApps([]string{"contoso"}))
	assert.Zero(t, *closes)
}

func TestCloseAppsSnapshotError(t *testing.T) {
	stubSnapshot(t, func() ([]procInfo, error) {
		return nil, errors.New("access denied")
	})

	assert.Error(t, CloseApps([]string{"contoso"}))
}
