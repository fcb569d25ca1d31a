package removal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOlderVersion(t *testing.T) {
	tests := []struct {
		installed string
		target    string
		want      bool
	}{
		{"1.0.0", "2.0.0", true},
		{"2.0.0", "2.0.0", false},
		{"2.1.0", "2.0.0", false},
		{"2.0.0.100", "2.0.1", true},
		{"garbage", "2.0.0", true},  // unparseable installed is removed
		{"2.0.0", "garbage", false}, // unparseable target removes nothing
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsOlderVersion(tt.installed, tt.target),
			"installed=%s target=%s", tt.installed, tt.target)
	}
}

func TestToSilentUninstall(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "msi install-form string becomes quiet removal",
			in:   `MsiExec.exe /I{AAAA-BBBB}`,
			want: `MsiExec.exe /X{AAAA-BBBB} /qn /norestart`,
		},
		{
			name: "msi removal string gains quiet flags",
			in:   `MsiExec.exe /X{AAAA-BBBB}`,
			want: `MsiExec.exe /X{AAAA-BBBB} /qn /norestart`,
		},
		{
			name: "already quiet msi string is untouched",
			in:   `MsiExec.exe /X{AAAA-BBBB} /qn`,
			want: `MsiExec.exe /X{AAAA-BBBB} /qn`,
		},
		{
			name: "exe uninstaller passes through",
			in:   `"C:\Program Files\Contoso\uninstall.exe" /S`,
			want: `"C:\Program Files\Contoso\uninstall.exe" /S`,
		},
		{
			name: "empty string stays empty",
			in:   "   ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toSilentUninstall(tt.in))
		})
	}
}

func stubInstalledApps(t *testing.T, apps map[string]RegistryApplication) {
	t.Helper()
	orig := listInstalledApps
	t.Cleanup(func() { listInstalledApps = orig })
	listInstalledApps = func() (map[string]RegistryApplication, error) {
		return apps, nil
	}
}

func TestFindPreviousVersions(t *testing.T) {
	stubInstalledApps(t, map[string]RegistryApplication{
		"Contoso Client 1.9": {Name: "Contoso Client 1.9", Version: "1.9.0", Uninstall: `MsiExec.exe /X{OLD}`},
		"Contoso Client 2.4": {Name: "Contoso Client 2.4", Version: "2.4.0", Uninstall: `MsiExec.exe /X{NEW}`},
		"Fabrikam Agent":     {Name: "Fabrikam Agent", Version: "1.0.0", Uninstall: `MsiExec.exe /X{OTHER}`},
	})

	previous, err := FindPreviousVersions("contoso client", "2.4.0")
	require.NoError(t, err)
	require.Len(t, previous, 1)
	assert.Equal(t, "Contoso Client 1.9", previous[0].Name)
}

func TestFindPreviousVersionsEmptyTargetMatchesAll(t *testing.T) {
	stubInstalledApps(t, map[string]RegistryApplication{
		"Contoso Client 1.9": {Name: "Contoso Client 1.9", Version: "1.9.0"},
		"Contoso Client 2.4": {Name: "Contoso Client 2.4", Version: "2.4.0"},
	})

	previous, err := FindPreviousVersions("Contoso Client", "")
	require.NoError(t, err)
	assert.Len(t, previous, 2)
}

func TestRemovePreviousVersionsNothingInstalled(t *testing.T) {
	stubInstalledApps(t, map[string]RegistryApplication{})
	assert.NoError(t, RemovePreviousVersions("Contoso Client", "2.4.0", 15))
}

func TestSplitCommandLine(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`MsiExec.exe /X{GUID} /qn`, []string{"MsiExec.exe", "/X{GUID}", "/qn"}},
		{`"C:\Program Files\Contoso\uninstall.exe" /S`, []string{`C:\Program Files\Contoso\uninstall.exe`, "/S"}},
		{`tool "arg with spaces" plain`, []string{"tool", "arg with spaces", "plain"}},
		{``, nil},
		{`   `, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitCommandLine(tt.in), "input %q", tt.in)
	}
}
