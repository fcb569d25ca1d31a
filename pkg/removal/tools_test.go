package removal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRemovalToolsSkipsMissing(t *testing.T) {
	tools := []string{
		`C:\does\not\exist\cleanup.ps1`,
		"",
		"   ",
	}
	assert.NoError(t, RunRemovalTools(tools, 15), "missing tools are skipped, not failed")
}

func TestRunRemovalToolsEmptyList(t *testing.T) {
	assert.NoError(t, RunRemovalTools(nil, 15))
}
