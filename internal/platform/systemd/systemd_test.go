package systemd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlaske/k3sinit/internal/util/cmdutil"
)

func testUnit(t *testing.T) Unit {
	t.Helper()
	return Unit{
		UnitFile:   filepath.Join(t.TempDir(), PublishUnitName),
		BinaryPath: "/usr/local/bin/k3sinit",
		ConfigPath: "/etc/k3sinit/config.yaml",
	}
}

func TestRegister_WritesUnitAndEnables(t *testing.T) {
	unit := testUnit(t)
	runner := cmdutil.NewFakeRunner()
	manager := NewManager(runner)

	require.NoError(t, manager.Register(context.Background(), unit))

	content, err := os.ReadFile(unit.UnitFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ExecStart=/usr/local/bin/k3sinit publish-kubeconfig --config /etc/k3sinit/config.yaml")
	assert.Contains(t, string(content), "Type=oneshot")
	assert.Contains(t, string(content), "WantedBy=multi-user.target")

	lines := runner.CallLines()
	assert.Contains(t, lines, "systemctl daemon-reload")
	assert.Contains(t, lines, "systemctl enable --now --no-block "+PublishUnitName)
}

func TestRegister_IdempotentSkipsReload(t *testing.T) {
	unit := testUnit(t)
	runner := cmdutil.NewFakeRunner()
	manager := NewManager(runner)

	require.NoError(t, manager.Register(context.Background(), unit))
	require.NoError(t, manager.Register(context.Background(), unit))

	reloads := 0
	for _, line := range runner.CallLines() {
		if line == "systemctl daemon-reload" {
			reloads++
		}
	}
	assert.Equal(t, 1, reloads, "unchanged unit file must not trigger a second reload")
}

func TestRegister_UnitFilePermissions(t *testing.T) {
	unit := testUnit(t)
	manager := NewManager(cmdutil.NewFakeRunner())

	require.NoError(t, manager.Register(context.Background(), unit))

	info, err := os.Stat(unit.UnitFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
