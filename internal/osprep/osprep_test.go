package osprep

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlaske/k3sinit/internal/config"
	"github.com/avlaske/k3sinit/internal/util/cmdutil"
)

const testCAKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl ops-ca"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		ClusterID: "test",
		Bucket:    "b",
		Region:    "r",
		SSH:       config.SSHConfig{CAPublicKey: testCAKey},
		Maintenance: config.MaintenanceConfig{
			ScriptURL: "https://example.com/maintenance.sh",
		},
	}
	cfg.ApplyDefaults()
	cfg.Paths.SSHDConfig = filepath.Join(dir, "sshd_config")
	cfg.Paths.CAKey = filepath.Join(dir, "trusted_user_ca.pub")
	cfg.Paths.CronFile = filepath.Join(dir, "cron-maintenance")

	require.NoError(t, os.WriteFile(cfg.Paths.SSHDConfig, []byte("Port 22\nPermitRootLogin no\n"), 0o644))
	return cfg
}

func TestPrepare_InstallsTrustAndCron(t *testing.T) {
	cfg := testConfig(t)
	runner := cmdutil.NewFakeRunner()
	preparer := NewPreparer(cfg, runner)

	require.NoError(t, preparer.Prepare(context.Background()))

	caKey, err := os.ReadFile(cfg.Paths.CAKey)
	require.NoError(t, err)
	assert.Equal(t, testCAKey+"\n", string(caKey))

	sshdConfig, err := os.ReadFile(cfg.Paths.SSHDConfig)
	require.NoError(t, err)
	assert.Contains(t, string(sshdConfig), "TrustedUserCAKeys "+cfg.Paths.CAKey)
	assert.Contains(t, string(sshdConfig), "Port 22", "existing directives preserved")

	cron, err := os.ReadFile(cfg.Paths.CronFile)
	require.NoError(t, err)
	assert.Equal(t, "*/15 * * * * root curl -fsSL https://example.com/maintenance.sh | sh\n", string(cron))

	assert.Contains(t, runner.CallLines(), "systemctl restart sshd")
}

func TestPrepare_Idempotent(t *testing.T) {
	cfg := testConfig(t)
	runner := cmdutil.NewFakeRunner()
	preparer := NewPreparer(cfg, runner)

	require.NoError(t, preparer.Prepare(context.Background()))
	require.NoError(t, preparer.Prepare(context.Background()))

	sshdConfig, err := os.ReadFile(cfg.Paths.SSHDConfig)
	require.NoError(t, err)
	directive := "TrustedUserCAKeys " + cfg.Paths.CAKey
	assert.Equal(t, 1, strings.Count(string(sshdConfig), directive),
		"directive must not be duplicated on re-run")

	cron, err := os.ReadFile(cfg.Paths.CronFile)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(cron), "curl -fsSL"),
		"cron registration must not be duplicated on re-run")
}

func TestPrepare_InvalidCAKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.SSH.CAPublicKey = "not a key"
	preparer := NewPreparer(cfg, cmdutil.NewFakeRunner())

	err := preparer.Prepare(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid OpenSSH key")
}

func TestPrepare_CAKeyFilePermissions(t *testing.T) {
	cfg := testConfig(t)
	preparer := NewPreparer(cfg, cmdutil.NewFakeRunner())

	require.NoError(t, preparer.Prepare(context.Background()))

	info, err := os.Stat(cfg.Paths.CAKey)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	info, err = os.Stat(cfg.Paths.CronFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm(),
		"cron file must be writable by the owner only")
}

func TestPrepare_StepsDisabledWhenUnconfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.SSH.CAPublicKey = ""
	cfg.Maintenance.ScriptURL = ""
	runner := cmdutil.NewFakeRunner()
	preparer := NewPreparer(cfg, runner)

	require.NoError(t, preparer.Prepare(context.Background()))

	_, err := os.Stat(cfg.Paths.CAKey)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cfg.Paths.CronFile)
	assert.True(t, os.IsNotExist(err))
	assert.NotContains(t, runner.CallLines(), "systemctl restart sshd")
}

func TestInstallAWSCLI_SkippedWhenPresent(t *testing.T) {
	cfg := testConfig(t)
	runner := cmdutil.NewFakeRunner()
	preparer := NewPreparer(cfg, runner)

	require.NoError(t, preparer.Prepare(context.Background()))

	for _, line := range runner.CallLines() {
		assert.NotContains(t, line, "awscliv2.zip")
	}
}

func TestInstallAWSCLI_ArchVariants(t *testing.T) {
	tests := []struct {
		goarch string
		want   string
	}{
		{"amd64", "awscli-exe-linux-x86_64.zip"},
		{"arm64", "awscli-exe-linux-aarch64.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.goarch, func(t *testing.T) {
			cfg := testConfig(t)
			runner := cmdutil.NewFakeRunner()
			runner.Missing = []string{"aws"}
			preparer := NewPreparer(cfg, runner, WithArch(tt.goarch))

			require.NoError(t, preparer.Prepare(context.Background()))

			lines := strings.Join(runner.CallLines(), "\n")
			assert.Contains(t, lines, tt.want)
			assert.Contains(t, lines, "/tmp/aws/install --update")
		})
	}
}

func TestInstallAWSCLI_UnsupportedArch(t *testing.T) {
	cfg := testConfig(t)
	runner := cmdutil.NewFakeRunner()
	runner.Missing = []string{"aws"}
	preparer := NewPreparer(cfg, runner, WithArch("riscv64"))

	err := preparer.Prepare(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "riscv64")
}
