package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlaske/k3sinit/internal/healthgate"
	"github.com/avlaske/k3sinit/internal/util/cmdutil"
)

func timeoutPhase(runs *[]string) Phase {
	return &stubPhase{
		name: "health-gate",
		err:  fmt.Errorf("%w after 30 attempts", healthgate.ErrTimeout),
		runs: runs,
	}
}

func TestSupervisor_SuccessResetsRebootCounter(t *testing.T) {
	cfg := pipelineConfig(t)
	counterPath := filepath.Join(cfg.Paths.StateDir, rebootCountFile)
	require.NoError(t, os.WriteFile(counterPath, []byte("3\n"), 0o644))

	var runs []string
	runner := cmdutil.NewFakeRunner()
	sup := NewSupervisor(cfg, runner, &recordingObserver{}, []Phase{
		&stubPhase{name: "ok", runs: &runs},
	})

	require.NoError(t, sup.Run(context.Background()))

	_, err := os.Stat(counterPath)
	assert.True(t, os.IsNotExist(err), "counter removed after a successful bootstrap")
	assert.NotContains(t, runner.CallLines(), "reboot")
}

func TestSupervisor_HealthTimeoutTriggersReboot(t *testing.T) {
	cfg := pipelineConfig(t)
	var runs []string
	runner := cmdutil.NewFakeRunner()
	sup := NewSupervisor(cfg, runner, &recordingObserver{}, []Phase{timeoutPhase(&runs)})

	err := sup.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rebooting after health gate timeout")

	lines := runner.CallLines()
	assert.Contains(t, lines, "cloud-init clean --logs", "boot guard cleared before reboot")
	assert.Contains(t, lines, "reboot")

	data, readErr := os.ReadFile(filepath.Join(cfg.Paths.StateDir, rebootCountFile))
	require.NoError(t, readErr)
	assert.Equal(t, "1\n", string(data))
}

func TestSupervisor_RebootBudgetExhausted(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.MaxReboots = 2
	counterPath := filepath.Join(cfg.Paths.StateDir, rebootCountFile)
	require.NoError(t, os.WriteFile(counterPath, []byte("2\n"), 0o644))

	var runs []string
	runner := cmdutil.NewFakeRunner()
	sup := NewSupervisor(cfg, runner, &recordingObserver{}, []Phase{timeoutPhase(&runs)})

	err := sup.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reboot budget of 2 exhausted")
	assert.NotContains(t, runner.CallLines(), "reboot", "no reboot once the budget is spent")

	data, readErr := os.ReadFile(counterPath)
	require.NoError(t, readErr)
	assert.Equal(t, "2\n", string(data), "counter unchanged on abort")
}

func TestSupervisor_CounterAccumulatesAcrossRuns(t *testing.T) {
	cfg := pipelineConfig(t)
	var runs []string
	runner := cmdutil.NewFakeRunner()
	sup := NewSupervisor(cfg, runner, &recordingObserver{}, []Phase{timeoutPhase(&runs)})

	_ = sup.Run(context.Background())
	_ = sup.Run(context.Background())

	data, err := os.ReadFile(filepath.Join(cfg.Paths.StateDir, rebootCountFile))
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(data))
}

func TestSupervisor_NonTimeoutFailureDoesNotReboot(t *testing.T) {
	cfg := pipelineConfig(t)
	var runs []string
	runner := cmdutil.NewFakeRunner()
	sup := NewSupervisor(cfg, runner, &recordingObserver{}, []Phase{
		&stubPhase{name: "os-preparation", err: errors.New("sshd config unwritable"), runs: &runs},
	})

	err := sup.Run(context.Background())
	require.Error(t, err)
	assert.NotContains(t, runner.CallLines(), "reboot",
		"fatal preparation failures abort without the reboot fallback")

	_, statErr := os.Stat(filepath.Join(cfg.Paths.StateDir, rebootCountFile))
	assert.True(t, os.IsNotExist(statErr))
}
