package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/avlaske/k3sinit/internal/config"
	"github.com/avlaske/k3sinit/internal/healthgate"
	"github.com/avlaske/k3sinit/internal/util/cmdutil"
)

const rebootCountFile = "reboot-count"

// Supervisor runs the bootstrap phases and owns the last-resort recovery: a
// full OS reboot when the health gate times out, on the assumption that the
// failure is systemic (partial install state) rather than transient. The
// reboot loop is bounded by a counter persisted across boots.
type Supervisor struct {
	cfg      *config.Config
	runner   cmdutil.Runner
	observer Observer
	phases   []Phase
}

// NewSupervisor creates a Supervisor for the given phases.
func NewSupervisor(cfg *config.Config, runner cmdutil.Runner, observer Observer, phases []Phase) *Supervisor {
	return &Supervisor{cfg: cfg, runner: runner, observer: observer, phases: phases}
}

// Run executes one boot attempt. On success the persisted reboot counter is
// reset. A health-gate timeout escalates to a reboot unless the reboot
// budget is exhausted; every other failure aborts without rebooting.
func (s *Supervisor) Run(ctx context.Context) error {
	pctx := NewContext(ctx, s.cfg, s.runner, s.observer)

	err := RunPhases(pctx, s.phases)
	if err == nil {
		if resetErr := s.resetRebootCount(); resetErr != nil {
			s.observer.Printf("Warning: failed to reset reboot counter: %v", resetErr)
		}
		return nil
	}

	if errors.Is(err, healthgate.ErrTimeout) {
		return s.rebootFallback(ctx, err)
	}
	return err
}

// rebootFallback clears the per-instance boot guard and reboots, so the
// whole sequence re-executes from scratch on the next boot.
func (s *Supervisor) rebootFallback(ctx context.Context, cause error) error {
	count, err := s.readRebootCount()
	if err != nil {
		s.observer.Printf("Warning: failed to read reboot counter: %v", err)
	}

	if count >= s.cfg.MaxReboots {
		return fmt.Errorf("reboot budget of %d exhausted, aborting: %w", s.cfg.MaxReboots, cause)
	}

	if err := s.writeRebootCount(count + 1); err != nil {
		return fmt.Errorf("failed to persist reboot counter: %w", err)
	}

	s.observer.Banner(fmt.Sprintf("rebooting to retry bootstrap (attempt %d/%d)", count+1, s.cfg.MaxReboots))

	// Without clearing the guard, cloud-init would treat the next boot as
	// already configured and skip the bootstrap.
	if err := s.runner.Run(ctx, nil, "cloud-init", "clean", "--logs"); err != nil {
		s.observer.Printf("Warning: failed to clear cloud-init state: %v", err)
	}

	if err := s.runner.Run(ctx, nil, "reboot"); err != nil {
		return fmt.Errorf("failed to issue reboot: %w", err)
	}
	return fmt.Errorf("rebooting after health gate timeout: %w", cause)
}

func (s *Supervisor) rebootCountPath() string {
	return filepath.Join(s.cfg.Paths.StateDir, rebootCountFile)
}

func (s *Supervisor) readRebootCount() (int, error) {
	data, err := os.ReadFile(s.rebootCountPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt reboot counter: %w", err)
	}
	return count, nil
}

func (s *Supervisor) writeRebootCount(count int) error {
	if err := os.MkdirAll(s.cfg.Paths.StateDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.rebootCountPath(), []byte(strconv.Itoa(count)+"\n"), 0o644)
}

func (s *Supervisor) resetRebootCount() error {
	err := os.Remove(s.rebootCountPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
