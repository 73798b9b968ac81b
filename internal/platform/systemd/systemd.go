// Package systemd registers the kubeconfig publisher as an OS-managed
// service.
//
// The publisher gets its run-every-boot lifecycle from systemd, not from the
// bootstrap sequence: the unit is enabled once here and re-executed by the
// service manager on every subsequent boot.
package systemd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"

	"github.com/avlaske/k3sinit/internal/util/cmdutil"
)

// PublishUnitName is the service that publishes the kubeconfig on each boot.
const PublishUnitName = "k3sinit-publish.service"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Publish k3s kubeconfig to durable storage
After=network-online.target k3s.service
Wants=network-online.target

[Service]
Type=oneshot
ExecStart={{.BinaryPath}} publish-kubeconfig --config {{.ConfigPath}}
RemainAfterExit=no

[Install]
WantedBy=multi-user.target
`))

// Unit describes the publisher service to register.
type Unit struct {
	// UnitFile is where the unit definition is written.
	UnitFile string

	// BinaryPath is the k3sinit binary the unit executes.
	BinaryPath string

	// ConfigPath is passed to the publish command.
	ConfigPath string
}

// Manager registers service units with the host's service manager.
type Manager struct {
	runner cmdutil.Runner
}

// NewManager creates a Manager.
func NewManager(runner cmdutil.Runner) *Manager {
	return &Manager{runner: runner}
}

// Register writes the unit file (guarded by a content check), reloads the
// daemon when the definition changed, and enables the unit for every boot.
// The initial start is non-blocking; the publisher does its own waiting.
func (m *Manager) Register(ctx context.Context, unit Unit) error {
	var rendered bytes.Buffer
	if err := unitTemplate.Execute(&rendered, unit); err != nil {
		return fmt.Errorf("failed to render unit file: %w", err)
	}

	changed, err := writeIfChanged(unit.UnitFile, rendered.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	if changed {
		if err := m.runner.Run(ctx, nil, "systemctl", "daemon-reload"); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}
	}

	if err := m.runner.Run(ctx, nil, "systemctl", "enable", "--now", "--no-block", PublishUnitName); err != nil {
		return fmt.Errorf("failed to enable %s: %w", PublishUnitName, err)
	}
	return nil
}

func writeIfChanged(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, err
	}
	return true, nil
}
