// Package config loads and validates the k3sinit configuration.
//
// The configuration is a single YAML file baked into the image by the
// infrastructure provisioner (templated cluster id, bucket, region, runtime
// version and flags). Deploy-time values can be overridden through
// K3SINIT_-prefixed environment variables.
package config

import (
	"fmt"
	"time"
)

// Config holds the full bootstrap configuration.
type Config struct {
	// ClusterID names the cluster; the published kubeconfig object key is
	// derived from it ({cluster_id}.yaml).
	ClusterID string `mapstructure:"cluster_id" yaml:"cluster_id"`

	// Bucket is the S3 bucket the kubeconfig is published to. The bucket
	// and the IAM role granting access to it are provisioned externally.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region of the bucket.
	Region string `mapstructure:"region" yaml:"region"`

	// ExternalPort is the port the API server is reachable on from
	// outside the VM; the published kubeconfig points at it.
	ExternalPort int `mapstructure:"external_port" yaml:"external_port"`

	K3s         K3sConfig         `mapstructure:"k3s" yaml:"k3s"`
	Paths       PathsConfig       `mapstructure:"paths" yaml:"paths"`
	SSH         SSHConfig         `mapstructure:"ssh" yaml:"ssh"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" yaml:"maintenance"`
	Install     InstallConfig     `mapstructure:"install" yaml:"install"`
	Health      HealthConfig      `mapstructure:"health" yaml:"health"`
	Publish     PublishConfig     `mapstructure:"publish" yaml:"publish"`

	// MaxReboots bounds the reboot-and-retry fallback after a health
	// gate timeout. Once the persisted counter reaches this value the
	// bootstrap aborts instead of rebooting again.
	MaxReboots int `mapstructure:"max_reboots" yaml:"max_reboots"`
}

// K3sConfig describes the cluster runtime installation.
type K3sConfig struct {
	// Version pins the k3s release (e.g. v1.31.4+k3s1). Empty means the
	// channel decides.
	Version string `mapstructure:"version" yaml:"version"`

	// Channel is the k3s release channel (stable, latest, v1.31).
	Channel string `mapstructure:"channel" yaml:"channel"`

	// Disable lists built-in components excluded from the install
	// (one --disable flag each).
	Disable []string `mapstructure:"disable" yaml:"disable"`

	// HTTPSListenPort is the API server listen port passed to k3s.
	HTTPSListenPort int `mapstructure:"https_listen_port" yaml:"https_listen_port"`

	// InstallScript is the path of the pre-staged k3s install script.
	InstallScript string `mapstructure:"install_script" yaml:"install_script"`
}

// PathsConfig groups host file locations. Tests point these at a temp dir.
type PathsConfig struct {
	Kubeconfig   string `mapstructure:"kubeconfig" yaml:"kubeconfig"`
	LogFile      string `mapstructure:"log_file" yaml:"log_file"`
	StateDir     string `mapstructure:"state_dir" yaml:"state_dir"`
	SSHDConfig   string `mapstructure:"sshd_config" yaml:"sshd_config"`
	CAKey        string `mapstructure:"ca_key" yaml:"ca_key"`
	CronFile     string `mapstructure:"cron_file" yaml:"cron_file"`
	HostnameFile string `mapstructure:"hostname_file" yaml:"hostname_file"`
	HostsFile    string `mapstructure:"hosts_file" yaml:"hosts_file"`
	UnitFile     string `mapstructure:"unit_file" yaml:"unit_file"`
}

// SSHConfig describes the trusted-CA hardening step.
type SSHConfig struct {
	// CAPublicKey is the OpenSSH-format public key installed as
	// TrustedUserCAKeys. Empty disables the step.
	CAPublicKey string `mapstructure:"ca_public_key" yaml:"ca_public_key"`
}

// MaintenanceConfig describes the recurring maintenance task.
type MaintenanceConfig struct {
	// ScriptURL is fetched and executed by the cron entry. Empty
	// disables the step.
	ScriptURL string `mapstructure:"script_url" yaml:"script_url"`

	// Schedule is the cron expression for the maintenance run.
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

// InstallConfig tunes the install retry loop.
type InstallConfig struct {
	// IntervalSeconds is the fixed delay between install attempts.
	IntervalSeconds int `mapstructure:"interval_seconds" yaml:"interval_seconds"`

	// MaxAttempts bounds install retries. Zero means retry until the
	// installer succeeds.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// HealthConfig tunes the post-install health gate.
type HealthConfig struct {
	// IntervalSeconds is the fixed delay between health polls.
	IntervalSeconds int `mapstructure:"interval_seconds" yaml:"interval_seconds"`

	// Attempts is the poll budget; exhausting it escalates to a reboot.
	Attempts int `mapstructure:"attempts" yaml:"attempts"`

	// Components are the core system components whose pods are counted.
	Components []string `mapstructure:"components" yaml:"components"`

	// RequiredRunning is how many of the named components must have a
	// running pod. The default of two is a deliberate coarse proxy for
	// "API server plus networking are operative".
	RequiredRunning int `mapstructure:"required_running" yaml:"required_running"`
}

// PublishConfig tunes the kubeconfig publisher.
type PublishConfig struct {
	// IntervalSeconds is the fixed delay between checks for the local
	// kubeconfig file.
	IntervalSeconds int `mapstructure:"interval_seconds" yaml:"interval_seconds"`

	// MaxAttempts bounds the file wait. Zero means wait until the
	// runtime writes the file.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// Interval returns the install retry interval as a duration.
func (c InstallConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Interval returns the health poll interval as a duration.
func (c HealthConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Interval returns the file wait interval as a duration.
func (c PublishConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ObjectKey returns the durable-storage key for the published kubeconfig.
func (c *Config) ObjectKey() string {
	return c.ClusterID + ".yaml"
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.ExternalPort == 0 {
		c.ExternalPort = 6443
	}
	if c.K3s.Channel == "" {
		c.K3s.Channel = "stable"
	}
	if c.K3s.HTTPSListenPort == 0 {
		c.K3s.HTTPSListenPort = 6443
	}
	if c.K3s.InstallScript == "" {
		c.K3s.InstallScript = "/usr/local/bin/k3s-install.sh"
	}
	if c.Paths.Kubeconfig == "" {
		c.Paths.Kubeconfig = "/etc/rancher/k3s/k3s.yaml"
	}
	if c.Paths.LogFile == "" {
		c.Paths.LogFile = "/var/log/k3sinit.log"
	}
	if c.Paths.StateDir == "" {
		c.Paths.StateDir = "/var/lib/k3sinit"
	}
	if c.Paths.SSHDConfig == "" {
		c.Paths.SSHDConfig = "/etc/ssh/sshd_config"
	}
	if c.Paths.CAKey == "" {
		c.Paths.CAKey = "/etc/ssh/trusted_user_ca.pub"
	}
	if c.Paths.CronFile == "" {
		c.Paths.CronFile = "/etc/cron.d/k3sinit-maintenance"
	}
	if c.Paths.HostnameFile == "" {
		c.Paths.HostnameFile = "/etc/hostname"
	}
	if c.Paths.HostsFile == "" {
		c.Paths.HostsFile = "/etc/hosts"
	}
	if c.Paths.UnitFile == "" {
		c.Paths.UnitFile = "/etc/systemd/system/k3sinit-publish.service"
	}
	if c.Maintenance.Schedule == "" {
		c.Maintenance.Schedule = "*/15 * * * *"
	}
	if c.Install.IntervalSeconds == 0 {
		c.Install.IntervalSeconds = 5
	}
	if c.Health.IntervalSeconds == 0 {
		c.Health.IntervalSeconds = 10
	}
	if c.Health.Attempts == 0 {
		c.Health.Attempts = 30
	}
	if len(c.Health.Components) == 0 {
		c.Health.Components = []string{"coredns", "metrics-server"}
	}
	if c.Health.RequiredRunning == 0 {
		c.Health.RequiredRunning = 2
	}
	if c.Publish.IntervalSeconds == 0 {
		c.Publish.IntervalSeconds = 1
	}
	if c.MaxReboots == 0 {
		c.MaxReboots = 5
	}
}

// Validate checks the configuration for required fields and consistency.
func (c *Config) Validate() error {
	if c.ClusterID == "" {
		return fmt.Errorf("cluster_id is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.ExternalPort < 1 || c.ExternalPort > 65535 {
		return fmt.Errorf("external_port %d out of range", c.ExternalPort)
	}
	if c.Health.RequiredRunning > len(c.Health.Components) {
		return fmt.Errorf("health.required_running %d exceeds the %d named components",
			c.Health.RequiredRunning, len(c.Health.Components))
	}
	return nil
}
