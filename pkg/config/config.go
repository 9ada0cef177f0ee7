// Package config loads the control plane's configuration: a YAML file
// on disk, with environment-variable overrides. The core only reads it
// indirectly — it's carried opaquely through the investigator and host
// transport, never inspected by the HTTP layer or the models.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the control plane's full runtime configuration.
type Config struct {
	// HTTPBindAddr is the address the management API listens on.
	HTTPBindAddr string `yaml:"http_bind_addr" envconfig:"HTTP_BIND_ADDR"`

	// DataDir holds the bbolt KV file.
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`

	// InvestigateQueueCapacity bounds the investigate queue.
	InvestigateQueueCapacity int `yaml:"investigate_queue_capacity" envconfig:"INVESTIGATE_QUEUE_CAPACITY"`

	// ClusterExecPoolSize bounds the number of concurrent restart/upgrade
	// tasks the cluster-exec pool will run.
	ClusterExecPoolSize int `yaml:"cluster_exec_pool_size" envconfig:"CLUSTER_EXEC_POOL_SIZE"`

	// SSH carries the transport-level settings passed through to the
	// host transport; the core never interprets these fields itself.
	SSH SSHConfig `yaml:"ssh"`

	// KubernetesAPI is the container manager endpoint polled by the
	// investigator's node_registered check.
	KubernetesAPI string `yaml:"kubernetes_api" envconfig:"KUBERNETES_API"`
}

// SSHConfig holds the settings the Ansible/SSH host transport needs to
// reach a host; the spec treats the transport as pluggable, so these
// fields are opaque to everything except that implementation.
type SSHConfig struct {
	User           string `yaml:"user" envconfig:"SSH_USER"`
	Port           int    `yaml:"port" envconfig:"SSH_PORT"`
	ConnectTimeout int    `yaml:"connect_timeout_seconds" envconfig:"SSH_CONNECT_TIMEOUT_SECONDS"`

	// FleetKeyPath is the operator-managed private key used for
	// cluster-wide fleet operations (restart/upgrade) after a host has
	// been bootstrapped. Per-host investigation keys supplied at host
	// creation are never persisted, so post-bootstrap operations reach
	// a host with this shared, disk-resident key instead.
	FleetKeyPath string `yaml:"fleet_key_path" envconfig:"SSH_FLEET_KEY_PATH"`
}

// Default returns a Config with the control plane's baseline settings.
func Default() *Config {
	return &Config{
		HTTPBindAddr:             ":8000",
		DataDir:                  "./data",
		InvestigateQueueCapacity: 100,
		ClusterExecPoolSize:      4,
		SSH: SSHConfig{
			User:           "root",
			Port:           22,
			ConnectTimeout: 10,
			FleetKeyPath:   "/etc/commissaire/fleet_id_rsa",
		},
	}
}

// Load reads a YAML configuration file, falling back to defaults for any
// field the file doesn't set, then applies environment-variable
// overrides (prefixed COMMISSAIRE_).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("commissaire", cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	return cfg, nil
}
