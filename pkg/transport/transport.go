// Package transport abstracts the SSH/Ansible layer the investigator
// and cluster-exec workers use to reach a host. The spec treats the
// concrete transport as pluggable and out of scope; this package
// defines only the interface the core depends on.
package transport

import (
	"context"

	"github.com/commissaire/commissaire/pkg/config"
	"github.com/commissaire/commissaire/pkg/oscmd"
)

// Facts are the attributes the investigator merges into a Host record
// after a successful GetInfo call.
type Facts struct {
	OS     string
	CPUs   int
	Memory int
	Space  int
}

// Transport is the pluggable interface for reaching a single host over
// SSH (or whatever mechanism a concrete implementation chooses) to
// gather facts, bootstrap it, and perform fleet operations.
type Transport interface {
	// GetInfo connects to address using the private key at keyPath and
	// returns the facts needed to populate a freshly investigated Host.
	GetInfo(ctx context.Context, address, keyPath string) (Facts, error)

	// Bootstrap installs and starts the container-host stack on address,
	// using cmd for the OS-specific command vocabulary.
	Bootstrap(ctx context.Context, address, keyPath string, cfg *config.Config, cmd oscmd.OSCmd) error

	// Restart restarts address as part of a rolling cluster restart.
	Restart(ctx context.Context, address, keyPath string, cmd oscmd.OSCmd) error

	// Upgrade upgrades address to upgradeTo as part of a rolling cluster
	// upgrade.
	Upgrade(ctx context.Context, address, keyPath, upgradeTo string, cmd oscmd.OSCmd) error
}
