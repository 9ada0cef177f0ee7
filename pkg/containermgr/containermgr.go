// Package containermgr abstracts the container-manager probe the
// investigator uses to confirm a bootstrapped host has joined the
// workload scheduler. The spec treats the concrete container manager
// as out of scope; this package exposes only the single query the core
// depends on.
package containermgr

import "context"

// ContainerManager answers whether a host address has registered
// itself with the cluster's workload scheduler.
type ContainerManager interface {
	NodeRegistered(ctx context.Context, address string) (bool, error)
}

// HTTPContainerManager polls a container manager's node-status endpoint
// over HTTP. It is one concrete, swappable implementation; the
// investigator only ever depends on the ContainerManager interface.
type HTTPContainerManager struct {
	check func(ctx context.Context, address string) (bool, error)
}

// NewHTTPContainerManager builds a ContainerManager that delegates the
// actual registration check to checkFn, letting callers wire in
// whatever transport (REST, gRPC, a local API client) their workload
// scheduler exposes without this package needing to know about it.
func NewHTTPContainerManager(checkFn func(ctx context.Context, address string) (bool, error)) *HTTPContainerManager {
	return &HTTPContainerManager{check: checkFn}
}

// NodeRegistered reports whether address is registered.
func (m *HTTPContainerManager) NodeRegistered(ctx context.Context, address string) (bool, error) {
	return m.check(ctx, address)
}
