package transport

import (
	"context"
	"sync"

	"github.com/commissaire/commissaire/pkg/config"
	"github.com/commissaire/commissaire/pkg/oscmd"
)

// FakeTransport is an in-memory Transport double for tests. It records
// every call it receives and returns canned results, so investigator
// and cluster-exec tests can drive the state machine without an actual
// network.
type FakeTransport struct {
	mu sync.Mutex

	FactsByAddress map[string]Facts
	FailGetInfo    map[string]error
	FailBootstrap  map[string]error
	FailRestart    map[string]error
	FailUpgrade    map[string]error

	GetInfoCalls   []string
	BootstrapCalls []string
	RestartCalls   []string
	UpgradeCalls   []string
}

// NewFakeTransport returns an empty FakeTransport ready for use.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		FactsByAddress: make(map[string]Facts),
		FailGetInfo:    make(map[string]error),
		FailBootstrap:  make(map[string]error),
		FailRestart:    make(map[string]error),
		FailUpgrade:    make(map[string]error),
	}
}

func (f *FakeTransport) GetInfo(_ context.Context, address, _ string) (Facts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetInfoCalls = append(f.GetInfoCalls, address)
	if err, ok := f.FailGetInfo[address]; ok {
		return Facts{}, err
	}
	if facts, ok := f.FactsByAddress[address]; ok {
		return facts, nil
	}
	return Facts{OS: "rhel", CPUs: 2, Memory: 2048, Space: 20480}, nil
}

func (f *FakeTransport) Bootstrap(_ context.Context, address, _ string, _ *config.Config, _ oscmd.OSCmd) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BootstrapCalls = append(f.BootstrapCalls, address)
	return f.FailBootstrap[address]
}

func (f *FakeTransport) Restart(_ context.Context, address, _ string, _ oscmd.OSCmd) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RestartCalls = append(f.RestartCalls, address)
	return f.FailRestart[address]
}

func (f *FakeTransport) Upgrade(_ context.Context, address, _, _ string, _ oscmd.OSCmd) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpgradeCalls = append(f.UpgradeCalls, address)
	return f.FailUpgrade[address]
}
