package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commissaire/commissaire/pkg/oscmd"
)

func TestFakeTransportGetInfoDefaultsWhenUnset(t *testing.T) {
	tr := NewFakeTransport()

	facts, err := tr.GetInfo(context.Background(), "10.2.0.2", "/tmp/key")
	require.NoError(t, err)
	assert.Equal(t, Facts{OS: "rhel", CPUs: 2, Memory: 2048, Space: 20480}, facts)
	assert.Equal(t, []string{"10.2.0.2"}, tr.GetInfoCalls)
}

func TestFakeTransportGetInfoUsesConfiguredFacts(t *testing.T) {
	tr := NewFakeTransport()
	tr.FactsByAddress["10.2.0.2"] = Facts{OS: "fedora", CPUs: 8, Memory: 8192, Space: 81920}

	facts, err := tr.GetInfo(context.Background(), "10.2.0.2", "/tmp/key")
	require.NoError(t, err)
	assert.Equal(t, "fedora", facts.OS)
	assert.Equal(t, 8, facts.CPUs)
}

func TestFakeTransportGetInfoHonorsFailureInjection(t *testing.T) {
	tr := NewFakeTransport()
	boom := errors.New("unreachable")
	tr.FailGetInfo["10.2.0.2"] = boom

	_, err := tr.GetInfo(context.Background(), "10.2.0.2", "/tmp/key")
	assert.ErrorIs(t, err, boom)
}

func TestFakeTransportBootstrapRecordsCallAndHonorsFailure(t *testing.T) {
	tr := NewFakeTransport()
	cmd, err := oscmd.Get("rhel")
	require.NoError(t, err)

	err = tr.Bootstrap(context.Background(), "10.2.0.2", "/tmp/key", nil, cmd)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.2.0.2"}, tr.BootstrapCalls)

	boom := errors.New("bootstrap failed")
	tr.FailBootstrap["10.2.0.3"] = boom
	err = tr.Bootstrap(context.Background(), "10.2.0.3", "/tmp/key", nil, cmd)
	assert.ErrorIs(t, err, boom)
}

func TestFakeTransportRestartAndUpgradeRecordCalls(t *testing.T) {
	tr := NewFakeTransport()
	cmd, err := oscmd.Get("rhel")
	require.NoError(t, err)

	require.NoError(t, tr.Restart(context.Background(), "10.2.0.2", "/tmp/key", cmd))
	require.NoError(t, tr.Upgrade(context.Background(), "10.2.0.2", "/tmp/key", "1.2.3", cmd))

	assert.Equal(t, []string{"10.2.0.2"}, tr.RestartCalls)
	assert.Equal(t, []string{"10.2.0.2"}, tr.UpgradeCalls)
}

func TestParseSetupFactsExtractsKnownFields(t *testing.T) {
	output := `
ansible_distribution=RedHat
ansible_processor_vcpus=4
ansible_memtotal_mb=8192
ansible_devices_space_mb=102400
some_other_line=ignored
`
	facts, err := parseSetupFacts(output)
	require.NoError(t, err)
	assert.Equal(t, "redhat", facts.OS)
	assert.Equal(t, 4, facts.CPUs)
	assert.Equal(t, 8192, facts.Memory)
	assert.Equal(t, 102400, facts.Space)
}

func TestParseSetupFactsFallsBackOnMissingOrMalformedFields(t *testing.T) {
	facts, err := parseSetupFacts("ansible_processor_vcpus=not-a-number\n")
	require.NoError(t, err)
	assert.Equal(t, "rhel", facts.OS)
	assert.Equal(t, 1, facts.CPUs)
	assert.Equal(t, 1, facts.Memory)
	assert.Equal(t, 1, facts.Space)
}
