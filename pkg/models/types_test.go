package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostSecureOmitsPrivateKey(t *testing.T) {
	host := NewHost("10.2.0.2")
	host.SSHPrivKey = "super-secret-material"

	data, err := host.Secure()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret-material")
	assert.NotContains(t, string(data), "ssh_priv_key")
}

func TestHostFromJSONRejectsMissingAddress(t *testing.T) {
	_, err := HostFromJSON([]byte(`{"status":"active"}`))
	require.Error(t, err)
	var badRecord *BadRecord
	assert.ErrorAs(t, err, &badRecord)
	assert.Equal(t, "address", badRecord.Field)
}

func TestNewHostDefaults(t *testing.T) {
	host := NewHost("10.2.0.2")
	assert.Equal(t, HostInvestigating, host.Status)
	assert.Equal(t, UnknownQuantity, host.CPUs)
	assert.Equal(t, UnknownQuantity, host.Memory)
	assert.Equal(t, UnknownQuantity, host.Space)
	assert.Nil(t, host.LastCheck)
}

func TestClusterFromJSONDefaultsHostset(t *testing.T) {
	cluster, err := ClusterFromJSON([]byte(`{"status":"ok"}`))
	require.NoError(t, err)
	assert.NotNil(t, cluster.Hostset)
	assert.Empty(t, cluster.Hostset)
}

func TestClusterHostsetSetNoDuplicates(t *testing.T) {
	cluster := NewCluster()
	cluster.Hostset = []string{"10.2.0.2", "10.2.0.3", "10.2.0.2"}
	set := cluster.HostsetSet()
	assert.Len(t, set, 2)
	_, ok := set["10.2.0.2"]
	assert.True(t, ok)
}

func TestClusterWithHostsIncludesDerivedCounts(t *testing.T) {
	cluster := NewCluster()
	cluster.Hostset = []string{"10.2.0.2"}

	data, err := cluster.WithHosts(HostCount{Total: 1, Available: 0, Unavailable: 1})
	require.NoError(t, err)

	var decoded struct {
		Hosts HostCount `json:"hosts"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.Hosts.Total)
	assert.Equal(t, 1, decoded.Hosts.Unavailable)
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "/commissaire/hosts/10.2.0.2", HostKey("10.2.0.2"))
	assert.Equal(t, "/commissaire/clusters/dev", ClusterKey("dev"))
	assert.Equal(t, "/commissaire/cluster/dev/restart", ClusterRestartKey("dev"))
	assert.Equal(t, "/commissaire/cluster/dev/upgrade", ClusterUpgradeKey("dev"))
}
