package clusterexec

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commissaire/commissaire/pkg/config"
	"github.com/commissaire/commissaire/pkg/kv"
	"github.com/commissaire/commissaire/pkg/models"
	"github.com/commissaire/commissaire/pkg/oscmd"
	"github.com/commissaire/commissaire/pkg/transport"
)

func newTestPool(t *testing.T, tr transport.Transport) (*Pool, kv.Store) {
	t.Helper()
	store, err := kv.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.SSH.FleetKeyPath = "/etc/commissaire/fleet_id_rsa"
	return NewPool(store, tr, cfg, 2), store
}

func seedCluster(t *testing.T, store kv.Store, name string, hostset []string) {
	t.Helper()
	cluster := models.NewCluster()
	cluster.Hostset = hostset
	data, err := cluster.Secure()
	require.NoError(t, err)
	require.NoError(t, store.Set(models.ClusterKey(name), data))

	for _, address := range hostset {
		host := models.NewHost(address)
		host.OS = "rhel"
		hostData, err := host.Secure()
		require.NoError(t, err)
		require.NoError(t, store.Set(models.HostKey(address), hostData))
	}
}

func fetchRestart(t *testing.T, store kv.Store, name string) models.ClusterRestart {
	t.Helper()
	data, err := store.Get(models.ClusterRestartKey(name))
	require.NoError(t, err)
	var record models.ClusterRestart
	require.NoError(t, json.Unmarshal(data, &record))
	return record
}

func fetchUpgrade(t *testing.T, store kv.Store, name string) models.ClusterUpgrade {
	t.Helper()
	data, err := store.Get(models.ClusterUpgradeKey(name))
	require.NoError(t, err)
	var record models.ClusterUpgrade
	require.NoError(t, json.Unmarshal(data, &record))
	return record
}

func TestSpawnRestartReturnsErrClusterNotFound(t *testing.T) {
	pool, _ := newTestPool(t, transport.NewFakeTransport())

	_, err := pool.SpawnRestart("missing")
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestSpawnRestartRunsEveryHostInSortedOrder(t *testing.T) {
	tr := transport.NewFakeTransport()
	pool, store := newTestPool(t, tr)
	seedCluster(t, store, "dev", []string{"10.2.0.3", "10.2.0.1", "10.2.0.2"})

	record, err := pool.SpawnRestart("dev")
	require.NoError(t, err)
	assert.Equal(t, models.RunInProcess, record.Status)

	assert.Eventually(t, func() bool {
		return fetchRestart(t, store, "dev").Status == models.RunFinished
	}, 2*time.Second, 10*time.Millisecond)

	final := fetchRestart(t, store, "dev")
	assert.Equal(t, []string{"10.2.0.1", "10.2.0.2", "10.2.0.3"}, final.Restarted)
	assert.Empty(t, final.InProcess)
	assert.NotNil(t, final.FinishedAt)
	assert.Equal(t, []string{"10.2.0.1", "10.2.0.2", "10.2.0.3"}, tr.RestartCalls)
}

// upgradeToCapturingTransport records the upgradeTo argument of every
// Upgrade call, so a test can check what the run forwarded.
type upgradeToCapturingTransport struct {
	*transport.FakeTransport
	upgradeTo []string
}

func (c *upgradeToCapturingTransport) Upgrade(ctx context.Context, address, keyPath, upgradeTo string, cmd oscmd.OSCmd) error {
	c.upgradeTo = append(c.upgradeTo, upgradeTo)
	return c.FakeTransport.Upgrade(ctx, address, keyPath, upgradeTo, cmd)
}

func TestSpawnUpgradeCarriesUpgradeToThroughToTransport(t *testing.T) {
	tr := &upgradeToCapturingTransport{FakeTransport: transport.NewFakeTransport()}
	pool, store := newTestPool(t, tr)
	seedCluster(t, store, "dev", []string{"10.2.0.1"})

	record, err := pool.SpawnUpgrade("dev", "1.9.0")
	require.NoError(t, err)
	assert.Equal(t, "1.9.0", record.UpgradeTo)

	assert.Eventually(t, func() bool {
		return fetchUpgrade(t, store, "dev").Status == models.RunFinished
	}, 2*time.Second, 10*time.Millisecond)

	final := fetchUpgrade(t, store, "dev")
	assert.Equal(t, []string{"10.2.0.1"}, final.Upgraded)
	assert.Equal(t, []string{"10.2.0.1"}, tr.UpgradeCalls)
	assert.Equal(t, []string{"1.9.0"}, tr.upgradeTo)
}

func TestRunStopsAtFirstFailureAndMarksRunFailed(t *testing.T) {
	tr := transport.NewFakeTransport()
	tr.FailRestart["10.2.0.2"] = errors.New("ssh timeout")
	pool, store := newTestPool(t, tr)
	seedCluster(t, store, "dev", []string{"10.2.0.1", "10.2.0.2", "10.2.0.3"})

	_, err := pool.SpawnRestart("dev")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return fetchRestart(t, store, "dev").Status == models.RunFailed
	}, 2*time.Second, 10*time.Millisecond)

	final := fetchRestart(t, store, "dev")
	assert.Equal(t, []string{"10.2.0.1"}, final.Restarted)
	assert.Empty(t, final.InProcess)
	assert.NotContains(t, tr.RestartCalls, "10.2.0.3")
}

// ctxCapturingTransport records the error (if any) on the context each
// call received, so a test can tell whether a run was driven by a
// context that outlives the triggering request.
type ctxCapturingTransport struct {
	*transport.FakeTransport
	restartCtxErr error
	seen          bool
}

func (c *ctxCapturingTransport) Restart(ctx context.Context, address, keyPath string, cmd oscmd.OSCmd) error {
	c.seen = true
	c.restartCtxErr = ctx.Err()
	return c.FakeTransport.Restart(ctx, address, keyPath, cmd)
}

func TestRunIsNotDrivenByAnAlreadyCancelledRequestContext(t *testing.T) {
	tr := &ctxCapturingTransport{FakeTransport: transport.NewFakeTransport()}
	pool, store := newTestPool(t, tr)
	seedCluster(t, store, "dev", []string{"10.2.0.1"})

	// SpawnRestart takes no context: net/http cancels a request context
	// the instant the handler returns, but this run must keep going.
	_, err := pool.SpawnRestart("dev")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return tr.seen
	}, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, tr.restartCtxErr, "run must use the pool's own lifetime context, not a request context that is already cancelled")
}
