// Package clusterexec runs rolling restart and upgrade operations across
// a cluster's hostset from a bounded worker pool. Each spawned run owns
// its progress record in the KV store for its whole lifetime.
package clusterexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/commissaire/commissaire/pkg/config"
	"github.com/commissaire/commissaire/pkg/kv"
	"github.com/commissaire/commissaire/pkg/log"
	"github.com/commissaire/commissaire/pkg/metrics"
	"github.com/commissaire/commissaire/pkg/models"
	"github.com/commissaire/commissaire/pkg/oscmd"
	"github.com/commissaire/commissaire/pkg/transport"
)

// ErrClusterNotFound is returned when a run is requested against a
// cluster that doesn't exist in the KV store.
var ErrClusterNotFound = errors.New("clusterexec: cluster not found")

// Pool is the bounded set of concurrent cluster-exec tasks. Capacity
// limits how many restart/upgrade runs execute at once; each run itself
// is strictly sequential across its own hostset. Spawned runs outlive
// the HTTP request that triggers them, so the Pool carries its own
// lifetime context instead of borrowing the request's.
type Pool struct {
	store     kv.Store
	transport transport.Transport
	cfg       *config.Config
	sem       chan struct{}
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewPool builds a Pool allowing up to size concurrent runs.
func NewPool(store kv.Store, tr transport.Transport, cfg *config.Config, size int) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		store:     store,
		transport: tr,
		cfg:       cfg,
		sem:       make(chan struct{}, size),
		logger:    log.WithComponent("clusterexec"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Stop cancels the Pool's lifetime context, aborting every in-flight
// and future run. Call it once, at process shutdown.
func (p *Pool) Stop() {
	p.cancel()
}

// SpawnRestart writes the initial progress record for a rolling restart
// of name's current hostset and schedules the run on the pool. The
// returned record is a copy of that initial record, the one the HTTP
// handler should respond with; the run updates its own copy. The
// run itself is driven by the Pool's own lifetime context, not the
// caller's, since it must keep running after the triggering request
// returns.
func (p *Pool) SpawnRestart(name string) (*models.ClusterRestart, error) {
	hostset, err := p.currentHostset(name)
	if err != nil {
		return nil, err
	}

	record := &models.ClusterRestart{
		Status:    models.RunInProcess,
		Restarted: []string{},
		InProcess: []string{},
		StartedAt: nowUTC(),
	}
	if err := p.persistRestart(name, record); err != nil {
		return nil, err
	}

	initial := *record
	go p.run(p.ctx, name, hostset, "restart", record, nil)
	return &initial, nil
}

// SpawnUpgrade writes the initial progress record for a rolling upgrade
// of name's current hostset to upgradeTo and schedules the run. As with
// SpawnRestart, the returned record is a copy of the initial record.
func (p *Pool) SpawnUpgrade(name, upgradeTo string) (*models.ClusterUpgrade, error) {
	hostset, err := p.currentHostset(name)
	if err != nil {
		return nil, err
	}

	record := &models.ClusterUpgrade{
		Status:    models.RunInProcess,
		UpgradeTo: upgradeTo,
		Upgraded:  []string{},
		InProcess: []string{},
		StartedAt: nowUTC(),
	}
	if err := p.persistUpgrade(name, record); err != nil {
		return nil, err
	}

	initial := *record
	go p.run(p.ctx, name, hostset, "upgrade", nil, record)
	return &initial, nil
}

func (p *Pool) currentHostset(name string) ([]string, error) {
	data, err := p.store.Get(models.ClusterKey(name))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrClusterNotFound
		}
		return nil, fmt.Errorf("fetching cluster %s: %w", name, err)
	}
	cluster, err := models.ClusterFromJSON(data)
	if err != nil {
		return nil, err
	}
	hostset := append([]string{}, cluster.Hostset...)
	sort.Strings(hostset)
	return hostset, nil
}

// run executes the sequential per-host loop shared by restart and
// upgrade, acquiring a pool slot for its duration. Exactly one of
// restart/upgrade is non-nil.
func (p *Pool) run(ctx context.Context, clusterName string, hostset []string, operation string, restart *models.ClusterRestart, upgrade *models.ClusterUpgrade) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	logger := log.WithCluster(clusterName)
	logger.Info().Str("operation", operation).Int("hosts", len(hostset)).Msg("cluster-exec run started")

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ClusterExecRunDuration, operation)

	for _, address := range hostset {
		if restart != nil {
			restart.InProcess = []string{address}
			p.persistRestart(clusterName, restart)
		} else {
			upgrade.InProcess = []string{address}
			p.persistUpgrade(clusterName, upgrade)
		}

		if err := p.runOneHost(ctx, logger, address, operation, upgrade); err != nil {
			logger.Warn().Err(err).Str("host", address).Msg("cluster-exec host step failed")
			finished := nowUTC()
			if restart != nil {
				restart.Status = models.RunFailed
				restart.InProcess = []string{}
				restart.FinishedAt = &finished
				p.persistRestart(clusterName, restart)
			} else {
				upgrade.Status = models.RunFailed
				upgrade.InProcess = []string{}
				upgrade.FinishedAt = &finished
				p.persistUpgrade(clusterName, upgrade)
			}
			metrics.ClusterExecRunsTotal.WithLabelValues(operation, string(models.RunFailed)).Inc()
			return
		}

		if restart != nil {
			restart.InProcess = []string{}
			restart.Restarted = append(restart.Restarted, address)
			p.persistRestart(clusterName, restart)
		} else {
			upgrade.InProcess = []string{}
			upgrade.Upgraded = append(upgrade.Upgraded, address)
			p.persistUpgrade(clusterName, upgrade)
		}
	}

	finished := nowUTC()
	if restart != nil {
		restart.Status = models.RunFinished
		restart.FinishedAt = &finished
		p.persistRestart(clusterName, restart)
	} else {
		upgrade.Status = models.RunFinished
		upgrade.FinishedAt = &finished
		p.persistUpgrade(clusterName, upgrade)
	}
	metrics.ClusterExecRunsTotal.WithLabelValues(operation, string(models.RunFinished)).Inc()
	logger.Info().Str("operation", operation).Msg("cluster-exec run finished")
}

func (p *Pool) runOneHost(ctx context.Context, logger zerolog.Logger, address, operation string, upgrade *models.ClusterUpgrade) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ClusterExecHostDuration, operation)

	data, err := p.store.Get(models.HostKey(address))
	if err != nil {
		return fmt.Errorf("fetching host %s: %w", address, err)
	}
	host, err := models.HostFromJSON(data)
	if err != nil {
		return err
	}

	cmd, err := oscmd.Get(host.OS)
	if err != nil {
		return fmt.Errorf("selecting oscmd for %s: %w", address, err)
	}

	// The per-host investigation key is never persisted (see Host.Secure),
	// so post-bootstrap fleet operations reach the host with the
	// operator-managed key configured for the whole fleet instead.
	keyPath := p.cfg.SSH.FleetKeyPath

	if operation == "upgrade" {
		return p.transport.Upgrade(ctx, address, keyPath, upgrade.UpgradeTo, cmd)
	}
	return p.transport.Restart(ctx, address, keyPath, cmd)
}

func (p *Pool) persistRestart(name string, record *models.ClusterRestart) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return p.store.Set(models.ClusterRestartKey(name), data)
}

func (p *Pool) persistUpgrade(name string, record *models.ClusterUpgrade) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return p.store.Set(models.ClusterUpgradeKey(name), data)
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
