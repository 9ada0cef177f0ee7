// Package investigator drives newly created hosts through fact
// gathering and bootstrap, consuming the investigate queue one item at
// a time.
package investigator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/commissaire/commissaire/pkg/config"
	"github.com/commissaire/commissaire/pkg/containermgr"
	"github.com/commissaire/commissaire/pkg/kv"
	"github.com/commissaire/commissaire/pkg/log"
	"github.com/commissaire/commissaire/pkg/metrics"
	"github.com/commissaire/commissaire/pkg/models"
	"github.com/commissaire/commissaire/pkg/oscmd"
	"github.com/commissaire/commissaire/pkg/queue"
	"github.com/commissaire/commissaire/pkg/transport"
)

const containerManagerAttempts = 3
const containerManagerInterval = 5 * time.Second

// Worker consumes the investigate queue and drives each host through
// investigating -> bootstrapping -> active|inactive|failed|disassociated.
type Worker struct {
	queue        *queue.InvestigateQueue
	store        kv.Store
	transport    transport.Transport
	containerMgr containermgr.ContainerManager
	cfg          *config.Config
	logger       zerolog.Logger

	stopCh chan struct{}
}

// New builds an investigator Worker.
func New(q *queue.InvestigateQueue, store kv.Store, tr transport.Transport, cm containermgr.ContainerManager, cfg *config.Config) *Worker {
	return &Worker{
		queue:        q,
		store:        store,
		transport:    tr,
		containerMgr: cm,
		cfg:          cfg,
		logger:       log.WithComponent("investigator"),
		stopCh:       make(chan struct{}),
	}
}

// Run processes queue items until ctx is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Msg("investigator started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("investigator stopping")
			return
		case <-w.stopCh:
			w.logger.Info().Msg("investigator stopping")
			return
		default:
		}
		if !w.processOne(ctx) {
			return
		}
	}
}

// RunOnce processes exactly one queue item, terminal or failure, and
// returns. It exists for tests that need a deterministic single step
// instead of an unbounded loop.
func (w *Worker) RunOnce(ctx context.Context) {
	w.processOne(ctx)
}

// Stop signals Run to exit. Run checks for the signal between items: a
// Run that is waiting on an empty queue still processes the next item
// that arrives before it exits, unless its context is cancelled first.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// processOne dequeues and investigates a single host. It returns false
// if the context was cancelled while waiting for work.
func (w *Worker) processOne(ctx context.Context) bool {
	item, err := w.queue.Get(ctx)
	if err != nil {
		return false
	}
	metrics.InvestigateQueueDepth.Set(float64(w.queue.Len()))

	address := item.Host.Address
	logger := log.WithHost(address)
	logger.Info().Msg("now investigating")

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.InvestigationDuration)

	keyPath, err := writeKeyFile(item.SSHPrivKey)
	if err != nil {
		logger.Error().Err(err).Msg("failed to materialize ssh key, abandoning investigation")
		return true
	}
	defer cleanupKeyFile(logger, keyPath)

	host, err := w.fetchHost(address)
	if err != nil {
		logger.Warn().Err(err).Msg("host record vanished before investigation, aborting")
		return true
	}

	status := w.investigate(ctx, logger, host, keyPath)
	metrics.InvestigationsTotal.WithLabelValues(string(status)).Inc()
	return true
}

// investigate runs the three-stage state machine for host and returns
// its terminal status.
func (w *Worker) investigate(ctx context.Context, logger zerolog.Logger, host *models.Host, keyPath string) models.HostStatus {
	facts, err := w.getInfo(ctx, host.Address, keyPath)
	if err != nil {
		logger.Warn().Err(err).Msg("getting info failed")
		host.Status = models.HostFailed
		w.persist(logger, host)
		return host.Status
	}
	host.OS = facts.OS
	host.CPUs = facts.CPUs
	host.Memory = facts.Memory
	host.Space = facts.Space
	now := nowUTC()
	host.LastCheck = &now
	host.Status = models.HostBootstrapping
	w.persist(logger, host)
	logger.Info().Msg("facts retrieved, now bootstrapping")

	cmd, err := oscmd.Get(host.OS)
	if err != nil {
		logger.Warn().Err(err).Str("os", host.OS).Msg("no oscmd adapter for reported os")
		host.Status = models.HostDisassociated
		w.persist(logger, host)
		return host.Status
	}

	if err := w.bootstrap(ctx, host.Address, keyPath, cmd); err != nil {
		logger.Warn().Err(err).Msg("bootstrap failed")
		host.Status = models.HostDisassociated
		w.persist(logger, host)
		return host.Status
	}
	host.Status = models.HostInactive
	w.persist(logger, host)

	if w.pollContainerManager(ctx, logger, host.Address) {
		host.Status = models.HostActive
	}
	w.persist(logger, host)
	return host.Status
}

func (w *Worker) getInfo(ctx context.Context, address, keyPath string) (transport.Facts, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GetInfoDuration)
	return w.transport.GetInfo(ctx, address, keyPath)
}

func (w *Worker) bootstrap(ctx context.Context, address, keyPath string, cmd oscmd.OSCmd) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BootstrapDuration)
	return w.transport.Bootstrap(ctx, address, keyPath, w.cfg, cmd)
}

// pollContainerManager tries up to containerManagerAttempts times,
// containerManagerInterval apart, reporting whether the host registered.
func (w *Worker) pollContainerManager(ctx context.Context, logger zerolog.Logger, address string) bool {
	for attempt := 1; attempt <= containerManagerAttempts; attempt++ {
		registered, err := w.containerMgr.NodeRegistered(ctx, address)
		if err == nil && registered {
			metrics.ContainerManagerPollsTotal.WithLabelValues("registered").Inc()
			logger.Info().Msg("registered with the container manager")
			return true
		}
		if err != nil {
			logger.Debug().Err(err).Int("attempt", attempt).Msg("container manager poll failed")
		}
		if attempt < containerManagerAttempts {
			select {
			case <-time.After(containerManagerInterval):
			case <-ctx.Done():
				metrics.ContainerManagerPollsTotal.WithLabelValues("cancelled").Inc()
				return false
			}
		}
	}
	metrics.ContainerManagerPollsTotal.WithLabelValues("exhausted").Inc()
	logger.Warn().Msg("never registered with the container manager, leaving inactive")
	return false
}

func (w *Worker) fetchHost(address string) (*models.Host, error) {
	data, err := w.store.Get(models.HostKey(address))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("fetching host %s: %w", address, err)
	}
	return models.HostFromJSON(data)
}

func (w *Worker) persist(logger zerolog.Logger, host *models.Host) {
	data, err := host.Secure()
	if err != nil {
		logger.Error().Err(err).Msg("encoding host record failed")
		return
	}
	if err := w.store.Set(models.HostKey(host.Address), data); err != nil {
		logger.Error().Err(err).Msg("persisting host record failed")
	}
}

func writeKeyFile(sshPrivKeyB64 string) (string, error) {
	keyData, err := base64.StdEncoding.DecodeString(sshPrivKeyB64)
	if err != nil {
		return "", fmt.Errorf("decoding ssh private key: %w", err)
	}

	f, err := os.CreateTemp("", "commissaire-key-")
	if err != nil {
		return "", fmt.Errorf("creating temporary key file: %w", err)
	}
	defer f.Close()
	if err := f.Chmod(0600); err != nil {
		return "", fmt.Errorf("restricting temporary key file permissions: %w", err)
	}
	if _, err := f.Write(keyData); err != nil {
		return "", fmt.Errorf("writing temporary key file: %w", err)
	}
	return f.Name(), nil
}

func cleanupKeyFile(logger zerolog.Logger, path string) {
	if err := os.Remove(path); err != nil {
		logger.Warn().Err(err).Str("key_file", path).Msg("failed to remove temporary key file")
	}
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
