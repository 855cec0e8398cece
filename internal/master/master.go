// Package master implements the supervising process that owns the
// per-host worker:<host> lock, spawns delay and realtime units, and caps
// concurrent unit processes. Grounded on the teacher's worker.Pool
// lifecycle (internal/worker/pool.go) — start/stop, liveness via context,
// panic-shielded loop body — re-architected per spec.md's design notes
// into a multi-process supervisor instead of an in-process goroutine pool.
package master

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/relayq/relayq/internal/idgen"
	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/logger"
	"github.com/relayq/relayq/internal/metrics"
	"github.com/relayq/relayq/internal/spawn"
	"github.com/relayq/relayq/internal/store"
	"github.com/relayq/relayq/internal/unit"
)

// ErrAlreadyRunning is returned by Run when another master already holds
// the per-host lock. This is a clean exit, not a failure (spec.md §7:
// "Lock contention ... not an error for the winner").
var ErrAlreadyRunning = errors.New("master: another master is already running on this host")

const (
	defaultMaxFork = 10
	defaultMaxExec = 1000
	defaultMaxHist = 2000
)

// Config bounds one Master's concurrency. Non-positive values retain the
// spec.md default (§8 boundary behavior).
type Config struct {
	MaxFork int64
	MaxExec int64
	MaxHist int64
}

func (c Config) clamped() Config {
	out := c
	if out.MaxFork <= 0 {
		out.MaxFork = defaultMaxFork
	}
	if out.MaxExec <= 0 {
		out.MaxExec = defaultMaxExec
	}
	if out.MaxHist <= 0 {
		out.MaxHist = defaultMaxHist
	}
	return out
}

// Master supervises liveness and unit spawning for one host within one
// queue namespace.
type Master struct {
	store     store.Store
	keys      keys.Layout
	host      string
	queueName string
	spawner   spawn.Spawner
	cfg       Config
	log       logger.Logger
}

// New constructs a Master for a host and queue namespace.
func New(s store.Store, layout keys.Layout, host, queueName string, spawner spawn.Spawner, cfg Config) *Master {
	return &Master{
		store:     s,
		keys:      layout.WithHost(host),
		host:      host,
		queueName: queueName,
		spawner:   spawner,
		cfg:       cfg.clamped(),
		log:       logger.Default(),
	}
}

// Run acquires the per-host lock and executes the supervision loop until
// liveness is lost or ctx is cancelled. Returns ErrAlreadyRunning if
// another master already owns the lock on this host.
func (m *Master) Run(ctx context.Context) error {
	masterHash := idgen.RandomHash()
	masterKey := m.keys.Worker(m.host)
	watchKey := m.keys.Watch(m.host)

	ok, err := m.store.SetNX(ctx, masterKey, masterHash, 0)
	if err != nil {
		return fmt.Errorf("acquire master lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if _, err := m.store.Expire(ctx, masterKey, unit.WaitScan); err != nil {
		return fmt.Errorf("set master lock ttl: %w", err)
	}
	if err := m.store.HSet(ctx, watchKey, map[string]string{masterKey: fmt.Sprintf("%d", time.Now().Unix())}); err != nil {
		return fmt.Errorf("register master in watch hash: %w", err)
	}
	defer m.killAll(context.Background())

	idleTime := unit.IdleTime()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := m.spawner.SpawnDetached(m.unitArgv("delay")); err != nil {
			m.log.Warn("failed to spawn delay unit", "error", err)
		}

		valid, running, err := m.checkLiveness(ctx, masterKey, masterHash)
		if err != nil {
			m.log.Error("master liveness check failed", "error", err)
			return nil
		}
		if !valid || !running {
			return nil
		}

		candidate, found, err := m.store.SRandMember(ctx, m.keys.Listen())
		if err != nil {
			m.log.Error("failed to pick candidate job list", "error", err)
			return nil
		}

		watchCount, err := m.liveWatchCount(ctx, watchKey)
		if err != nil {
			m.log.Error("failed to read watch hash", "error", err)
			return nil
		}

		if !found || watchCount > 1 {
			sleepOrDone(ctx, unit.WaitIdle)
			continue
		}

		payload, hit, err := unit.GetJob(ctx, m.store, m.keys.Listen(), candidate, idleTime)
		if err != nil {
			m.log.Error("master probe failed", "key", candidate, "error", err)
			return nil
		}
		if !hit {
			sleepOrDone(ctx, unit.WaitIdle)
			continue
		}

		// Re-push: the probe is destructive, preserve at-least-once by
		// putting the payload back before spawning consumers for it.
		if _, err := m.store.LPush(ctx, candidate, payload); err != nil {
			m.log.Error("failed to re-push probed job", "key", candidate, "error", err)
			return nil
		}

		spawnCount, err := m.autoscaleSpawnCount(ctx, watchCount)
		if err != nil {
			m.log.Error("failed to compute autoscale spawn count", "error", err)
			return nil
		}
		metrics.Default().RecordUnitActivity(watchCount, m.cfg.MaxFork)
		for i := int64(0); i < spawnCount; i++ {
			if err := m.spawner.SpawnDetached(m.unitArgv("realtime")); err != nil {
				m.log.Warn("failed to spawn realtime unit", "error", err)
			}
		}
	}
}

func (m *Master) checkLiveness(ctx context.Context, masterKey, masterHash string) (valid, running bool, err error) {
	val, found, err := m.store.Get(ctx, masterKey)
	if err != nil {
		return false, false, err
	}
	valid = found && val == masterHash

	running, err = m.store.Expire(ctx, masterKey, unit.WaitScan)
	if err != nil {
		return false, false, err
	}
	return valid, running, nil
}

// liveWatchCount returns the number of still-live workers enrolled in
// watchKey, pruning any entries whose worker key has since expired so the
// count matches what admin.ShowProcess reports for the same hash.
func (m *Master) liveWatchCount(ctx context.Context, watchKey string) (int64, error) {
	fields, err := m.store.HGetAll(ctx, watchKey)
	if err != nil {
		return 0, err
	}

	var stale []string
	for workerKey := range fields {
		exists, err := m.store.Exists(ctx, workerKey)
		if err != nil {
			return 0, err
		}
		if !exists {
			stale = append(stale, workerKey)
		}
	}
	if len(stale) > 0 {
		if err := m.store.HDel(ctx, watchKey, stale...); err != nil {
			return 0, err
		}
	}

	return int64(len(fields) - len(stale)), nil
}

// autoscaleSpawnCount implements spec.md §4.6's formula:
//
//	left = maxFork - runs + 1; if left <= 0, spawn 0
//	need = ceil(totalJobs / maxExec) - runs + 1
//	spawnCount = min(left, need)
func (m *Master) autoscaleSpawnCount(ctx context.Context, runs int64) (int64, error) {
	left := m.cfg.MaxFork - runs + 1
	if left <= 0 {
		return 0, nil
	}

	groups, err := m.store.SMembers(ctx, m.keys.Listen())
	if err != nil {
		return 0, err
	}

	var totalJobs int64
	for _, g := range groups {
		n, err := m.store.LLen(ctx, g)
		if err != nil {
			return 0, err
		}
		metrics.Default().RecordQueueDepth(g, n)
		totalJobs += n
	}

	need := int64(math.Ceil(float64(totalJobs)/float64(m.cfg.MaxExec))) - runs + 1
	spawnCount := left
	if need < spawnCount {
		spawnCount = need
	}
	if spawnCount < 0 {
		spawnCount = 0
	}
	return spawnCount, nil
}

// killAll is the master's teardown: it deletes every worker key enrolled
// on this host and compacts the watch hash.
func (m *Master) killAll(ctx context.Context) {
	watchKey := m.keys.Watch(m.host)
	workerKeys, err := m.store.HKeys(ctx, watchKey)
	if err != nil {
		m.log.Error("killAll: failed to list watch hash", "error", err)
		return
	}
	if len(workerKeys) == 0 {
		return
	}
	if _, err := m.store.Del(ctx, workerKeys...); err != nil {
		m.log.Error("killAll: failed to delete worker keys", "error", err)
	}
	if err := m.store.HDel(ctx, watchKey, workerKeys...); err != nil {
		m.log.Error("killAll: failed to compact watch hash", "error", err)
	}
}

func (m *Master) unitArgv(unitType string) []string {
	return []string{"unit", "--type=" + unitType, "--name=" + m.queueName}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
