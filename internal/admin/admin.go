// Package admin implements the operator-facing surfaces: enumerating
// queues and workers, rolling back failed jobs, trimming logs, and killing
// workers. Grounded on internal/result/redis.go's direct-Redis
// operator-facing reads, generalized from a single result hash to the
// scheduler's log lists and watch hashes.
package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/producer"
	"github.com/relayq/relayq/internal/store"
)

// LogType selects one of the two bounded/unbounded job logs.
type LogType string

const (
	LogSuccess LogType = "success"
	LogFailed  LogType = "failed"
)

// ErrInvalidLogType is returned when a caller names a log outside
// {success, failed} (spec.md §7: "Policy violation ... fails with an
// illegal-argument error").
var ErrInvalidLogType = fmt.Errorf("admin: log type must be %q or %q", LogSuccess, LogFailed)

// LogPage is the result of ShowLogs: the backing key, its current length,
// and the requested slice of entries.
type LogPage struct {
	Key  string
	Len  int64
	Data []string
}

// Admin is a value-type handle bound to one queue namespace. SetName
// returns a new Admin scoped to a different namespace; the store handle is
// shared, the key prefix is not.
type Admin struct {
	store store.Store
	keys  keys.Layout
}

// New constructs an Admin surface over a queue namespace.
func New(s store.Store, layout keys.Layout) *Admin {
	return &Admin{store: s, keys: layout}
}

// SetName returns a clone of this Admin bound to a fresh queue namespace,
// sharing the same store handle. The original Admin is untouched.
func (a *Admin) SetName(name string) *Admin {
	return &Admin{store: a.store, keys: keys.NewLayout(name).WithHost(a.keys.Host())}
}

func (a *Admin) logKey(t LogType) (string, error) {
	switch t {
	case LogSuccess:
		return a.keys.Success(), nil
	case LogFailed:
		return a.keys.Failed(), nil
	default:
		return "", ErrInvalidLogType
	}
}

// ShowLogs returns a page of the success or failure log in [start, end].
func (a *Admin) ShowLogs(ctx context.Context, t LogType, start, end int64) (*LogPage, error) {
	key, err := a.logKey(t)
	if err != nil {
		return nil, err
	}

	length, err := a.store.LLen(ctx, key)
	if err != nil {
		return nil, err
	}

	data, err := a.store.LRange(ctx, key, start, end)
	if err != nil {
		return nil, err
	}

	return &LogPage{Key: key, Len: length, Data: data}, nil
}

// DelLogs removes every entry from the named log.
func (a *Admin) DelLogs(ctx context.Context, t LogType) error {
	key, err := a.logKey(t)
	if err != nil {
		return err
	}
	_, err = a.store.Del(ctx, key)
	return err
}

// ShowLength returns the length of an arbitrary queue-managed list key.
func (a *Admin) ShowLength(ctx context.Context, queueKey string) (int64, error) {
	return a.store.LLen(ctx, queueKey)
}

// ShowQueue lists every job-list key in the listen set that currently holds
// at least one job, removing keys whose list is empty from the listen set.
func (a *Admin) ShowQueue(ctx context.Context) ([]string, error) {
	members, err := a.store.SMembers(ctx, a.keys.Listen())
	if err != nil {
		return nil, err
	}
	live := make([]string, 0, len(members))
	for _, key := range members {
		n, err := a.store.LLen(ctx, key)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if err := a.store.SRem(ctx, a.keys.Listen(), key); err != nil {
				return nil, err
			}
			continue
		}
		live = append(live, key)
	}
	return live, nil
}

// ShowProcess returns the compacted watch hash for a host: live worker
// keys, pruning any field whose worker string has already expired
// (spec.md invariant 3).
func (a *Admin) ShowProcess(ctx context.Context, host string) (map[string]string, error) {
	watchKey := a.keys.Watch(host)
	fields, err := a.store.HGetAll(ctx, watchKey)
	if err != nil {
		return nil, err
	}

	var stale []string
	for workerKey := range fields {
		exists, err := a.store.Exists(ctx, workerKey)
		if err != nil {
			return nil, err
		}
		if !exists {
			stale = append(stale, workerKey)
			delete(fields, workerKey)
		}
	}
	if len(stale) > 0 {
		if err := a.store.HDel(ctx, watchKey, stale...); err != nil {
			return nil, err
		}
	}

	return fields, nil
}

// Kill deletes one worker (by its worker:<id> key, procHash) or, when
// procHash is empty, every worker enrolled on host, compacting the watch
// hash in both cases.
func (a *Admin) Kill(ctx context.Context, host, procHash string) error {
	watchKey := a.keys.Watch(host)

	if procHash == "" {
		workerKeys, err := a.store.HKeys(ctx, watchKey)
		if err != nil {
			return err
		}
		if len(workerKeys) == 0 {
			return nil
		}
		if _, err := a.store.Del(ctx, workerKeys...); err != nil {
			return err
		}
		return a.store.HDel(ctx, watchKey, workerKeys...)
	}

	workerKey := a.keys.Worker(procHash)
	if _, err := a.store.Del(ctx, workerKey); err != nil {
		return err
	}
	return a.store.HDel(ctx, watchKey, workerKey)
}

// Rollback removes jobJSON from the failure log and re-enqueues it onto
// the realtime lane under the "rollback" group. Returns 0 if jobJSON was
// not present in the failure log (spec.md §8 idempotence law), otherwise
// the new length of jobs:rollback.
func (a *Admin) Rollback(ctx context.Context, p *producer.Producer, jobJSON string) (int64, error) {
	removed, err := a.store.LRem(ctx, a.keys.Failed(), 1, jobJSON)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}

	var entry struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(jobJSON), &entry); err != nil {
		return 0, fmt.Errorf("decode failed log entry: %w", err)
	}

	return p.AddRawRealtime(ctx, "rollback", string(entry.Data))
}
