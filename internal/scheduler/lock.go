package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseIfOwnedScript deletes the lock key only if its value still
// matches the caller's token, so a scheduler instance never releases a
// lock another instance has since acquired (e.g. after this instance
// stalled past the TTL).
const releaseIfOwnedScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// ScheduleLock guards one cron schedule's executeSchedule call so that,
// when more than one scheduler process runs against the same Redis
// instance, only the instance holding the lock fires that schedule's tick.
type ScheduleLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// AcquireScheduleLock attempts to take the named schedule lock via SETNX.
// Returns a nil lock, nil error when another scheduler instance already
// holds it — that is the expected steady-state outcome, not a failure.
func AcquireScheduleLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*ScheduleLock, error) {
	token := uuid.New().String()

	acquired, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire schedule lock %s: %w", key, err)
	}
	if !acquired {
		return nil, nil
	}

	return &ScheduleLock{client: client, key: key, token: token, ttl: ttl}, nil
}

// Release deletes the lock key, but only if this instance's token is still
// the one stored there — a Lua script makes the check-and-delete atomic.
// Releasing a lock this instance no longer owns (e.g. it expired and was
// re-acquired elsewhere) is a no-op, not an error.
func (l *ScheduleLock) Release(ctx context.Context) error {
	_, err := l.client.Eval(ctx, releaseIfOwnedScript, []string{l.key}, l.token).Result()
	return err
}

// Key returns the Redis key this lock guards.
func (l *ScheduleLock) Key() string {
	return l.key
}

// Token returns this lock holder's unique token, useful for diagnosing a
// contended schedule in logs.
func (l *ScheduleLock) Token() string {
	return l.token
}

// TTL returns the lock's time-to-live as acquired.
func (l *ScheduleLock) TTL() time.Duration {
	return l.ttl
}
