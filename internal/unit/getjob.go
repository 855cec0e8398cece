package unit

import (
	"context"
	"time"

	"github.com/relayq/relayq/internal/store"
)

// GetJob probes one job-list key: if it holds at least one entry, it
// BRPOPs with the given idle timeout and returns the hit. If the list is
// empty, it compacts the listen set (the key no longer "may contain jobs")
// and returns a miss. Shared by WorkerUnit's consume loop and the Master's
// probe-before-spawn step.
func GetJob(ctx context.Context, s store.Store, listenKey, jobsKey string, idleTime time.Duration) (string, bool, error) {
	length, err := s.LLen(ctx, jobsKey)
	if err != nil {
		return "", false, err
	}
	if length == 0 {
		if err := s.SRem(ctx, listenKey, jobsKey); err != nil {
			return "", false, err
		}
		return "", false, nil
	}

	kv, err := s.BRPop(ctx, idleTime, jobsKey)
	if err != nil {
		return "", false, err
	}
	if kv == nil {
		return "", false, nil
	}
	return kv.Value, true, nil
}
