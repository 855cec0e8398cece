// Package unit implements the two short-lived unit flavors the Master
// spawns: the delay materializer, which promotes due delayed jobs into the
// realtime lane, and the realtime worker, which pops and dispatches jobs.
// Grounded on the teacher's worker pool shape (internal/worker) but
// re-architected per spec.md's design notes into one-shot process bodies
// rather than an in-process goroutine pool.
package unit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/producer"
	"github.com/relayq/relayq/internal/store"
)

type delayEnvelope struct {
	Group string          `json:"group"`
	Job   json.RawMessage `json:"job"`
}

// RunDelay performs one DelayMaterializer sweep: it promotes every due
// fire-time bucket to the realtime lane, processing at most maxExec items
// total across buckets, then returns. It is idempotent over already-drained
// buckets (spec.md §8 round-trip law). now is the caller's notion of the
// current time, injectable for tests.
func RunDelay(ctx context.Context, s store.Store, k keys.Layout, p *producer.Producer, maxExec int64, now time.Time) error {
	due, err := s.ZRangeByScore(ctx, k.DelayTime(), 0, float64(now.Unix()))
	if err != nil {
		return fmt.Errorf("scan due fire-times: %w", err)
	}

	var processed int64
	for _, fireAtStr := range due {
		if processed >= maxExec {
			return nil
		}

		fireAt, err := strconv.ParseInt(fireAtStr, 10, 64)
		if err != nil {
			continue
		}
		bucketKey := k.DelayJobs(fireAt)

		for processed < maxExec {
			raw, found, err := s.RPop(ctx, bucketKey)
			if err != nil {
				return fmt.Errorf("drain bucket %s: %w", bucketKey, err)
			}
			if !found {
				break
			}

			var env delayEnvelope
			if err := json.Unmarshal([]byte(raw), &env); err != nil {
				// Malformed envelope: drop it rather than stall the sweep on
				// one bad entry.
				processed++
				continue
			}

			if _, err := p.AddRawRealtime(ctx, env.Group, string(env.Job)); err != nil {
				return fmt.Errorf("promote job from bucket %s: %w", bucketKey, err)
			}
			processed++
		}

		length, err := s.LLen(ctx, bucketKey)
		if err != nil {
			return fmt.Errorf("check bucket %s drained: %w", bucketKey, err)
		}
		if length == 0 {
			// Order matters only by convention: a crash between these two
			// deletes is harmless, the bucket is re-observed empty next
			// sweep and both removals retried.
			if err := s.ZRem(ctx, k.DelayTime(), fireAtStr); err != nil {
				return fmt.Errorf("remove fire-time %s: %w", fireAtStr, err)
			}
			if err := s.HDel(ctx, k.DelayLock(), fireAtStr); err != nil {
				return fmt.Errorf("remove delay lock %s: %w", fireAtStr, err)
			}
		}
	}

	return nil
}
