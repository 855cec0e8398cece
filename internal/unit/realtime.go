package unit

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/relayq/relayq/internal/dispatcher"
	internalerrors "github.com/relayq/relayq/internal/errors"
	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/metrics"
	"github.com/relayq/relayq/internal/store"
)

type logEntry struct {
	Data   json.RawMessage `json:"data"`
	Time   int64           `json:"time"`
	Return interface{}     `json:"return"`
}

// RealtimeConfig bounds one WorkerUnit pass.
type RealtimeConfig struct {
	MaxExec int64
	MaxHist int64
}

// RunRealtime is the WorkerUnit lifecycle: enroll, loop popping and
// dispatching jobs up to maxExec iterations while the worker's liveness
// string survives, then teardown. It returns once the loop ends for any
// reason (exhausted maxExec, lost liveness, or no candidate job lists).
func RunRealtime(ctx context.Context, s store.Store, k keys.Layout, unitID string, d dispatcher.Dispatcher, cfg RealtimeConfig) error {
	watchKey := k.Watch(k.Host())
	workerKey := k.Worker(unitID)

	if err := s.SetEx(ctx, workerKey, "", WaitScan); err != nil {
		return fmt.Errorf("enroll worker: %w", err)
	}
	if err := s.HSet(ctx, watchKey, map[string]string{workerKey: fmt.Sprintf("%d", time.Now().Unix())}); err != nil {
		return fmt.Errorf("register in watch hash: %w", err)
	}
	defer teardownWorker(ctx, s, watchKey, workerKey)

	idleTime := IdleTime()

	var iterations int64
	for iterations < cfg.MaxExec {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		exists, err := s.Exists(ctx, workerKey)
		if err != nil {
			return fmt.Errorf("check worker liveness: %w", err)
		}
		if !exists {
			break
		}
		refreshed, err := s.Expire(ctx, workerKey, WaitScan)
		if err != nil {
			return fmt.Errorf("refresh worker liveness: %w", err)
		}
		if !refreshed {
			break
		}

		candidate, found, err := s.SRandMember(ctx, k.Listen())
		if err != nil {
			return fmt.Errorf("pick candidate job list: %w", err)
		}
		if !found {
			break
		}

		payload, hit, err := GetJob(ctx, s, k.Listen(), candidate, idleTime)
		if err != nil {
			return fmt.Errorf("pop job from %s: %w", candidate, err)
		}
		if !hit {
			continue
		}

		iterations++
		dispatchAndLog(ctx, s, k, d, payload, cfg.MaxHist)
	}

	return nil
}

func teardownWorker(ctx context.Context, s store.Store, watchKey, workerKey string) {
	s.Del(ctx, workerKey)
	s.HDel(ctx, watchKey, workerKey)
}

// dispatchAndLog invokes the Dispatcher, recovering any panic, and appends
// the outcome to the success or failure log per spec.md §4.5's
// classification rules.
func dispatchAndLog(ctx context.Context, s store.Store, k keys.Layout, d dispatcher.Dispatcher, rawPayload string, maxHist int64) {
	start := time.Now()
	result, dispatchErr := invokeDispatcher(d, rawPayload)
	duration := time.Since(start)

	entry := logEntry{
		Data:   json.RawMessage(rawPayload),
		Time:   time.Now().Unix(),
		Return: result,
	}

	success := dispatchErr == nil && (result == nil || result == true)
	if dispatchErr != nil {
		entry.Return = dispatchErr.Error()
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return
	}

	if success {
		metrics.Default().RecordJobCompleted(duration)
		s.LPush(ctx, k.Success(), string(body))
		s.LTrim(ctx, k.Success(), 0, maxHist-1)
		return
	}

	metrics.Default().RecordJobFailed(duration)
	s.LPush(ctx, k.Failed(), string(body))
}

// invokeDispatcher decodes the raw job payload and calls Dispatch, turning
// any panic inside the handler into a failure result rather than crashing
// the unit.
func invokeDispatcher(d dispatcher.Dispatcher, rawPayload string) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &internalerrors.PanicError{Value: r, Stacktrace: string(debug.Stack())}
		}
	}()

	var payload map[string]interface{}
	if decodeErr := json.Unmarshal([]byte(rawPayload), &payload); decodeErr != nil {
		return nil, fmt.Errorf("decode job payload: %w", decodeErr)
	}

	return d.Dispatch(payload)
}
