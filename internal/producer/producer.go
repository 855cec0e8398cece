// Package producer implements the Add API: routing a new job into the
// realtime, delay, or unique lane. Grounded on internal/queue/redis.go's
// Enqueue, generalized from a three-priority fixed queue set to the
// group/lane model.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/metrics"
	"github.com/relayq/relayq/internal/store"
)

var laneByMode = map[Mode]metrics.Lane{
	ModeRealtime: metrics.LaneRealtime,
	ModeDelay:    metrics.LaneDelay,
	ModeUnique:   metrics.LaneUnique,
}

// Mode selects which lane a submission enters.
type Mode int

const (
	ModeRealtime Mode = iota
	ModeDelay
	ModeUnique
)

// Result sentinels returned by Add, per spec: -1 rejects on dedup, 0 on
// storage failure, otherwise the new length of the target list.
const (
	ResultDedupRejected = -1
	ResultStorageFailed = 0
)

// Producer routes new jobs into Redis via Store, under one queue namespace.
type Producer struct {
	store store.Store
	keys  keys.Layout
	now   func() time.Time
}

// New constructs a Producer bound to a queue namespace.
func New(s store.Store, layout keys.Layout) *Producer {
	return &Producer{store: s, keys: layout, now: time.Now}
}

// SetClock overrides the time source used for fire-time and TTL
// computation, for deterministic tests.
func (p *Producer) SetClock(now func() time.Time) {
	p.now = now
}

// Add submits a new job. cmd is stored as payload["cmd"]; payload is
// arbitrary handler-visible data; group defaults to "main" when empty;
// timeSeconds is whole seconds (delay duration or unique TTL).
//
// Returns -1 if unique deduplication rejected the submission, 0 on storage
// failure, otherwise the new length of the target list (>=1).
func (p *Producer) Add(ctx context.Context, cmd string, payload map[string]interface{}, group string, mode Mode, timeSeconds int64) (int64, error) {
	if group == "" {
		group = "main"
	}

	// Normalization rule: a zero duration always forces realtime, to avoid
	// a permanent unique marker or a zero-delay bucket collision.
	if timeSeconds == 0 {
		mode = ModeRealtime
	}

	if payload == nil {
		payload = make(map[string]interface{}, 1)
	}
	payload["cmd"] = cmd

	metrics.Default().RecordJobSubmitted(laneByMode[mode])

	switch mode {
	case ModeUnique:
		return p.addUnique(ctx, cmd, payload, group, timeSeconds)
	case ModeDelay:
		return p.addDelay(ctx, payload, group, timeSeconds)
	default:
		return p.addRealtime(ctx, payload, group)
	}
}

func (p *Producer) addRealtime(ctx context.Context, payload map[string]interface{}, group string) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ResultStorageFailed, fmt.Errorf("marshal payload: %w", err)
	}
	return p.AddRawRealtime(ctx, group, string(body))
}

// AddRawRealtime pushes an already-serialized payload onto the realtime
// lane, skipping the marshal step. Used by the DelayMaterializer to
// re-enqueue a delay envelope's job body verbatim, since it is already the
// JSON the original Add call produced.
func (p *Producer) AddRawRealtime(ctx context.Context, group, rawPayload string) (int64, error) {
	jobsKey := p.keys.Jobs(group)

	// Order matters: the listen-set entry must precede the first push on a
	// freshly empty list so a concurrent master doesn't miss the group.
	if err := p.store.SAdd(ctx, p.keys.Listen(), jobsKey); err != nil {
		return ResultStorageFailed, err
	}

	n, err := p.store.LPush(ctx, jobsKey, rawPayload)
	if err != nil {
		return ResultStorageFailed, err
	}
	return n, nil
}

func (p *Producer) addUnique(ctx context.Context, cmd string, payload map[string]interface{}, group string, ttlSeconds int64) (int64, error) {
	uid := cmd
	if u, ok := payload["unique_id"]; ok {
		if s, ok := u.(string); ok && s != "" {
			uid = cmd + ":" + s
		}
	}

	uniqueKey := p.keys.Unique(uid)
	now := fmt.Sprintf("%d", p.now().Unix())

	ok, err := p.store.SetNX(ctx, uniqueKey, now, 0)
	if err != nil {
		return ResultStorageFailed, err
	}
	if !ok {
		return ResultDedupRejected, nil
	}

	if _, err := p.store.Expire(ctx, uniqueKey, time.Duration(ttlSeconds)*time.Second); err != nil {
		return ResultStorageFailed, err
	}

	return p.addRealtime(ctx, payload, group)
}

func (p *Producer) addDelay(ctx context.Context, payload map[string]interface{}, group string, delaySeconds int64) (int64, error) {
	fireAt := p.now().Unix() + delaySeconds

	fireAtStr := fmt.Sprintf("%d", fireAt)
	isNew, err := p.store.HSetNX(ctx, p.keys.DelayLock(), fireAtStr, fireAtStr)
	if err != nil {
		return ResultStorageFailed, err
	}
	if isNew {
		if err := p.store.ZAdd(ctx, p.keys.DelayTime(), float64(fireAt), fireAtStr); err != nil {
			return ResultStorageFailed, err
		}
	}

	jobBody, err := json.Marshal(payload)
	if err != nil {
		return ResultStorageFailed, fmt.Errorf("marshal payload: %w", err)
	}

	envelope := struct {
		Group string          `json:"group"`
		Job   json.RawMessage `json:"job"`
	}{Group: group, Job: jobBody}

	envBody, err := json.Marshal(envelope)
	if err != nil {
		return ResultStorageFailed, fmt.Errorf("marshal delay envelope: %w", err)
	}

	n, err := p.store.LPush(ctx, p.keys.DelayJobs(fireAt), string(envBody))
	if err != nil {
		return ResultStorageFailed, err
	}
	return n, nil
}
