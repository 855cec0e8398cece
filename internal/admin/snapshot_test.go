package admin

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/producer"
	"github.com/relayq/relayq/internal/store"
)

func TestAdmin_ExportSnapshotRoundTrips(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStoreFromClient(client)
	defer s.Close()
	layout := keys.NewLayout("main").WithHost("host1")
	a := New(s, layout)
	ctx := context.Background()

	p := producer.New(s, layout)
	p.Add(ctx, "a", map[string]interface{}{}, "g", producer.ModeRealtime, 0)

	body, err := a.ExportSnapshot(ctx, "host1")
	if err != nil {
		t.Fatalf("ExportSnapshot failed: %v", err)
	}

	decoded, err := a.ImportSnapshot(body)
	if err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}

	if decoded.Fields["host"].GetStringValue() != "host1" {
		t.Errorf("expected host field host1, got %v", decoded.Fields["host"])
	}

	queueList := decoded.Fields["queue"].GetListValue()
	if queueList == nil || len(queueList.Values) != 1 {
		t.Errorf("expected one group in queue snapshot, got %v", decoded.Fields["queue"])
	}
}

func TestAdmin_ImportSnapshotRejectsUnframedData(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStoreFromClient(client)
	defer s.Close()
	a := New(s, keys.NewLayout("main").WithHost("host1"))

	if _, err := a.ImportSnapshot([]byte(`{"host":"host1"}`)); err == nil {
		t.Fatal("expected error importing data without the protobuf format prefix")
	}
}
