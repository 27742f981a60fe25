package funding

import (
	"context"
	"math/big"
	"testing"

	"AgentTreasury/internal/ledger"
)

func TestAggregateRequestsSumsPerLeaf(t *testing.T) {
	requests := []Request{
		NewRequest("svc-1", "gnosis", testAgent, ledger.NativeAsset, big.NewInt(10)),
		NewRequest("svc-1", "gnosis", testAgent, ledger.NativeAsset, big.NewInt(15)),
		NewRequest("svc-1", "base", testAgent, ledger.NativeAsset, big.NewInt(7)),
	}

	got := AggregateRequests(requests)

	if got.Get("gnosis", testAgent, ledger.NativeAsset).Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("unexpected gnosis total: %s", got.Get("gnosis", testAgent, ledger.NativeAsset))
	}
	if got.Get("base", testAgent, ledger.NativeAsset).Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("unexpected base total: %s", got.Get("base", testAgent, ledger.NativeAsset))
	}
}

func TestMemoryInboxIsolatesServices(t *testing.T) {
	inbox := NewMemoryInbox()
	ctx := context.Background()

	if err := inbox.Publish(ctx, NewRequest("svc-1", "gnosis", testAgent, ledger.NativeAsset, big.NewInt(10))); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := inbox.Publish(ctx, NewRequest("svc-2", "gnosis", testAgent, ledger.NativeAsset, big.NewInt(20))); err != nil {
		t.Fatalf("publish: %v", err)
	}

	pending, err := inbox.Pending(ctx, "svc-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ServiceID != "svc-1" {
		t.Fatalf("unexpected pending set: %+v", pending)
	}

	// Pending 不消费，重复读取结果一致。
	again, err := inbox.Pending(ctx, "svc-1")
	if err != nil {
		t.Fatalf("pending again: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("pending must not consume, got %d", len(again))
	}

	if err := inbox.Clear(ctx, "svc-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cleared, err := inbox.Pending(ctx, "svc-1")
	if err != nil {
		t.Fatalf("pending after clear: %v", err)
	}
	if len(cleared) != 0 {
		t.Fatalf("clear must empty the service inbox, got %d", len(cleared))
	}
	other, err := inbox.Pending(ctx, "svc-2")
	if err != nil {
		t.Fatalf("pending other: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("clear must not touch other services, got %d", len(other))
	}
}
