package storage

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dappvibe/defi-lp-manager/internal/model"
)

func TestMemoryStoreMessagesByPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	ids := []string{
		model.PoolMessageID(pool),
		model.PositionMessageID(1),
		model.PositionMessageID(2),
		model.RangeMessageID(1),
	}
	for i, id := range ids {
		err := s.PutMessage(ctx, model.TrackedMessage{
			ID:        id,
			ChatID:    100,
			MessageID: i + 1,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	positions, err := s.MessagesByPrefix(ctx, model.CategoryPosition+"_")
	if err != nil {
		t.Fatalf("prefix scan: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("position messages = %d, want 2", len(positions))
	}

	pools, err := s.MessagesByPrefix(ctx, model.CategoryPool+"_")
	if err != nil {
		t.Fatalf("prefix scan: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("pool messages = %d, want 1", len(pools))
	}
}

func TestMemoryStoreMessageRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	msg := model.TrackedMessage{
		ID:        model.PositionMessageID(7),
		ChatID:    42,
		MessageID: 9,
		Checksum:  12345,
		Meta:      map[string]string{"wallet": "0xabc"},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.PutMessage(ctx, msg); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := s.GetMessage(ctx, msg.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Checksum != msg.Checksum || got.Meta["wallet"] != "0xabc" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := s.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetMessage(ctx, msg.ID); ok {
		t.Fatal("message survived delete")
	}
}

func TestMemoryStoreAlerts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	poolA := common.HexToAddress("0x1111111111111111111111111111111111111111")
	poolB := common.HexToAddress("0x2222222222222222222222222222222222222222")

	a := model.PriceAlert{ID: model.AlertID(poolA, 1, decimal.NewFromInt(100)), Pool: poolA, ChatID: 1, Target: decimal.NewFromInt(100)}
	b := model.PriceAlert{ID: model.AlertID(poolB, 1, decimal.NewFromInt(200)), Pool: poolB, ChatID: 1, Target: decimal.NewFromInt(200)}
	for _, alert := range []model.PriceAlert{a, b} {
		if err := s.PutAlert(ctx, alert); err != nil {
			t.Fatalf("put alert: %v", err)
		}
	}

	byPool, err := s.AlertsByPool(ctx, poolA)
	if err != nil {
		t.Fatalf("alerts by pool: %v", err)
	}
	if len(byPool) != 1 || byPool[0].ID != a.ID {
		t.Fatalf("alerts by pool = %+v", byPool)
	}

	all, err := s.Alerts(ctx)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("alerts = %d, want 2", len(all))
	}

	if err := s.DeleteAlert(ctx, a.ID); err != nil {
		t.Fatalf("delete alert: %v", err)
	}
	if remaining, _ := s.Alerts(ctx); len(remaining) != 1 {
		t.Fatalf("alerts after delete = %d, want 1", len(remaining))
	}
}

func TestMemoryStoreWallets(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")
	wallet := model.MonitoredWallet{
		Address:   addr,
		ChatIDs:   []int64{10, 20},
		CreatedAt: time.Now(),
	}
	if err := s.PutWallet(ctx, wallet); err != nil {
		t.Fatalf("put wallet: %v", err)
	}

	got, ok, err := s.GetWallet(ctx, addr)
	if err != nil || !ok {
		t.Fatalf("get wallet: ok=%v err=%v", ok, err)
	}
	if !got.HasChat(10) || !got.HasChat(20) || got.HasChat(30) {
		t.Fatalf("chat ids mismatch: %+v", got.ChatIDs)
	}

	wallets, err := s.Wallets(ctx)
	if err != nil || len(wallets) != 1 {
		t.Fatalf("wallets: %v (%d)", err, len(wallets))
	}

	if err := s.DeleteWallet(ctx, addr); err != nil {
		t.Fatalf("delete wallet: %v", err)
	}
	if _, ok, _ := s.GetWallet(ctx, addr); ok {
		t.Fatal("wallet survived delete")
	}
}
