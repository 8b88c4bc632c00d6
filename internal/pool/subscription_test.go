package pool

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/dappvibe/defi-lp-manager/internal/dex"
	"github.com/dappvibe/defi-lp-manager/internal/model"
)

type fakeChainSub struct {
	errCh chan error
}

func (s *fakeChainSub) Unsubscribe()        {}
func (s *fakeChainSub) Err() <-chan error   { return s.errCh }

type fakeSubscriber struct {
	mu    sync.Mutex
	calls int
	ch    chan<- types.Log
	errCh chan error
}

func (f *fakeSubscriber) SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ch = ch
	f.errCh = make(chan error, 1)
	return &fakeChainSub{errCh: f.errCh}, nil
}

func (f *fakeSubscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSubscriber) push(t *testing.T, log types.Log) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		ch := f.ch
		f.mu.Unlock()
		if ch != nil {
			ch <- log
			return
		}
		select {
		case <-deadline:
			t.Fatal("subscription never opened")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never met")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func swapLog(t *testing.T, decoder *dex.SwapDecoder, pool common.Address, tick int64) types.Log {
	t.Helper()
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(tick),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address: pool,
		Topics: []common.Hash{
			decoder.Topic0(),
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(sender.Bytes()),
		},
		Data:        data,
		BlockNumber: 100,
	}
}

func newTestManager(t *testing.T, subscriber LogSubscriber, onSwap SwapHandler, onDown DownHandler) *SubscriptionManager {
	t.Helper()
	decoder, err := dex.NewSwapDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return NewSubscriptionManager(subscriber, decoder, onSwap, onDown, 0, time.Millisecond, zap.NewNop())
}

func TestSubscriptionManagerRefcount(t *testing.T) {
	subscriber := &fakeSubscriber{}
	mgr := newTestManager(t, subscriber, func(model.SwapObserved) {}, nil)
	defer mgr.Close()

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	ctx := context.Background()

	if err := mgr.Watch(ctx, pool); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := mgr.Watch(ctx, pool); err != nil {
		t.Fatalf("watch again: %v", err)
	}
	waitFor(t, func() bool { return subscriber.callCount() == 1 })

	if got := subscriber.callCount(); got != 1 {
		t.Fatalf("subscribe calls = %d, want 1", got)
	}
	if len(mgr.Watched()) != 1 {
		t.Fatalf("watched = %d, want 1", len(mgr.Watched()))
	}

	mgr.Unwatch(pool)
	if len(mgr.Watched()) != 1 {
		t.Fatal("subscription torn down while still referenced")
	}

	mgr.Unwatch(pool)
	if len(mgr.Watched()) != 0 {
		t.Fatal("subscription survived last unwatch")
	}
}

func TestSubscriptionManagerDispatchesSwaps(t *testing.T) {
	subscriber := &fakeSubscriber{}
	received := make(chan model.SwapObserved, 1)
	mgr := newTestManager(t, subscriber, func(swap model.SwapObserved) { received <- swap }, nil)
	defer mgr.Close()

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	if err := mgr.Watch(context.Background(), pool); err != nil {
		t.Fatalf("watch: %v", err)
	}

	decoder, _ := dex.NewSwapDecoder()
	subscriber.push(t, swapLog(t, decoder, pool, -15))

	select {
	case swap := <-received:
		if swap.Pool != pool || swap.Tick != -15 {
			t.Fatalf("unexpected swap: %+v", swap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("swap never dispatched")
	}
}

func TestSubscriptionManagerSkipsMalformedLogs(t *testing.T) {
	subscriber := &fakeSubscriber{}
	received := make(chan model.SwapObserved, 2)
	mgr := newTestManager(t, subscriber, func(swap model.SwapObserved) { received <- swap }, nil)
	defer mgr.Close()

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	if err := mgr.Watch(context.Background(), pool); err != nil {
		t.Fatalf("watch: %v", err)
	}

	decoder, _ := dex.NewSwapDecoder()
	bad := swapLog(t, decoder, pool, 5)
	bad.Data = []byte{0x01}
	subscriber.push(t, bad)
	subscriber.push(t, swapLog(t, decoder, pool, 7))

	select {
	case swap := <-received:
		if swap.Tick != 7 {
			t.Fatalf("malformed log was dispatched: %+v", swap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("good swap never dispatched")
	}
}

func TestSubscriptionManagerNotifiesOnFailure(t *testing.T) {
	subscriber := &fakeSubscriber{}
	down := make(chan common.Address, 1)
	mgr := newTestManager(t, subscriber, func(model.SwapObserved) {}, func(pool common.Address, err error) {
		down <- pool
	})
	defer mgr.Close()

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	if err := mgr.Watch(context.Background(), pool); err != nil {
		t.Fatalf("watch: %v", err)
	}
	waitFor(t, func() bool { return subscriber.callCount() == 1 })

	subscriber.mu.Lock()
	subscriber.errCh <- context.DeadlineExceeded
	subscriber.mu.Unlock()

	select {
	case gone := <-down:
		if gone != pool {
			t.Fatalf("down pool = %s, want %s", gone.Hex(), pool.Hex())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("down handler never fired")
	}
	waitFor(t, func() bool { return len(mgr.Watched()) == 0 })
}
