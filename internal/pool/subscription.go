package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/dappvibe/defi-lp-manager/internal/dex"
	"github.com/dappvibe/defi-lp-manager/internal/model"
)

const logBuffer = 64

// LogSubscriber opens live log subscriptions. Implemented by chain.Client.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error)
}

// SwapHandler receives decoded swap events.
type SwapHandler func(model.SwapObserved)

// DownHandler is notified when a pool's subscription dies for good.
type DownHandler func(pool common.Address, err error)

// SubscriptionManager keeps at most one chain subscription per pool,
// refcounted across consumers. The first Watch opens the subscription,
// the last Unwatch tears it down.
type SubscriptionManager struct {
	subscriber   LogSubscriber
	decoder      *dex.SwapDecoder
	onSwap       SwapHandler
	onDown       DownHandler
	logger       *zap.Logger
	maxRetries   int
	retryBackoff time.Duration

	mu   sync.Mutex
	subs map[common.Address]*poolSub
}

type poolSub struct {
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSubscriptionManager builds a manager. onSwap receives every decoded
// swap; onDown fires when a subscription fails past its retry budget.
func NewSubscriptionManager(subscriber LogSubscriber, decoder *dex.SwapDecoder, onSwap SwapHandler, onDown DownHandler, maxRetries int, retryBackoff time.Duration, logger *zap.Logger) *SubscriptionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if onDown == nil {
		onDown = func(common.Address, error) {}
	}
	return &SubscriptionManager{
		subscriber:   subscriber,
		decoder:      decoder,
		onSwap:       onSwap,
		onDown:       onDown,
		logger:       logger,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		subs:         make(map[common.Address]*poolSub),
	}
}

// Watch registers interest in a pool's swaps. Re-watching an already
// subscribed pool only bumps its refcount.
func (m *SubscriptionManager) Watch(ctx context.Context, pool common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subs[pool]; ok {
		sub.refs++
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &poolSub{refs: 1, cancel: cancel, done: make(chan struct{})}
	m.subs[pool] = sub

	go m.run(subCtx, pool, sub)
	return nil
}

// Unwatch drops one reference. The chain subscription closes when the
// last reference is gone. Unwatching an unknown pool is a no-op.
func (m *SubscriptionManager) Unwatch(pool common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[pool]
	if !ok {
		return
	}
	sub.refs--
	if sub.refs > 0 {
		return
	}
	sub.cancel()
	delete(m.subs, pool)
}

// Watched lists pools with live subscriptions.
func (m *SubscriptionManager) Watched() []common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]common.Address, 0, len(m.subs))
	for pool := range m.subs {
		out = append(out, pool)
	}
	return out
}

// Close tears down every subscription and waits for their loops to exit.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	subs := make([]*poolSub, 0, len(m.subs))
	for pool, sub := range m.subs {
		sub.cancel()
		subs = append(subs, sub)
		delete(m.subs, pool)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
}

// run owns one pool's subscription: it dispatches decoded swaps and
// reconnects with exponential backoff when the stream drops. Malformed
// logs are skipped, never fatal.
func (m *SubscriptionManager) run(ctx context.Context, pool common.Address, sub *poolSub) {
	defer close(sub.done)

	delay := m.retryBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	attempts := 0

	for {
		err := m.stream(ctx, pool)
		if ctx.Err() != nil {
			return
		}

		attempts++
		if attempts > m.maxRetries {
			m.logger.Error("pool subscription gave up",
				zap.String("pool", pool.Hex()),
				zap.Int("attempts", attempts),
				zap.Error(err))
			m.remove(pool)
			m.onDown(pool, err)
			return
		}

		m.logger.Warn("pool subscription dropped, reconnecting",
			zap.String("pool", pool.Hex()),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay *= 2
	}
}

func (m *SubscriptionManager) stream(ctx context.Context, pool common.Address) error {
	ch := make(chan types.Log, logBuffer)
	chainSub, err := m.subscriber.SubscribeLogs(ctx, []common.Address{pool}, []common.Hash{m.decoder.Topic0()}, ch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", pool.Hex(), err)
	}
	defer chainSub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-chainSub.Err():
			return fmt.Errorf("subscription %s: %w", pool.Hex(), err)
		case log := <-ch:
			swap, err := m.decoder.Decode(log)
			if err != nil {
				m.logger.Warn("skipping malformed log",
					zap.String("pool", pool.Hex()),
					zap.Uint64("block", log.BlockNumber),
					zap.Error(err))
				continue
			}
			m.onSwap(swap)
		}
	}
}

func (m *SubscriptionManager) remove(pool common.Address) {
	m.mu.Lock()
	if sub, ok := m.subs[pool]; ok {
		sub.cancel()
		delete(m.subs, pool)
	}
	m.mu.Unlock()
}
