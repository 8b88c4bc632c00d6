package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dappvibe/defi-lp-manager/internal/alert"
	"github.com/dappvibe/defi-lp-manager/internal/dex"
	"github.com/dappvibe/defi-lp-manager/internal/model"
	"github.com/dappvibe/defi-lp-manager/internal/pool"
	"github.com/dappvibe/defi-lp-manager/internal/position"
	"github.com/dappvibe/defi-lp-manager/internal/storage"
)

const tvlTTL = 30 * time.Second

// PoolReader serves pool state and balances. Implemented by
// pool.Accessor.
type PoolReader interface {
	State(ctx context.Context, poolAddr common.Address) (model.PoolState, error)
	ApplySwap(ctx context.Context, swap model.SwapObserved) (model.PoolState, error)
	TVL(ctx context.Context, poolAddr common.Address) (pool.TVL, error)
}

// PositionSource enumerates a wallet's liquidity positions. Implemented
// by dex.PositionFetcher.
type PositionSource interface {
	WalletPositions(ctx context.Context, wallet common.Address) ([]dex.RawPosition, error)
	PoolFor(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Address, error)
}

// Config carries the monitoring knobs.
type Config struct {
	ExplorerURL  string
	Dust         decimal.Decimal
	WalletPoll   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

type trackedPosition struct {
	pos     model.Position
	chatIDs []int64
}

type tvlEntry struct {
	tvl pool.TVL
	at  time.Time
}

// Service is the monitoring orchestrator. It owns the in-memory
// registries of tracked pools, positions, and alerts; everything in them
// is rebuildable from the store plus the chain, so a restart starts with
// Restore and continues where it left off.
type Service struct {
	cfg       Config
	store     storage.Store
	accessor  PoolReader
	fetcher   PositionSource
	engine    *Engine
	transport Transport
	evaluator *alert.Evaluator
	tracker   *position.Tracker
	subs      *pool.SubscriptionManager
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	started   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	poolMsgs  map[common.Address]int64
	positions map[uint64]trackedPosition
	byPool    map[common.Address]map[uint64]struct{}
	alertRefs map[common.Address]int
	pools     map[string]common.Address
	tvls      map[common.Address]tvlEntry
}

// NewService wires the monitoring core together. subscriber is the live
// log source, normally the chain client.
func NewService(cfg Config, store storage.Store, accessor PoolReader, fetcher PositionSource, subscriber pool.LogSubscriber, engine *Engine, transport Transport, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:       cfg,
		store:     store,
		accessor:  accessor,
		fetcher:   fetcher,
		engine:    engine,
		transport: transport,
		evaluator: alert.NewEvaluator(),
		tracker:   position.NewTracker(cfg.Dust),
		logger:    logger,
		now:       time.Now,
		poolMsgs:  make(map[common.Address]int64),
		positions: make(map[uint64]trackedPosition),
		byPool:    make(map[common.Address]map[uint64]struct{}),
		alertRefs: make(map[common.Address]int),
		pools:     make(map[string]common.Address),
		tvls:      make(map[common.Address]tvlEntry),
	}

	decoder, err := dex.NewSwapDecoder()
	if err != nil {
		return nil, err
	}
	s.subs = pool.NewSubscriptionManager(subscriber, decoder, s.handleSwap, s.handlePoolDown, cfg.MaxRetries, cfg.RetryBackoff, logger)
	return s, nil
}

// Start restores persisted state and begins the wallet poll loop.
// Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.started = true
	runCtx := s.runCtx
	s.mu.Unlock()

	if err := s.restore(runCtx); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	s.wg.Add(1)
	go s.pollLoop(runCtx)
	return nil
}

// Stop tears down subscriptions and waits for the poll loop. Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.subs.Close()
	s.wg.Wait()
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// TrackPool attaches a live price message for a pool to a chat. A pool
// has at most one live price message, so a second chat asking for an
// already tracked pool is rejected instead of silently stealing it.
func (s *Service) TrackPool(ctx context.Context, chatID int64, poolAddr common.Address) error {
	state, err := s.accessor.State(ctx, poolAddr)
	if err != nil {
		return fmt.Errorf("pool %s: %w", poolAddr.Hex(), err)
	}

	s.mu.Lock()
	owner, existed := s.poolMsgs[poolAddr]
	if existed && owner != chatID {
		s.mu.Unlock()
		return fmt.Errorf("pool %s is already tracked in another chat", poolAddr.Hex())
	}
	s.poolMsgs[poolAddr] = chatID
	s.mu.Unlock()

	if !existed {
		if err := s.subs.Watch(s.runContext(), poolAddr); err != nil {
			return fmt.Errorf("subscribe %s: %w", poolAddr.Hex(), err)
		}
	}

	tvl := s.poolTVL(ctx, poolAddr)
	return s.engine.Reconcile(ctx, model.PoolMessageID(poolAddr), chatID,
		renderPool(state, tvl, s.cfg.ExplorerURL), false,
		map[string]string{"pool": poolAddr.Hex()})
}

// WatchWallet registers a wallet for position tracking in a chat and
// runs an immediate scan so the user gets feedback right away.
func (s *Service) WatchWallet(ctx context.Context, chatID int64, addr common.Address) error {
	wallet, ok, err := s.store.GetWallet(ctx, addr)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	if !ok {
		wallet = model.MonitoredWallet{Address: addr, CreatedAt: s.now()}
	}
	if !wallet.HasChat(chatID) {
		wallet.ChatIDs = append(wallet.ChatIDs, chatID)
	}
	if err := s.store.PutWallet(ctx, wallet); err != nil {
		return fmt.Errorf("persist wallet: %w", err)
	}

	if err := s.pollWallet(ctx, wallet); err != nil {
		return fmt.Errorf("initial wallet scan: %w", err)
	}
	return nil
}

// UnwatchWallet detaches a chat from a wallet. When the last chat is
// gone the wallet's positions stop being monitored and their messages
// are removed.
func (s *Service) UnwatchWallet(ctx context.Context, chatID int64, addr common.Address) error {
	wallet, ok, err := s.store.GetWallet(ctx, addr)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	if !ok {
		return fmt.Errorf("wallet %s is not monitored", addr.Hex())
	}

	kept := wallet.ChatIDs[:0]
	for _, id := range wallet.ChatIDs {
		if id != chatID {
			kept = append(kept, id)
		}
	}
	wallet.ChatIDs = kept

	if len(wallet.ChatIDs) > 0 {
		return s.store.PutWallet(ctx, wallet)
	}

	for _, pos := range wallet.Snapshot {
		s.dropPosition(ctx, pos.ID)
	}
	if err := s.store.DeleteWallet(ctx, addr); err != nil {
		return fmt.Errorf("drop wallet: %w", err)
	}
	return nil
}

// AddAlert registers a one-shot price alert and subscribes its pool.
func (s *Service) AddAlert(ctx context.Context, chatID int64, poolAddr common.Address, target decimal.Decimal) error {
	state, err := s.accessor.State(ctx, poolAddr)
	if err != nil {
		return fmt.Errorf("pool %s: %w", poolAddr.Hex(), err)
	}

	a := model.PriceAlert{
		ID:        model.AlertID(poolAddr, chatID, target),
		Pool:      poolAddr,
		ChatID:    chatID,
		Target:    target,
		CreatedAt: s.now(),
	}

	// The store upserts by id, so a repeated /notify with the same
	// target must not bump the refcount a second time.
	existing, err := s.store.AlertsByPool(ctx, poolAddr)
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}
	duplicate := false
	for _, e := range existing {
		if e.ID == a.ID {
			duplicate = true
			break
		}
	}

	if err := s.store.PutAlert(ctx, a); err != nil {
		return fmt.Errorf("persist alert: %w", err)
	}

	if !duplicate {
		s.mu.Lock()
		s.alertRefs[poolAddr]++
		first := s.alertRefs[poolAddr] == 1
		s.mu.Unlock()
		if first {
			if err := s.subs.Watch(s.runContext(), poolAddr); err != nil {
				return fmt.Errorf("subscribe %s: %w", poolAddr.Hex(), err)
			}
		}
	}

	_, err = s.transport.Send(ctx, chatID,
		fmt.Sprintf("🔔 Alert set: <b>%s</b> at %s (now %s)", state.PairLabel(), target.String(), state.Price.String()))
	return err
}

// List summarizes what a chat is tracking.
func (s *Service) List(ctx context.Context, chatID int64) (string, error) {
	var b strings.Builder

	s.mu.Lock()
	for addr, chat := range s.poolMsgs {
		if chat == chatID {
			fmt.Fprintf(&b, "Pool %s\n", addr.Hex())
		}
	}
	s.mu.Unlock()

	wallets, err := s.store.Wallets(ctx)
	if err != nil {
		return "", fmt.Errorf("load wallets: %w", err)
	}
	for _, w := range wallets {
		if w.HasChat(chatID) {
			fmt.Fprintf(&b, "Wallet %s (%d positions)\n", w.Address.Hex(), len(w.Snapshot))
		}
	}

	alerts, err := s.store.Alerts(ctx)
	if err != nil {
		return "", fmt.Errorf("load alerts: %w", err)
	}
	for _, a := range alerts {
		if a.ChatID == chatID {
			fmt.Fprintf(&b, "Alert %s at %s\n", a.Pool.Hex(), a.Target.String())
		}
	}

	if b.Len() == 0 {
		return "Nothing tracked in this chat yet. Try /pool or /wallet.", nil
	}
	return "<b>Tracking</b>\n" + b.String(), nil
}

// handleSwap is the per-pool event handler. Failures in one stage are
// isolated so a bad position or store hiccup cannot stop price updates
// for other consumers.
func (s *Service) handleSwap(swap model.SwapObserved) {
	ctx := s.runContext()
	if ctx.Err() != nil {
		return
	}

	state, err := s.accessor.ApplySwap(ctx, swap)
	if err != nil {
		s.logger.Warn("swap state update failed",
			zap.String("pool", swap.Pool.Hex()),
			zap.Error(err))
		return
	}

	s.reconcilePoolMessage(ctx, state)
	s.refreshPositions(ctx, state)
	s.fireAlerts(ctx, state)
}

func (s *Service) reconcilePoolMessage(ctx context.Context, state model.PoolState) {
	s.mu.Lock()
	chatID, ok := s.poolMsgs[state.Address]
	s.mu.Unlock()
	if !ok {
		return
	}

	tvl := s.poolTVL(ctx, state.Address)
	err := s.engine.Reconcile(ctx, model.PoolMessageID(state.Address), chatID,
		renderPool(state, tvl, s.cfg.ExplorerURL), true,
		map[string]string{"pool": state.Address.Hex()})
	if err != nil {
		s.logger.Warn("pool message update failed",
			zap.String("pool", state.Address.Hex()),
			zap.Error(err))
	}
}

func (s *Service) refreshPositions(ctx context.Context, state model.PoolState) {
	s.mu.Lock()
	entries := make([]trackedPosition, 0)
	for id := range s.byPool[state.Address] {
		if entry, ok := s.positions[id]; ok {
			entries = append(entries, entry)
		}
	}
	s.mu.Unlock()

	for _, entry := range entries {
		// A wallet row can survive with no chats attached; nothing to
		// report into then.
		if len(entry.chatIDs) == 0 {
			continue
		}
		refreshed, err := position.Refresh(entry.pos, state)
		if err != nil {
			s.logger.Warn("position refresh failed",
				zap.Uint64("position", entry.pos.ID),
				zap.Error(err))
			continue
		}
		flipped := refreshed.InRange != entry.pos.InRange

		s.mu.Lock()
		if cur, ok := s.positions[refreshed.ID]; ok {
			cur.pos = refreshed
			s.positions[refreshed.ID] = cur
		}
		s.mu.Unlock()

		primary := entry.chatIDs[0]
		err = s.engine.Reconcile(ctx, model.PositionMessageID(refreshed.ID), primary,
			renderPosition(refreshed, s.now(), s.cfg.ExplorerURL), !flipped, nil)
		if err != nil {
			s.logger.Warn("position message update failed",
				zap.Uint64("position", refreshed.ID),
				zap.Error(err))
		}

		if flipped {
			s.reconcileRangeMessage(ctx, refreshed, primary)
			change := model.PositionChange{Type: model.ChangeRange, Position: refreshed, Previous: &entry.pos}
			s.notify(ctx, entry.chatIDs, renderPositionChange(change))
		}
	}
}

func (s *Service) reconcileRangeMessage(ctx context.Context, pos model.Position, chatID int64) {
	var err error
	if pos.InRange {
		err = s.engine.Remove(ctx, model.RangeMessageID(pos.ID))
	} else {
		err = s.engine.Reconcile(ctx, model.RangeMessageID(pos.ID), chatID, renderRangeAlert(pos), false, nil)
	}
	if err != nil {
		s.logger.Warn("range message update failed",
			zap.Uint64("position", pos.ID),
			zap.Error(err))
	}
}

// fireAlerts evaluates alerts against the new price. A fired alert is
// removed from the store before the notification goes out, so a crash
// in between suppresses rather than duplicates it.
func (s *Service) fireAlerts(ctx context.Context, state model.PoolState) {
	alerts, err := s.store.AlertsByPool(ctx, state.Address)
	if err != nil {
		s.logger.Warn("alert load failed",
			zap.String("pool", state.Address.Hex()),
			zap.Error(err))
		return
	}

	for _, fired := range s.evaluator.Evaluate(state.Address, state.Price, alerts) {
		if err := s.store.DeleteAlert(ctx, fired.ID); err != nil {
			s.logger.Warn("alert consume failed", zap.String("alert", fired.ID), zap.Error(err))
			continue
		}
		s.releaseAlertRef(fired.Pool)
		if _, err := s.transport.Send(ctx, fired.ChatID, renderAlert(fired, state.Price, state)); err != nil {
			s.logger.Warn("alert notify failed", zap.String("alert", fired.ID), zap.Error(err))
		}
	}
}

func (s *Service) releaseAlertRef(poolAddr common.Address) {
	s.mu.Lock()
	s.alertRefs[poolAddr]--
	last := s.alertRefs[poolAddr] <= 0
	if last {
		delete(s.alertRefs, poolAddr)
	}
	s.mu.Unlock()
	if last {
		s.subs.Unwatch(poolAddr)
	}
}

// handlePoolDown reacts to a subscription that exhausted its retries:
// price state for the pool is forgotten and the owning chat warned.
func (s *Service) handlePoolDown(poolAddr common.Address, err error) {
	ctx := s.runContext()
	s.evaluator.Forget(poolAddr)

	s.mu.Lock()
	chatID, ok := s.poolMsgs[poolAddr]
	s.mu.Unlock()

	s.logger.Error("pool monitoring stopped",
		zap.String("pool", poolAddr.Hex()),
		zap.Error(err))
	if ok && ctx.Err() == nil {
		if _, sendErr := s.transport.Send(ctx, chatID,
			fmt.Sprintf("⚠️ Live updates for pool %s stopped. Use /pool to restart.", poolAddr.Hex())); sendErr != nil {
			s.logger.Warn("down notice failed", zap.Int64("chat", chatID), zap.Error(sendErr))
		}
	}
}

func (s *Service) poolTVL(ctx context.Context, poolAddr common.Address) pool.TVL {
	s.mu.Lock()
	entry, ok := s.tvls[poolAddr]
	s.mu.Unlock()
	if ok && s.now().Sub(entry.at) < tvlTTL {
		return entry.tvl
	}

	tvl, err := s.accessor.TVL(ctx, poolAddr)
	if err != nil {
		// Presentational only; render without it.
		s.logger.Warn("tvl read failed", zap.String("pool", poolAddr.Hex()), zap.Error(err))
		return pool.TVL{}
	}

	s.mu.Lock()
	s.tvls[poolAddr] = tvlEntry{tvl: tvl, at: s.now()}
	s.mu.Unlock()
	return tvl
}

func (s *Service) notify(ctx context.Context, chatIDs []int64, text string) {
	for _, chatID := range chatIDs {
		if _, err := s.transport.Send(ctx, chatID, text); err != nil {
			s.logger.Warn("notification failed", zap.Int64("chat", chatID), zap.Error(err))
		}
	}
}

// restore rebuilds in-memory registries from the store. Rows that no
// longer resolve to a live entity are pruned with a warning instead of
// failing startup.
func (s *Service) restore(ctx context.Context) error {
	wallets, err := s.store.Wallets(ctx)
	if err != nil {
		return fmt.Errorf("load wallets: %w", err)
	}
	for _, wallet := range wallets {
		s.registerPositions(wallet.ChatIDs, wallet.Snapshot)
	}

	poolMsgs, err := s.store.MessagesByPrefix(ctx, model.CategoryPool+"_")
	if err != nil {
		return fmt.Errorf("scan pool messages: %w", err)
	}
	for _, msg := range poolMsgs {
		addrHex := strings.TrimPrefix(msg.ID, model.CategoryPool+"_")
		if !common.IsHexAddress(addrHex) {
			s.pruneMessage(ctx, msg.ID, "unparseable pool id")
			continue
		}
		addr := common.HexToAddress(addrHex)
		if _, err := s.accessor.State(ctx, addr); err != nil {
			s.pruneMessage(ctx, msg.ID, err.Error())
			continue
		}
		s.mu.Lock()
		s.poolMsgs[addr] = msg.ChatID
		s.mu.Unlock()
		if err := s.subs.Watch(ctx, addr); err != nil {
			s.logger.Warn("pool resubscribe failed", zap.String("pool", addr.Hex()), zap.Error(err))
		}
	}

	for _, category := range []string{model.CategoryPosition, model.CategoryRange} {
		msgs, err := s.store.MessagesByPrefix(ctx, category+"_")
		if err != nil {
			return fmt.Errorf("scan %s messages: %w", category, err)
		}
		for _, msg := range msgs {
			idStr := strings.TrimPrefix(msg.ID, category+"_")
			id, err := strconv.ParseUint(idStr, 10, 64)
			if err != nil {
				s.pruneMessage(ctx, msg.ID, "unparseable position id")
				continue
			}
			s.mu.Lock()
			_, live := s.positions[id]
			s.mu.Unlock()
			if !live {
				s.pruneMessage(ctx, msg.ID, "position no longer tracked")
			}
		}
	}

	alerts, err := s.store.Alerts(ctx)
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}
	for _, a := range alerts {
		s.mu.Lock()
		s.alertRefs[a.Pool]++
		first := s.alertRefs[a.Pool] == 1
		s.mu.Unlock()
		if first {
			if err := s.subs.Watch(ctx, a.Pool); err != nil {
				s.logger.Warn("alert resubscribe failed", zap.String("pool", a.Pool.Hex()), zap.Error(err))
			}
		}
	}

	return nil
}

func (s *Service) pruneMessage(ctx context.Context, id, reason string) {
	s.logger.Warn("pruning stale tracked message",
		zap.String("id", id),
		zap.String("reason", reason))
	if err := s.store.DeleteMessage(ctx, id); err != nil {
		s.logger.Warn("prune failed", zap.String("id", id), zap.Error(err))
	}
}

// registerPositions adds positions to the live registry, opening pool
// subscriptions for newcomers. Subscriptions are bound to the service
// run context, not the caller's, so they outlive the command that
// created them.
func (s *Service) registerPositions(chatIDs []int64, positions []model.Position) {
	watch := make([]common.Address, 0)

	s.mu.Lock()
	for _, pos := range positions {
		if _, ok := s.positions[pos.ID]; !ok {
			watch = append(watch, pos.Pool)
		}
		s.positions[pos.ID] = trackedPosition{pos: pos, chatIDs: chatIDs}
		if s.byPool[pos.Pool] == nil {
			s.byPool[pos.Pool] = make(map[uint64]struct{})
		}
		s.byPool[pos.Pool][pos.ID] = struct{}{}
	}
	s.mu.Unlock()

	runCtx := s.runContext()
	for _, poolAddr := range watch {
		if err := s.subs.Watch(runCtx, poolAddr); err != nil {
			s.logger.Warn("position pool subscribe failed", zap.String("pool", poolAddr.Hex()), zap.Error(err))
		}
	}
}

// dropPosition removes a position from the registry, its messages from
// chat, and its pool reference.
func (s *Service) dropPosition(ctx context.Context, id uint64) {
	s.mu.Lock()
	entry, ok := s.positions[id]
	if ok {
		delete(s.positions, id)
		if ids := s.byPool[entry.pos.Pool]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(s.byPool, entry.pos.Pool)
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.subs.Unwatch(entry.pos.Pool)
	if err := s.engine.Remove(ctx, model.PositionMessageID(id)); err != nil {
		s.logger.Warn("position message remove failed", zap.Uint64("position", id), zap.Error(err))
	}
	if err := s.engine.Remove(ctx, model.RangeMessageID(id)); err != nil {
		s.logger.Warn("range message remove failed", zap.Uint64("position", id), zap.Error(err))
	}
}
