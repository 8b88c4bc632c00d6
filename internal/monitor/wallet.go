package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dappvibe/defi-lp-manager/internal/dex"
	"github.com/dappvibe/defi-lp-manager/internal/model"
	"github.com/dappvibe/defi-lp-manager/internal/position"
)

func (s *Service) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.WalletPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollWallets(ctx)
		}
	}
}

// pollWallets runs a scan cycle. One wallet failing, typically an RPC
// hiccup mid-enumeration, must not starve the others.
func (s *Service) pollWallets(ctx context.Context) {
	wallets, err := s.store.Wallets(ctx)
	if err != nil {
		s.logger.Error("wallet list load failed", zap.Error(err))
		return
	}

	for _, wallet := range wallets {
		if ctx.Err() != nil {
			return
		}
		if err := s.pollWallet(ctx, wallet); err != nil {
			s.logger.Error("wallet scan failed",
				zap.String("wallet", wallet.Address.Hex()),
				zap.Error(err))
		}
	}
}

// pollWallet rescans one wallet's positions, diffs against the stored
// snapshot, announces lifecycle changes, and reconciles the per-position
// status messages.
func (s *Service) pollWallet(ctx context.Context, wallet model.MonitoredWallet) error {
	raws, err := s.fetcher.WalletPositions(ctx, wallet.Address)
	if err != nil {
		return fmt.Errorf("enumerate positions: %w", err)
	}

	prev := make(map[uint64]model.Position, len(wallet.Snapshot))
	for _, pos := range wallet.Snapshot {
		prev[pos.ID] = pos
	}

	current := make([]model.Position, 0, len(raws))
	for _, raw := range raws {
		poolAddr, err := s.resolvePool(ctx, raw)
		if err != nil {
			s.logger.Warn("pool lookup failed",
				zap.Uint64("position", raw.ID),
				zap.Error(err))
			continue
		}
		state, err := s.accessor.State(ctx, poolAddr)
		if err != nil {
			s.logger.Warn("pool state read failed",
				zap.Uint64("position", raw.ID),
				zap.String("pool", poolAddr.Hex()),
				zap.Error(err))
			continue
		}

		createdAt := s.now()
		if old, ok := prev[raw.ID]; ok {
			createdAt = old.CreatedAt
		}
		pos, err := position.Derive(raw, poolAddr, state, createdAt)
		if err != nil {
			s.logger.Warn("position derive failed",
				zap.Uint64("position", raw.ID),
				zap.Error(err))
			continue
		}
		current = append(current, pos)
	}

	changes, tracked := s.tracker.Diff(wallet.Snapshot, current)
	s.applyChanges(ctx, wallet.ChatIDs, changes)
	s.registerPositions(wallet.ChatIDs, tracked)

	if len(wallet.ChatIDs) > 0 {
		primary := wallet.ChatIDs[0]
		for _, pos := range tracked {
			err := s.engine.Reconcile(ctx, model.PositionMessageID(pos.ID), primary,
				renderPosition(pos, s.now(), s.cfg.ExplorerURL), true,
				map[string]string{"wallet": wallet.Address.Hex()})
			if err != nil {
				s.logger.Warn("position message update failed",
					zap.Uint64("position", pos.ID),
					zap.Error(err))
			}
		}
	}

	wallet.Snapshot = tracked
	if err := s.store.PutWallet(ctx, wallet); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// applyChanges announces lifecycle transitions and keeps the range
// warning messages in step with them.
func (s *Service) applyChanges(ctx context.Context, chatIDs []int64, changes []model.PositionChange) {
	for _, change := range changes {
		s.notify(ctx, chatIDs, renderPositionChange(change))

		switch change.Type {
		case model.ChangeRemove:
			s.dropPosition(ctx, change.Position.ID)
		case model.ChangeRange:
			if len(chatIDs) > 0 {
				s.reconcileRangeMessage(ctx, change.Position, chatIDs[0])
			}
		}
	}
}

// resolvePool maps a position's token pair and fee tier to its pool
// address, caching lookups since the mapping is immutable on chain.
func (s *Service) resolvePool(ctx context.Context, raw dex.RawPosition) (common.Address, error) {
	key := fmt.Sprintf("%s|%s|%d", raw.Token0.Hex(), raw.Token1.Hex(), raw.Fee)

	s.mu.Lock()
	addr, ok := s.pools[key]
	s.mu.Unlock()
	if ok {
		return addr, nil
	}

	addr, err := s.fetcher.PoolFor(ctx, raw.Token0, raw.Token1, raw.Fee)
	if err != nil {
		return common.Address{}, err
	}

	s.mu.Lock()
	s.pools[key] = addr
	s.mu.Unlock()
	return addr, nil
}
