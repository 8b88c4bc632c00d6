package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dappvibe/defi-lp-manager/internal/chain"
	"github.com/dappvibe/defi-lp-manager/internal/dex"
	"github.com/dappvibe/defi-lp-manager/internal/model"
	"github.com/dappvibe/defi-lp-manager/internal/uniswap"
)

// TVL holds a pool's token balances in human units. Either side may be
// zero when the balance call failed; rendering treats that as unknown.
type TVL struct {
	Amount0 decimal.Decimal
	Amount1 decimal.Decimal
}

// Accessor reads pool state from chain. Immutable metadata is cached
// forever; price state is cached for a short TTL so bursts of reads
// between swaps do not hammer the RPC endpoint.
type Accessor struct {
	chain   *chain.Client
	tokens  *dex.TokenCache
	logger  *zap.Logger
	chainID uint64
	ttl     time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	infos  map[common.Address]dex.PoolInfo
	states map[common.Address]cachedState
}

type cachedState struct {
	state model.PoolState
	at    time.Time
}

// NewAccessor builds a pool accessor. ttl bounds the staleness of price
// reads served from cache.
func NewAccessor(chainClient *chain.Client, chainID uint64, ttl time.Duration, logger *zap.Logger) *Accessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accessor{
		chain:   chainClient,
		tokens:  dex.NewTokenCache(),
		logger:  logger,
		chainID: chainID,
		ttl:     ttl,
		now:     time.Now,
		infos:   make(map[common.Address]dex.PoolInfo),
		states:  make(map[common.Address]cachedState),
	}
}

// Info returns the immutable pool metadata, fetching it on first use.
func (a *Accessor) Info(ctx context.Context, pool common.Address) (dex.PoolInfo, error) {
	a.mu.RLock()
	info, ok := a.infos[pool]
	a.mu.RUnlock()
	if ok {
		return info, nil
	}

	info, err := dex.FetchPoolInfo(ctx, a.chain, pool, a.tokens, a.logger)
	if err != nil {
		return dex.PoolInfo{}, fmt.Errorf("fetch pool info %s: %w", pool.Hex(), err)
	}

	a.mu.Lock()
	a.infos[pool] = info
	a.mu.Unlock()
	return info, nil
}

// State returns the pool's current state, served from cache when fresher
// than the TTL.
func (a *Accessor) State(ctx context.Context, pool common.Address) (model.PoolState, error) {
	a.mu.RLock()
	cached, ok := a.states[pool]
	a.mu.RUnlock()
	if ok && a.now().Sub(cached.at) < a.ttl {
		return cached.state, nil
	}

	info, err := a.Info(ctx, pool)
	if err != nil {
		return model.PoolState{}, err
	}

	slot0, err := dex.FetchSlot0(ctx, a.chain, pool)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("fetch slot0 %s: %w", pool.Hex(), err)
	}

	price, err := uniswap.PriceFromSqrt(slot0.SqrtPriceX96, info.Token0.Decimals, info.Token1.Decimals, uniswap.DisplayDecimals)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("price for %s: %w", pool.Hex(), err)
	}

	state := model.PoolState{
		ChainID:      a.chainID,
		Address:      pool,
		Token0:       info.Token0,
		Token1:       info.Token1,
		Fee:          info.Fee,
		TickSpacing:  info.TickSpacing,
		SqrtPriceX96: slot0.SqrtPriceX96,
		Tick:         slot0.Tick,
		Liquidity:    slot0.Liquidity,
		Price:        price,
		ObservedAt:   a.now(),
	}
	if block, err := a.chain.LatestBlockNumber(ctx); err == nil {
		state.Block = block
	} else {
		a.logger.Warn("latest block read failed", zap.String("pool", pool.Hex()), zap.Error(err))
	}

	a.mu.Lock()
	a.states[pool] = cachedState{state: state, at: a.now()}
	a.mu.Unlock()
	return state, nil
}

// ApplySwap folds a swap event into the cached pool state without an RPC
// round trip and returns the updated snapshot.
func (a *Accessor) ApplySwap(ctx context.Context, swap model.SwapObserved) (model.PoolState, error) {
	info, err := a.Info(ctx, swap.Pool)
	if err != nil {
		return model.PoolState{}, err
	}

	price, err := uniswap.PriceFromSqrt(swap.SqrtPriceX96, info.Token0.Decimals, info.Token1.Decimals, uniswap.DisplayDecimals)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("price for %s: %w", swap.Pool.Hex(), err)
	}

	base := model.PoolState{
		ChainID:     a.chainID,
		Address:     swap.Pool,
		Token0:      info.Token0,
		Token1:      info.Token1,
		Fee:         info.Fee,
		TickSpacing: info.TickSpacing,
	}
	state := base.WithSwap(swap, price)

	// Chain time for the swap's block; the header is cached per block so
	// a burst of swaps costs one lookup.
	if ts, err := a.chain.BlockTimestamp(ctx, swap.BlockNumber); err == nil {
		state.ObservedAt = time.Unix(int64(ts), 0)
	} else {
		a.logger.Warn("block timestamp read failed",
			zap.String("pool", swap.Pool.Hex()),
			zap.Uint64("block", swap.BlockNumber),
			zap.Error(err))
		state.ObservedAt = a.now()
	}

	a.mu.Lock()
	a.states[swap.Pool] = cachedState{state: state, at: a.now()}
	a.mu.Unlock()
	return state, nil
}

// TVL reads the pool's token balances. Each side fails soft: on error it
// stays zero and the failure is logged, so a flaky token contract cannot
// block price updates.
func (a *Accessor) TVL(ctx context.Context, pool common.Address) (TVL, error) {
	info, err := a.Info(ctx, pool)
	if err != nil {
		return TVL{}, err
	}

	var tvl TVL
	if bal, err := dex.FetchTokenBalance(ctx, a.chain, info.Token0.Address, pool); err == nil {
		tvl.Amount0 = uniswap.HumanAmount(bal, info.Token0.Decimals)
	} else {
		a.logger.Warn("token0 balance failed", zap.String("pool", pool.Hex()), zap.Error(err))
	}
	if bal, err := dex.FetchTokenBalance(ctx, a.chain, info.Token1.Address, pool); err == nil {
		tvl.Amount1 = uniswap.HumanAmount(bal, info.Token1.Decimals)
	} else {
		a.logger.Warn("token1 balance failed", zap.String("pool", pool.Hex()), zap.Error(err))
	}
	return tvl, nil
}
