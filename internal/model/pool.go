package model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PoolState is an immutable snapshot of a monitored pool. Handlers replace
// the whole value on every refresh; readers must never mutate fields.
type PoolState struct {
	ChainID     uint64         `json:"chainId"`
	Address     common.Address `json:"address"`
	Token0      Token          `json:"token0"`
	Token1      Token          `json:"token1"`
	Fee         uint32         `json:"fee"`
	TickSpacing int32          `json:"tickSpacing"`

	SqrtPriceX96 *big.Int        `json:"sqrtPriceX96,omitempty"`
	Tick         int32           `json:"tick"`
	Liquidity    *big.Int        `json:"liquidity,omitempty"`
	Price        decimal.Decimal `json:"price"`

	// Block and ObservedAt record where the snapshot came from: the swap
	// event's block with its chain timestamp, or the read time for RPC
	// refreshes.
	Block      uint64    `json:"block,omitempty"`
	ObservedAt time.Time `json:"observedAt,omitempty"`
}

// Key identifies a pool across chains.
func (p PoolState) Key() string {
	return fmt.Sprintf("%d:%s", p.ChainID, p.Address.Hex())
}

// PairLabel renders "TOKEN0/TOKEN1 0.05%" for chat messages.
func (p PoolState) PairLabel() string {
	feePct := decimal.New(int64(p.Fee), -4) // fee is in hundredths of a bip
	return fmt.Sprintf("%s/%s %s%%", p.Token0, p.Token1, feePct.String())
}

// WithSwap returns a copy of the snapshot updated from a swap observation.
func (p PoolState) WithSwap(swap SwapObserved, price decimal.Decimal) PoolState {
	next := p
	next.SqrtPriceX96 = new(big.Int).Set(swap.SqrtPriceX96)
	next.Tick = swap.Tick
	if swap.Liquidity != nil {
		next.Liquidity = new(big.Int).Set(swap.Liquidity)
	}
	next.Price = price
	next.Block = swap.BlockNumber
	return next
}
