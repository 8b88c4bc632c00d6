package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Position is the read model derived from on-chain NFT position data.
// Refreshes replace the whole value; only CreatedAt is preserved across
// refreshes (carried over by the wallet poller).
type Position struct {
	ID        uint64         `json:"id"`
	Wallet    common.Address `json:"wallet"`
	Pool      common.Address `json:"pool"`
	Token0    Token          `json:"token0"`
	Token1    Token          `json:"token1"`
	Fee       uint32         `json:"fee"`
	TickLower int32          `json:"tickLower"`
	TickUpper int32          `json:"tickUpper"`
	Liquidity *big.Int       `json:"liquidity,omitempty"`

	Amount0      decimal.Decimal `json:"amount0"`
	Amount1      decimal.Decimal `json:"amount1"`
	PriceLower   decimal.Decimal `json:"priceLower"`
	PriceUpper   decimal.Decimal `json:"priceUpper"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Fees0        decimal.Decimal `json:"fees0"`
	Fees1        decimal.Decimal `json:"fees1"`
	Reward       decimal.Decimal `json:"reward"`

	InRange   bool      `json:"inRange"`
	Staked    bool      `json:"staked"`
	CreatedAt time.Time `json:"createdAt"`
}

// Value is the combined position value in token1 (quote) terms.
func (p Position) Value() decimal.Decimal {
	return p.Amount1.Add(p.Amount0.Mul(p.CurrentPrice))
}

// FeeValue is the accumulated uncollected fee value in quote terms.
func (p Position) FeeValue() decimal.Decimal {
	return p.Fees1.Add(p.Fees0.Mul(p.CurrentPrice))
}

// ChangeType classifies a position lifecycle transition.
type ChangeType string

const (
	ChangeNew    ChangeType = "NEW"
	ChangeRemove ChangeType = "REMOVED"
	ChangeRange  ChangeType = "RANGE_CHANGE"
	ChangeStake  ChangeType = "STAKE_CHANGE"
)

// PositionChange is one lifecycle transition for a single position.
// Multiple transitions for the same id are emitted as separate records.
type PositionChange struct {
	Type     ChangeType
	Position Position
	// Previous is the prior snapshot, set for REMOVED and flag flips.
	Previous *Position
}
