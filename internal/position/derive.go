package position

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dappvibe/defi-lp-manager/internal/dex"
	"github.com/dappvibe/defi-lp-manager/internal/model"
	"github.com/dappvibe/defi-lp-manager/internal/uniswap"
)

// Reward tokens are assumed to use 18 decimals (CAKE does).
const rewardDecimals = 18

// Derive builds the position read model from raw NFT data and the
// current state of its pool. createdAt is preserved from the previous
// sighting of the position, or set to now for new ones.
func Derive(raw dex.RawPosition, pool common.Address, state model.PoolState, createdAt time.Time) (model.Position, error) {
	sqrtLower, err := uniswap.SqrtRatioAtTick(raw.TickLower)
	if err != nil {
		return model.Position{}, fmt.Errorf("position %d lower tick: %w", raw.ID, err)
	}
	sqrtUpper, err := uniswap.SqrtRatioAtTick(raw.TickUpper)
	if err != nil {
		return model.Position{}, fmt.Errorf("position %d upper tick: %w", raw.ID, err)
	}

	priceLower, err := uniswap.PriceFromTick(raw.TickLower, state.Token0.Decimals, state.Token1.Decimals, uniswap.DisplayDecimals)
	if err != nil {
		return model.Position{}, fmt.Errorf("position %d lower price: %w", raw.ID, err)
	}
	priceUpper, err := uniswap.PriceFromTick(raw.TickUpper, state.Token0.Decimals, state.Token1.Decimals, uniswap.DisplayDecimals)
	if err != nil {
		return model.Position{}, fmt.Errorf("position %d upper price: %w", raw.ID, err)
	}

	amount0, amount1 := uniswap.AmountsForLiquidity(state.SqrtPriceX96, sqrtLower, sqrtUpper, raw.Liquidity)

	pos := model.Position{
		ID:           raw.ID,
		Wallet:       raw.Owner,
		Pool:         pool,
		Token0:       state.Token0,
		Token1:       state.Token1,
		Fee:          raw.Fee,
		TickLower:    raw.TickLower,
		TickUpper:    raw.TickUpper,
		Liquidity:    raw.Liquidity,
		Amount0:      uniswap.HumanAmount(amount0, state.Token0.Decimals),
		Amount1:      uniswap.HumanAmount(amount1, state.Token1.Decimals),
		PriceLower:   priceLower,
		PriceUpper:   priceUpper,
		CurrentPrice: state.Price,
		Fees0:        uniswap.HumanAmount(raw.TokensOwed0, state.Token0.Decimals),
		Fees1:        uniswap.HumanAmount(raw.TokensOwed1, state.Token1.Decimals),
		Reward:       uniswap.HumanAmount(raw.Reward, rewardDecimals),
		InRange:      uniswap.IsInRange(raw.TickLower, raw.TickUpper, state.Tick),
		Staked:       raw.Staked,
		CreatedAt:    createdAt,
	}
	return pos, nil
}
