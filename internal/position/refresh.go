package position

import (
	"fmt"

	"github.com/dappvibe/defi-lp-manager/internal/model"
	"github.com/dappvibe/defi-lp-manager/internal/uniswap"
)

// Refresh recomputes the price-dependent fields of a position from a
// new pool state. Identity, bounds, fees, and creation time carry over;
// amounts, current price, and the in-range flag are replaced.
func Refresh(pos model.Position, state model.PoolState) (model.Position, error) {
	sqrtLower, err := uniswap.SqrtRatioAtTick(pos.TickLower)
	if err != nil {
		return model.Position{}, fmt.Errorf("position %d lower tick: %w", pos.ID, err)
	}
	sqrtUpper, err := uniswap.SqrtRatioAtTick(pos.TickUpper)
	if err != nil {
		return model.Position{}, fmt.Errorf("position %d upper tick: %w", pos.ID, err)
	}

	amount0, amount1 := uniswap.AmountsForLiquidity(state.SqrtPriceX96, sqrtLower, sqrtUpper, pos.Liquidity)

	pos.Amount0 = uniswap.HumanAmount(amount0, state.Token0.Decimals)
	pos.Amount1 = uniswap.HumanAmount(amount1, state.Token1.Decimals)
	pos.CurrentPrice = state.Price
	pos.InRange = uniswap.IsInRange(pos.TickLower, pos.TickUpper, state.Tick)
	return pos, nil
}
