package uniswap

import "math/big"

var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// AmountsForLiquidity computes the token0/token1 amounts backing a
// liquidity position given the current sqrt price and the position's
// bounds, following the V3 periphery LiquidityAmounts library. Below the
// range the position is all token0, above it all token1.
func AmountsForLiquidity(sqrtPriceX96, sqrtLowerX96, sqrtUpperX96, liquidity *big.Int) (amount0, amount1 *big.Int) {
	if liquidity == nil || liquidity.Sign() == 0 {
		return new(big.Int), new(big.Int)
	}
	lower, upper := sqrtLowerX96, sqrtUpperX96
	if lower.Cmp(upper) > 0 {
		lower, upper = upper, lower
	}

	switch {
	case sqrtPriceX96.Cmp(lower) <= 0:
		return amount0Delta(lower, upper, liquidity), new(big.Int)
	case sqrtPriceX96.Cmp(upper) >= 0:
		return new(big.Int), amount1Delta(lower, upper, liquidity)
	default:
		return amount0Delta(sqrtPriceX96, upper, liquidity), amount1Delta(lower, sqrtPriceX96, liquidity)
	}
}

// amount0 = L * 2^96 * (upper - lower) / (upper * lower)
func amount0Delta(sqrtLower, sqrtUpper, liquidity *big.Int) *big.Int {
	num := new(big.Int).Lsh(liquidity, 96)
	num.Mul(num, new(big.Int).Sub(sqrtUpper, sqrtLower))
	num.Div(num, sqrtUpper)
	return num.Div(num, sqrtLower)
}

// amount1 = L * (upper - lower) / 2^96
func amount1Delta(sqrtLower, sqrtUpper, liquidity *big.Int) *big.Int {
	num := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtUpper, sqrtLower))
	return num.Div(num, q96)
}
