package uniswap

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// DisplayDecimals is the default number of fraction digits for rendered prices.
const DisplayDecimals = 8

// ErrInvalidPriceInput is returned for malformed numeric input to price
// math. It indicates a logic bug upstream, not a recoverable condition.
var ErrInvalidPriceInput = errors.New("invalid price input")

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// PriceFromSqrt converts a Q64.96 sqrt price into the price of token0 in
// token1 terms, adjusted for token decimals. All arithmetic stays in
// big.Int; only the final division rounds to prec fraction digits.
func PriceFromSqrt(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8, prec int32) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, ErrInvalidPriceInput
	}

	// price = sqrt^2 / 2^192 * 10^(decimals0-decimals1)
	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num.Mul(num, pow10(decimals0))
	den := new(big.Int).Mul(q192, pow10(decimals1))

	price := decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), prec)
	return price, nil
}

// PriceFromTick returns the price at a tick (1.0001^tick adjusted for
// decimals), used for position bound prices where no sqrt price exists.
func PriceFromTick(tick int32, decimals0, decimals1 uint8, prec int32) (decimal.Decimal, error) {
	sqrt, err := SqrtRatioAtTick(tick)
	if err != nil {
		return decimal.Zero, err
	}
	return PriceFromSqrt(sqrt, decimals0, decimals1, prec)
}

// IsInRange reports whether the current tick lies within [lower, upper).
// The upper bound is exclusive, matching how AMM tick ranges are defined.
func IsInRange(tickLower, tickUpper, tickCurrent int32) bool {
	return tickCurrent >= tickLower && tickCurrent < tickUpper
}

// HumanAmount converts a raw token amount into human units.
func HumanAmount(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
