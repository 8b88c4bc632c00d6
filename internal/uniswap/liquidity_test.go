package uniswap

import (
	"math/big"
	"testing"
)

func TestAmountsForLiquidityPositions(t *testing.T) {
	lower, err := SqrtRatioAtTick(-600)
	if err != nil {
		t.Fatal(err)
	}
	upper, err := SqrtRatioAtTick(600)
	if err != nil {
		t.Fatal(err)
	}
	mid, err := SqrtRatioAtTick(0)
	if err != nil {
		t.Fatal(err)
	}
	liq := big.NewInt(1_000_000_000)

	// Below range: all token0.
	below := new(big.Int).Sub(lower, big.NewInt(1))
	a0, a1 := AmountsForLiquidity(below, lower, upper, liq)
	if a0.Sign() <= 0 || a1.Sign() != 0 {
		t.Fatalf("below range: amount0=%s amount1=%s", a0, a1)
	}

	// Above range: all token1.
	above := new(big.Int).Add(upper, big.NewInt(1))
	a0, a1 = AmountsForLiquidity(above, lower, upper, liq)
	if a0.Sign() != 0 || a1.Sign() <= 0 {
		t.Fatalf("above range: amount0=%s amount1=%s", a0, a1)
	}

	// In range: both sides, symmetric around tick 0.
	a0, a1 = AmountsForLiquidity(mid, lower, upper, liq)
	if a0.Sign() <= 0 || a1.Sign() <= 0 {
		t.Fatalf("in range: amount0=%s amount1=%s", a0, a1)
	}
	diff := new(big.Int).Sub(a0, a1)
	slack := new(big.Int).Div(a0, big.NewInt(100))
	if diff.CmpAbs(slack) > 0 {
		t.Fatalf("symmetric range not balanced: amount0=%s amount1=%s", a0, a1)
	}
}

func TestAmountsForLiquidityZero(t *testing.T) {
	lower, _ := SqrtRatioAtTick(-600)
	upper, _ := SqrtRatioAtTick(600)
	a0, a1 := AmountsForLiquidity(lower, lower, upper, big.NewInt(0))
	if a0.Sign() != 0 || a1.Sign() != 0 {
		t.Fatalf("zero liquidity: amount0=%s amount1=%s", a0, a1)
	}
	a0, a1 = AmountsForLiquidity(lower, lower, upper, nil)
	if a0.Sign() != 0 || a1.Sign() != 0 {
		t.Fatalf("nil liquidity: amount0=%s amount1=%s", a0, a1)
	}
}

func TestAmountsForLiquiditySwappedBounds(t *testing.T) {
	lower, _ := SqrtRatioAtTick(-600)
	upper, _ := SqrtRatioAtTick(600)
	mid, _ := SqrtRatioAtTick(0)
	liq := big.NewInt(1_000_000_000)

	a0, a1 := AmountsForLiquidity(mid, lower, upper, liq)
	b0, b1 := AmountsForLiquidity(mid, upper, lower, liq)
	if a0.Cmp(b0) != 0 || a1.Cmp(b1) != 0 {
		t.Fatal("swapped bounds changed the result")
	}
}
