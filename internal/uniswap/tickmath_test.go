package uniswap

import (
	"math/big"
	"testing"
)

func TestSqrtRatioAtTickKnownValues(t *testing.T) {
	// Reference outputs of TickMath.getSqrtRatioAtTick.
	cases := []struct {
		tick int32
		want string
	}{
		{MinTick, "4295128739"},
		{0, "79228162514264337593543950336"}, // 2^96
		{MaxTick, "1461446703485210103287273052203988822378723970342"},
	}
	for _, c := range cases {
		got, err := SqrtRatioAtTick(c.tick)
		if err != nil {
			t.Fatalf("tick %d: %v", c.tick, err)
		}
		want, _ := new(big.Int).SetString(c.want, 10)
		if got.Cmp(want) != 0 {
			t.Errorf("SqrtRatioAtTick(%d) = %s, want %s", c.tick, got, want)
		}
	}
}

func TestSqrtRatioAtTickSymmetry(t *testing.T) {
	// ratio(t) * ratio(-t) ~= 2^192 for moderate ticks.
	for _, tick := range []int32{1, 50, 12345, 200000} {
		pos, err := SqrtRatioAtTick(tick)
		if err != nil {
			t.Fatal(err)
		}
		neg, err := SqrtRatioAtTick(-tick)
		if err != nil {
			t.Fatal(err)
		}
		prod := new(big.Int).Mul(pos, neg)
		diff := new(big.Int).Sub(prod, q192)
		// Allow rounding slack proportional to the magnitude.
		slack := new(big.Int).Rsh(q192, 80)
		if diff.CmpAbs(slack) > 0 {
			t.Errorf("tick %d: ratio product off by %s", tick, diff)
		}
	}
}

func TestSqrtRatioAtTickBounds(t *testing.T) {
	if _, err := SqrtRatioAtTick(MaxTick + 1); err == nil {
		t.Fatal("expected error above MaxTick")
	}
	if _, err := SqrtRatioAtTick(MinTick - 1); err == nil {
		t.Fatal("expected error below MinTick")
	}
}
