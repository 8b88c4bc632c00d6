package position

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dappvibe/defi-lp-manager/internal/dex"
	"github.com/dappvibe/defi-lp-manager/internal/model"
	"github.com/dappvibe/defi-lp-manager/internal/uniswap"
)

func testPoolState(t *testing.T, tick int32) model.PoolState {
	t.Helper()
	sqrt, err := uniswap.SqrtRatioAtTick(tick)
	require.NoError(t, err)
	price, err := uniswap.PriceFromSqrt(sqrt, 18, 18, uniswap.DisplayDecimals)
	require.NoError(t, err)
	return model.PoolState{
		ChainID:      56,
		Address:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Token0:       model.Token{Address: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), Symbol: "WBNB", Decimals: 18},
		Token1:       model.Token{Address: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"), Symbol: "USDT", Decimals: 18},
		Fee:          2500,
		TickSpacing:  50,
		SqrtPriceX96: sqrt,
		Tick:         tick,
		Price:        price,
	}
}

func TestDeriveInRangePosition(t *testing.T) {
	state := testPoolState(t, 0)
	raw := dex.RawPosition{
		ID:          42,
		Owner:       common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"),
		TickLower:   -600,
		TickUpper:   600,
		Fee:         2500,
		Liquidity:   big.NewInt(1_000_000_000_000),
		TokensOwed0: big.NewInt(0),
		TokensOwed1: big.NewInt(0),
	}

	createdAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	pos, err := Derive(raw, state.Address, state, createdAt)
	require.NoError(t, err)

	require.Equal(t, uint64(42), pos.ID)
	require.True(t, pos.InRange)
	require.True(t, pos.Amount0.IsPositive())
	require.True(t, pos.Amount1.IsPositive())
	require.True(t, pos.PriceLower.LessThan(pos.CurrentPrice))
	require.True(t, pos.PriceUpper.GreaterThan(pos.CurrentPrice))
	require.Equal(t, createdAt, pos.CreatedAt)
}

func TestDeriveOutOfRangePosition(t *testing.T) {
	state := testPoolState(t, 1000)
	raw := dex.RawPosition{
		ID:          42,
		TickLower:   -600,
		TickUpper:   600,
		Liquidity:   big.NewInt(1_000_000_000_000),
		TokensOwed0: big.NewInt(0),
		TokensOwed1: big.NewInt(0),
	}

	pos, err := Derive(raw, state.Address, state, time.Now())
	require.NoError(t, err)

	// Price above the range: the position holds only token1.
	require.False(t, pos.InRange)
	require.True(t, pos.Amount0.IsZero())
	require.True(t, pos.Amount1.IsPositive())
}

func TestDeriveUpperBoundExclusive(t *testing.T) {
	state := testPoolState(t, 600)
	raw := dex.RawPosition{
		ID:          7,
		TickLower:   -600,
		TickUpper:   600,
		Liquidity:   big.NewInt(1_000_000),
		TokensOwed0: big.NewInt(0),
		TokensOwed1: big.NewInt(0),
	}

	pos, err := Derive(raw, state.Address, state, time.Now())
	require.NoError(t, err)
	require.False(t, pos.InRange)
}

func TestDeriveRejectsBadTicks(t *testing.T) {
	state := testPoolState(t, 0)
	raw := dex.RawPosition{
		ID:        9,
		TickLower: -888888,
		TickUpper: 600,
		Liquidity: big.NewInt(1),
	}

	_, err := Derive(raw, state.Address, state, time.Now())
	require.Error(t, err)
}

func TestDeriveDecimalFees(t *testing.T) {
	state := testPoolState(t, 0)
	owed0, _ := new(big.Int).SetString("2500000000000000000", 10)
	raw := dex.RawPosition{
		ID:          11,
		TickLower:   -600,
		TickUpper:   600,
		Liquidity:   big.NewInt(1_000_000),
		TokensOwed0: owed0,
		TokensOwed1: big.NewInt(0),
		Reward:      big.NewInt(3_000_000_000_000_000_000),
		Staked:      true,
	}

	pos, err := Derive(raw, state.Address, state, time.Now())
	require.NoError(t, err)
	require.True(t, pos.Fees0.Equal(decimal.NewFromFloat(2.5)))
	require.True(t, pos.Reward.Equal(decimal.NewFromInt(3)))
	require.True(t, pos.Staked)
}
