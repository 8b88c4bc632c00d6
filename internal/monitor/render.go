package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dappvibe/defi-lp-manager/internal/model"
	"github.com/dappvibe/defi-lp-manager/internal/pool"
)

const hoursPerYear = 24 * 365

// renderPool builds the live price message for a pool.
func renderPool(state model.PoolState, tvl pool.TVL, explorer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", state.PairLabel())
	fmt.Fprintf(&b, "Price: <b>%s</b> %s per %s\n", state.Price.String(), state.Token1.Symbol, state.Token0.Symbol)
	fmt.Fprintf(&b, "Tick: %d\n", state.Tick)
	if tvl.Amount0.IsPositive() || tvl.Amount1.IsPositive() {
		fmt.Fprintf(&b, "TVL: %s %s / %s %s\n",
			trimAmount(tvl.Amount0), state.Token0.Symbol,
			trimAmount(tvl.Amount1), state.Token1.Symbol)
	}
	if state.Block > 0 {
		fmt.Fprintf(&b, "Updated: %s (block %d)\n", state.ObservedAt.UTC().Format("15:04:05"), state.Block)
	}
	if explorer != "" {
		fmt.Fprintf(&b, "<a href=\"%s/address/%s\">pool</a>", strings.TrimRight(explorer, "/"), state.Address.Hex())
	}
	return b.String()
}

// renderPosition builds the status message for a tracked position.
func renderPosition(pos model.Position, now time.Time, explorer string) string {
	var b strings.Builder

	status := "🟢 in range"
	if !pos.InRange {
		status = "🔴 out of range"
	}
	fmt.Fprintf(&b, "<b>#%d %s/%s %s%%</b> %s\n",
		pos.ID, pos.Token0.Symbol, pos.Token1.Symbol, feePercent(pos.Fee), status)
	if pos.Staked {
		b.WriteString("Staked 🌾\n")
	}

	fmt.Fprintf(&b, "Range: %s - %s\n", pos.PriceLower.String(), pos.PriceUpper.String())
	fmt.Fprintf(&b, "Price: %s\n", pos.CurrentPrice.String())
	fmt.Fprintf(&b, "Holding: %s %s + %s %s (~%s %s)\n",
		trimAmount(pos.Amount0), pos.Token0.Symbol,
		trimAmount(pos.Amount1), pos.Token1.Symbol,
		trimAmount(pos.Value()), pos.Token1.Symbol)

	if pos.Fees0.IsPositive() || pos.Fees1.IsPositive() {
		fmt.Fprintf(&b, "Fees: %s %s + %s %s\n",
			trimAmount(pos.Fees0), pos.Token0.Symbol,
			trimAmount(pos.Fees1), pos.Token1.Symbol)
	}
	if pos.Reward.IsPositive() {
		fmt.Fprintf(&b, "Reward: %s\n", trimAmount(pos.Reward))
	}
	if apy, ok := estimateAPY(pos, now); ok {
		fmt.Fprintf(&b, "Fee APY: ~%s%%\n", apy.StringFixed(1))
	}
	if explorer != "" {
		fmt.Fprintf(&b, "<a href=\"%s/address/%s\">pool</a>", strings.TrimRight(explorer, "/"), pos.Pool.Hex())
	}
	return b.String()
}

// renderRangeAlert is the standalone out-of-range warning for a position.
func renderRangeAlert(pos model.Position) string {
	side := "below"
	if pos.CurrentPrice.GreaterThanOrEqual(pos.PriceUpper) {
		side = "above"
	}
	return fmt.Sprintf("⚠️ <b>#%d %s/%s</b> is out of range (%s %s - %s, price %s)",
		pos.ID, pos.Token0.Symbol, pos.Token1.Symbol,
		side, pos.PriceLower.String(), pos.PriceUpper.String(), pos.CurrentPrice.String())
}

// renderPositionChange announces a lifecycle event.
func renderPositionChange(change model.PositionChange) string {
	pos := change.Position
	pair := fmt.Sprintf("#%d %s/%s", pos.ID, pos.Token0.Symbol, pos.Token1.Symbol)
	switch change.Type {
	case model.ChangeNew:
		return fmt.Sprintf("🆕 New position <b>%s</b> (~%s %s)", pair, trimAmount(pos.Value()), pos.Token1.Symbol)
	case model.ChangeRemove:
		return fmt.Sprintf("🗑 Position <b>%s</b> removed", pair)
	case model.ChangeStake:
		if pos.Staked {
			return fmt.Sprintf("🌾 Position <b>%s</b> staked", pair)
		}
		return fmt.Sprintf("🌾 Position <b>%s</b> unstaked", pair)
	case model.ChangeRange:
		if pos.InRange {
			return fmt.Sprintf("🟢 Position <b>%s</b> back in range", pair)
		}
		return renderRangeAlert(pos)
	default:
		return fmt.Sprintf("Position <b>%s</b> changed", pair)
	}
}

// renderAlert is the one-shot price alert notification.
func renderAlert(alert model.PriceAlert, price decimal.Decimal, state model.PoolState) string {
	return fmt.Sprintf("🔔 <b>%s</b> crossed %s (now %s)",
		state.PairLabel(), alert.Target.String(), price.String())
}

// estimateAPY annualizes accumulated fee value against position value.
// Returns false when the position is too young or worthless to rate.
func estimateAPY(pos model.Position, now time.Time) (decimal.Decimal, bool) {
	age := now.Sub(pos.CreatedAt)
	if age < time.Hour {
		return decimal.Zero, false
	}
	value := pos.Value()
	if !value.IsPositive() {
		return decimal.Zero, false
	}
	feeValue := pos.FeeValue()
	if !feeValue.IsPositive() {
		return decimal.Zero, false
	}

	years := decimal.NewFromFloat(age.Hours() / hoursPerYear)
	return feeValue.Div(value).Div(years).Mul(decimal.NewFromInt(100)), true
}

func feePercent(fee uint32) string {
	return decimal.New(int64(fee), -4).String()
}

// trimAmount renders an amount with a sane number of digits.
func trimAmount(d decimal.Decimal) string {
	if d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1000)) {
		return d.StringFixed(2)
	}
	return d.Round(6).String()
}
