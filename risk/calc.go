package risk

import "github.com/rustyeddy/perptrader/market"

// LiquidationPrice estimates the isolated-margin liquidation level. For a
// long the margin is exhausted when the price has fallen by the margin
// fraction less the maintenance requirement; shorts mirror it upward.
func LiquidationPrice(entry, leverage, maintRate float64, side int) float64 {
	if entry <= 0 || leverage <= 0 || side == 0 {
		return 0
	}
	if side > 0 {
		return entry * (1 - 1/leverage + maintRate)
	}
	return entry * (1 + 1/leverage - maintRate)
}

// liqDistance is the gap between the current price and the liquidation
// level, as a fraction of the current price. Zero or negative means the
// level has been reached or crossed.
func liqDistance(price, liq float64, side int) float64 {
	if price <= 0 || liq <= 0 {
		return 0
	}
	if side > 0 {
		return (price - liq) / price
	}
	return (liq - price) / price
}

func maintRateFor(symbol string) float64 {
	if meta, ok := market.Instruments[symbol]; ok {
		return meta.MaintMarginRate
	}
	return 0.005
}
