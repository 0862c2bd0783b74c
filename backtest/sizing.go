package backtest

import (
	"github.com/shopspring/decimal"
)

// sizeShares converts target weights into whole share counts for a book
// worth capital. Counts are truncated toward zero so the book never spends
// more than it has; the remainder stays in cash. It returns the counts and
// the weights they actually represent.
func sizeShares(capital float64, target, prices []float64) ([]int64, []float64) {
	shares := make([]int64, len(target))
	actual := make([]float64, len(target))
	if capital <= 0 {
		return shares, actual
	}
	c := decimal.NewFromFloat(capital)
	for i, w := range target {
		if w == 0 || prices[i] <= 0 {
			continue
		}
		px := decimal.NewFromFloat(prices[i])
		n := c.Mul(decimal.NewFromFloat(w)).Div(px).Truncate(0)
		shares[i] = n.IntPart()
		actual[i], _ = n.Mul(px).Div(c).Float64()
	}
	return shares, actual
}
