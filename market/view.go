package market

import (
	"fmt"
	"time"

	"github.com/rustyeddy/allocator/portfolio"
)

// View is a read-only window over a PriceHistory that stops before a
// decision date. Accessors only reach rows [0, end); there is no way to read
// the decision row or anything after it.
type View struct {
	h   *PriceHistory
	end int
}

// Len is the number of visible rows.
func (v View) Len() int { return v.end }

func (v View) Assets() []string {
	if v.h == nil {
		return nil
	}
	return v.h.Assets()
}

// AsOf is the date of the last visible row, zero when the view is empty.
func (v View) AsOf() time.Time {
	if v.end == 0 {
		return time.Time{}
	}
	return v.h.dates[v.end-1]
}

func (v View) Dates() []time.Time {
	if v.end == 0 {
		return nil
	}
	return append([]time.Time(nil), v.h.dates[:v.end]...)
}

// Prices returns a copy of the visible prices of asset.
func (v View) Prices(asset string) ([]float64, error) {
	if v.h == nil {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}
	j, ok := v.h.index[asset]
	if !ok {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}
	return append([]float64(nil), v.h.cols[j][:v.end]...), nil
}

// Last returns the last visible close of asset.
func (v View) Last(asset string) (float64, error) {
	if v.end == 0 {
		return 0, portfolio.DataInsufficient("empty view")
	}
	return v.h.Close(asset, v.end-1)
}

// Returns computes simple returns over the last lookback periods of the
// view. lookback <= 0 uses every visible row.
func (v View) Returns(lookback int) (*ReturnSeries, error) {
	if v.end < 2 {
		return nil, portfolio.DataInsufficient("need at least 2 prices before %s, have %d", v.decisionLabel(), v.end)
	}
	lo := 0
	if lookback > 0 && v.end-1-lookback > 0 {
		lo = v.end - 1 - lookback
	}
	n := v.end - lo - 1
	dates := append([]time.Time(nil), v.h.dates[lo+1:v.end]...)
	cols := make([][]float64, len(v.h.assets))
	for j, col := range v.h.cols {
		r := make([]float64, n)
		for t := 0; t < n; t++ {
			r[t] = col[lo+t+1]/col[lo+t] - 1
		}
		cols[j] = r
	}
	rs, err := NewReturnSeries(v.h.assets, dates, cols)
	if err != nil {
		return nil, err
	}
	rs.origin = v.h.dates[lo]
	return rs, nil
}

func (v View) decisionLabel() string {
	if v.h != nil && v.end < len(v.h.dates) {
		return v.h.dates[v.end].Format(DateLayout)
	}
	return "end of history"
}
