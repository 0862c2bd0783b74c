package risk

import "fmt"

// Limits are the run-level bounds a candidate allocation is checked against
// after simulation. A zero field disables its check.
type Limits struct {
	MaxDrawdown   float64 `json:"max_drawdown" yaml:"max_drawdown"`     // 0.25 = −25%
	MaxVolatility float64 `json:"max_volatility" yaml:"max_volatility"` // annualized
	MinSharpe     float64 `json:"min_sharpe" yaml:"min_sharpe"`
	MaxTurnover   float64 `json:"max_turnover" yaml:"max_turnover"`     // per year
	MaxUnderwater int     `json:"max_underwater" yaml:"max_underwater"` // periods
}

// Metrics is the slice of run statistics the limits look at.
type Metrics struct {
	MaxDrawdown     float64
	Volatility      float64
	Sharpe          float64
	AnnualTurnover  float64
	LongestDuration int
}

type Violation struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type Decision struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations,omitempty"`
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

func (l Limits) Validate() error {
	if l.MaxDrawdown < 0 || l.MaxDrawdown > 1 {
		return fmt.Errorf("max_drawdown must be in [0, 1], got %v", l.MaxDrawdown)
	}
	if l.MaxVolatility < 0 || l.MaxTurnover < 0 || l.MaxUnderwater < 0 {
		return fmt.Errorf("limits must be non-negative")
	}
	return nil
}

// Evaluate checks m against l.
func Evaluate(l Limits, m Metrics) Decision {
	d := Decision{Allowed: true}

	if l.MaxDrawdown > 0 && -m.MaxDrawdown > l.MaxDrawdown {
		d.add("DRAWDOWN_TOO_DEEP",
			fmt.Sprintf("max drawdown %.2f%% exceeds limit %.2f%%", -100*m.MaxDrawdown, 100*l.MaxDrawdown))
	}
	if l.MaxVolatility > 0 && m.Volatility > l.MaxVolatility {
		d.add("VOLATILITY_TOO_HIGH",
			fmt.Sprintf("volatility %.2f%% exceeds limit %.2f%%", 100*m.Volatility, 100*l.MaxVolatility))
	}
	if l.MinSharpe != 0 && m.Sharpe < l.MinSharpe {
		d.add("SHARPE_TOO_LOW",
			fmt.Sprintf("sharpe %.2f below minimum %.2f", m.Sharpe, l.MinSharpe))
	}
	if l.MaxTurnover > 0 && m.AnnualTurnover > l.MaxTurnover {
		d.add("TURNOVER_TOO_HIGH",
			fmt.Sprintf("annual turnover %.2f exceeds limit %.2f", m.AnnualTurnover, l.MaxTurnover))
	}
	if l.MaxUnderwater > 0 && m.LongestDuration > l.MaxUnderwater {
		d.add("UNDERWATER_TOO_LONG",
			fmt.Sprintf("longest drawdown %d periods exceeds limit %d", m.LongestDuration, l.MaxUnderwater))
	}
	return d
}
