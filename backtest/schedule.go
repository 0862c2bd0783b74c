package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Named rebalance frequencies. Anything else is read as a 5-field cron
// expression.
const (
	RebalanceNone      = "none"
	RebalanceWeekly    = "weekly"
	RebalanceMonthly   = "monthly"
	RebalanceQuarterly = "quarterly"
	RebalanceAnnual    = "annual"
)

var namedSchedules = map[string]string{
	RebalanceWeekly:    "0 0 * * 1",
	RebalanceMonthly:   "0 0 1 * *",
	RebalanceQuarterly: "0 0 1 1,4,7,10 *",
	RebalanceAnnual:    "0 0 1 1 *",
}

// ParseSchedule turns a frequency name or cron expression into a schedule.
// "none" and "" return a nil schedule: hold after the initial allocation.
func ParseSchedule(freq string) (cron.Schedule, error) {
	f := strings.ToLower(strings.TrimSpace(freq))
	if f == "" || f == RebalanceNone {
		return nil, nil
	}
	if expr, ok := namedSchedules[f]; ok {
		f = expr
	}
	s, err := cron.ParseStandard(f)
	if err != nil {
		return nil, fmt.Errorf("rebalance %q: %w", freq, err)
	}
	return s, nil
}

// calendar walks trading dates against a schedule. A date is due once it
// reaches the next scheduled instant; a scheduled day that falls on a
// non-trading day rolls to the next trading date.
type calendar struct {
	sched cron.Schedule
	next  time.Time
}

func newCalendar(s cron.Schedule, start time.Time) *calendar {
	c := &calendar{sched: s}
	if s != nil {
		c.next = s.Next(start)
	}
	return c
}

func (c *calendar) due(d time.Time) bool {
	if c.sched == nil || c.next.IsZero() || d.Before(c.next) {
		return false
	}
	c.next = c.sched.Next(d)
	return true
}
