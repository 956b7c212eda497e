// Package timeframe selects the transactions that fall inside a reporting
// period.
package timeframe

import (
	"time"

	"taxbridge/internal/core"
)

// DayLayout is the yyyy-mm-dd form of custom bounds.
const DayLayout = "2006-01-02"

// Interval is a closed range of instants.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End].
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// Resolve derives the interval of tf in now's location. ok is false when the
// frame selects nothing: a custom frame with a missing or unparsable bound,
// or with from after to.
func Resolve(tf core.TimeFrame, now time.Time) (Interval, bool) {
	loc := now.Location()
	switch tf.Kind {
	case core.ThisMonth, "":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return Interval{Start: start, End: now}, true
	case core.LastMonth:
		thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		start := thisMonth.AddDate(0, -1, 0)
		return Interval{Start: start, End: endOfDay(thisMonth.AddDate(0, 0, -1))}, true
	case core.LastYear:
		y := now.Year() - 1
		return Interval{
			Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc),
			End:   endOfDay(time.Date(y, time.December, 31, 0, 0, 0, 0, loc)),
		}, true
	case core.Custom:
		if tf.From == "" || tf.To == "" {
			return Interval{}, false
		}
		from, err := time.ParseInLocation(DayLayout, tf.From, loc)
		if err != nil {
			return Interval{}, false
		}
		to, err := time.ParseInLocation(DayLayout, tf.To, loc)
		if err != nil || from.After(to) {
			return Interval{}, false
		}
		return Interval{Start: from, End: endOfDay(to)}, true
	default:
		return Interval{}, false
	}
}

// endOfDay returns 23:59:59.999 of day's calendar date.
func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(999*time.Millisecond), day.Location())
}

// Filter returns the transactions of txs inside tf, in input order.
// Transactions with unparsable timestamps are never selected.
func Filter(txs []core.Transaction, tf core.TimeFrame, now time.Time) []core.Transaction {
	out := []core.Transaction{}
	iv, ok := Resolve(tf, now)
	if !ok {
		return out
	}
	for _, tx := range txs {
		ts, err := tx.Time()
		if err != nil {
			continue
		}
		if iv.Contains(ts) {
			out = append(out, tx)
		}
	}
	return out
}
