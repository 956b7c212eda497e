// Package valuation groups transactions by calendar day and joins each day's
// fiat quote back onto its transactions.
package valuation

import (
	"time"

	"taxbridge/internal/core"
)

// InvalidKey holds transactions whose timestamp could not be parsed. It is
// never looked up.
const InvalidKey = ""

// DateLayout is the dd-mm-yyyy bucket key layout, also the price lookup key.
const DateLayout = "02-01-2006"

// Buckets is an ordered partition of transactions by local calendar day.
// Keys keep first-appearance order; each bucket keeps input order.
type Buckets struct {
	keys  []string
	index map[string]int
	txs   [][]core.Transaction
}

// DateKey renders t as the dd-mm-yyyy day in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// Bucket partitions txs by day in loc.
func Bucket(txs []core.Transaction, loc *time.Location) Buckets {
	b := Buckets{index: make(map[string]int)}
	for _, tx := range txs {
		key := InvalidKey
		if ts, err := tx.Time(); err == nil {
			key = DateKey(ts, loc)
		}
		i, ok := b.index[key]
		if !ok {
			i = len(b.keys)
			b.index[key] = i
			b.keys = append(b.keys, key)
			b.txs = append(b.txs, nil)
		}
		b.txs[i] = append(b.txs[i], tx)
	}
	return b
}

// Keys returns the bucket keys in first-appearance order.
func (b Buckets) Keys() []string {
	return append([]string(nil), b.keys...)
}

// Get returns the transactions of one bucket.
func (b Buckets) Get(key string) []core.Transaction {
	i, ok := b.index[key]
	if !ok {
		return nil
	}
	return b.txs[i]
}

func (b Buckets) Len() int { return len(b.keys) }

// Total counts transactions over all buckets.
func (b Buckets) Total() int {
	n := 0
	for _, txs := range b.txs {
		n += len(txs)
	}
	return n
}
