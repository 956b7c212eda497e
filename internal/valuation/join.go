package valuation

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"taxbridge/internal/core"
	"taxbridge/internal/log"
)

// PriceLookup returns the fiat quote of one day. found is false when no
// quote exists.
type PriceLookup interface {
	FetchPrice(ctx context.Context, date string) (price decimal.Decimal, found bool, err error)
}

// PriceLookupFunc adapts a function to PriceLookup.
type PriceLookupFunc func(ctx context.Context, date string) (decimal.Decimal, bool, error)

func (f PriceLookupFunc) FetchPrice(ctx context.Context, date string) (decimal.Decimal, bool, error) {
	return f(ctx, date)
}

// Joiner values bucketed transactions with one lookup per bucket.
type Joiner struct {
	limit  int
	logger *log.Logger
}

// NewJoiner returns a Joiner running at most limit lookups at once.
func NewJoiner(limit int, logger *log.Logger) *Joiner {
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Joiner{limit: limit, logger: logger.WithComponent(log.ComponentValuation)}
}

type slot struct {
	price decimal.Decimal
	found bool
}

// Join returns a valuation for every transaction in buckets. A failed or
// empty lookup marks only that bucket's transactions unavailable.
func (j *Joiner) Join(ctx context.Context, buckets Buckets, lookup PriceLookup) core.Valuations {
	keys := buckets.keys
	slots := make([]slot, len(keys))

	var g errgroup.Group
	g.SetLimit(j.limit)
	for i, key := range keys {
		if key == InvalidKey {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			price, found, err := lookup.FetchPrice(ctx, key)
			if err != nil {
				j.logger.WarnContext(ctx, "Bucket left unvalued",
					log.FieldDateKey, key, log.FieldError, err.Error())
				return nil
			}
			slots[i] = slot{price: price, found: found}
			return nil
		})
	}
	_ = g.Wait()

	out := make(core.Valuations, buckets.Total())
	for i, key := range keys {
		for _, tx := range buckets.txs[i] {
			out[tx.Hash] = value(tx, slots[i])
		}
		if key != InvalidKey && !slots[i].found {
			j.logger.DebugContext(ctx, "No quote for bucket", log.FieldDateKey, key)
		}
	}
	return out
}

func value(tx core.Transaction, s slot) core.Valuation {
	if !s.found {
		return core.Unavailable()
	}
	eth, err := tx.ValueETH()
	if err != nil {
		return core.Unavailable()
	}
	return core.Available(s.price.Mul(eth))
}
