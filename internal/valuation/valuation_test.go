package valuation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"taxbridge/internal/core"
)

const oneETH = "1000000000000000000"

func tx(hash string, ts time.Time, wei string) core.Transaction {
	return core.Transaction{Hash: hash, From: "0x1", To: "0x2", Value: wei, TimeStamp: fmt.Sprint(ts.Unix())}
}

func TestBucketPartitionsInOrder(t *testing.T) {
	loc := time.UTC
	d1 := time.Date(2024, 3, 15, 23, 0, 0, 0, loc)
	d2 := time.Date(2024, 3, 14, 8, 0, 0, 0, loc)
	txs := []core.Transaction{
		tx("a", d1, oneETH),
		tx("b", d2, oneETH),
		{Hash: "bad", TimeStamp: "x"},
		tx("c", d1.Add(-time.Hour), oneETH),
		tx("d", d2.Add(time.Hour), oneETH),
	}
	b := Bucket(txs, loc)

	keys := b.Keys()
	want := []string{"15-03-2024", "14-03-2024", InvalidKey}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Fatalf("expected keys %v, got %v", want, keys)
	}
	if got := b.Get("15-03-2024"); len(got) != 2 || got[0].Hash != "a" || got[1].Hash != "c" {
		t.Fatalf("unexpected bucket contents %+v", got)
	}

	seen := map[string]int{}
	for _, k := range keys {
		for _, tx := range b.Get(k) {
			seen[tx.Hash]++
		}
	}
	if len(seen) != len(txs) || b.Total() != len(txs) {
		t.Fatalf("every transaction must be in exactly one bucket: %v", seen)
	}
	for h, n := range seen {
		if n != 1 {
			t.Fatalf("%s appears in %d buckets", h, n)
		}
	}
}

func TestBucketUsesLocation(t *testing.T) {
	rome := time.FixedZone("CET", 3600)
	ts := time.Date(2024, 3, 14, 23, 30, 0, 0, time.UTC)
	b := Bucket([]core.Transaction{tx("a", ts, oneETH)}, rome)
	if keys := b.Keys(); len(keys) != 1 || keys[0] != "15-03-2024" {
		t.Fatalf("expected local day 15-03-2024, got %v", keys)
	}
	if DateKey(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), time.UTC) != "05-01-2024" {
		t.Fatalf("date key must be zero padded")
	}
}

func TestJoinValuesOneEther(t *testing.T) {
	ts := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	b := Bucket([]core.Transaction{tx("a", ts, oneETH), tx("half", ts, "500000000000000000")}, time.UTC)
	lookup := PriceLookupFunc(func(ctx context.Context, date string) (decimal.Decimal, bool, error) {
		return decimal.NewFromInt(2000), true, nil
	})

	got := NewJoiner(4, nil).Join(context.Background(), b, lookup)
	if v := got.Get("a"); !v.Available || v.Fixed() != "2000.00" {
		t.Fatalf("expected 2000.00, got %+v", v)
	}
	if v := got.Get("half"); v.Fixed() != "1000.00" {
		t.Fatalf("expected 1000.00, got %s", v.Fixed())
	}
}

func TestJoinIsolatesFailedBucket(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }
	txs := []core.Transaction{
		tx("d1", day(1), oneETH),
		tx("d2a", day(2), oneETH),
		tx("d2b", day(2), oneETH),
		tx("d3", day(3), "2000000000000000000"),
	}
	var mu sync.Mutex
	calls := map[string]int{}
	lookup := PriceLookupFunc(func(ctx context.Context, date string) (decimal.Decimal, bool, error) {
		mu.Lock()
		calls[date]++
		mu.Unlock()
		if date == "02-03-2024" {
			return decimal.Zero, false, errors.New("upstream down")
		}
		return decimal.NewFromInt(100), true, nil
	})

	got := NewJoiner(2, nil).Join(context.Background(), Bucket(txs, time.UTC), lookup)

	if len(got) != len(txs) {
		t.Fatalf("expected %d valuations, got %d", len(txs), len(got))
	}
	if got.Get("d1").Fixed() != "100.00" || got.Get("d3").Fixed() != "200.00" {
		t.Fatalf("healthy buckets must be valued: %+v", got)
	}
	if got.Get("d2a").Available || got.Get("d2b").Available {
		t.Fatalf("failed bucket must be unavailable")
	}
	for date, n := range calls {
		if n != 1 {
			t.Fatalf("date %s looked up %d times", date, n)
		}
	}
	if len(calls) != 3 {
		t.Fatalf("expected one lookup per date, got %v", calls)
	}
}

func TestJoinUnavailableCases(t *testing.T) {
	ts := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		tx("badvalue", ts, "lots"),
		{Hash: "badtime", Value: oneETH, TimeStamp: ""},
		tx("zero", ts, "0"),
	}
	lookup := PriceLookupFunc(func(ctx context.Context, date string) (decimal.Decimal, bool, error) {
		if date == InvalidKey {
			t.Errorf("invalid bucket must not be looked up")
		}
		return decimal.NewFromInt(2000), true, nil
	})
	got := NewJoiner(1, nil).Join(context.Background(), Bucket(txs, time.UTC), lookup)

	if got.Get("badvalue").Available || got.Get("badtime").Available {
		t.Fatalf("unparsable inputs must be unavailable: %+v", got)
	}
	if v := got.Get("zero"); !v.Available || v.Fixed() != "0.00" {
		t.Fatalf("zero value with a known price is 0.00, got %+v", v)
	}
}

func TestJoinAbsentQuote(t *testing.T) {
	ts := time.Date(2015, 7, 30, 12, 0, 0, 0, time.UTC)
	lookup := PriceLookupFunc(func(ctx context.Context, date string) (decimal.Decimal, bool, error) {
		return decimal.Zero, false, nil
	})
	got := NewJoiner(1, nil).Join(context.Background(), Bucket([]core.Transaction{tx("a", ts, oneETH)}, time.UTC), lookup)
	if got.Get("a").Available {
		t.Fatalf("absent quote must be unavailable, not zero")
	}
}

func TestJoinEmpty(t *testing.T) {
	got := NewJoiner(4, nil).Join(context.Background(), Bucket(nil, time.UTC), PriceLookupFunc(
		func(ctx context.Context, date string) (decimal.Decimal, bool, error) {
			t.Errorf("no lookup expected")
			return decimal.Zero, false, nil
		}))
	if len(got) != 0 {
		t.Fatalf("expected empty valuations, got %d", len(got))
	}
}
