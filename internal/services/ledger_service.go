package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taxbridge/internal/core"
	"taxbridge/internal/log"
	"taxbridge/internal/report"
	"taxbridge/internal/timeframe"
	"taxbridge/internal/valuation"
)

// TransactionSource returns a wallet's transaction history.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, address string, network core.Network) ([]core.Transaction, error)
}

// ReportRenderer turns a valued ledger into a downloadable artifact.
type ReportRenderer interface {
	Export(ctx context.Context, format report.Format, in report.Input) (report.Artifact, error)
}

// ProfileLookup finds the company profile printed on reports.
type ProfileLookup interface {
	Get(ctx context.Context, wallet string) (core.CompanyProfile, error)
}

type LedgerConfig struct {
	Fiat     string
	Location *time.Location
	Now      func() time.Time
}

// LedgerQuery selects the wallet, chain and reporting interval.
type LedgerQuery struct {
	Address   string
	Network   core.Network
	TimeFrame core.TimeFrame
}

// Ledger is the filtered transaction list with its fiat valuations.
type Ledger struct {
	Address      string
	Network      core.Network
	Fiat         string
	Transactions []core.Transaction
	Valuations   core.Valuations
	Unavailable  int
}

// Warning is a partial-data error when some valuations are missing, nil
// otherwise.
func (l Ledger) Warning() error {
	if l.Unavailable == 0 {
		return nil
	}
	return core.NewPartialData(l.Unavailable)
}

// LedgerService runs the fetch, filter, bucket, price and join pipeline.
type LedgerService struct {
	source   TransactionSource
	prices   valuation.PriceLookup
	joiner   *valuation.Joiner
	exporter ReportRenderer
	profiles ProfileLookup
	fiat     string
	loc      *time.Location
	now      func() time.Time
	logger   *log.Logger
	events   *log.StructuredLogger
}

func NewLedgerService(
	source TransactionSource,
	prices valuation.PriceLookup,
	joiner *valuation.Joiner,
	exporter ReportRenderer,
	profiles ProfileLookup,
	cfg LedgerConfig,
	logger *log.Logger,
) *LedgerService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Fiat == "" {
		cfg.Fiat = "usd"
	}
	if logger == nil {
		logger = log.Discard()
	}
	if joiner == nil {
		joiner = valuation.NewJoiner(1, logger)
	}
	return &LedgerService{
		source:   source,
		prices:   prices,
		joiner:   joiner,
		exporter: exporter,
		profiles: profiles,
		fiat:     cfg.Fiat,
		loc:      cfg.Location,
		now:      cfg.Now,
		logger:   logger.WithComponent(log.ComponentLedger),
		events:   log.NewStructuredLogger(logger),
	}
}

// Build fetches the wallet history, keeps the transactions inside the time
// frame and values them. Missing prices are reported through Unavailable,
// never as an error.
func (s *LedgerService) Build(ctx context.Context, q LedgerQuery) (Ledger, error) {
	address := strings.TrimSpace(q.Address)
	if err := core.ValidateAddress(address); err != nil {
		return Ledger{}, core.NewValidation("address", err)
	}

	txs, err := s.source.FetchTransactions(ctx, address, q.Network)
	if err != nil {
		return Ledger{}, err
	}

	selected := timeframe.Filter(txs, q.TimeFrame, s.now().In(s.loc))
	buckets := valuation.Bucket(selected, s.loc)
	values := s.joiner.Join(ctx, buckets, s.prices)
	if err := ctx.Err(); err != nil {
		return Ledger{}, err
	}

	l := Ledger{
		Address:      address,
		Network:      q.Network,
		Fiat:         s.fiat,
		Transactions: selected,
		Valuations:   values,
		Unavailable:  values.CountUnavailable(selected),
	}

	s.events.LogLedgerBuilt(ctx, address, q.Network.String(), len(selected), l.Unavailable)
	s.logger.DebugContext(ctx, "Ledger detail",
		log.FieldWallet, address,
		"fetched", len(txs),
		log.FieldBuckets, buckets.Len())
	return l, nil
}

// Report builds the ledger and renders it with the wallet's company profile,
// when one exists.
func (s *LedgerService) Report(ctx context.Context, q LedgerQuery, format report.Format) (report.Artifact, Ledger, error) {
	if s.exporter == nil {
		return report.Artifact{}, Ledger{}, core.NewInternal(fmt.Errorf("report exporter not configured"))
	}

	l, err := s.Build(ctx, q)
	if err != nil {
		return report.Artifact{}, Ledger{}, err
	}

	profile, err := s.profile(ctx, l.Address)
	if err != nil {
		return report.Artifact{}, Ledger{}, err
	}

	art, err := s.exporter.Export(ctx, format, report.Input{
		Address:      l.Address,
		Transactions: l.Transactions,
		Valuations:   l.Valuations,
		Profile:      profile,
		Fiat:         l.Fiat,
	})
	if err != nil {
		return report.Artifact{}, Ledger{}, err
	}

	s.logger.InfoContext(ctx, "Report exported",
		log.FieldWallet, l.Address,
		log.FieldFormat, string(format),
		log.FieldTxCount, len(l.Transactions),
		log.FieldMissing, l.Unavailable,
		"bytes", len(art.Body))
	return art, l, nil
}

func (s *LedgerService) profile(ctx context.Context, wallet string) (*core.CompanyProfile, error) {
	if s.profiles == nil {
		return nil, nil
	}
	p, err := s.profiles.Get(ctx, wallet)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load company profile: %w", err)
	}
	return &p, nil
}
