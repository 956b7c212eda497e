// Package report renders valued transactions as downloadable CSV or PDF
// artifacts.
package report

import (
	"context"
	"strings"
	"time"

	"taxbridge/internal/core"
	"taxbridge/internal/log"
)

type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// TimestampLayout is used for the timestamp column of both formats.
const TimestampLayout = "2006-01-02 15:04:05"

// ParseFormat accepts csv or pdf, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatPDF:
		return f, nil
	default:
		return "", core.NewInvalidFormat(s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// CountryResolver turns an ISO alpha-2 code into a display name.
type CountryResolver interface {
	Resolve(ctx context.Context, code string) (string, error)
}

// LogoLoader returns the raw bytes of a logo URL.
type LogoLoader interface {
	Load(ctx context.Context, url string) ([]byte, error)
}

// Input is everything one export needs. Profile may be nil.
type Input struct {
	Address      string
	Transactions []core.Transaction
	Valuations   core.Valuations
	Profile      *core.CompanyProfile
	Fiat         string
}

// Artifact is a rendered report.
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Exporter renders reports. Countries and logos are optional.
type Exporter struct {
	countries CountryResolver
	logos     LogoLoader
	loc       *time.Location
	logger    *log.Logger
}

func NewExporter(countries CountryResolver, logos LogoLoader, loc *time.Location, logger *log.Logger) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Exporter{
		countries: countries,
		logos:     logos,
		loc:       loc,
		logger:    logger.WithComponent(log.ComponentReport),
	}
}

// Export renders in as format.
func (e *Exporter) Export(ctx context.Context, format Format, in Input) (Artifact, error) {
	var (
		body []byte
		err  error
	)
	switch format {
	case FormatCSV:
		body = e.csv(in)
	case FormatPDF:
		body, err = e.pdf(ctx, in)
		if err != nil {
			return Artifact{}, core.NewInternal(err)
		}
	default:
		return Artifact{}, core.NewInvalidFormat(string(format))
	}

	e.logger.DebugContext(ctx, "Report rendered",
		log.FieldWallet, in.Address, log.FieldFormat, string(format), log.FieldTxCount, len(in.Transactions))
	return Artifact{
		Filename:    Filename(in.Address, format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

// Filename is <address>-transactions.<ext>.
func Filename(address string, format Format) string {
	return address + "-transactions." + string(format)
}

func fiatLabel(fiat string) string {
	if fiat == "" {
		fiat = "usd"
	}
	return "Value (" + strings.ToUpper(fiat) + ")"
}

// row renders the six report columns of tx.
func (e *Exporter) row(tx core.Transaction, vs core.Valuations) []string {
	ts := ""
	if t, err := tx.Time(); err == nil {
		ts = t.In(e.loc).Format(TimestampLayout)
	}
	return []string{
		tx.Hash,
		tx.From,
		tx.To,
		core.FormatETH(tx.Value),
		vs.Get(tx.Hash).Fixed(),
		ts,
	}
}
