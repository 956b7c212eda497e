package http

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"taxbridge/internal/core"
	"taxbridge/internal/log"
	"taxbridge/internal/report"
	"taxbridge/internal/services"
)

// HeaderPartialData carries the number of unvalued transactions in a report.
const HeaderPartialData = "X-Partial-Data"

// transactionsResponse mirrors the explorer's txlist envelope.
type transactionsResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Result  []core.Transaction `json:"result"`
}

type priceResponse struct {
	Date       string      `json:"date"`
	MarketData *marketData `json:"market_data,omitempty"`
}

type marketData struct {
	CurrentPrice map[string]json.Number `json:"current_price"`
}

type ledgerEntry struct {
	core.Transaction
	ValueETH  string         `json:"value_eth"`
	FiatValue core.Valuation `json:"fiat_value"`
}

type ledgerResponse struct {
	Address      string        `json:"address"`
	Network      string        `json:"network"`
	Fiat         string        `json:"fiat"`
	Transactions []ledgerEntry `json:"transactions"`
	Unavailable  int           `json:"unavailable"`
	Warning      string        `json:"warning,omitempty"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	network, err := core.ParseNetwork(q.Get("network"))
	if err != nil {
		s.fail(w, r, log.OpFetch, core.NewValidation("network", err))
		return
	}

	txs, err := s.deps.Transactions.FetchTransactions(r.Context(), sanitizeInput(q.Get("address")), network)
	if err != nil {
		s.fail(w, r, log.OpFetch, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewResponse().JSON(transactionsResponse{Status: "1", Message: "OK", Result: txs}).Write(w)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	date := sanitizeInput(r.URL.Query().Get("date"))
	price, found, err := s.deps.Prices.FetchPrice(r.Context(), date)
	if err != nil {
		s.fail(w, r, log.OpFetch, err)
		return
	}

	resp := priceResponse{Date: date}
	if found {
		resp.MarketData = &marketData{CurrentPrice: map[string]json.Number{
			s.deps.Fiat: json.Number(price.String()),
		}}
	}
	NewResponse().JSON(resp).Write(w)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	q, err := ParseLedgerQuery(r.URL.Query())
	if err != nil {
		s.fail(w, r, log.OpValuate, err)
		return
	}

	l, err := s.deps.Ledger.Build(r.Context(), q)
	if err != nil {
		s.fail(w, r, log.OpValuate, err)
		return
	}
	s.countLedger(l)
	NewResponse().JSON(newLedgerResponse(l)).Write(w)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q, err := ParseLedgerQuery(r.URL.Query())
	if err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	// csv when omitted
	rawFormat := strings.TrimSpace(r.URL.Query().Get("format"))
	if rawFormat == "" {
		rawFormat = string(report.FormatCSV)
	}
	format, err := report.ParseFormat(rawFormat)
	if err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}

	art, l, err := s.deps.Ledger.Report(r.Context(), q, format)
	if err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	s.countLedger(l)
	atomic.AddInt64(&s.appMetrics.reports, 1)

	h := w.Header()
	h.Set("Content-Type", art.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": art.Filename}))
	h.Set("Content-Length", strconv.Itoa(len(art.Body)))
	h.Set("Cache-Control", "no-store")
	if l.Unavailable > 0 {
		h.Set(HeaderPartialData, strconv.Itoa(l.Unavailable))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Body)
}

func (s *Server) countLedger(l services.Ledger) {
	atomic.AddInt64(&s.appMetrics.ledgers, 1)
	if l.Unavailable > 0 {
		atomic.AddInt64(&s.appMetrics.partial, 1)
	}
}

func newLedgerResponse(l services.Ledger) ledgerResponse {
	resp := ledgerResponse{
		Address:      l.Address,
		Network:      l.Network.String(),
		Fiat:         l.Fiat,
		Transactions: make([]ledgerEntry, 0, len(l.Transactions)),
		Unavailable:  l.Unavailable,
	}
	for _, tx := range l.Transactions {
		resp.Transactions = append(resp.Transactions, ledgerEntry{
			Transaction: tx,
			ValueETH:    core.FormatETH(tx.Value),
			FiatValue:   l.Valuations.Get(tx.Hash),
		})
	}
	if warn := l.Warning(); warn != nil {
		resp.Warning = warn.Error()
	}
	return resp
}
