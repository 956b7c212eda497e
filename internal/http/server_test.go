package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"taxbridge/internal/core"
	"taxbridge/internal/country"
	"taxbridge/internal/logo"
	"taxbridge/internal/report"
	"taxbridge/internal/services"
	"taxbridge/internal/storage/memory"
	"taxbridge/internal/valuation"
)

const wallet = "0x00000000219ab540356cBB839Cbe05303d7705Fa"

type fakeSource struct {
	txs []core.Transaction
	err error
}

func (f fakeSource) FetchTransactions(_ context.Context, address string, _ core.Network) ([]core.Transaction, error) {
	if err := core.ValidateAddress(address); err != nil {
		return nil, core.NewValidation("address", err)
	}
	return f.txs, f.err
}

type fixedPrices map[string]string

func (p fixedPrices) FetchPrice(_ context.Context, date string) (decimal.Decimal, bool, error) {
	v, ok := p[date]
	if !ok {
		return decimal.Zero, false, nil
	}
	return decimal.RequireFromString(v), true, nil
}

type fakeCountries []country.Country

func (f fakeCountries) List(context.Context) ([]country.Country, error) { return f, nil }

func at(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 0, 0, 0, time.UTC)
}

func tx(hash, value string, t time.Time) core.Transaction {
	return core.Transaction{Hash: hash, From: wallet, To: "0xdest", Value: value, TimeStamp: strconv.FormatInt(t.Unix(), 10)}
}

type testEnv struct {
	srv   *Server
	store *memory.Store
}

func newTestServer(t *testing.T, source services.TransactionSource, opts Options) testEnv {
	t.Helper()
	prices := fixedPrices{"10-03-2024": "2000"}
	store := memory.New()
	profiles := services.NewProfileService(store, nil, nil)
	ledger := services.NewLedgerService(
		source,
		prices,
		valuation.NewJoiner(4, nil),
		report.NewExporter(nil, nil, time.UTC, nil),
		profiles,
		services.LedgerConfig{Fiat: "usd", Location: time.UTC, Now: func() time.Time { return at(15, 12) }},
		nil,
	)
	logos, err := logo.NewLocalStore(t.TempDir(), "/logos", false)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}

	srv := NewServer(":0", Deps{
		Ledger:       ledger,
		Profiles:     profiles,
		Transactions: source,
		Prices:       prices,
		Fiat:         "usd",
		Countries:    fakeCountries{{Name: "Germany", ISOCode: "DE"}, {Name: "Italy", ISOCode: "IT"}},
		Logos:        logos,
	}, opts)
	srv.now = func() time.Time { return time.UnixMilli(1710000000000) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return testEnv{srv: srv, store: store}
}

func sampleSource() fakeSource {
	return fakeSource{txs: []core.Transaction{
		tx("0xc", "1000000000000000000", at(12, 9)),
		tx("0xb", "500000000000000000", at(10, 18)),
		tx("0xa", "1000000000000000000", at(10, 10)),
	}}
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestLedgerEndpoint(t *testing.T) {
	env := newTestServer(t, sampleSource(), Options{})

	rr := do(t, env.srv.Handler, httptest.NewRequest(http.MethodGet, "/api/ledger?address="+wallet+"&timeframe=thisMonth", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	var body struct {
		Fiat         string `json:"fiat"`
		Transactions []struct {
			Hash      string       `json:"hash"`
			ValueETH  string       `json:"value_eth"`
			FiatValue *json.Number `json:"fiat_value"`
		} `json:"transactions"`
		Unavailable int    `json:"unavailable"`
		Warning     string `json:"warning"`
	}
	decodeBody(t, rr, &body)

	if len(body.Transactions) != 3 || body.Fiat != "usd" {
		t.Fatalf("unexpected ledger: %+v", body)
	}
	if body.Transactions[0].FiatValue != nil {
		t.Errorf("expected null fiat value for unpriced day, got %v", *body.Transactions[0].FiatValue)
	}
	if v := body.Transactions[1].FiatValue; v == nil || v.String() != "1000.00" {
		t.Errorf("expected 1000.00, got %v", v)
	}
	if v := body.Transactions[2].FiatValue; v == nil || v.String() != "2000.00" {
		t.Errorf("expected 2000.00, got %v", v)
	}
	if body.Transactions[1].ValueETH != "0.5" {
		t.Errorf("expected 0.5 ETH, got %s", body.Transactions[1].ValueETH)
	}
	if body.Unavailable != 1 || body.Warning == "" {
		t.Errorf("expected one unavailable with warning, got %d %q", body.Unavailable, body.Warning)
	}
}

func TestLedgerEndpointErrors(t *testing.T) {
	env := newTestServer(t, sampleSource(), Options{})
	failing := newTestServer(t, fakeSource{err: core.NewUpstream("explorer", errors.New("boom"))}, Options{})

	tests := []struct {
		name   string
		h      http.Handler
		url    string
		status int
		kind   string
	}{
		{"bad address", env.srv.Handler, "/api/ledger?address=0x123", http.StatusUnprocessableEntity, "validation"},
		{"missing address", env.srv.Handler, "/api/ledger", http.StatusUnprocessableEntity, "validation"},
		{"bad network", env.srv.Handler, "/api/ledger?address=" + wallet + "&network=ropsten", http.StatusUnprocessableEntity, "validation"},
		{"bad timeframe", env.srv.Handler, "/api/ledger?address=" + wallet + "&timeframe=decade", http.StatusUnprocessableEntity, "validation"},
		{"bad format", env.srv.Handler, "/api/report?address=" + wallet + "&format=xlsx", http.StatusBadRequest, "validation"},
		{"upstream", failing.srv.Handler, "/api/ledger?address=" + wallet, http.StatusBadGateway, "upstream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, tt.h, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			var body errorBody
			decodeBody(t, rr, &body)
			if body.Kind != tt.kind || body.Error == "" {
				t.Errorf("unexpected error body %+v", body)
			}
		})
	}
}

func TestReportEndpoint(t *testing.T) {
	env := newTestServer(t, sampleSource(), Options{})

	rr := do(t, env.srv.Handler, httptest.NewRequest(http.MethodGet, "/api/report?address="+wallet+"&format=csv", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	wantDisposition := "attachment; filename=" + report.Filename(wallet, report.FormatCSV)
	if got := rr.Header().Get("Content-Disposition"); got != wantDisposition {
		t.Errorf("expected %q, got %q", wantDisposition, got)
	}
	if got := rr.Header().Get(HeaderPartialData); got != "1" {
		t.Errorf("expected partial data header 1, got %q", got)
	}
	if !strings.Contains(rr.Body.String(), "2000.00") {
		t.Errorf("expected valued row in CSV:\n%s", rr.Body.String())
	}

	rr = do(t, env.srv.Handler, httptest.NewRequest(http.MethodGet, "/api/report?address="+wallet+"&format=pdf", nil))
	if rr.Code != http.StatusOK || !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected PDF, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != report.FormatPDF.ContentType() {
		t.Errorf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
}

func TestTransactionsAndPriceProxies(t *testing.T) {
	env := newTestServer(t, sampleSource(), Options{})

	rr := do(t, env.srv.Handler, httptest.NewRequest(http.MethodGet, "/api/transactions?address="+wallet+"&network=sepolia", nil))
	var txs transactionsResponse
	decodeBody(t, rr, &txs)
	if rr.Code != http.StatusOK || txs.Status != "1" || len(txs.Result) != 3 {
		t.Fatalf("unexpected transactions response %d %+v", rr.Code, txs)
	}

	rr = do(t, env.srv.Handler, httptest.NewRequest(http.MethodGet, "/api/price?date=10-03-2024", nil))
	var found struct {
		Date       string `json:"date"`
		MarketData struct {
			CurrentPrice map[string]json.Number `json:"current_price"`
		} `json:"market_data"`
	}
	decodeBody(t, rr, &found)
	if found.MarketData.CurrentPrice["usd"].String() != "2000" {
		t.Errorf("expected usd 2000, got %s", rr.Body.String())
	}

	rr = do(t, env.srv.Handler, httptest.NewRequest(http.MethodGet, "/api/price?date=11-03-2024", nil))
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "market_data") {
		t.Errorf("expected quote-less answer, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestCompanyEndpoints(t *testing.T) {
	env := newTestServer(t, sampleSource(), Options{})
	h := env.srv.Handler

	create := func(body, contentType string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/company", strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		return do(t, h, req)
	}

	rr := create(`{"wallet_address":"`+wallet+`","name":"Acme","country":"it"}`, "application/json")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created companyResponse
	decodeBody(t, rr, &created)
	if created.Company.Country != "IT" {
		t.Errorf("expected normalized country, got %q", created.Company.Country)
	}

	if rr := create(`{"wallet_address":"`+wallet+`"}`, "application/json"); rr.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate, got %d", rr.Code)
	}
	if rr := create("name=NoWallet", "application/x-www-form-urlencoded"); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 without wallet, got %d", rr.Code)
	}
	if rr := create(`{"wallet_address":`, "application/json"); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 on malformed JSON, got %d", rr.Code)
	}

	rr = do(t, h, httptest.NewRequest(http.MethodGet, "/api/company", nil))
	var list companiesResponse
	decodeBody(t, rr, &list)
	if len(list.Companies) != 1 {
		t.Fatalf("expected one company, got %+v", list)
	}

	patch := func(query, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/api/company"+query, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return do(t, h, req)
	}

	rr = patch("?wallet_address="+wallet, "city=Milano")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var updated companyResponse
	decodeBody(t, rr, &updated)
	if updated.Company.City != "Milano" || updated.Company.Name != "Acme" {
		t.Errorf("patch should only touch city: %+v", updated.Company)
	}

	if rr := patch("?wallet_address=0xmissing", "city=Roma"); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
	if rr := patch("?wallet_address="+wallet, ""); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 on empty patch, got %d", rr.Code)
	}

	rr = do(t, h, httptest.NewRequest(http.MethodDelete, "/api/company", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// webpHeader is enough of a RIFF/WEBP file for content sniffing.
func webpHeader() []byte {
	b := []byte("RIFF\x1a\x00\x00\x00WEBPVP8L\x0d\x00\x00\x00\x2f\x00\x00\x00\x00")
	return append(b, make([]byte, 16)...)
}

// Every accepted upload type must decode, or the logo would be dropped
// from PDF reports.
func TestAcceptedLogoTypesDecode(t *testing.T) {
	samples := map[string]func(*bytes.Buffer, image.Image) error{
		"image/png":  func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) },
		"image/jpeg": func(b *bytes.Buffer, m image.Image) error { return jpeg.Encode(b, m, nil) },
		"image/gif":  func(b *bytes.Buffer, m image.Image) error { return gif.Encode(b, m, nil) },
	}
	for contentType := range logoTypes {
		encode, ok := samples[contentType]
		if !ok {
			t.Fatalf("%s is accepted but has no decodable sample", contentType)
		}
		var buf bytes.Buffer
		if err := encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
			t.Fatal(err)
		}
		if got := http.DetectContentType(buf.Bytes()); got != contentType {
			t.Fatalf("sample sniffs as %s, want %s", got, contentType)
		}
		if _, _, err := image.Decode(bytes.NewReader(buf.Bytes())); err != nil {
			t.Errorf("%s: not decodable: %v", contentType, err)
		}
	}
}

func uploadRequest(t *testing.T, company, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if company != "" {
		_ = mw.WriteField("companyName", company)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload-logo", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadLogo(t *testing.T) {
	env := newTestServer(t, sampleSource(), Options{MaxUploadBytes: 2048})
	h := env.srv.Handler

	rr := do(t, h, uploadRequest(t, "Acme Corp", "brand.PNG", pngBytes(t)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var up uploadResponse
	decodeBody(t, rr, &up)
	if up.PublicURL != "/logos/acme_corp-logo_1710000000000.png" {
		t.Fatalf("unexpected public URL %q", up.PublicURL)
	}

	// same owner and instant must not overwrite
	if rr := do(t, h, uploadRequest(t, "Acme Corp", "brand.png", pngBytes(t))); rr.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate object, got %d", rr.Code)
	}

	rr = do(t, h, httptest.NewRequest(http.MethodGet, up.PublicURL, nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected served PNG, got %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "immutable") {
		t.Errorf("expected cacheable logo, got %q", rr.Header().Get("Cache-Control"))
	}

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"webp", uploadRequest(t, "Acme", "brand.webp", webpHeader()), http.StatusUnprocessableEntity},
		{"not an image", uploadRequest(t, "Acme", "notes.png", []byte("plain text, not a picture")), http.StatusUnprocessableEntity},
		{"missing company", uploadRequest(t, "", "brand.png", pngBytes(t)), http.StatusUnprocessableEntity},
		{"too large", uploadRequest(t, "Acme", "big.png", append(pngBytes(t), make([]byte, 4096)...)), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, h, tt.req); rr.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}

	if rr := do(t, h, httptest.NewRequest(http.MethodGet, "/logos/missing-logo_1.png", nil)); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown logo, got %d", rr.Code)
	}
}

func TestCountriesAndHealth(t *testing.T) {
	env := newTestServer(t, sampleSource(), Options{})
	h := env.srv.Handler

	rr := do(t, h, httptest.NewRequest(http.MethodGet, "/api/countries", nil))
	var list []country.Country
	decodeBody(t, rr, &list)
	if len(list) != 2 || list[1].ISOCode != "IT" {
		t.Errorf("unexpected countries %+v", list)
	}
	if !strings.Contains(rr.Body.String(), `"isoCode"`) {
		t.Errorf("expected isoCode key: %s", rr.Body.String())
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(t, h, httptest.NewRequest(http.MethodGet, path, nil)); rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
	}

	rr = do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Errorf("expected metrics output, got %s", rr.Body.String())
	}
}

func TestRateLimitAndSuspiciousRequests(t *testing.T) {
	env := newTestServer(t, sampleSource(), Options{RateLimitPerMinute: 1})
	h := env.srv.Handler

	if rr := do(t, h, httptest.NewRequest(http.MethodGet, "/api/countries", nil)); rr.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rr.Code)
	}
	rr := do(t, h, httptest.NewRequest(http.MethodGet, "/api/countries", nil))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rr.Code)
	}
	if rr := do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rr.Code != http.StatusOK {
		t.Errorf("health checks are not rate limited, got %d", rr.Code)
	}

	rr = do(t, h, httptest.NewRequest(http.MethodGet, "/api/ledger?address=../../etc/passwd", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected suspicious request rejected, got %d", rr.Code)
	}
}
