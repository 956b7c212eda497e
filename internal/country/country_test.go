package country

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"taxbridge/internal/core"
)

func TestListFiltersAndSorts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v3.1/all" || r.URL.Query().Get("fields") != "name,cca2" {
			t.Errorf("unexpected request %s", r.URL)
		}
		fmt.Fprint(w, `[
			{"name":{"common":"Italy"},"cca2":"IT"},
			{"name":{"common":"Åland Islands"},"cca2":""},
			{"name":{"common":"Austria"},"cca2":"AT"},
			{"name":{"common":""},"cca2":"XX"},
			{"name":{"common":"germany"},"cca2":"de"}]`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	list, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []Country{{"Austria", "AT"}, {"germany", "DE"}, {"Italy", "IT"}}
	if fmt.Sprint(list) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, list)
	}

	if _, err := c.List(context.Background()); err != nil {
		t.Fatalf("cached list: %v", err)
	}
	name, err := c.Resolve(context.Background(), "it")
	if err != nil || name != "Italy" {
		t.Fatalf("expected Italy from cache, got %q %v", name, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single upstream call, got %d", calls.Load())
	}
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3.1/alpha/FR":
			fmt.Fprint(w, `[{"name":{"common":"France"},"cca2":"FR"}]`)
		case "/v3.1/alpha/QQ":
			fmt.Fprint(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL}, nil)

	if name, err := c.Resolve(context.Background(), "fr"); err != nil || name != "France" {
		t.Fatalf("expected France, got %q %v", name, err)
	}
	if _, err := c.Resolve(context.Background(), "QQ"); !core.IsKind(err, core.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := c.Resolve(context.Background(), "ZZ"); !core.IsKind(err, core.KindUpstream) {
		t.Fatalf("expected upstream error on 404, got %v", err)
	}
	if _, err := c.Resolve(context.Background(), "ITA"); !core.IsKind(err, core.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	if _, err := New(Config{BaseURL: srv.URL}, nil).List(context.Background()); !core.IsKind(err, core.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
