package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openjordi/openjordi-backend/internal/data/repos/testutil"
)

func fetchConfig(url string) *Config {
	return &Config{
		ID:       "test",
		Funder:   "Test Funder",
		DataLink: url,
		Format:   FormatCSV,
	}
}

func TestFetchDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Project ID,Title\nA-1,Wave modelling\n"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testutil.Logger(t), 5*time.Second, 0)
	records, err := f.Fetch(context.Background(), fetchConfig(srv.URL))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 || records[0]["Project ID"] != "A-1" {
		t.Fatalf("records: %v", records)
	}
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("Project ID\nA-1\n"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testutil.Logger(t), 5*time.Second, 3)
	f.backoff = time.Millisecond

	records, err := f.Fetch(context.Background(), fetchConfig(srv.URL))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records: %v", records)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls: %d", got)
	}
}

func TestFetchPermanentStatusDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testutil.Logger(t), 5*time.Second, 3)
	f.backoff = time.Millisecond

	_, err := f.Fetch(context.Background(), fetchConfig(srv.URL))
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != FetchErrPermanent || fe.Status != http.StatusNotFound {
		t.Fatalf("want permanent 404 FetchError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("permanent errors must not retry, calls: %d", got)
	}
}

func TestFetchSSLFailureWithoutOptIn(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Project ID\nA-1\n"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testutil.Logger(t), 5*time.Second, 3)
	f.backoff = time.Millisecond

	_, err := f.Fetch(context.Background(), fetchConfig(srv.URL))
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != FetchErrSSL {
		t.Fatalf("want ssl FetchError, got %v", err)
	}
}

func TestFetchSSLFailureWithOptIn(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Project ID\nA-1\n"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testutil.Logger(t), 5*time.Second, 0)
	cfg := fetchConfig(srv.URL)
	cfg.SkipSSLVerify = true

	records, err := f.Fetch(context.Background(), cfg)
	if err != nil {
		t.Fatalf("fetch with opt-in: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records: %v", records)
	}
}
