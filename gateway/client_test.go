package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		BaseURL:     srv.URL,
		SecurityKey: "K",
		HTTPClient:  srv.Client(),
		Timeout:     2 * time.Second,
	}
}

func TestAuthenticateWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/Authorization/Authenticate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("SecurityKey"); got != "K" {
			t.Errorf("SecurityKey header = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		if got := r.Header.Get("Referer"); got != "https://portal.ghazaresan.com/" {
			t.Errorf("Referer = %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["UserName"] != "a" || body["Password"] != "b" {
			t.Errorf("unexpected body %v", body)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Token":          "T1",
			"RestaurantName": "Test",
			"CanEditMenu":    true,
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Authenticate(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Token != "T1" || resp.RestaurantName != "Test" || !resp.CanEditMenu {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAuthenticateRejectedNotMistakenForTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Authenticate(context.Background(), "a", "wrong")
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rej.Status != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rej.Status)
	}
	if IsRetryable(err) {
		t.Fatalf("rejection must not be retryable")
	}
}

func TestAuthenticateMissingTokenIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"RestaurantName": "Test"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Authenticate(context.Background(), "a", "b")
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectedError for missing token, got %v", err)
	}
}

func TestVerifySendsAuthorizationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/Authorization/Verify" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "T1" {
			t.Errorf("Authorization = %q", got)
		}
	}))
	defer srv.Close()

	if err := newTestClient(srv).Verify(context.Background(), "T1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if err := newTestClient(srv).Verify(context.Background(), "stale"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGetOrdersWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/Orders/GetOrders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("authorizationcode"); got != "T1" {
			t.Errorf("authorizationcode = %q", got)
		}
		if got := r.Header.Get("securitykey"); got != "K" {
			t.Errorf("securitykey = %q", got)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) != 0 {
			t.Errorf("expected empty JSON object body, got %v (%v)", body, err)
		}
		w.Write([]byte(`[{"Status":0},{"Status":1},{"Status":0}]`))
	}))
	defer srv.Close()

	orders, err := newTestClient(srv).GetOrders(context.Background(), "T1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	pending := 0
	for _, o := range orders {
		if o.IsPending() {
			pending++
		}
	}
	if pending != 2 {
		t.Fatalf("expected 2 pending, got %d", pending)
	}
}

func TestGetOrdersServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetOrders(context.Background(), "T1")
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("server error must be retryable")
	}
}

func TestTransportErrorOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.Timeout = 20 * time.Millisecond
	err := c.Verify(context.Background(), "T1")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError on timeout, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("timeout must be retryable")
	}
}

type fakeRESTMetrics struct {
	requests  map[string]int
	errs      map[string]int
	latencies int
}

func newFakeRESTMetrics() *fakeRESTMetrics {
	return &fakeRESTMetrics{requests: make(map[string]int), errs: make(map[string]int)}
}

func (f *fakeRESTMetrics) RecordRESTRequest(action string) { f.requests[action]++ }
func (f *fakeRESTMetrics) RecordRESTError(action string)   { f.errs[action]++ }
func (f *fakeRESTMetrics) RecordRESTLatency(action string, seconds float64) {
	f.latencies++
}

func TestClientRecordsRESTMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"Token": "T1"})
	}))
	defer srv.Close()

	met := newFakeRESTMetrics()
	c := newTestClient(srv)
	c.Metrics = met
	if _, err := c.Authenticate(context.Background(), "a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if met.requests["authenticate"] != 1 {
		t.Fatalf("expected 1 authenticate request recorded, got %d", met.requests["authenticate"])
	}
	if met.latencies != 1 {
		t.Fatalf("expected 1 latency observation, got %d", met.latencies)
	}
	if len(met.errs) != 0 {
		t.Fatalf("no errors expected, got %v", met.errs)
	}
}

func TestClientRecordsRESTErrorOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 连接必然失败

	met := newFakeRESTMetrics()
	c := newTestClient(srv)
	c.HTTPClient = &http.Client{Timeout: time.Second}
	c.Metrics = met
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected transport error")
	}
	if met.errs["ping"] != 1 {
		t.Fatalf("expected 1 ping error recorded, got %d", met.errs["ping"])
	}
}
