package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/auth"
	"github.com/BTreeMap/SalesCoach/internal/flow"
	"github.com/BTreeMap/SalesCoach/internal/models"
	"github.com/BTreeMap/SalesCoach/internal/store"
	"github.com/BTreeMap/SalesCoach/internal/testutil"
)

type fakeCheckout struct {
	statuses []models.CheckoutStatus
	err      error
	calls    int
}

func (f *fakeCheckout) CheckoutStatus(_ context.Context, _ string) (*models.CheckoutStatus, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.statuses) == 0 {
		return &models.CheckoutStatus{Status: "open", PaymentStatus: "unpaid"}, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return &st, nil
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func nextEvent(t *testing.T, s *Server) Event {
	t.Helper()
	select {
	case e := <-s.Events():
		return e
	default:
		t.Fatal("expected an event")
		return Event{}
	}
}

func TestAuthCallback(t *testing.T) {
	session, _ := auth.NewSession(store.NewInMemoryStore())
	s := NewServer(WithSession(session))
	s.ExpectState("st_abc")

	rr := serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/auth/callback?token=tok&state=wrong", nil))
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "state mismatch")
	testutil.AssertJSONResponse(t, rr, "error")
	if e := nextEvent(t, s); e.Kind != EventLoginFailed || !errors.Is(e.Err, auth.ErrStateMismatch) {
		t.Errorf("unexpected event %+v", e)
	}
	if session.Authenticated() {
		t.Fatal("a mismatched state must not sign in")
	}

	rr = serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/auth/callback?token=tok&state=st_abc&email=a%40b.c&user_id=12", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "valid callback")
	testutil.AssertJSONResponse(t, rr, "ok")
	if e := nextEvent(t, s); e.Kind != EventLoggedIn {
		t.Errorf("unexpected event %+v", e)
	}
	if u, _ := session.User(); session.Token() != "tok" || u.Email != "a@b.c" || u.ID != 12 {
		t.Errorf("unexpected session %q %+v", session.Token(), u)
	}

	// the nonce is single use
	rr = serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/auth/callback?token=tok2&state=st_abc", nil))
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "replayed callback")
}

func TestAuthCallback_BadRequests(t *testing.T) {
	session, _ := auth.NewSession(store.NewInMemoryStore())
	tests := []struct {
		name   string
		server *Server
		method string
		target string
		want   int
	}{
		{"missing token", NewServer(WithSession(session)), http.MethodGet, "/auth/callback?state=x", http.StatusBadRequest},
		{"no login in progress", NewServer(), http.MethodGet, "/auth/callback?token=t", http.StatusNotFound},
		{"wrong method", NewServer(WithSession(session)), http.MethodPost, "/auth/callback", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(tt.server, testutil.CreateHTTPRequest(t, tt.method, tt.target, nil))
			testutil.AssertHTTPStatus(t, tt.want, rr.Code, tt.name)
			testutil.AssertJSONResponse(t, rr, "error")
		})
	}
}

func TestPaymentReturn(t *testing.T) {
	timer := flow.NewFakeTimer()
	api := &fakeCheckout{statuses: []models.CheckoutStatus{{Status: "open", PaymentStatus: "unpaid"}, {Status: "complete", PaymentStatus: "paid"}}}
	s := NewServer(WithPaymentChecker(flow.NewPaymentChecker(api, timer, 0, 0)))

	rr := serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/payments/return?session_id=cs_1", nil))
	testutil.AssertHTTPStatus(t, http.StatusAccepted, rr.Code, "payment return")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	if !strings.Contains(resp["message"].(string), "Checking payment") {
		t.Errorf("unexpected message %v", resp["message"])
	}

	timer.Advance(time.Minute)
	e := nextEvent(t, s)
	if e.Kind != EventPaymentResult || e.Payment != flow.PaymentPaid || e.Err != nil {
		t.Errorf("unexpected event %+v", e)
	}
	if api.calls != 2 {
		t.Errorf("expected 2 status checks, got %d", api.calls)
	}
}

func TestPaymentReturn_Errors(t *testing.T) {
	rr := serve(NewServer(), testutil.CreateHTTPRequest(t, http.MethodGet, "/payments/return?session_id=cs_1", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "no checker")

	timer := flow.NewFakeTimer()
	s := NewServer(WithPaymentChecker(flow.NewPaymentChecker(&fakeCheckout{err: errors.New("boom")}, timer, 0, 0)))
	rr = serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/payments/return", nil))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing session id")

	serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/payments/return?session_id=cs_1", nil))
	timer.Advance(time.Minute)
	if e := nextEvent(t, s); e.Err == nil || e.Message != "Error checking payment status" {
		t.Errorf("expected a failed payment event, got %+v", e)
	}
}

func TestPaymentCancel(t *testing.T) {
	s := NewServer()
	rr := serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/payments/cancel", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "cancel")
	if e := nextEvent(t, s); e.Kind != EventPaymentCancelled {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestMediaError(t *testing.T) {
	s := NewServer()
	rr := serve(s, testutil.CreateHTTPRequest(t, http.MethodPost, "/media/error", map[string]string{"name": "NotAllowedError"}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "media error")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	if result["class"] != string(flow.MediaDenied) {
		t.Errorf("expected denied, got %v", result)
	}
	if e := nextEvent(t, s); e.Media != flow.MediaDenied || e.Message != flow.MediaDenied.Message() {
		t.Errorf("unexpected event %+v", e)
	}

	req := httptest.NewRequest(http.MethodPost, "/media/error", strings.NewReader("{"))
	rr = serve(s, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid body")
}

func TestHealth(t *testing.T) {
	rr := serve(NewServer(), testutil.CreateHTTPRequest(t, http.MethodGet, "/healthz", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.AssertJSONResponse(t, rr, "ok")
}

func TestServe_ListenAndShutdown(t *testing.T) {
	s := NewServer(WithAddr("127.0.0.1:0"))
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if strings.HasSuffix(s.Origin(), ":0") {
		t.Fatalf("expected the bound port in the origin, got %s", s.Origin())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	resp, err := http.Get(s.URL(PathHealth))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	var body models.APIResponse
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body.Status != "ok" {
		t.Errorf("unexpected body %+v", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestWriteJSONResponse_Fallback(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSONResponse(rr, http.StatusOK, map[string]interface{}{"bad": make(chan int)})
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "unmarshalable response")
	testutil.AssertJSONResponse(t, rr, "error")
}
