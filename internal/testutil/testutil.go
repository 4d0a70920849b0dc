// Package testutil provides common test utilities and helpers for SalesCoach tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
)

// Call is one request received by a FakeBackend.
type Call struct {
	Name   string
	Input  gjson.Result
	Header http.Header
}

// Reply is a scripted backend answer.
type Reply struct {
	Status int
	Body   interface{}
}

// OK wraps data in the procedure success envelope.
func OK(data interface{}) Reply {
	return Reply{
		Status: http.StatusOK,
		Body:   map[string]interface{}{"result": map[string]interface{}{"data": map[string]interface{}{"json": data}}},
	}
}

// Fail builds a procedure error envelope.
func Fail(code string, httpStatus int, message string) Reply {
	return Reply{
		Status: httpStatus,
		Body: map[string]interface{}{"error": map[string]interface{}{"json": map[string]interface{}{
			"message": message,
			"data":    map[string]interface{}{"code": code, "httpStatus": httpStatus},
		}}},
	}
}

// JSON builds a plain REST answer.
func JSON(status int, body interface{}) Reply {
	return Reply{Status: status, Body: body}
}

// FakeBackend is an in-process backend that serves scripted replies and records every
// call in arrival order.
type FakeBackend struct {
	Server *httptest.Server

	mu      sync.Mutex
	calls   []Call
	scripts map[string][]Reply
}

// NewFakeBackend starts a FakeBackend that is closed when the test ends.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	b := &FakeBackend{scripts: make(map[string][]Reply)}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the base URL of the backend.
func (b *FakeBackend) URL() string {
	return b.Server.URL
}

// Script queues replies for a procedure name (e.g. "conversations.getById") or a REST
// route (e.g. "POST /api/auth/login"). Replies are served in order and the last one
// repeats.
func (b *FakeBackend) Script(name string, replies ...Reply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[name] = append(b.scripts[name], replies...)
}

// Calls returns a copy of the calls received so far.
func (b *FakeBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// Names returns the names of the calls received so far, in order.
func (b *FakeBackend) Names() []string {
	calls := b.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}

// Count returns how many times name was called.
func (b *FakeBackend) Count(name string) int {
	n := 0
	for _, c := range b.Calls() {
		if c.Name == name {
			n++
		}
	}
	return n
}

func (b *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	var name string
	input := gjson.ParseBytes(raw)
	if strings.HasPrefix(r.URL.Path, "/trpc/") {
		name = strings.TrimPrefix(r.URL.Path, "/trpc/")
		input = input.Get("json")
	} else {
		name = r.Method + " " + r.URL.Path
	}

	b.mu.Lock()
	b.calls = append(b.calls, Call{Name: name, Input: input, Header: r.Header.Clone()})
	queue := b.scripts[name]
	var reply Reply
	switch len(queue) {
	case 0:
		reply = Fail("NOT_FOUND", http.StatusNotFound, "no script for "+name)
	case 1:
		reply = queue[0]
	default:
		reply = queue[0]
		b.scripts[name] = queue[1:]
	}
	b.mu.Unlock()

	body, err := json.Marshal(reply.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	w.Write(body)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// AssertCallOrder fails the test unless the backend received exactly the given call names.
func AssertCallOrder(t testing.TB, b *FakeBackend, expected ...string) {
	t.Helper()
	got := b.Names()
	if len(got) != len(expected) {
		t.Fatalf("expected calls %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected calls %v, got %v", expected, got)
		}
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
