package listener

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/morezero/httpserver-provider/pkg/codec"
	"github.com/morezero/httpserver-provider/pkg/dispatch"
	"github.com/morezero/httpserver-provider/pkg/metrics"
)

const handlerTestPrefix = "listener:handler_test"

// respondWith returns a dispatcher that records the decoded request and replies with resp.
func respondWith(t *testing.T, resp *codec.Response, seen *codec.Request) dispatch.Func {
	t.Helper()
	return func(_ context.Context, target, op string, payload []byte) ([]byte, error) {
		if op != dispatch.OpHandleRequest {
			return nil, errors.New("unexpected operation " + op)
		}
		req, err := codec.DecodeRequest(payload)
		if err != nil {
			return nil, err
		}
		if seen != nil {
			*seen = *req
		}
		return codec.EncodeResponse(resp)
	}
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func expectReply(t *testing.T, rec *httptest.ResponseRecorder, code int, body string) {
	t.Helper()
	if rec.Code != code {
		t.Errorf("%s - status = %d, want %d", handlerTestPrefix, rec.Code, code)
	}
	if got := rec.Body.String(); got != body {
		t.Errorf("%s - body = %q, want %q", handlerTestPrefix, got, body)
	}
}

func TestHandler_TranslatesRequestAndResponse(t *testing.T) {
	var seen codec.Request
	handle := dispatch.NewHandle(respondWith(t, &codec.Response{
		StatusCode: 201,
		Header:     map[string]string{"X-Module": "m1", "Content-Length": "999"},
		Body:       []byte("ok"),
	}, &seen))
	h := NewHandler("m1", handle, HandlerOptions{})

	req := httptest.NewRequest(http.MethodPost, "http://example.test/items/7?full=true&x=1", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(h, req)

	expectReply(t, rec, 201, "ok")
	if got := rec.Header().Get("X-Module"); got != "m1" {
		t.Errorf("%s - X-Module = %q, want m1", handlerTestPrefix, got)
	}

	if seen.Method != "POST" {
		t.Errorf("%s - method = %q, want POST", handlerTestPrefix, seen.Method)
	}
	if seen.Path != "/items/7" {
		t.Errorf("%s - path = %q, want /items/7", handlerTestPrefix, seen.Path)
	}
	if seen.QueryString != "full=true&x=1" {
		t.Errorf("%s - query = %q", handlerTestPrefix, seen.QueryString)
	}
	if !bytes.Equal(seen.Body, []byte(`{"a":1}`)) {
		t.Errorf("%s - body = %q", handlerTestPrefix, seen.Body)
	}
	if got := seen.Header["content-type"]; got != "application/json" {
		t.Errorf("%s - content-type = %q", handlerTestPrefix, got)
	}
	if got := seen.Header["host"]; got != "example.test" {
		t.Errorf("%s - host = %q, want example.test", handlerTestPrefix, got)
	}
}

func TestHandler_HeaderFoldingLastValueWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Add("X-Dup", "first")
	req.Header.Add("x-dup", "second")

	got, err := BuildRequest(req, 0)
	if err != nil {
		t.Fatalf("%s - BuildRequest: %v", handlerTestPrefix, err)
	}
	if got.Header["x-dup"] != "second" {
		t.Errorf("%s - x-dup = %q, want second", handlerTestPrefix, got.Header["x-dup"])
	}
	if len(got.Body) != 0 {
		t.Errorf("%s - body = %q, want empty", handlerTestPrefix, got.Body)
	}
}

func TestHandler_DispatchErrorIs500(t *testing.T) {
	handle := dispatch.NewHandle(dispatch.Func(func(context.Context, string, string, []byte) ([]byte, error) {
		return nil, errors.New("module crashed")
	}))
	h := NewHandler("m1", handle, HandlerOptions{Metrics: metrics.New()})

	expectReply(t, serve(h, httptest.NewRequest(http.MethodGet, "/anything", nil)), http.StatusInternalServerError, FailureBody)
}

func TestHandler_NoDispatcherConfiguredIs500(t *testing.T) {
	h := NewHandler("m1", dispatch.NewHandle(nil), HandlerOptions{})

	expectReply(t, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)), http.StatusInternalServerError, FailureBody)
}

func TestHandler_MalformedReplyIs500(t *testing.T) {
	handle := dispatch.NewHandle(dispatch.Func(func(context.Context, string, string, []byte) ([]byte, error) {
		return []byte("definitely not cbor \xff"), nil
	}))
	h := NewHandler("m1", handle, HandlerOptions{})

	expectReply(t, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)), http.StatusInternalServerError, FailureBody)
}

func TestHandler_OutOfRangeStatusIs500(t *testing.T) {
	for _, code := range []uint32{0, 42, 100, 1000, 65535} {
		handle := dispatch.NewHandle(respondWith(t, &codec.Response{StatusCode: code, Body: []byte("x")}, nil))
		h := NewHandler("m1", handle, HandlerOptions{})

		rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError || rec.Body.String() != FailureBody {
			t.Errorf("%s - module status %d: got %d %q", handlerTestPrefix, code, rec.Code, rec.Body.String())
		}
	}
}

func TestHandler_BodyLimit(t *testing.T) {
	called := false
	handle := dispatch.NewHandle(dispatch.Func(func(context.Context, string, string, []byte) ([]byte, error) {
		called = true
		return nil, nil
	}))
	h := NewHandler("m1", handle, HandlerOptions{MaxBodyBytes: 4})

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	expectReply(t, rec, http.StatusRequestEntityTooLarge, TooLargeBody)
	if called {
		t.Errorf("%s - oversized request must not reach the module", handlerTestPrefix)
	}
}

func TestHandler_RequestTimeout(t *testing.T) {
	handle := dispatch.NewHandle(dispatch.Func(func(ctx context.Context, _, _ string, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	h := NewHandler("m1", handle, HandlerOptions{RequestTimeout: 20 * time.Millisecond})

	start := time.Now()
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/slow", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("%s - status = %d, want 500", handlerTestPrefix, rec.Code)
	}
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Errorf("%s - request took %s, timeout not applied", handlerTestPrefix, elapsed)
	}
}

func TestHandler_SeesReplacedDispatcher(t *testing.T) {
	handle := dispatch.NewHandle(nil)
	h := NewHandler("m1", handle, HandlerOptions{})

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusInternalServerError {
		t.Fatalf("%s - status before Set = %d, want 500", handlerTestPrefix, rec.Code)
	}

	handle.Set(respondWith(t, &codec.Response{StatusCode: 204}, nil))

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusNoContent {
		t.Errorf("%s - status after Set = %d, want 204", handlerTestPrefix, rec.Code)
	}
}

func TestHandler_FailureIsolationAcrossModules(t *testing.T) {
	handle := dispatch.NewHandle(dispatch.Func(func(_ context.Context, target, _ string, _ []byte) ([]byte, error) {
		if target == "A" {
			return nil, errors.New("module A is broken")
		}
		return codec.EncodeResponse(&codec.Response{StatusCode: 202, Body: []byte("from B")})
	}))
	hA := NewHandler("A", handle, HandlerOptions{})
	hB := NewHandler("B", handle, HandlerOptions{})

	var wg sync.WaitGroup
	var recA, recB *httptest.ResponseRecorder
	wg.Add(2)
	go func() { defer wg.Done(); recA = serve(hA, httptest.NewRequest(http.MethodGet, "/", nil)) }()
	go func() { defer wg.Done(); recB = serve(hB, httptest.NewRequest(http.MethodGet, "/", nil)) }()
	wg.Wait()

	expectReply(t, recA, http.StatusInternalServerError, FailureBody)
	if recB.Code != http.StatusAccepted {
		t.Errorf("%s - module B status = %d, want 202", handlerTestPrefix, recB.Code)
	}
	body, _ := io.ReadAll(recB.Body)
	if string(body) != "from B" {
		t.Errorf("%s - module B body = %q", handlerTestPrefix, body)
	}
}

func TestValidStatus(t *testing.T) {
	tests := []struct {
		code uint32
		want bool
	}{
		{0, false}, {99, false}, {101, false}, {199, false},
		{200, true}, {404, true}, {599, true}, {999, true},
		{1000, false}, {65535, false},
	}
	for _, tt := range tests {
		if got := ValidStatus(tt.code); got != tt.want {
			t.Errorf("%s - ValidStatus(%d) = %v, want %v", handlerTestPrefix, tt.code, got, tt.want)
		}
	}
}
