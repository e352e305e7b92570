package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/httpserver-provider/pkg/codec"
	"github.com/morezero/httpserver-provider/pkg/dispatch"
	"github.com/morezero/httpserver-provider/pkg/metrics"
)

const handlerLogPrefix = "listener:handler"

// Fixed response bodies written by the bridge itself.
const (
	FailureBody  = "Failed to handle request"
	TooLargeBody = "Request body too large"
)

// HandlerOptions tunes the request bridge. Zero values mean no timeout and no body limit.
type HandlerOptions struct {
	// RequestTimeout bounds each dispatch call.
	RequestTimeout time.Duration
	// MaxBodyBytes rejects larger request bodies with 413 when positive.
	MaxBodyBytes int64
	Metrics      *metrics.Metrics
}

type bridgeHandler struct {
	module string
	handle *dispatch.Handle
	opts   HandlerOptions
}

// NewHandler returns the http.Handler that forwards every request to module via handle.
// The dispatcher is read from handle on each request.
func NewHandler(module string, handle *dispatch.Handle, opts HandlerOptions) http.Handler {
	return &bridgeHandler{module: module, handle: handle, opts: opts}
}

func (h *bridgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()

	req, err := BuildRequest(r, h.opts.MaxBodyBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn(fmt.Sprintf("%s - module=%s request=%s body exceeds %d bytes", handlerLogPrefix, h.module, requestID, tooLarge.Limit))
			writePlain(w, http.StatusRequestEntityTooLarge, TooLargeBody)
			h.opts.Metrics.ObserveRequest(h.module, http.StatusRequestEntityTooLarge, 0, false)
			return
		}
		h.fail(w, requestID, metrics.ReasonBody, fmt.Errorf("read body: %w", err), 0, false)
		return
	}

	payload, err := codec.EncodeRequest(req)
	if err != nil {
		h.fail(w, requestID, metrics.ReasonEncode, err, 0, false)
		return
	}

	ctx := r.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	dispatchStart := time.Now()
	reply, err := h.handle.Dispatch(ctx, h.module, dispatch.OpHandleRequest, payload)
	elapsed := time.Since(dispatchStart)
	if err != nil {
		h.fail(w, requestID, metrics.ReasonDispatch, err, elapsed, true)
		return
	}

	resp, err := codec.DecodeResponse(reply)
	if err != nil {
		h.fail(w, requestID, metrics.ReasonDecode, err, elapsed, true)
		return
	}
	if !ValidStatus(resp.StatusCode) {
		h.fail(w, requestID, metrics.ReasonStatus, fmt.Errorf("status code %d out of range", resp.StatusCode), elapsed, true)
		return
	}

	writeResponse(w, resp)
	h.opts.Metrics.ObserveRequest(h.module, int(resp.StatusCode), elapsed, true)
	slog.Debug(fmt.Sprintf("%s - module=%s request=%s %s %s -> %d (%s)",
		handlerLogPrefix, h.module, requestID, req.Method, req.Path, resp.StatusCode, time.Since(start)))
}

func (h *bridgeHandler) fail(w http.ResponseWriter, requestID, reason string, err error, elapsed time.Duration, dispatched bool) {
	slog.Error(fmt.Sprintf("%s - module=%s request=%s guest failed to handle HTTP request (%s): %v",
		handlerLogPrefix, h.module, requestID, reason, err))
	writePlain(w, http.StatusInternalServerError, FailureBody)
	h.opts.Metrics.DispatchFailed(h.module, reason)
	h.opts.Metrics.ObserveRequest(h.module, http.StatusInternalServerError, elapsed, dispatched)
}

// BuildRequest converts r into the canonical request, buffering the whole body.
// A positive maxBody caps the body size; exceeding it yields *http.MaxBytesError.
func BuildRequest(r *http.Request, maxBody int64) (*codec.Request, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = http.MaxBytesReader(nil, r.Body, maxBody)
		}
		b, err := io.ReadAll(reader)
		if err != nil {
			return nil, err
		}
		body = b
	}
	if body == nil {
		body = []byte{}
	}

	return &codec.Request{
		Method:      strings.ToUpper(r.Method),
		Path:        r.URL.Path,
		QueryString: r.URL.RawQuery,
		Header:      FoldHeaders(r.Header, r.Host),
		Body:        body,
	}, nil
}

// FoldHeaders flattens h into lowercase names mapped to the last value seen.
// net/http keeps Host outside the header map, so a non-empty host is added back.
func FoldHeaders(h http.Header, host string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(name)] = values[len(values)-1]
	}
	if host != "" {
		out["host"] = host
	}
	return out
}

// ValidStatus reports whether code can be written as a final HTTP status.
// 1xx codes are informational in net/http and cannot end a response.
func ValidStatus(code uint32) bool {
	return code >= 200 && code <= 999
}

// Framing headers are computed by net/http from the body actually written.
var skippedResponseHeaders = map[string]bool{
	"content-length":    true,
	"transfer-encoding": true,
	"connection":        true,
}

func writeResponse(w http.ResponseWriter, resp *codec.Response) {
	for name, value := range resp.Header {
		if skippedResponseHeaders[strings.ToLower(name)] {
			continue
		}
		w.Header().Set(name, value)
	}
	w.WriteHeader(int(resp.StatusCode))
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			slog.Debug(fmt.Sprintf("%s - write response body: %v", handlerLogPrefix, err))
		}
	}
}

func writePlain(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, body)
}
