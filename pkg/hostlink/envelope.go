// Package hostlink carries host runtime control calls over NATS into the provider.
package hostlink

// ControlRequest is the JSON envelope the host sends on the control subject.
// Payload is CBOR and travels base64-encoded inside the JSON document.
type ControlRequest struct {
	ID      string `json:"id"`
	Origin  string `json:"origin"`
	Op      string `json:"op"`
	Payload []byte `json:"payload,omitempty"`
}

// ControlResponse is the JSON envelope sent back to the host.
type ControlResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result []byte       `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error codes carried in ErrorDetail.Code.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorizedOrigin = "UNAUTHORIZED_ORIGIN"
	CodeUnknownOperation   = "UNKNOWN_OPERATION"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeBindFailed         = "BIND_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
)
