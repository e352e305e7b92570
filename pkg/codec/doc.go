// Package codec is the wire codec for values that cross the host/module
// dispatch boundary: capability configuration, and the canonical HTTP
// request and response exchanged with a module's HandleRequest operation.
//
// Values are encoded as CBOR with Core Deterministic Encoding, so the same
// logical value always produces identical bytes.
package codec
