package commsutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyPayload is returned when decoding a message with no data.
var ErrEmptyPayload = errors.New("commsutil: empty payload")

// EncodePayload serializes a control envelope or event to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes exactly one JSON value from data into v.
// Trailing data after the value is rejected.
func DecodePayload(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyPayload
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("commsutil: unexpected data after JSON value")
	}
	return nil
}
