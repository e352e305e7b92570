package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const logPrefix = "codec:cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Header and value maps are always string-keyed.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - encode %T: %w", logPrefix, v, err)
	}
	return data, nil
}

// Unmarshal decodes CBOR data into v. Empty input is an error.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%s - decode %T: empty payload", logPrefix, v)
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s - decode %T: %w", logPrefix, v, err)
	}
	return nil
}

// Diagnose returns the CBOR diagnostic notation for data. Used in debug logs.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
