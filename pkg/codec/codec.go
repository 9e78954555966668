// Package `codec` converts application values to and from the binary payload
// carried inside each frame. The wire format is CBOR.
//
// Decoded maps always have string keys (map[string]any), so handlers can index
// request fields directly.
package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ErrDecode is matched by every [*DecodeError].
var ErrDecode = errors.New("codec: malformed payload")

// DecodeError reports a payload that couldn't be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: Couldn't decode payload (%v).", e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Sorted keys so the same value always encodes to the same bytes.
	encMode, err = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: 32,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes `v`. A nil value encodes to the CBOR null marker.
func Encode(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: Couldn't encode value (%w).", err)
	}
	return b, nil
}

// Decode deserializes a payload into a generic value: maps, slices, strings,
// numbers, bools or nil.
func Decode(b []byte) (any, error) {
	var v any
	if err := decMode.Unmarshal(b, &v); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return v, nil
}

// DecodeInto deserializes a payload into the value pointed to by `v`.
func DecodeInto(b []byte, v any) error {
	if err := decMode.Unmarshal(b, v); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// DecodeMap deserializes a payload that must hold a map. The second return is
// false if the payload is valid but isn't a map.
func DecodeMap(b []byte) (map[string]any, bool, error) {
	v, err := Decode(b)
	if err != nil {
		return nil, false, err
	}
	m, ok := v.(map[string]any)
	return m, ok, nil
}
