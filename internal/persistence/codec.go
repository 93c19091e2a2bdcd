package persistence

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

func init() {
	// Step results travel as map[int]any inside an interface.
	gob.Register(map[int]any{})
	gob.Register(map[string]any{})
}

// EncodeValue serializes a run input, output or step result using
// encoding/gob. Concrete types carried inside interfaces must be registered
// with gob.Register by the package that defines them.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer

	// Encode as interface{} so the payload can be decoded into interface{}.
	iv := v
	if err := gob.NewEncoder(&buf).Encode(&iv); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// DecodeValue reverses EncodeValue. It also accepts payloads that were
// encoded as a concrete T rather than through an interface.
func DecodeValue[T any](data []byte) (T, error) {
	var zero T
	if len(data) == 0 {
		return zero, nil
	}

	var iv any
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv)
	switch {
	case err == nil:
		if iv == nil {
			return zero, nil
		}
		if v, ok := iv.(T); ok {
			return v, nil
		}
		return zero, fmt.Errorf("decode: payload of type %T is not a %s", iv, typeName[T]())
	case !isConcretePayload(err):
		return zero, fmt.Errorf("decode: %w", err)
	}

	if isInterfaceType[T]() {
		return zero, errors.New("decode: concrete payload cannot be decoded into an interface")
	}
	var v T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return zero, fmt.Errorf("decode: %w", err)
	}
	return v, nil
}

// isConcretePayload detects gob's interface-vs-concrete mismatch message.
func isConcretePayload(err error) bool {
	s := err.Error()
	return strings.Contains(s, "can only be decoded from remote interface") &&
		strings.Contains(s, "received concrete type")
}

func isInterfaceType[T any]() bool {
	return reflect.TypeOf((*T)(nil)).Elem().Kind() == reflect.Interface
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
