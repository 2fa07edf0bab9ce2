// Package codec encodes workflow and task payloads for storage.
package codec

import (
	"encoding/json"
	"fmt"
)

// Codec turns payload values into bytes and back. Marshal must be
// deterministic for equal values: memoization and workflow deduplication
// compare encoded inputs byte for byte.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the default codec. encoding/json sorts map keys, so equal values
// encode to equal bytes.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

func (JSON) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// Default is the codec used when none is configured.
var Default Codec = JSON{}

// Decode unmarshals data into a value of type T.
func Decode[T any](c Codec, data []byte) (T, error) {
	var v T
	if err := c.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}
