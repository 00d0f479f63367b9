// Package connectjson provides the JSON codec used by the query service's
// Connect endpoints. The query stream messages are plain Go structs rather
// than protobuf types, so the default Connect codecs do not apply.
package connectjson

import (
	"encoding/json"

	"github.com/bufbuild/connect-go"
)

// Codec marshals query requests and stream events as JSON.
type Codec struct{}

func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var _ connect.Codec = (*Codec)(nil)
