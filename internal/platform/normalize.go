package platform

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type wrappedList[T any] struct {
	Items []T `json:"items"`
}

// DecodeList decodes a list response that is either a bare JSON array or an
// object carrying the array under "items". Empty bodies and null decode to
// an empty list.
func DecodeList[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}
	switch trimmed[0] {
	case '[':
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return out, nil
	case '{':
		var wrapped wrappedList[T]
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode wrapped list: %w", err)
		}
		if wrapped.Items == nil {
			return []T{}, nil
		}
		return wrapped.Items, nil
	default:
		return nil, fmt.Errorf("decode list: unexpected payload starting with %q", trimmed[0])
	}
}
