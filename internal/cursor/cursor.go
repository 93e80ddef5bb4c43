// Package cursor implements the opaque search-after continuation
// token: base64(JSON({sort: [...]})).
package cursor

import (
	"encoding/base64"
	"encoding/json"
)

// envelope is the wire shape of a decoded cursor.
type envelope struct {
	Sort []interface{} `json:"sort"`
}

// Encode builds an opaque cursor from the last hit's sort values of
// the current page. Never fails for JSON-marshalable sort values.
func Encode(sortValues []interface{}) (string, error) {
	data, err := json.Marshal(envelope{Sort: sortValues})
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode recovers the sort-value tuple from an opaque cursor. A decode
// failure must be treated as "no cursor", never surfaced as an error —
// callers should use DecodeOrNil instead of Decode whenever the cursor
// came from untrusted client input.
func Decode(token string) ([]interface{}, error) {
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.Sort, nil
}

// DecodeOrNil decodes token, returning nil (not an error) on any
// malformed input so pagination restarts silently instead of erroring.
func DecodeOrNil(token string) []interface{} {
	if token == "" {
		return nil
	}
	sort, err := Decode(token)
	if err != nil {
		return nil
	}
	return sort
}
