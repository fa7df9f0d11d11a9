package cache

import (
	"encoding/json"
	"unicode/utf8"
)

// EncodeJSON marshals v to bytes for storage. Callers that want opaque bytes
// stored verbatim should write them directly instead of calling this.
func EncodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode attempts to interpret raw as UTF-8 text and parse it as JSON into
// out. On any failure (invalid UTF-8, invalid JSON, or a nil out) it reports
// ok=false so the caller can fall back to treating raw as opaque bytes.
//
// Validating the encoding before unmarshaling avoids the failure mode where
// a direct byte-to-JSON parse silently mis-decodes or panics on non-text
// binary payloads picked up from cache storage.
func Decode(raw []byte, out any) (ok bool) {
	if out == nil || len(raw) == 0 {
		return false
	}
	if !utf8.Valid(raw) {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false
	}
	return true
}
