package util

import (
	"encoding/json"

	"github.com/google/uuid"
)

// HashUUID derives a stable name-based UUID from the JSON form of value.
// Values that cannot be marshalled hash to the empty string.
func HashUUID(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return uuid.NewMD5(uuid.NameSpaceOID, raw).String()
}

// NewRunID tags one pipeline invocation in logs and output metadata.
func NewRunID() string {
	return uuid.NewString()
}
