package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// GenesisHash is the previous hash of the first entry.
var GenesisHash = strings.Repeat("0", 64)

// encodeDetails produces the canonical form of details: compact JSON with
// sorted keys. Values that cannot be encoded are replaced by an error marker
// so an append never fails.
func encodeDetails(details map[string]any) []byte {
	if details == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(details)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"_encoding_error": err.Error()})
	}
	return b
}

func decodeDetails(raw []byte) map[string]any {
	out := map[string]any{}
	// raw always comes from encodeDetails
	_ = json.Unmarshal(raw, &out)
	return out
}

// computeHash calculates SHA-256(previous_hash || canonical(fields)) where the
// canonical form is the sorted-key JSON object of every field except the two
// hashes.
func computeHash(previous string, e *Entry, details []byte) string {
	payload, err := json.Marshal(map[string]any{
		"id":           e.ID,
		"timestamp_us": e.TimestampUS,
		"event":        e.Event,
		"caller_id":    e.CallerID,
		"layer":        e.Layer,
		"component":    e.Component,
		"details":      json.RawMessage(details),
	})
	if err != nil {
		// details is always valid JSON, so this only trips on a corrupted record
		payload = fmt.Appendf(nil, "corrupt:%s", err)
	}
	h := sha256.New()
	h.Write([]byte(previous))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
