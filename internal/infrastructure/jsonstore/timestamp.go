package jsonstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// legacyLayouts are accepted when reading registry files written before
// timestamps carried a zone. They are interpreted in local time.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a time.Time that serialises as RFC 3339 and also reads the
// zone-less ISO form found in older registry files.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp in UTC.
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC()}
}

// MarshalJSON implements json.Marshaler. A zero timestamp encodes as null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range legacyLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}
