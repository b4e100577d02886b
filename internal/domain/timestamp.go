package domain

import (
	"strings"
	"time"
)

// TimeLayout is the wire format for all timestamps: local time, second
// precision, no zone designator.
const TimeLayout = "2006-01-02 15:04:05"

// Timestamp is a time.Time that marshals as TimeLayout. The zero value
// marshals as an empty string so optional fields stay readable.
type Timestamp struct {
	time.Time
}

func Now() Timestamp {
	return Timestamp{time.Now()}
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Format(TimeLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(TimeLayout, raw, time.Local)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}
