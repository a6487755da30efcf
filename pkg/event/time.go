package event

import (
	"fmt"
	"strings"
	"time"
)

// canonicalTimeLayout renders millisecond-precision, UTC, "Z"-suffixed
// ISO-8601 timestamps, matching spec §3's literal examples (e.g.
// "2025-01-15T10:30:00.000Z").
const canonicalTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp wraps time.Time so every event field that must serialize
// (and, more importantly, canonicalize) to the exact same ISO-8601
// string on every producer and every verifier uses one code path
// instead of relying on the standard library's default, which varies
// precision based on whether nanoseconds happen to be zero.
type Timestamp time.Time

// Now returns the current time as a Timestamp, truncated to UTC
// millisecond precision.
func Now() Timestamp {
	return Timestamp(time.Now().UTC().Truncate(time.Millisecond))
}

func (t Timestamp) Time() time.Time { return time.Time(t).UTC() }

func (t Timestamp) String() string {
	return t.Time().Format(canonicalTimeLayout)
}

func (t Timestamp) IsZero() bool { return time.Time(t).IsZero() }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range []string{
		canonicalTimeLayout,
		time.RFC3339Nano,
		time.RFC3339,
	} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("event: cannot parse timestamp %q", s)
}
