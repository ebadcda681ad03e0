// Package jsontime provides JSON-serializable time types.
//
// The gateway wire protocol timestamps frames with Unix epoch seconds,
// possibly fractional, while backend metadata uses epoch milliseconds.
// Unix and Milli cover the two encodings.
package jsontime

import (
	"encoding/json"
	"math"
	"time"
)

// Unix is a time.Time that serializes to Unix seconds in JSON.
// Unmarshaling accepts both integer and fractional second values.
type Unix time.Time

// NowEpoch returns the current time as Unix.
func NowEpoch() Unix {
	return Unix(time.Now())
}

// Time returns the underlying time.Time value.
func (ep Unix) Time() time.Time {
	return time.Time(ep)
}

// Before reports whether ep is before t.
func (ep Unix) Before(t Unix) bool {
	return time.Time(ep).Before(time.Time(t))
}

// After reports whether ep is after t.
func (ep Unix) After(t Unix) bool {
	return time.Time(ep).After(time.Time(t))
}

// UnmarshalJSON implements json.Unmarshaler.
func (ep *Unix) UnmarshalJSON(b []byte) error {
	var sec float64
	if err := json.Unmarshal(b, &sec); err != nil {
		return err
	}
	whole, frac := math.Modf(sec)
	*ep = Unix(time.Unix(int64(whole), int64(frac*float64(time.Second))))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ep Unix) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(ep).Unix())
}

// String returns the time formatted as a string.
func (ep Unix) String() string {
	return time.Time(ep).String()
}

// IsZero reports whether ep represents the zero time instant.
func (ep Unix) IsZero() bool {
	return time.Time(ep).IsZero()
}

// Sub returns the duration ep-t.
func (ep Unix) Sub(t Unix) time.Duration {
	return time.Time(ep).Sub(time.Time(t))
}

// Add returns the time ep+d.
func (ep Unix) Add(d time.Duration) Unix {
	return Unix(time.Time(ep).Add(d))
}
