package model

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Timestamp is a UTC instant persisted as fractional Unix seconds.
// Precision is one microsecond.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to microseconds and converts it to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

// Seconds returns the fractional Unix seconds.
func (t Timestamp) Seconds() float64 {
	return float64(t.UnixMicro()) / 1e6
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("0"), nil
	}
	return []byte(strconv.FormatFloat(t.Seconds(), 'f', -1, 64)), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("timestamp must be a number: %w", err)
	}
	if secs == 0 {
		*t = Timestamp{}
		return nil
	}
	*t = Timestamp{Time: time.UnixMicro(int64(math.Round(secs * 1e6))).UTC()}
	return nil
}
