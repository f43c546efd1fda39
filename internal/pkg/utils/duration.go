package utils

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration encoded in JSON as a Go duration string rounded to the
// millisecond, e.g. "2.35s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Round(time.Millisecond).String())
}

// UnmarshalJSON accepts a duration string or null.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var value *string
	if err := json.Unmarshal(b, &value); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}

	if value == nil {
		*d = 0
		return nil
	}

	parsed, err := time.ParseDuration(*value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}

	*d = Duration(parsed)
	return nil
}
