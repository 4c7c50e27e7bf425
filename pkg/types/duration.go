package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so that config structs can parse either a
// Go duration string ("500ms") or a bare number of milliseconds from JSON,
// matching the teacher's types.Duration fields (UpdateInterval, HedgeInterval).
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("types: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var millis int64
	if err := json.Unmarshal(data, &millis); err != nil {
		return fmt.Errorf("types: cannot unmarshal duration from %s: %w", string(data), err)
	}
	*d = Duration(time.Duration(millis) * time.Millisecond)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
