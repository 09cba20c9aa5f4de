package settings

import (
	"encoding/json"
	"time"
)

type HumanReadableDuration time.Duration

func (d HumanReadableDuration) Duration() time.Duration { return time.Duration(d) }

func (d HumanReadableDuration) MarshalJSON() ([]byte, error) {
	s := time.Duration(d).String() // e.g., "500ms" or "5m"
	return json.Marshal(s)
}

func (d *HumanReadableDuration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = HumanReadableDuration(duration)
	return nil
}
