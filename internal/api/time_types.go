package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// FlexDate is a calendar date that can unmarshal from either:
// - a plain date: "2024-01-15"
// - RFC3339: "2024-01-15T10:30:00Z"
//
// It always marshals to the plain date form.
type FlexDate struct {
	time.Time
}

// UnmarshalJSON handles flexible date parsing from JSON.
func (fd *FlexDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("cannot unmarshal %s into FlexDate", string(data))
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		fd.Time = t
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		y, m, d := t.Date()
		fd.Time = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return nil
	}
	return fmt.Errorf("cannot parse date string: %s", s)
}

// MarshalJSON outputs the date as YYYY-MM-DD.
func (fd FlexDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(fd.Format(time.DateOnly))
}

// Schema describes FlexDate as a string in the OpenAPI document.
func (FlexDate) Schema(_ huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type:        huma.TypeString,
		Description: "Date as YYYY-MM-DD or RFC3339",
		Examples:    []any{"2024-01-15"},
	}
}

// Ptr returns the date as a *time.Time, or nil for a nil receiver.
func (fd *FlexDate) Ptr() *time.Time {
	if fd == nil {
		return nil
	}
	t := fd.Time
	return &t
}
