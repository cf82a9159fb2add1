package ir

import (
	"encoding/json"
	"fmt"
)

// Direction selects forward or backward execution. Passed as an
// argument through every execution call; persisted only as its String
// label.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Invert returns the opposite direction.
func (d Direction) Invert() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// MarshalJSON encodes the direction as its label.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a direction label.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "forward":
		*d = Forward
	case "backward":
		*d = Backward
	default:
		return fmt.Errorf("unknown direction %q", s)
	}
	return nil
}
