package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexInt is a positive integer id that browsers send either as a JSON
// number or as a numeric string. Any other value decodes as unset.
type FlexInt struct {
	Value int64
	Valid bool
}

// ID returns a set FlexInt.
func ID(v int64) FlexInt {
	if v <= 0 {
		return FlexInt{}
	}
	return FlexInt{Value: v, Valid: true}
}

// UnmarshalJSON never fails; unusable input leaves the value unset.
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = FlexInt{}

	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil
	}
	*f = FlexInt{Value: v, Valid: true}
	return nil
}

// MarshalJSON writes the number, or null when unset.
func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}

func (f FlexInt) String() string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatInt(f.Value, 10)
}

// ParseID reads an id from a query string value.
func ParseID(s string) FlexInt {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return FlexInt{}
	}
	return ID(v)
}
