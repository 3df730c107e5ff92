package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexString accepts a JSON string, number or null. Null decodes to "".
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	if data[0] == '{' || data[0] == '[' {
		*s = ""
		return nil
	}
	// numbers and booleans keep their literal text
	*s = FlexString(data)
	return nil
}

func (s FlexString) String() string { return string(s) }

// FlexInt accepts a JSON number, numeric string or null. Valid is false for
// null, empty or non-numeric input.
type FlexInt struct {
	Value int64
	Valid bool
}

// Int returns a valid FlexInt.
func Int(v int64) FlexInt { return FlexInt{Value: v, Valid: true} }

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	*n = FlexInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*n = FlexInt{Value: v, Valid: true}
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
		*n = FlexInt{Value: int64(f), Valid: true}
	}
	return nil
}

func (n FlexInt) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(n.Value, 10)), nil
}

// Or returns the value when valid, otherwise fallback.
func (n FlexInt) Or(fallback int64) int64 {
	if n.Valid {
		return n.Value
	}
	return fallback
}

// first returns the first non-blank value.
func first(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
