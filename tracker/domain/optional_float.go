package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OptionalFloat is a measurement that may be absent. An absent value is
// distinct from zero and renders as "N/A".
type OptionalFloat struct {
	Value float64 `msgpack:"v"`
	Valid bool    `msgpack:"ok"`
}

// NotAvailable is the absent measurement.
var NotAvailable = OptionalFloat{}

// Float wraps a present measurement.
func Float(v float64) OptionalFloat {
	return OptionalFloat{Value: v, Valid: true}
}

// Format renders the value with a fmt verb, or "N/A" when absent.
func (f OptionalFloat) Format(format string) string {
	if !f.Valid {
		return "N/A"
	}
	return fmt.Sprintf(format, f.Value)
}

// MarshalJSON encodes an absent value as null.
func (f OptionalFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON decodes null as absent.
func (f *OptionalFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = NotAvailable
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}
