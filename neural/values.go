package neural

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is a single activation whose JSON form is null when non-finite.
type Value float32

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return appendValue(nil, float32(v)), nil
}

// UnmarshalJSON implements json.Unmarshaler. null decodes as NaN.
func (v *Value) UnmarshalJSON(data []byte) error {
	var p *float32
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p == nil {
		*v = Value(math.NaN())
		return nil
	}
	*v = Value(*p)
	return nil
}

// Values is a list of activations. Non-finite values encode as null,
// which JSON cannot otherwise represent, and decode back as NaN.
type Values []float32

// MarshalJSON implements json.Marshaler.
func (v Values) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	b := make([]byte, 0, 2+len(v)*10)
	b = append(b, '[')
	for i, x := range v {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendValue(b, x)
	}
	return append(b, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Values) UnmarshalJSON(data []byte) error {
	var raw []*float32
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = nil
		return nil
	}
	out := make(Values, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = float32(math.NaN())
			continue
		}
		out[i] = *p
	}
	*v = out
	return nil
}

func appendValue(b []byte, x float32) []byte {
	f := float64(x)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(b, "null"...)
	}
	return strconv.AppendFloat(b, f, 'g', -1, 32)
}
