// Package fixedpoint wraps shopspring/decimal so that every price,
// quantity and position value in the system carries exact, bounded-scale
// decimal semantics instead of floating point.
package fixedpoint

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Value is an exact decimal amount. The zero Value is zero.
type Value struct {
	d decimal.Decimal
}

var Zero = Value{}
var One = NewFromInt(1)

func NewFromFloat(f float64) Value {
	return Value{d: decimal.NewFromFloat(f)}
}

func NewFromInt(i int64) Value {
	return Value{d: decimal.NewFromInt(i)}
}

func NewFromString(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, err
	}
	return Value{d: d}, nil
}

func MustNewFromString(s string) Value {
	v, err := NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Value) Add(o Value) Value { return Value{d: v.d.Add(o.d)} }
func (v Value) Sub(o Value) Value { return Value{d: v.d.Sub(o.d)} }
func (v Value) Mul(o Value) Value { return Value{d: v.d.Mul(o.d)} }
func (v Value) Div(o Value) Value {
	if o.d.IsZero() {
		return Zero
	}
	return Value{d: v.d.Div(o.d)}
}

func (v Value) Neg() Value { return Value{d: v.d.Neg()} }
func (v Value) Abs() Value { return Value{d: v.d.Abs()} }

// Compare returns -1, 0 or 1 the way decimal.Decimal.Compare does.
func (v Value) Compare(o Value) int { return v.d.Cmp(o.d) }

func (v Value) Sign() int { return v.d.Sign() }

func (v Value) IsZero() bool { return v.d.IsZero() }

func (v Value) Float64() float64 {
	f, _ := v.d.Float64()
	return f
}

func (v Value) String() string { return v.d.String() }

// Clamp bounds v within [lo, hi].
func (v Value) Clamp(lo, hi Value) Value {
	if v.Compare(lo) < 0 {
		return lo
	}
	if v.Compare(hi) > 0 {
		return hi
	}
	return v
}

// Min/Max are free functions (not methods) to keep call sites readable
// when chained with Mul/Add, matching the teacher's free-function style
// (fixedpoint.NewFromInt, fixedpoint.Zero, ...).
func Min(a, b Value) Value {
	if a.Compare(b) <= 0 {
		return a
	}
	return b
}

func Max(a, b Value) Value {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}

// RoundDown floors v to the nearest multiple of step (step > 0).
// Used for bid-side price normalization and quantity step rounding.
func (v Value) RoundDown(step Value) Value {
	if step.IsZero() {
		return v
	}
	units := v.d.Div(step.d).Floor()
	return Value{d: units.Mul(step.d)}
}

// RoundUp ceils v to the nearest multiple of step (step > 0).
// Used for ask-side price normalization.
func (v Value) RoundUp(step Value) Value {
	if step.IsZero() {
		return v
	}
	units := v.d.Div(step.d)
	floor := units.Floor()
	if units.Equal(floor) {
		return Value{d: floor.Mul(step.d)}
	}
	return Value{d: floor.Add(decimal.NewFromInt(1)).Mul(step.d)}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.d.String())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		v.d = d
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("fixedpoint: cannot unmarshal %s: %w", string(data), err)
	}
	v.d = decimal.NewFromFloat(f)
	return nil
}

func (v Value) Value() (driver.Value, error) { return v.d.String(), nil }

func (v *Value) Scan(src any) error {
	d := decimal.Decimal{}
	if err := d.Scan(src); err != nil {
		return err
	}
	v.d = d
	return nil
}
