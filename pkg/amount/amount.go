// Package amount provides the non-negative arbitrary-precision integer
// type used for all balances and payments. Values are denominated in the
// smallest native unit and serialized as decimal strings in JSON, so
// 128-bit-scale amounts survive clients that cannot represent them as
// numbers.
package amount

import (
	"fmt"
	"math/big"
)

// Amount is an immutable non-negative integer amount. The zero value is a
// usable zero amount.
type Amount struct {
	i *big.Int
}

// Zero returns the zero amount.
func Zero() Amount { return Amount{} }

// FromUint64 builds an Amount from a uint64.
func FromUint64(v uint64) Amount {
	return Amount{i: new(big.Int).SetUint64(v)}
}

// Parse parses a non-negative decimal string into an Amount.
func Parse(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	if i.Sign() < 0 {
		return Amount{}, fmt.Errorf("negative amount %q", s)
	}
	return Amount{i: i}, nil
}

// MustParse parses s and panics on error. For constants and tests only.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.i == nil {
		return new(big.Int)
	}
	return a.i
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.i == nil || a.i.Sign() == 0 }

// Cmp compares a and b: -1 if a < b, 0 if equal, +1 if a > b.
func (a Amount) Cmp(b Amount) int { return a.big().Cmp(b.big()) }

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{i: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a - b. Callers must ensure b <= a; a negative result is a
// programming error and panics, because balances can never go negative.
func (a Amount) Sub(b Amount) Amount {
	r := new(big.Int).Sub(a.big(), b.big())
	if r.Sign() < 0 {
		panic("amount: subtraction underflow")
	}
	return Amount{i: r}
}

// MulUint64 returns a * v.
func (a Amount) MulUint64(v uint64) Amount {
	return Amount{i: new(big.Int).Mul(a.big(), new(big.Int).SetUint64(v))}
}

// CeilDivUint64 returns ceil(a / v). v must be non-zero.
func (a Amount) CeilDivUint64(v uint64) Amount {
	d := new(big.Int).SetUint64(v)
	q, r := new(big.Int).QuoRem(a.big(), d, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return Amount{i: q}
}

// String returns the decimal representation.
func (a Amount) String() string { return a.big().String() }

// MarshalJSON encodes the amount as a JSON decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes a JSON decimal string (or bare number) into a.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
