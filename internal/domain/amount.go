package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenAmount is an immutable integer amount in base units together with the
// token's decimal precision. All arithmetic is exact big.Int arithmetic.
type TokenAmount struct {
	lamports *big.Int
	decimals int32
}

// NewTokenAmount wraps a base-unit integer. The value is copied.
func NewTokenAmount(lamports *big.Int, decimals int32) TokenAmount {
	v := new(big.Int)
	if lamports != nil {
		v.Set(lamports)
	}
	return TokenAmount{lamports: v, decimals: decimals}
}

// TokenAmountFromUint64 builds an amount from base units.
func TokenAmountFromUint64(lamports uint64, decimals int32) TokenAmount {
	return TokenAmount{lamports: new(big.Int).SetUint64(lamports), decimals: decimals}
}

// ZeroAmount returns a zero amount with the given precision.
func ZeroAmount(decimals int32) TokenAmount {
	return TokenAmount{lamports: new(big.Int), decimals: decimals}
}

// TokenAmountFromTokens converts a whole-token decimal into base units,
// truncating any precision finer than one base unit.
func TokenAmountFromTokens(tokens decimal.Decimal, decimals int32) TokenAmount {
	return TokenAmount{lamports: tokens.Shift(decimals).Truncate(0).BigInt(), decimals: decimals}
}

// ParseTokenAmount parses a user-entered token string ("12.5").
func ParseTokenAmount(s string, decimals int32) (TokenAmount, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return ZeroAmount(decimals), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return TokenAmount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return TokenAmountFromTokens(d, decimals), nil
}

func (a TokenAmount) raw() *big.Int {
	if a.lamports == nil {
		return new(big.Int)
	}
	return a.lamports
}

// Lamports returns a copy of the base-unit integer.
func (a TokenAmount) Lamports() *big.Int { return new(big.Int).Set(a.raw()) }

// Decimals returns the token precision.
func (a TokenAmount) Decimals() int32 { return a.decimals }

// rescale returns both operands at the larger of the two precisions.
// Scaling up multiplies by a power of ten and is always exact.
func rescale(a, b TokenAmount) (*big.Int, *big.Int, int32) {
	x, y := a.raw(), b.raw()
	switch {
	case a.decimals == b.decimals:
		return x, y, a.decimals
	case a.decimals > b.decimals:
		return x, scaleUp(y, a.decimals-b.decimals), a.decimals
	default:
		return scaleUp(x, b.decimals-a.decimals), y, b.decimals
	}
}

func scaleUp(v *big.Int, by int32) *big.Int {
	m := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(by)), nil)
	return m.Mul(m, v)
}

// Add returns a + b.
func (a TokenAmount) Add(b TokenAmount) TokenAmount {
	x, y, d := rescale(a, b)
	return TokenAmount{lamports: new(big.Int).Add(x, y), decimals: d}
}

// Sub returns a - b. The result may be negative.
func (a TokenAmount) Sub(b TokenAmount) TokenAmount {
	x, y, d := rescale(a, b)
	return TokenAmount{lamports: new(big.Int).Sub(x, y), decimals: d}
}

// Cmp compares a and b like big.Int.Cmp.
func (a TokenAmount) Cmp(b TokenAmount) int {
	x, y, _ := rescale(a, b)
	return x.Cmp(y)
}

// Equal reports whether a and b are numerically equal.
func (a TokenAmount) Equal(b TokenAmount) bool { return a.Cmp(b) == 0 }

// IsZero reports whether the amount is zero.
func (a TokenAmount) IsZero() bool { return a.raw().Sign() == 0 }

// IsNegative reports whether the amount is below zero.
func (a TokenAmount) IsNegative() bool { return a.raw().Sign() < 0 }

// Min returns the smaller of a and b.
func (a TokenAmount) Min(b TokenAmount) TokenAmount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// WithDecimals re-expresses the amount at decimals, truncating toward zero
// when precision is dropped.
func (a TokenAmount) WithDecimals(decimals int32) TokenAmount {
	switch {
	case decimals == a.decimals:
		return a
	case decimals > a.decimals:
		return TokenAmount{lamports: scaleUp(a.raw(), decimals-a.decimals), decimals: decimals}
	default:
		m := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.decimals-decimals)), nil)
		return TokenAmount{lamports: m.Quo(a.raw(), m), decimals: decimals}
	}
}

// Clamp limits the amount to [0, max]. The result keeps a's decimals; a max
// with finer precision is truncated, so the result never exceeds it.
func (a TokenAmount) Clamp(max TokenAmount) TokenAmount {
	if a.IsNegative() {
		return ZeroAmount(a.decimals)
	}
	if max.IsNegative() {
		return ZeroAmount(a.decimals)
	}
	if a.Cmp(max) > 0 {
		return max.WithDecimals(a.decimals)
	}
	return a
}

// Tokens returns the amount in whole tokens.
func (a TokenAmount) Tokens() decimal.Decimal {
	return decimal.NewFromBigInt(a.raw(), -a.decimals)
}

// Float64 returns an approximate whole-token value for display math.
func (a TokenAmount) Float64() float64 {
	f, _ := a.Tokens().Float64()
	return f
}

// String renders the whole-token value without trailing zeros.
func (a TokenAmount) String() string { return a.Tokens().String() }

type tokenAmountJSON struct {
	Lamports string `json:"lamports"`
	Decimals int32  `json:"decimals"`
	Tokens   string `json:"tokens"`
}

// MarshalJSON encodes the base units as a string to keep full precision.
func (a TokenAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenAmountJSON{
		Lamports: a.raw().String(),
		Decimals: a.decimals,
		Tokens:   a.String(),
	})
}

// UnmarshalJSON accepts either the object form or a whole-token string.
func (a *TokenAmount) UnmarshalJSON(b []byte) error {
	var obj tokenAmountJSON
	if err := json.Unmarshal(b, &obj); err == nil && obj.Lamports != "" {
		v, ok := new(big.Int).SetString(obj.Lamports, 10)
		if !ok {
			return fmt.Errorf("%w: lamports %q", ErrInvalidAmount, obj.Lamports)
		}
		*a = TokenAmount{lamports: v, decimals: obj.Decimals}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(b))
	}
	parsed, err := ParseTokenAmount(s, a.decimals)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AmountInput keeps a user-entered display string and its parsed amount in
// sync. The parsed value is always clamped to [0, Max].
type AmountInput struct {
	Text  string      `json:"text"`
	Value TokenAmount `json:"value"`
	Max   TokenAmount `json:"max"`
}

// NewAmountInput returns an empty input bounded by max.
func NewAmountInput(max TokenAmount) AmountInput {
	return AmountInput{Value: ZeroAmount(max.Decimals()), Max: max}
}

// SetText parses s and clamps the result. The display text is rewritten when
// clamping changed the value.
func (in AmountInput) SetText(s string) (AmountInput, error) {
	v, err := ParseTokenAmount(s, in.Max.Decimals())
	if err != nil {
		return in, err
	}
	clamped := v.Clamp(in.Max)
	in.Value = clamped
	in.Text = strings.TrimSpace(s)
	if !clamped.Equal(v) {
		in.Text = clamped.String()
	}
	return in, nil
}

// SetValue stores a clamped amount and derives the display text.
func (in AmountInput) SetValue(v TokenAmount) AmountInput {
	in.Value = v.Clamp(in.Max)
	in.Text = in.Value.String()
	return in
}

// WithMax re-bounds the input, clamping the current value.
func (in AmountInput) WithMax(max TokenAmount) AmountInput {
	in.Max = max
	return in.SetValue(in.Value)
}
