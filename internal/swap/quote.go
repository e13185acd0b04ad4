// Package swap quotes exchange-pool swaps: expected output, minimum output
// after slippage and price impact.
package swap

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// ErrUnknownCurve is returned for a curve kind the quoter cannot price.
var ErrUnknownCurve = errors.New("swap: unknown curve")

// Params describes a hypothetical swap.
type Params struct {
	Input         domain.TokenAmount
	SourceReserve domain.TokenAmount
	DestReserve   domain.TokenAmount
	Curve         domain.SwapCurve
	// FeeRate and Slippage are fractions (0.003 = 0.3%).
	FeeRate  decimal.Decimal
	Slippage decimal.Decimal
	// Amplification is required for the stable curve.
	Amplification uint64
	// Inverted is set when the quoted pair is the reverse of the pool's
	// canonical A/B ordering.
	Inverted bool
}

// Quote is the derived result of a swap.
type Quote struct {
	Output      domain.TokenAmount `json:"output"`
	MinOutput   domain.TokenAmount `json:"min_output"`
	Fee         domain.TokenAmount `json:"fee"`
	PriceImpact float64            `json:"price_impact"`
}

func zeroQuote(p Params) Quote {
	return Quote{
		Output:    domain.ZeroAmount(p.DestReserve.Decimals()),
		MinOutput: domain.ZeroAmount(p.DestReserve.Decimals()),
		Fee:       domain.ZeroAmount(p.Input.Decimals()),
	}
}

// Compute quotes p. A zero input or an empty reserve yields a zero quote.
func Compute(p Params) (Quote, error) {
	in := p.Input.Lamports()
	src := p.SourceReserve.Lamports()
	dst := p.DestReserve.Lamports()
	if in.Sign() <= 0 || src.Sign() <= 0 || dst.Sign() <= 0 {
		return zeroQuote(p), nil
	}

	fee := TradingFee(in, p.FeeRate)
	afterFee := new(big.Int).Sub(in, fee)

	var outRaw, spot decimal.Decimal
	switch p.Curve {
	case domain.CurveConstantProduct, "":
		out := constantProductOut(src, dst, afterFee)
		outRaw = decimal.NewFromBigInt(out, 0)
		spot = decimal.NewFromBigInt(dst, 0).Div(decimal.NewFromBigInt(src, 0))
	case domain.CurveStable:
		if p.Amplification == 0 {
			return Quote{}, fmt.Errorf("%w: stable curve needs an amplification factor", ErrUnknownCurve)
		}
		out := stableOut(p.Amplification, src, dst, afterFee)
		outRaw = decimal.NewFromBigInt(out, 0)
		spot = stableSpot(p.Amplification, src, dst)
	default:
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownCurve, p.Curve)
	}

	q := Quote{
		Output: domain.NewTokenAmount(outRaw.BigInt(), p.DestReserve.Decimals()),
		Fee:    domain.NewTokenAmount(fee, p.Input.Decimals()),
	}
	q.MinOutput = MinOutput(q.Output, p.Slippage)

	// Both prices are in base units of destination per base unit of
	// source, so decimals cancel.
	quoted := outRaw.Div(decimal.NewFromBigInt(in, 0))
	q.PriceImpact = PriceImpact(quoted, spot, p.Inverted)
	return q, nil
}

// TradingFee is the fee withheld from amount at rate, rounded down but never
// below one base unit when the rate is positive.
func TradingFee(amount *big.Int, rate decimal.Decimal) *big.Int {
	if amount.Sign() <= 0 || !rate.IsPositive() {
		return new(big.Int)
	}
	fee := decimal.NewFromBigInt(amount, 0).Mul(rate).Floor().BigInt()
	if fee.Sign() == 0 {
		return big.NewInt(1)
	}
	if fee.Cmp(amount) > 0 {
		return new(big.Int).Set(amount)
	}
	return fee
}

// MinOutput is out reduced by the slippage tolerance, rounded down.
func MinOutput(out domain.TokenAmount, slippage decimal.Decimal) domain.TokenAmount {
	if slippage.IsNegative() {
		slippage = decimal.Zero
	}
	if slippage.GreaterThan(decimal.NewFromInt(1)) {
		slippage = decimal.NewFromInt(1)
	}
	keep := decimal.NewFromInt(1).Sub(slippage)
	raw := decimal.NewFromBigInt(out.Lamports(), 0).Mul(keep).Floor().BigInt()
	return domain.NewTokenAmount(raw, out.Decimals())
}

// PriceImpact is (quoted - spot) / spot, negated for an inverted pair.
func PriceImpact(quoted, spot decimal.Decimal, inverted bool) float64 {
	if !spot.IsPositive() {
		return 0
	}
	impact, _ := quoted.Sub(spot).Div(spot).Float64()
	if inverted {
		return -impact
	}
	return impact
}

// stableSpot approximates the marginal stable-curve price with a swap of one
// millionth of the source reserve.
func stableSpot(amp uint64, src, dst *big.Int) decimal.Decimal {
	step := new(big.Int).Quo(src, big.NewInt(1_000_000))
	if step.Sign() == 0 {
		step.SetInt64(1)
	}
	out := stableOut(amp, src, dst, step)
	return decimal.NewFromBigInt(out, 0).Div(decimal.NewFromBigInt(step, 0))
}

// ForPool builds Params for a swap of input from symbol through pool.
func ForPool(pool domain.SwapPool, from string, input domain.TokenAmount, slippage decimal.Decimal) (Params, bool) {
	src, dst, inverted, ok := pool.Reserves(from)
	if !ok {
		return Params{}, false
	}
	return Params{
		Input:         input,
		SourceReserve: src,
		DestReserve:   dst,
		Curve:         pool.Curve,
		FeeRate:       pool.FeeRate,
		Slippage:      slippage,
		Amplification: pool.Amplification,
		Inverted:      inverted,
	}, true
}
