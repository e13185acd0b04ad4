package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Valuation is an account's collateral summary in USD.
type Valuation struct {
	// WeightedCollateral is the sum of deposit values scaled by each pool's
	// deposit note modifier.
	WeightedCollateral decimal.Decimal
	// RequiredCollateral is the sum of loan values divided by each pool's
	// loan note modifier.
	RequiredCollateral decimal.Decimal
}

// Value sums the account positions against pools. Positions in pools that are
// not loaded yet contribute nothing.
func Value(pools map[string]domain.Pool, positions map[string]domain.PoolPosition) Valuation {
	v := Valuation{WeightedCollateral: decimal.Zero, RequiredCollateral: decimal.Zero}
	for symbol, pos := range positions {
		pool, ok := pools[symbol]
		if !ok {
			continue
		}
		if !pos.Deposit.IsZero() {
			v.WeightedCollateral = v.WeightedCollateral.Add(
				pool.Value(nonNegative(pos.Deposit)).Mul(depositModifier(pool)))
		}
		if !pos.Loan.IsZero() {
			v.RequiredCollateral = v.RequiredCollateral.Add(
				pool.Value(nonNegative(pos.Loan)).Div(loanModifier(pool)))
		}
	}
	return v
}

// Indicator converts a valuation into the risk ratio. An account with debt and
// no weighted collateral reports the liquidation level.
func (t Thresholds) Indicator(v Valuation) float64 {
	if v.WeightedCollateral.IsPositive() {
		r, _ := v.RequiredCollateral.Div(v.WeightedCollateral).Float64()
		return math.Max(r, 0)
	}
	if v.RequiredCollateral.IsPositive() {
		return t.Liquidation
	}
	return 0
}

// AccountIndicator values acct against pools.
func (t Thresholds) AccountIndicator(pools map[string]domain.Pool, acct domain.MarginAccount) float64 {
	return t.Indicator(Value(pools, acct.Positions))
}

func depositModifier(p domain.Pool) decimal.Decimal {
	if p.DepositNoteModifier.IsPositive() {
		return p.DepositNoteModifier
	}
	return decimal.NewFromInt(1)
}

func loanModifier(p domain.Pool) decimal.Decimal {
	if p.LoanNoteModifier.IsPositive() {
		return p.LoanNoteModifier
	}
	return decimal.NewFromInt(1)
}

func nonNegative(a domain.TokenAmount) domain.TokenAmount {
	if a.IsNegative() {
		return domain.ZeroAmount(a.Decimals())
	}
	return a
}
