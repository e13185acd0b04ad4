package risk

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// WithMaxAmounts returns a copy of acct whose positions carry the maximum
// tradeable amount per action kind. A position is created for every loaded
// pool so deposits into new pools have a bound. wallet holds wallet balances
// keyed by symbol.
func (t Thresholds) WithMaxAmounts(pools map[string]domain.Pool, acct domain.MarginAccount, wallet map[string]domain.TokenAmount) domain.MarginAccount {
	val := Value(pools, acct.Positions)
	riskCap := decimal.NewFromFloat(t.Critical)
	positions := make(map[string]domain.PoolPosition, len(pools))

	for symbol, pool := range pools {
		pos := positionOrZero(acct.Positions, pool)
		walletBal := domain.ZeroAmount(pool.Decimals)
		if b, ok := wallet[symbol]; ok {
			walletBal = nonNegative(b)
		}
		liquidity := nonNegative(pool.VaultLiquidity)
		deposit := nonNegative(pos.Deposit)
		loan := nonNegative(pos.Loan)

		withdraw := deposit.Min(liquidity)
		if h, ok := withdrawHeadroom(val, riskCap, pool); ok {
			withdraw = withdraw.Min(h)
		}
		borrow := liquidity
		if h, ok := borrowHeadroom(val, riskCap, pool); ok {
			borrow = borrow.Min(h)
		}

		pos.MaxAmounts = map[domain.ActionKind]domain.TokenAmount{
			domain.ActionDeposit:         walletBal,
			domain.ActionWithdraw:        nonNegative(withdraw),
			domain.ActionBorrow:          nonNegative(borrow),
			domain.ActionRepay:           loan.Min(deposit),
			domain.ActionRepayFromWallet: loan.Min(walletBal),
			domain.ActionSwap:            deposit.Add(nonNegative(borrow)),
		}
		positions[symbol] = pos
	}
	// Keep positions in pools that are not loaded yet so balances stay visible.
	for symbol, pos := range acct.Positions {
		if _, ok := positions[symbol]; !ok {
			positions[symbol] = pos
		}
	}

	acct.Positions = positions
	return acct
}

// withdrawHeadroom is the token amount that can leave collateral before the
// indicator reaches riskCap. ok is false when the pool adds no weight.
func withdrawHeadroom(v Valuation, riskCap decimal.Decimal, pool domain.Pool) (domain.TokenAmount, bool) {
	unit := pool.TokenPrice.Mul(depositModifier(pool))
	if !unit.IsPositive() || !v.RequiredCollateral.IsPositive() {
		return domain.TokenAmount{}, false
	}
	// required / (W - w*unit) <= cap  =>  w <= (W - required/cap) / unit
	room := v.WeightedCollateral.Sub(v.RequiredCollateral.Div(riskCap))
	if !room.IsPositive() {
		return domain.ZeroAmount(pool.Decimals), true
	}
	return domain.TokenAmountFromTokens(room.Div(unit), pool.Decimals), true
}

// borrowHeadroom is the largest borrow that keeps the indicator at or below
// riskCap. Borrowed tokens are deposited, so each unit adds both weight and
// requirement.
func borrowHeadroom(v Valuation, riskCap decimal.Decimal, pool domain.Pool) (domain.TokenAmount, bool) {
	if !pool.TokenPrice.IsPositive() {
		return domain.TokenAmount{}, false
	}
	one := decimal.NewFromInt(1)
	perUnit := pool.TokenPrice.Mul(one.Div(loanModifier(pool)).Sub(riskCap.Mul(depositModifier(pool))))
	if !perUnit.IsPositive() {
		return domain.TokenAmount{}, false
	}
	room := riskCap.Mul(v.WeightedCollateral).Sub(v.RequiredCollateral)
	if !room.IsPositive() {
		return domain.ZeroAmount(pool.Decimals), true
	}
	return domain.TokenAmountFromTokens(room.Div(perUnit), pool.Decimals), true
}

// Disabled returns the reason an action cannot be submitted, or DisabledNone.
// projected is the indicator after the action as returned by Project.
func (t Thresholds) Disabled(kind domain.ActionKind, acct *domain.MarginAccount, pool *domain.Pool, amount domain.TokenAmount, projected float64) domain.DisabledReason {
	switch kind {
	case domain.ActionCreateAccount, domain.ActionCancelOrder, domain.ActionPlaceOrder:
		if kind != domain.ActionCreateAccount && acct == nil {
			return domain.DisabledNoAccount
		}
		return domain.DisabledNone
	}
	if acct == nil {
		return domain.DisabledNoAccount
	}
	if pool == nil {
		return domain.DisabledNoPool
	}
	if amount.IsZero() || amount.IsNegative() {
		return domain.DisabledZeroAmount
	}
	if kind == domain.ActionTransfer {
		return domain.DisabledNone
	}

	pos, _ := acct.Position(pool.Symbol)
	switch kind {
	case domain.ActionWithdraw, domain.ActionBorrow:
		if nonNegative(pool.VaultLiquidity).IsZero() {
			return domain.DisabledNoLiquidity
		}
	}
	switch kind {
	case domain.ActionWithdraw, domain.ActionRepay:
		if nonNegative(pos.Deposit).IsZero() {
			return domain.DisabledNoBalance
		}
	case domain.ActionRepayFromWallet:
		if nonNegative(pos.Loan).IsZero() {
			return domain.DisabledNoBalance
		}
	}
	switch kind {
	case domain.ActionWithdraw, domain.ActionBorrow, domain.ActionSwap:
		if projected >= t.Critical && projected > acct.RiskIndicator {
			return domain.DisabledAboveMaxRisk
		}
	}

	max := pos.Max(kind, pool.Decimals)
	if max.IsZero() && kind == domain.ActionDeposit {
		return domain.DisabledNoBalance
	}
	if amount.Cmp(max) > 0 {
		return domain.DisabledExceedsMax
	}
	return domain.DisabledNone
}
