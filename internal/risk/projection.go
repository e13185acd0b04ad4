package risk

import (
	"maps"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Input describes a hypothetical action against an account.
type Input struct {
	// Pools are the loaded pools keyed by symbol.
	Pools   map[string]domain.Pool
	Account *domain.MarginAccount
	Pool    *domain.Pool
	Kind    domain.ActionKind
	Amount  domain.TokenAmount

	// OutputPool and OutputAmount describe the token received by a swap.
	OutputPool   *domain.Pool
	OutputAmount domain.TokenAmount
}

// Project returns the account's risk indicator as if the action had been
// applied. Incomplete input (no account, no pool, zero amount, a transfer, a
// swap without its output side) returns the current indicator unchanged.
func (t Thresholds) Project(in Input) float64 {
	if in.Account == nil {
		return 0
	}
	current := in.Account.RiskIndicator
	if in.Pool == nil || in.Amount.IsZero() || in.Amount.IsNegative() {
		return current
	}

	pools := make(map[string]domain.Pool, len(in.Pools)+2)
	maps.Copy(pools, in.Pools)
	pools[in.Pool.Symbol] = *in.Pool

	positions := maps.Clone(in.Account.Positions)
	if positions == nil {
		positions = make(map[string]domain.PoolPosition)
	}
	pos := positionOrZero(positions, *in.Pool)
	x := in.Amount

	switch in.Kind {
	case domain.ActionDeposit:
		pos.Deposit = pos.Deposit.Add(x)
	case domain.ActionWithdraw:
		pos.Deposit = nonNegative(pos.Deposit.Sub(x))
	case domain.ActionBorrow:
		pos.Deposit = pos.Deposit.Add(x)
		pos.Loan = pos.Loan.Add(x)
	case domain.ActionRepay:
		pos.Deposit = nonNegative(pos.Deposit.Sub(x))
		pos.Loan = nonNegative(pos.Loan.Sub(x))
	case domain.ActionRepayFromWallet:
		pos.Loan = nonNegative(pos.Loan.Sub(x))
	case domain.ActionSwap:
		if in.OutputPool == nil {
			return current
		}
		// Any input beyond the deposit balance is borrowed.
		if x.Cmp(pos.Deposit) > 0 {
			pos.Loan = pos.Loan.Add(x.Sub(pos.Deposit))
			pos.Deposit = domain.ZeroAmount(pos.Deposit.Decimals())
		} else {
			pos.Deposit = pos.Deposit.Sub(x)
		}
		positions[in.Pool.Symbol] = pos

		pools[in.OutputPool.Symbol] = *in.OutputPool
		out := positionOrZero(positions, *in.OutputPool)
		out.Deposit = out.Deposit.Add(nonNegative(in.OutputAmount))
		positions[in.OutputPool.Symbol] = out
		return t.Indicator(Value(pools, positions))
	default:
		return current
	}

	positions[in.Pool.Symbol] = pos
	return t.Indicator(Value(pools, positions))
}

// Projection bundles the current and projected indicator with their bands.
func (t Thresholds) Projection(in Input) domain.RiskProjection {
	var current float64
	if in.Account != nil {
		current = in.Account.RiskIndicator
	}
	projected := t.Project(in)
	return domain.RiskProjection{
		Current:        current,
		Projected:      projected,
		CurrentLevel:   t.Classify(current),
		ProjectedLevel: t.Classify(projected),
	}
}

func positionOrZero(positions map[string]domain.PoolPosition, pool domain.Pool) domain.PoolPosition {
	if p, ok := positions[pool.Symbol]; ok {
		return p
	}
	return domain.PoolPosition{
		Symbol:  pool.Symbol,
		Deposit: domain.ZeroAmount(pool.Decimals),
		Loan:    domain.ZeroAmount(pool.Decimals),
	}
}
