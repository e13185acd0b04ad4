package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool is a lending reserve for one token as reported by the margin SDK.
type Pool struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Mint     string `json:"mint"`
	Decimals int32  `json:"decimals"`

	// TokenPrice is the oracle price of one whole token in USD.
	TokenPrice decimal.Decimal `json:"token_price"`
	// DepositNoteModifier weights deposits when valuing collateral (0..1].
	DepositNoteModifier decimal.Decimal `json:"deposit_note_modifier"`
	// LoanNoteModifier scales liabilities into required collateral (0..1].
	LoanNoteModifier decimal.Decimal `json:"loan_note_modifier"`

	TotalDeposits TokenAmount `json:"total_deposits"`
	TotalBorrows  TokenAmount `json:"total_borrows"`
	// VaultLiquidity is the amount currently available to withdraw or borrow.
	VaultLiquidity TokenAmount `json:"vault_liquidity"`

	DepositAPY  float64 `json:"deposit_apy"`
	BorrowAPY   float64 `json:"borrow_apy"`
	Utilization float64 `json:"utilization"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Value returns the USD value of amount at the pool's price.
func (p Pool) Value(amount TokenAmount) decimal.Decimal {
	return amount.Tokens().Mul(p.TokenPrice)
}

// PoolPosition is one account's balances in one pool. It is recomputed
// wholesale on every poll and never partially mutated.
type PoolPosition struct {
	Symbol     string                     `json:"symbol"`
	Deposit    TokenAmount                `json:"deposit"`
	Loan       TokenAmount                `json:"loan"`
	MaxAmounts map[ActionKind]TokenAmount `json:"max_amounts"`
}

// Max returns the precomputed maximum for kind, or zero when absent.
func (p PoolPosition) Max(kind ActionKind, decimals int32) TokenAmount {
	if v, ok := p.MaxAmounts[kind]; ok {
		return v
	}
	return ZeroAmount(decimals)
}

// MarginAccount aggregates a wallet's positions across pools.
type MarginAccount struct {
	Address       string                  `json:"address"`
	Owner         string                  `json:"owner"`
	Seed          int                     `json:"seed"`
	Positions     map[string]PoolPosition `json:"positions"`
	RiskIndicator float64                 `json:"risk_indicator"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// Position returns the account's position in the pool with symbol.
func (a MarginAccount) Position(symbol string) (PoolPosition, bool) {
	p, ok := a.Positions[symbol]
	return p, ok
}

// WalletBalance is a token balance held outside the margin account.
type WalletBalance struct {
	Symbol string      `json:"symbol"`
	Mint   string      `json:"mint"`
	Amount TokenAmount `json:"amount"`
}
