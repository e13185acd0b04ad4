package service

import (
	"errors"
	"fmt"
	"slices"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/risk"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// RiskService answers risk questions about the loaded accounts: current band,
// projection across a hypothetical action and the pre-submission check.
type RiskService struct {
	store      *state.Store
	quotes     *QuoteService
	thresholds risk.Thresholds
}

// NewRiskService creates a RiskService.
func NewRiskService(store *state.Store, quotes *QuoteService, thresholds risk.Thresholds) *RiskService {
	return &RiskService{store: store, quotes: quotes, thresholds: thresholds}
}

// Thresholds returns the configured levels.
func (s *RiskService) Thresholds() risk.Thresholds { return s.thresholds }

// AccountRisk is the current risk of one account.
type AccountRisk struct {
	Address            string           `json:"address"`
	Indicator          float64          `json:"indicator"`
	Level              domain.RiskLevel `json:"level"`
	WeightedCollateral string           `json:"weighted_collateral"`
	RequiredCollateral string           `json:"required_collateral"`
}

// AccountRisk classifies the account with address.
func (s *RiskService) AccountRisk(address string) (AccountRisk, error) {
	acct, ok := s.store.Account(address)
	if !ok {
		return AccountRisk{}, fmt.Errorf("risk_service: %s: %w", address, domain.ErrAccountNotFound)
	}
	pools, _ := s.store.Pools.Load()
	v := risk.Value(pools, acct.Positions)
	return AccountRisk{
		Address:            acct.Address,
		Indicator:          acct.RiskIndicator,
		Level:              s.thresholds.Classify(acct.RiskIndicator),
		WeightedCollateral: v.WeightedCollateral.StringFixed(2),
		RequiredCollateral: v.RequiredCollateral.StringFixed(2),
	}, nil
}

// Preflight is everything known about an action before it is submitted.
type Preflight struct {
	Projection domain.RiskProjection `json:"projection"`
	Disabled   domain.DisabledReason `json:"disabled,omitempty"`
	Max        *domain.TokenAmount   `json:"max,omitempty"`
	Quote      *SwapQuote            `json:"quote,omitempty"`
}

// Preflight projects req against the current state and computes why it would
// be refused, if at all. Missing state is reported through Disabled rather
// than as an error.
func (s *RiskService) Preflight(req domain.ActionRequest) (Preflight, error) {
	pools, _ := s.store.Pools.Load()

	var acct *domain.MarginAccount
	if a, ok := s.store.Account(req.Account); ok {
		acct = &a
	}
	var pool *domain.Pool
	if p, ok := pools[req.Symbol]; ok {
		pool = &p
	}

	in := risk.Input{Pools: pools, Account: acct, Pool: pool, Kind: req.Kind, Amount: req.Amount}
	var out Preflight

	if req.Kind == domain.ActionSwap && !req.Amount.IsZero() {
		q, err := s.quotes.Quote(req.SwapPool, req.Symbol, req.OutputSymbol, req.Amount, req.Slippage)
		switch {
		case err == nil:
			out.Quote = &q
			if p, ok := pools[req.OutputSymbol]; ok {
				in.OutputPool = &p
				in.OutputAmount = q.Output
			}
		case errors.Is(err, domain.ErrPoolNotFound):
		default:
			return Preflight{}, err
		}
	}

	out.Projection = s.thresholds.Projection(in)
	out.Disabled = s.thresholds.Disabled(req.Kind, acct, pool, req.Amount, out.Projection.Projected)
	if req.Kind == domain.ActionSwap && out.Disabled == domain.DisabledNone && out.Quote == nil {
		out.Disabled = domain.DisabledNoPool
	}
	if req.Kind == domain.ActionSwap && out.Quote != nil && out.Quote.Output.IsZero() && out.Disabled == domain.DisabledNone {
		out.Disabled = domain.DisabledNoLiquidity
	}
	if acct != nil && pool != nil && slices.Contains(domain.TradeKinds, req.Kind) {
		pos, _ := acct.Position(pool.Symbol)
		m := pos.Max(req.Kind, pool.Decimals)
		out.Max = &m
	}
	return out, nil
}
