package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/state"
	"github.com/alanyoungcy/marginterm/internal/swap"
)

// QuoteService prices swaps against the latest polled swap pools.
type QuoteService struct {
	store           *state.Store
	defaultSlippage decimal.Decimal
}

// NewQuoteService creates a QuoteService. defaultSlippage applies when a
// request leaves slippage unset.
func NewQuoteService(store *state.Store, defaultSlippage decimal.Decimal) *QuoteService {
	return &QuoteService{store: store, defaultSlippage: defaultSlippage}
}

// SwapQuote is a quote together with the pool that produced it.
type SwapQuote struct {
	swap.Quote
	Pool     string          `json:"pool"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Input    string          `json:"input"`
	Slippage decimal.Decimal `json:"slippage"`
}

// FindPool returns the swap pool for address, or the first pool pairing
// from and to when address is empty.
func (s *QuoteService) FindPool(address, from, to string) (domain.SwapPool, error) {
	if address != "" {
		p, ok := s.store.SwapPool(address)
		if !ok {
			return domain.SwapPool{}, fmt.Errorf("quote_service: swap pool %s: %w", address, domain.ErrPoolNotFound)
		}
		return p, nil
	}
	pools, _ := s.store.SwapPools.Load()
	for _, p := range pools {
		if (p.TokenA == from && p.TokenB == to) || (p.TokenA == to && p.TokenB == from) {
			return p, nil
		}
	}
	return domain.SwapPool{}, fmt.Errorf("quote_service: no pool for %s/%s: %w", from, to, domain.ErrPoolNotFound)
}

// Quote prices a swap of input from one token to another. A nil slippage
// means the configured default; zero quotes a minimum output equal to the
// output.
func (s *QuoteService) Quote(address, from, to string, input domain.TokenAmount, slippage *decimal.Decimal) (SwapQuote, error) {
	pool, err := s.FindPool(address, from, to)
	if err != nil {
		return SwapQuote{}, err
	}
	tolerance := s.defaultSlippage
	if slippage != nil {
		tolerance = *slippage
	}
	params, ok := swap.ForPool(pool, from, input, tolerance)
	if !ok || (pool.TokenA != to && pool.TokenB != to) {
		return SwapQuote{}, fmt.Errorf("quote_service: pool %s does not pair %s and %s: %w", pool.Address, from, to, domain.ErrPoolNotFound)
	}
	q, err := swap.Compute(params)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("quote_service: %w", err)
	}
	return SwapQuote{
		Quote:    q,
		Pool:     pool.Address,
		From:     from,
		To:       to,
		Input:    input.String(),
		Slippage: tolerance,
	}, nil
}
