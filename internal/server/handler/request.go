package handler

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/state"
)

// actionBody is the wire form of an action. Amounts are whole-token strings;
// their precision comes from the pool or market they refer to.
type actionBody struct {
	Kind         string     `json:"kind"`
	Account      string     `json:"account"`
	Symbol       string     `json:"symbol"`
	Amount       string     `json:"amount"`
	OutputSymbol string     `json:"output_symbol"`
	SwapPool     string     `json:"swap_pool"`
	Slippage     string     `json:"slippage"`
	MinOutput    string     `json:"min_output"`
	ToAccount    string     `json:"to_account"`
	Market       string     `json:"market"`
	Order        *orderBody `json:"order"`
	OrderID      string     `json:"order_id"`
}

type orderBody struct {
	Side   string `json:"side"`
	Type   string `json:"type"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// toRequest resolves token precision against the current state.
func (b actionBody) toRequest(store *state.Store) (domain.ActionRequest, error) {
	req := domain.ActionRequest{
		Kind:         domain.ActionKind(b.Kind),
		Account:      b.Account,
		Symbol:       b.Symbol,
		OutputSymbol: b.OutputSymbol,
		SwapPool:     b.SwapPool,
		ToAccount:    b.ToAccount,
		Market:       b.Market,
		OrderID:      b.OrderID,
	}
	if !req.Kind.Valid() {
		return req, fmt.Errorf("%w: kind %q", domain.ErrInvalidAction, b.Kind)
	}

	if b.Symbol != "" {
		amount, err := parseFor(store, b.Symbol, b.Amount)
		if err != nil {
			return req, err
		}
		req.Amount = amount
	}
	if b.Slippage != "" {
		s, err := decimal.NewFromString(b.Slippage)
		if err != nil || s.IsNegative() {
			return req, fmt.Errorf("%w: slippage %q", domain.ErrInvalidAmount, b.Slippage)
		}
		req.Slippage = &s
	}
	if b.MinOutput != "" {
		if b.OutputSymbol == "" {
			return req, fmt.Errorf("%w: min_output needs output_symbol", domain.ErrInvalidAction)
		}
		minOut, err := parseFor(store, b.OutputSymbol, b.MinOutput)
		if err != nil {
			return req, err
		}
		req.MinOutput = &minOut
	}
	if b.Order != nil {
		market, ok := findMarket(store, b.Market)
		if !ok {
			return req, fmt.Errorf("market %q: %w", b.Market, domain.ErrMarketNotFound)
		}
		order, err := b.Order.toIntent(market)
		if err != nil {
			return req, err
		}
		req.Order = &order
	}
	return req, nil
}

// toIntent parses price in quote-token and amount in base-token precision.
func (o orderBody) toIntent(m domain.Market) (domain.OrderIntent, error) {
	price, err := exactInput(o.Price, m.QuoteDecimals)
	if err != nil {
		return domain.OrderIntent{}, err
	}
	amount, err := exactInput(o.Amount, m.BaseDecimals)
	if err != nil {
		return domain.OrderIntent{}, err
	}
	return domain.OrderIntent{
		Side:   domain.OrderSide(strings.ToLower(o.Side)),
		Type:   domain.OrderType(strings.ToLower(o.Type)),
		Price:  price,
		Amount: amount,
	}, nil
}

// exactInput builds an AmountInput bounded by its own value, so nothing is
// clamped.
func exactInput(text string, decimals int32) (domain.AmountInput, error) {
	v, err := domain.ParseTokenAmount(text, decimals)
	if err != nil {
		return domain.AmountInput{}, err
	}
	if v.IsNegative() {
		return domain.AmountInput{}, fmt.Errorf("%w: negative %q", domain.ErrInvalidAmount, text)
	}
	return domain.NewAmountInput(v).SetValue(v), nil
}

func parseFor(store *state.Store, symbol, text string) (domain.TokenAmount, error) {
	pool, ok := store.Pool(symbol)
	if !ok {
		return domain.TokenAmount{}, fmt.Errorf("pool %q: %w", symbol, domain.ErrPoolNotFound)
	}
	v, err := domain.ParseTokenAmount(text, pool.Decimals)
	if err != nil {
		return domain.TokenAmount{}, err
	}
	if v.IsNegative() {
		return domain.TokenAmount{}, fmt.Errorf("%w: negative %q", domain.ErrInvalidAmount, text)
	}
	return v, nil
}

func findMarket(store *state.Store, name string) (domain.Market, bool) {
	markets, _ := store.Markets.Load()
	for _, m := range markets {
		if m.Name == name || m.Address == name {
			return m, true
		}
	}
	return domain.Market{}, false
}
