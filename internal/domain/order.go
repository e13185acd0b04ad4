package domain

import "fmt"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the order's execution policy.
type OrderType string

const (
	OrderTypeLimit    OrderType = "limit"
	OrderTypeIOC      OrderType = "ioc"       // immediate-or-cancel
	OrderTypePostOnly OrderType = "post_only" // rejected if it would take
)

// OrderIntent is a user-entered order. Price and Amount hold both the display
// text and the parsed value.
type OrderIntent struct {
	Side   OrderSide   `json:"side"`
	Type   OrderType   `json:"type"`
	Price  AmountInput `json:"price"`
	Amount AmountInput `json:"amount"`
}

// Size is the quote-token notional of the order (amount * price).
func (o OrderIntent) Size(quoteDecimals int32) TokenAmount {
	return TokenAmountFromTokens(o.Amount.Value.Tokens().Mul(o.Price.Value.Tokens()), quoteDecimals)
}

// Validate checks side, type and non-zero amount and price.
func (o OrderIntent) Validate() error {
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, o.Side)
	}
	switch o.Type {
	case OrderTypeLimit, OrderTypeIOC, OrderTypePostOnly:
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidOrder, o.Type)
	}
	if o.Amount.Value.IsZero() {
		return fmt.Errorf("%w: zero amount", ErrInvalidOrder)
	}
	if o.Price.Value.IsZero() {
		return fmt.Errorf("%w: zero price", ErrInvalidOrder)
	}
	return nil
}

// OpenOrder is a resting order reported by the market.
type OpenOrder struct {
	ID     string    `json:"id"`
	Market string    `json:"market"`
	Side   OrderSide `json:"side"`
	Price  float64   `json:"price"`
	Size   float64   `json:"size"`
}
