package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market is an order-book market pairing a base and quote token.
type Market struct {
	Name          string  `json:"name"`
	Address       string  `json:"address"`
	BaseSymbol    string  `json:"base_symbol"`
	QuoteSymbol   string  `json:"quote_symbol"`
	BaseDecimals  int32   `json:"base_decimals"`
	QuoteDecimals int32   `json:"quote_decimals"`
	TickSize      float64 `json:"tick_size"`
	MinOrderSize  float64 `json:"min_order_size"`
}

// SwapCurve selects the pricing function of a swap pool.
type SwapCurve string

const (
	CurveConstantProduct SwapCurve = "constant_product"
	CurveStable          SwapCurve = "stable"
)

// SwapPool is a two-token exchange pool with reserves in base units.
type SwapPool struct {
	Address       string          `json:"address"`
	TokenA        string          `json:"token_a"`
	TokenB        string          `json:"token_b"`
	ReserveA      TokenAmount     `json:"reserve_a"`
	ReserveB      TokenAmount     `json:"reserve_b"`
	Curve         SwapCurve       `json:"curve"`
	FeeRate       decimal.Decimal `json:"fee_rate"`
	Amplification uint64          `json:"amplification,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Reserves returns (source, destination) reserves for a swap from symbol,
// and whether the pair is inverted relative to the pool's A/B ordering.
func (p SwapPool) Reserves(from string) (src, dst TokenAmount, inverted, ok bool) {
	switch from {
	case p.TokenA:
		return p.ReserveA, p.ReserveB, false, true
	case p.TokenB:
		return p.ReserveB, p.ReserveA, true, true
	}
	return TokenAmount{}, TokenAmount{}, false, false
}

// Candle is one OHLCV bar from the price-history endpoint.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// RecentTrade is a fill reported by the trade-history endpoint.
type RecentTrade struct {
	Market string    `json:"market"`
	Side   OrderSide `json:"side"`
	Price  float64   `json:"price"`
	Size   float64   `json:"size"`
	Time   time.Time `json:"time"`
}
