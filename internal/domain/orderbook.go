package domain

import (
	"slices"
	"time"
)

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderbookSnapshot is a full snapshot of bids and asks for a market.
type OrderbookSnapshot struct {
	Market    string       `json:"market"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BestBid returns the highest bid or 0.
func (s OrderbookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask or 0.
func (s OrderbookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// MidPrice returns the midpoint when both sides are present.
func (s OrderbookSnapshot) MidPrice() float64 {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return 0
	}
	return (s.BestBid() + s.BestAsk()) / 2
}

// SameLevels reports whether both snapshots carry identical bid and ask
// arrays. Timestamps are ignored.
func (s OrderbookSnapshot) SameLevels(o OrderbookSnapshot) bool {
	return s.Market == o.Market && slices.Equal(s.Bids, o.Bids) && slices.Equal(s.Asks, o.Asks)
}
