package paper

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Seed is the initial protocol state of a paper SDK.
type Seed struct {
	Pools     []domain.Pool
	Markets   []domain.Market
	SwapPools []domain.SwapPool
	Books     []domain.OrderbookSnapshot
}

func tokens(v string, decimals int32) domain.TokenAmount {
	return domain.TokenAmountFromTokens(decimal.RequireFromString(v), decimals)
}

func pool(symbol, name, mint string, decimals int32, price, depMod, loanMod, deposits, borrows string) domain.Pool {
	dep := tokens(deposits, decimals)
	bor := tokens(borrows, decimals)
	return domain.Pool{
		Symbol:              symbol,
		Name:                name,
		Mint:                mint,
		Decimals:            decimals,
		TokenPrice:          decimal.RequireFromString(price),
		DepositNoteModifier: decimal.RequireFromString(depMod),
		LoanNoteModifier:    decimal.RequireFromString(loanMod),
		TotalDeposits:       dep,
		TotalBorrows:        bor,
		VaultLiquidity:      dep.Sub(bor),
	}
}

// DefaultSeed is a small devnet-like protocol with three pools, one market
// and one swap pool per curve.
func DefaultSeed() Seed {
	now := time.Now().UTC()
	return Seed{
		Pools: []domain.Pool{
			pool("SOL", "Solana", "So11111111111111111111111111111111111111112", 9, "150", "0.9", "0.9", "250000", "120000"),
			pool("USDC", "USD Coin", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", 6, "1", "0.95", "0.95", "40000000", "22000000"),
			pool("BTC", "Bitcoin", "9n4nbM75f5Ui33ZbPYXn59EwSgE8CGsHqf9fDx1j8pV2", 8, "60000", "0.85", "0.85", "900", "300"),
		},
		Markets: []domain.Market{{
			Name:          "SOL/USDC",
			Address:       "9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT",
			BaseSymbol:    "SOL",
			QuoteSymbol:   "USDC",
			BaseDecimals:  9,
			QuoteDecimals: 6,
			TickSize:      0.001,
			MinOrderSize:  0.01,
		}},
		SwapPools: []domain.SwapPool{
			{
				Address:   "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2",
				TokenA:    "SOL",
				TokenB:    "USDC",
				ReserveA:  tokens("20000", 9),
				ReserveB:  tokens("3000000", 6),
				Curve:     domain.CurveConstantProduct,
				FeeRate:   decimal.RequireFromString("0.0025"),
				UpdatedAt: now,
			},
			{
				Address:   "YAkoNb6HKmSxQN9L8hiBE5tPJRsniSSMzND1boHmZxe",
				TokenA:    "USDC",
				TokenB:    "BTC",
				ReserveA:  tokens("6000000", 6),
				ReserveB:  tokens("100", 8),
				Curve:     domain.CurveConstantProduct,
				FeeRate:   decimal.RequireFromString("0.003"),
				UpdatedAt: now,
			},
		},
		Books: []domain.OrderbookSnapshot{{
			Market: "SOL/USDC",
			Bids:   []domain.PriceLevel{{Price: 149.9, Size: 120}, {Price: 149.8, Size: 340}, {Price: 149.5, Size: 900}},
			Asks:   []domain.PriceLevel{{Price: 150.1, Size: 80}, {Price: 150.2, Size: 410}, {Price: 150.6, Size: 1200}},
		}},
	}
}
