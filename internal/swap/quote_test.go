package swap

import (
	"math/big"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

func amt(v int64, decimals int32) domain.TokenAmount {
	return domain.NewTokenAmount(big.NewInt(v), decimals)
}

func TestComputeZeroInput(t *testing.T) {
	q, err := Compute(Params{
		Input:         amt(0, 6),
		SourceReserve: amt(1_000_000, 6),
		DestReserve:   amt(2_000_000, 9),
		Curve:         domain.CurveConstantProduct,
		FeeRate:       decimal.RequireFromString("0.003"),
		Slippage:      decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	assert.True(t, q.Output.IsZero())
	assert.True(t, q.MinOutput.IsZero())
	assert.Equal(t, int32(9), q.Output.Decimals())
	assert.Equal(t, 0.0, q.PriceImpact)
}

func TestComputeMissingReserve(t *testing.T) {
	for _, p := range []Params{
		{Input: amt(10, 6), SourceReserve: domain.TokenAmount{}, DestReserve: amt(5, 6)},
		{Input: amt(10, 6), SourceReserve: amt(5, 6), DestReserve: amt(0, 6)},
	} {
		q, err := Compute(p)
		require.NoError(t, err)
		assert.True(t, q.Output.IsZero())
		assert.True(t, q.MinOutput.IsZero())
		assert.Equal(t, 0.0, q.PriceImpact)
	}
}

func TestComputeConstantProduct(t *testing.T) {
	q, err := Compute(Params{
		Input:         amt(10_000, 6),
		SourceReserve: amt(1_000_000, 6),
		DestReserve:   amt(2_000_000, 6),
		Curve:         domain.CurveConstantProduct,
		FeeRate:       decimal.RequireFromString("0.003"),
		Slippage:      decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	assert.Equal(t, "30", q.Fee.Lamports().String())
	assert.Equal(t, "19743", q.Output.Lamports().String())
	assert.Equal(t, "19545", q.MinOutput.Lamports().String())
	assert.InDelta(t, (1.9743-2.0)/2.0, q.PriceImpact, 1e-12)
	assert.Less(t, q.PriceImpact, 0.0)
}

func TestComputeInvertedFlipsImpact(t *testing.T) {
	base := Params{
		Input:         amt(10_000, 6),
		SourceReserve: amt(1_000_000, 6),
		DestReserve:   amt(2_000_000, 6),
		FeeRate:       decimal.RequireFromString("0.003"),
	}
	inverted := base
	inverted.Inverted = true

	a, err := Compute(base)
	require.NoError(t, err)
	b, err := Compute(inverted)
	require.NoError(t, err)
	assert.True(t, a.Output.Equal(b.Output))
	assert.Equal(t, -a.PriceImpact, b.PriceImpact)
}

func TestConstantProductBoundsAndMonotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	fees := []string{"0", "0.0001", "0.003", "0.25"}
	for range 50 {
		s := rng.Int64N(1_000_000_000) + 1
		d := rng.Int64N(1_000_000_000) + 1
		fee := decimal.RequireFromString(fees[rng.IntN(len(fees))])

		prev := big.NewInt(-1)
		inputs := []int64{0, 1, 2, 3, 10, 1_000, s / 2, s, 10 * s, 1 << 40, 1 << 62}
		slices.Sort(inputs)
		for _, x := range inputs {
			q, err := Compute(Params{
				Input:         amt(x, 0),
				SourceReserve: amt(s, 0),
				DestReserve:   amt(d, 0),
				Curve:         domain.CurveConstantProduct,
				FeeRate:       fee,
			})
			require.NoError(t, err)
			y := q.Output.Lamports()
			assert.GreaterOrEqual(t, y.Sign(), 0)
			assert.Equal(t, -1, y.Cmp(big.NewInt(d)), "output must stay below the reserve")
			assert.GreaterOrEqual(t, y.Cmp(prev), 0, "x=%d s=%d d=%d fee=%s", x, s, d, fee)
			prev = y
		}
	}
}

func TestComputeStable(t *testing.T) {
	p := Params{
		Input:         amt(1_000_000, 6),
		SourceReserve: amt(1_000_000_000_000, 6),
		DestReserve:   amt(1_000_000_000_000, 6),
		Curve:         domain.CurveStable,
		Amplification: 100,
		FeeRate:       decimal.RequireFromString("0.001"),
		Slippage:      decimal.RequireFromString("0.005"),
	}
	q, err := Compute(p)
	require.NoError(t, err)
	assert.Equal(t, "1000", q.Fee.Lamports().String())
	assert.Equal(t, "998999", q.Output.Lamports().String())
	assert.Equal(t, "994004", q.MinOutput.Lamports().String())

	// The stable curve gives far better execution than constant product at
	// the same reserves.
	p.Curve = domain.CurveConstantProduct
	cp, err := Compute(p)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Output.Cmp(cp.Output))
}

func TestComputeStablePriceImpact(t *testing.T) {
	p := Params{
		Input:         amt(1_000_000, 6),
		SourceReserve: amt(1_000_000_000_000, 6),
		DestReserve:   amt(1_000_000_000_000, 6),
		Curve:         domain.CurveStable,
		Amplification: 100,
		FeeRate:       decimal.RequireFromString("0.001"),
	}
	q, err := Compute(p)
	require.NoError(t, err)
	// Spot is 999999/1000000 from the marginal swap; the fee accounts for
	// almost all of the impact on a balanced pool.
	assert.Less(t, q.PriceImpact, 0.0)
	assert.InDelta(t, -0.001/0.999999, q.PriceImpact, 1e-12)

	p.Inverted = true
	inv, err := Compute(p)
	require.NoError(t, err)
	assert.True(t, inv.Output.Equal(q.Output))
	assert.Greater(t, inv.PriceImpact, 0.0)
	assert.Equal(t, -q.PriceImpact, inv.PriceImpact)

	// Without a fee a small trade executes at spot.
	p.Inverted = false
	p.FeeRate = decimal.Zero
	free, err := Compute(p)
	require.NoError(t, err)
	assert.Equal(t, "999999", free.Output.Lamports().String())
	assert.InDelta(t, 0.0, free.PriceImpact, 1e-12)
}

func TestStableWithoutFees(t *testing.T) {
	src := big.NewInt(1_000_000_000_000)
	assert.Equal(t, "999999", stableOut(100, src, src, big.NewInt(1_000_000)).String())
	assert.Equal(t, "0", stableOut(100, src, src, big.NewInt(0)).String())
}

func TestComputeCurveErrors(t *testing.T) {
	p := Params{Input: amt(1, 0), SourceReserve: amt(10, 0), DestReserve: amt(10, 0), Curve: domain.CurveStable}
	_, err := Compute(p)
	assert.ErrorIs(t, err, ErrUnknownCurve)

	p.Curve = "weighted"
	_, err = Compute(p)
	assert.ErrorIs(t, err, ErrUnknownCurve)
}

func TestTradingFee(t *testing.T) {
	rate := decimal.RequireFromString("0.003")
	assert.Equal(t, "1", TradingFee(big.NewInt(10), rate).String())
	assert.Equal(t, "3", TradingFee(big.NewInt(1000), rate).String())
	assert.Equal(t, "0", TradingFee(big.NewInt(1000), decimal.Zero).String())
	assert.Equal(t, "0", TradingFee(big.NewInt(0), rate).String())
}

func TestMinOutputClampsSlippage(t *testing.T) {
	out := amt(1000, 6)
	assert.Equal(t, "1000", MinOutput(out, decimal.NewFromInt(-1)).Lamports().String())
	assert.Equal(t, "0", MinOutput(out, decimal.NewFromInt(2)).Lamports().String())
	assert.Equal(t, "995", MinOutput(out, decimal.RequireFromString("0.005")).Lamports().String())
}

func TestForPool(t *testing.T) {
	pool := domain.SwapPool{
		TokenA: "SOL", TokenB: "USDC",
		ReserveA: amt(100, 9), ReserveB: amt(200, 6),
		Curve: domain.CurveConstantProduct, FeeRate: decimal.RequireFromString("0.0025"),
	}
	p, ok := ForPool(pool, "USDC", amt(5, 6), decimal.Zero)
	require.True(t, ok)
	assert.True(t, p.Inverted)
	assert.Equal(t, int32(6), p.SourceReserve.Decimals())
	assert.Equal(t, int32(9), p.DestReserve.Decimals())

	_, ok = ForPool(pool, "BTC", amt(5, 6), decimal.Zero)
	assert.False(t, ok)
}
