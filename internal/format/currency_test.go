package format

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func newUSD(t *testing.T) *Formatter {
	t.Helper()
	f, err := New(language.English, "USD", nil)
	require.NoError(t, err)
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fractionDigits(s string) int {
	s = strings.TrimRight(s, "KMBT%")
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}

func TestAbbrevSuffixes(t *testing.T) {
	f := newUSD(t)
	opts := Options{Decimals: 2}

	assert.Equal(t, "999", f.Abbrev(dec("999"), opts))
	assert.Equal(t, "9,999", f.Abbrev(dec("9999"), opts))
	assert.True(t, strings.HasSuffix(f.Abbrev(dec("15000"), opts), "K"))
	assert.Equal(t, "15K", f.Abbrev(dec("15000"), opts))
	assert.True(t, strings.HasSuffix(f.Abbrev(dec("2000000"), opts), "M"))
	assert.Equal(t, "1.23M", f.Abbrev(dec("1234567"), opts))
	assert.Equal(t, "4.5B", f.Abbrev(dec("4500000000"), opts))
	assert.Equal(t, "7T", f.Abbrev(dec("7000000000000"), opts))
	assert.Equal(t, "-15K", f.Abbrev(dec("-15000"), opts))
}

func TestNeverExceedsRequestedDecimals(t *testing.T) {
	f := newUSD(t)
	values := []string{"0.123456789", "1.99999", "12345.6789", "999.999", "3141592.6535", "0.000001"}
	for _, v := range values {
		for _, d := range []int32{0, 1, 2, 4} {
			out := f.Abbrev(dec(v), Options{Decimals: d})
			assert.LessOrEqual(t, fractionDigits(out), int(d), "%s at %d -> %s", v, d, out)
			out = f.Currency(dec(v), Options{Decimals: d, Ceil: true})
			assert.LessOrEqual(t, fractionDigits(out), int(d), "%s at %d -> %s", v, d, out)
		}
	}
}

func TestCurrencyFloorAndCeil(t *testing.T) {
	f := newUSD(t)
	assert.Equal(t, "1.99", f.Currency(dec("1.999"), Options{Decimals: 2}))
	assert.Equal(t, "2", f.Currency(dec("1.999"), Options{Decimals: 2, Ceil: true}))
	assert.Equal(t, "1,234.5", f.Currency(dec("1234.5"), Options{Decimals: 4}))
	assert.Equal(t, "0", f.Currency(dec("0.0001"), Options{Decimals: 2}))
}

func TestCurrencyKeepsExactDigitsBeyondFloatPrecision(t *testing.T) {
	f := newUSD(t)
	assert.Equal(t, "9,007,199,254,740,995", f.Currency(dec("9007199254740995"), Options{Decimals: 0}))
	assert.Equal(t, "9,007,199,254,740,993.12", f.Currency(dec("9007199254740993.129"), Options{Decimals: 2}))
	assert.Equal(t, "123,456,789,012,345,678,901", f.Currency(dec("123456789012345678901.9"), Options{Decimals: 0}))
	assert.Equal(t, "-$9,007,199,254,740,995.00", f.Currency(dec("-9007199254740995"), Options{Fiat: true, Decimals: 2}))
}

func TestGroup(t *testing.T) {
	assert.Equal(t, "123", group("123", ","))
	assert.Equal(t, "1,234", group("1234", ","))
	assert.Equal(t, "123,456,789", group("123456789", ","))
}

func TestCurrencyFiat(t *testing.T) {
	f := newUSD(t)
	assert.Equal(t, "$1,234.50", f.Currency(dec("1234.5"), Options{Fiat: true, Decimals: 2}))
	assert.Equal(t, "$15.00K", f.Abbrev(dec("15000"), Options{Fiat: true, Decimals: 2}))

	eur, err := New(language.English, "eur", map[string]decimal.Decimal{"EUR": dec("0.5")})
	require.NoError(t, err)
	assert.Equal(t, "EUR", eur.Fiat())
	assert.Equal(t, "€50.00", eur.Currency(dec("100"), Options{Fiat: true, Decimals: 2}))
	// Thresholds apply to the converted value.
	assert.Equal(t, "€9,000.00", eur.Abbrev(dec("18000"), Options{Fiat: true, Decimals: 2}))
}

func TestNewRejectsUnknownFiat(t *testing.T) {
	_, err := New(language.English, "XYZ1", nil)
	assert.Error(t, err)

	f, err := New(language.English, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "USD", f.Fiat())
}

func TestPercent(t *testing.T) {
	f := newUSD(t)
	assert.Equal(t, "12.34%", f.Percent(0.12345, 2))
	assert.Equal(t, "90%", f.Percent(0.9, 2))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "1.23", Truncate(dec("1.239"), 2, false).String())
	assert.Equal(t, "1.24", Truncate(dec("1.231"), 2, true).String())
	assert.Equal(t, "-1.24", Truncate(dec("-1.231"), 2, false).String())
	assert.Equal(t, "5", Truncate(dec("5"), 2, true).String())
}
