// Package format renders token and fiat amounts for display.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "¥",
	"KRW": "₩",
	"INR": "₹",
	"CHF": "CHF ",
	"CAD": "CA$",
	"AUD": "A$",
	"SGD": "S$",
	"HKD": "HK$",
}

// Abbreviation thresholds, largest first.
var units = []struct {
	min    decimal.Decimal
	suffix string
}{
	{decimal.New(1, 12), "T"},
	{decimal.New(1, 9), "B"},
	{decimal.New(1, 6), "M"},
	{decimal.New(1, 3), "K"},
}

// abbrevFloor is the smallest magnitude that is abbreviated at all.
var abbrevFloor = decimal.New(1, 4)

// Formatter renders amounts in one locale and fiat currency. It is immutable
// and safe for concurrent use.
type Formatter struct {
	fiat    string
	rate    decimal.Decimal
	symbol  string
	printer *message.Printer
}

// New returns a formatter for fiat, looking its USD conversion rate up in
// rates. Unknown rates default to 1.
func New(tag language.Tag, fiat string, rates map[string]decimal.Decimal) (*Formatter, error) {
	fiat = strings.ToUpper(strings.TrimSpace(fiat))
	if fiat == "" {
		fiat = "USD"
	}
	if _, err := currency.ParseISO(fiat); err != nil {
		return nil, fmt.Errorf("format: fiat currency %q: %w", fiat, err)
	}
	rate, ok := rates[fiat]
	if !ok || !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}
	sym, ok := symbols[fiat]
	if !ok {
		sym = fiat + " "
	}
	return &Formatter{fiat: fiat, rate: rate, symbol: sym, printer: message.NewPrinter(tag)}, nil
}

// Fiat returns the formatter's fiat currency code.
func (f *Formatter) Fiat() string { return f.fiat }

// Options control a single rendering.
type Options struct {
	// Fiat converts the USD value at the formatter's rate and prefixes the
	// currency symbol. Fiat values always show exactly Decimals digits.
	Fiat     bool
	Decimals int32
	// Ceil rounds up instead of down.
	Ceil bool
}

// Currency renders value without abbreviation.
func (f *Formatter) Currency(value decimal.Decimal, opts Options) string {
	if opts.Fiat {
		value = value.Mul(f.rate)
	}
	return f.render(value, "", opts)
}

// Abbrev renders value, dividing by a thousand, million, billion or trillion
// and appending K, M, B or T once its magnitude reaches ten thousand.
func (f *Formatter) Abbrev(value decimal.Decimal, opts Options) string {
	if opts.Fiat {
		value = value.Mul(f.rate)
	}
	abs := value.Abs()
	if abs.GreaterThanOrEqual(abbrevFloor) {
		for _, u := range units {
			if abs.GreaterThanOrEqual(u.min) {
				return f.render(value.Div(u.min), u.suffix, opts)
			}
		}
	}
	return f.render(value, "", opts)
}

func (f *Formatter) render(value decimal.Decimal, suffix string, opts Options) string {
	d := max(opts.Decimals, 0)
	rounded := Truncate(value, d, opts.Ceil)

	minDigits := 0
	if opts.Fiat {
		minDigits = int(d)
	}
	digits := f.digits(rounded.Abs(), d, minDigits)

	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	if opts.Fiat {
		b.WriteString(f.symbol)
	}
	b.WriteString(digits)
	b.WriteString(suffix)
	return b.String()
}

// digits renders a non-negative value with exactly its decimal digits. The
// integer part goes through the locale printer as an integer, which it
// converts without going through float64.
func (f *Formatter) digits(value decimal.Decimal, decimals int32, minFrac int) string {
	fixed := value.StringFixed(decimals)
	intPart, frac, _ := strings.Cut(fixed, ".")
	frac = strings.TrimRight(frac, "0")
	if len(frac) < minFrac {
		frac += strings.Repeat("0", minFrac-len(frac))
	}

	var b strings.Builder
	if n, err := strconv.ParseUint(intPart, 10, 64); err == nil {
		b.WriteString(f.printer.Sprint(number.Decimal(n)))
	} else {
		b.WriteString(group(intPart, f.separator(1000, "1", "000")))
	}
	if frac != "" {
		b.WriteString(f.separator(0.5, "0", "5"))
		b.WriteString(frac)
	}
	return b.String()
}

// separator returns what the printer writes between head and tail when
// rendering v.
func (f *Formatter) separator(v any, head, tail string) string {
	s := f.printer.Sprint(number.Decimal(v, number.MinFractionDigits(0), number.MaxFractionDigits(1)))
	s = strings.TrimPrefix(s, head)
	return strings.TrimSuffix(s, tail)
}

// group inserts sep between every three integer digits.
func group(digits, sep string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Truncate drops precision beyond decimals, rounding toward negative
// infinity, or toward positive infinity when ceil is set.
func Truncate(value decimal.Decimal, decimals int32, ceil bool) decimal.Decimal {
	shifted := value.Shift(decimals)
	if ceil {
		shifted = shifted.Ceil()
	} else {
		shifted = shifted.Floor()
	}
	return shifted.Shift(-decimals)
}

// Percent renders a ratio (0.1234) as "12.34%" with the given decimals.
func (f *Formatter) Percent(ratio float64, decimals int32) string {
	v := Truncate(decimal.NewFromFloat(ratio).Shift(2), decimals, false)
	return f.render(v, "%", Options{Decimals: decimals})
}
