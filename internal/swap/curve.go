package swap

import "math/big"

// nCoins is the number of tokens in a stable pool.
const nCoins = 2

// maxIterations bounds the Newton iterations of the stable invariant.
const maxIterations = 32

var (
	bigOne   = big.NewInt(1)
	bigTwo   = big.NewInt(2)
	bigThree = big.NewInt(3)
	bigFour  = big.NewInt(4)
)

// constantProductOut returns the destination amount released for an input
// that has already had fees removed. The new destination reserve is rounded
// up so the pool never pays out more than the invariant allows.
func constantProductOut(src, dst, in *big.Int) *big.Int {
	invariant := new(big.Int).Mul(src, dst)
	newSrc := new(big.Int).Add(src, in)
	newDst := mulDivUp(invariant, bigOne, newSrc)
	return clampOut(new(big.Int).Sub(dst, newDst), dst)
}

// stableOut prices a swap on the amplified stable invariant for two tokens.
// The arithmetic follows the on-chain stable curve step for step, including
// its rounding, so quotes match execution exactly.
func stableOut(amp uint64, src, dst, in *big.Int) *big.Int {
	leverage := new(big.Int).SetUint64(amp * nCoins)
	d := computeD(leverage, src, dst)
	newSrc := new(big.Int).Add(src, in)
	newDst := computeNewDestination(leverage, newSrc, d)
	return clampOut(new(big.Int).Sub(dst, newDst), dst)
}

// computeD solves the stable invariant D for reserves a and b by Newton's
// method starting at a+b.
func computeD(leverage, a, b *big.Int) *big.Int {
	sum := new(big.Int).Add(a, b)
	if sum.Sign() == 0 {
		return sum
	}
	aTimesCoins := new(big.Int).Mul(a, bigTwo)
	bTimesCoins := new(big.Int).Mul(b, bigTwo)

	d := new(big.Int).Set(sum)
	for range maxIterations {
		dProduct := new(big.Int).Mul(d, d)
		dProduct.Quo(dProduct, aTimesCoins)
		dProduct.Mul(dProduct, d)
		dProduct.Quo(dProduct, bTimesCoins)

		prev := d
		d = calculateStep(d, leverage, sum, dProduct)
		if d.Cmp(prev) == 0 {
			break
		}
	}
	return d
}

// calculateStep is one Newton iteration:
// (leverage*sum + dP*n) * d / ((leverage-1)*d + (n+1)*dP)
func calculateStep(d, leverage, sum, dProduct *big.Int) *big.Int {
	num := new(big.Int).Mul(leverage, sum)
	num.Add(num, new(big.Int).Mul(dProduct, bigTwo))
	num.Mul(num, d)

	den := new(big.Int).Sub(leverage, bigOne)
	den.Mul(den, d)
	den.Add(den, new(big.Int).Mul(dProduct, bigThree))
	if den.Sign() == 0 {
		return new(big.Int).Set(d)
	}
	return num.Quo(num, den)
}

// computeNewDestination solves y^2 + b*y = c for the destination reserve
// given the new source reserve and the invariant d.
func computeNewDestination(leverage, newSrc, d *big.Int) *big.Int {
	// c = d^(n+1) / (n^(2n) * newSrc * leverage)
	c := new(big.Int).Exp(d, bigThree, nil)
	cDen := new(big.Int).Mul(newSrc, bigFour)
	cDen.Mul(cDen, leverage)
	c.Quo(c, cDen)

	// b = newSrc + d / leverage
	b := new(big.Int).Quo(d, leverage)
	b.Add(b, newSrc)

	y := new(big.Int).Set(d)
	for range maxIterations {
		num := new(big.Int).Mul(y, y)
		num.Add(num, c)
		den := new(big.Int).Mul(y, bigTwo)
		den.Add(den, b)
		den.Sub(den, d)
		if den.Sign() <= 0 {
			break
		}
		next := ceilDivQuotient(num, den)
		if next.Cmp(y) == 0 {
			break
		}
		y = next
	}
	return y
}

// ceilDivQuotient is the on-chain ceiling division: a quotient of zero becomes
// one when a is at least half of b, otherwise any remainder rounds up.
func ceilDivQuotient(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if q.Sign() == 0 {
		if new(big.Int).Mul(a, bigTwo).Cmp(b) >= 0 {
			return big.NewInt(1)
		}
		return q
	}
	if r.Sign() > 0 {
		q.Add(q, bigOne)
	}
	return q
}

// mulDivUp returns ceil(x*y/denominator).
func mulDivUp(x, y, denominator *big.Int) *big.Int {
	div, mod := new(big.Int).QuoRem(new(big.Int).Mul(x, y), denominator, new(big.Int))
	if mod.Sign() != 0 {
		div.Add(div, bigOne)
	}
	return div
}

func clampOut(out, reserve *big.Int) *big.Int {
	if out.Sign() < 0 {
		return new(big.Int)
	}
	if out.Cmp(reserve) >= 0 {
		return new(big.Int).Sub(reserve, bigOne)
	}
	return out
}
