package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision is the number of significant digits carried by every division,
// root and power in this package. 2^96-scaled quantities need roughly 29
// digits; tick exponents add a few more, so 40 leaves headroom. Rounding is
// anchored to the leading digit, not the decimal point, so accuracy holds
// for 1.0001^tick at both ends of the tick range.
const Precision int32 = 40

// ErrInvalidDomain reports an input outside the mathematical domain of an
// operation, e.g. the square root of a negative value.
var ErrInvalidDomain = errors.New("invalid domain")

// sqrtFloatPrec is the mantissa size used for the big.Float square root.
// 256 bits is about 77 decimal digits, comfortably above Precision.
const sqrtFloatPrec = 256

// Sqrt returns the square root of d rounded to Precision significant digits.
// The computation is pure software arithmetic (big.Float, correctly rounded
// at a fixed mantissa size), so identical inputs always produce identical
// outputs. Negative input fails with ErrInvalidDomain.
func Sqrt(d decimal.Decimal) (decimal.Decimal, error) {
	if d.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("sqrt of %s: %w", d.String(), ErrInvalidDomain)
	}
	if d.Sign() == 0 {
		return decimal.Zero, nil
	}

	f, _, err := big.ParseFloat(d.String(), 10, sqrtFloatPrec, big.ToNearestEven)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sqrt parse %s: %w", d.String(), err)
	}
	root := new(big.Float).SetPrec(sqrtFloatPrec).Sqrt(f)

	out, err := decimal.NewFromString(root.Text('e', int(Precision)+10))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sqrt render: %w", err)
	}
	return roundSig(out), nil
}

// Ln returns the natural logarithm of d at Precision fractional digits.
// Fractional rounding is the right anchor here: the result's magnitude stays
// small for every input this package sees, and near-one inputs need absolute
// accuracy around zero rather than digits of a vanishing leading figure.
// Fails with ErrInvalidDomain when d <= 0.
func Ln(d decimal.Decimal) (decimal.Decimal, error) {
	if d.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("ln of %s: %w", d.String(), ErrInvalidDomain)
	}
	out, err := d.Ln(Precision)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("ln of %s: %w", d.String(), err)
	}
	return out, nil
}

// Pow returns base^exp at Precision significant digits. The exponent may be
// fractional or negative; base must be positive. Results far below one are
// reached through the reciprocal of the corresponding large power, so
// 1.0001^tick keeps its digits at the deep negative end of the tick range
// instead of collapsing against a fixed decimal point.
func Pow(base decimal.Decimal, exp decimal.Decimal) (decimal.Decimal, error) {
	if base.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("pow base %s: %w", base.String(), ErrInvalidDomain)
	}
	one := decimal.New(1, 0)
	if exp.Sign() < 0 {
		pos, err := Pow(base, exp.Neg())
		if err != nil {
			return decimal.Decimal{}, err
		}
		return Div(one, pos), nil
	}
	if base.LessThan(one) {
		pos, err := Pow(Div(one, base), exp)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return Div(one, pos), nil
	}
	out, err := base.PowWithPrecision(exp, Precision+5)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pow %s^%s: %w", base.String(), exp.String(), err)
	}
	return roundSig(out), nil
}

// Div divides a by b carrying Precision significant digits in the quotient,
// however small the quotient's magnitude.
func Div(a, b decimal.Decimal) decimal.Decimal {
	if a.Sign() == 0 {
		return decimal.Zero
	}
	places := Precision - (magnitude(a) - magnitude(b))
	if places < Precision {
		places = Precision
	}
	return roundSig(a.DivRound(b, places+2))
}

// Inv returns 1/d at the package precision.
func Inv(d decimal.Decimal) decimal.Decimal {
	return Div(decimal.New(1, 0), d)
}

// PowTen returns 10^n as an exact decimal, n may be negative.
func PowTen(n int32) decimal.Decimal {
	return decimal.New(1, n)
}

// magnitude returns floor(log10(|d|)); d must be non-zero.
func magnitude(d decimal.Decimal) int32 {
	return int32(d.NumDigits()) + d.Exponent() - 1
}

// roundSig rounds d to Precision significant digits.
func roundSig(d decimal.Decimal) decimal.Decimal {
	if d.Sign() == 0 {
		return decimal.Zero
	}
	return d.Round(Precision - 1 - magnitude(d))
}
