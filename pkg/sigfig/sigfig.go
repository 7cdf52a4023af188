// Package sigfig rounds population figures to significant digits and formats
// them for display on flashcards.
package sigfig

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	// ErrNumericDomain is returned when rounding a value that has no order of
	// magnitude (zero, negative, NaN or infinite).
	ErrNumericDomain = errors.New("sigfig: value must be positive and finite")

	// ErrInvalidPrecision is returned for fewer than one significant digit.
	ErrInvalidPrecision = errors.New("sigfig: significant digits must be at least 1")
)

// DomainError reports the value that could not be rounded.
type DomainError struct {
	Value float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%v: %v", ErrNumericDomain, e.Value)
}

func (e *DomainError) Unwrap() error { return ErrNumericDomain }

// Round rounds x to sig significant decimal digits. Halves round away from
// zero on the shortest decimal form of x, so 1.25 rounds to 1.3 at two digits.
// A result that overflows the float64 range is a DomainError.
func Round(x float64, sig int) (float64, error) {
	if sig < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidPrecision, sig)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
		return 0, &DomainError{Value: x}
	}

	digits, exp := decimal(x)
	if len(digits) <= sig {
		return x, nil
	}

	kept := []byte(digits[:sig])
	if digits[sig] >= '5' {
		i := sig - 1
		for ; i >= 0 && kept[i] == '9'; i-- {
			kept[i] = '0'
		}
		if i < 0 {
			kept = append([]byte{'1'}, kept[:sig-1]...)
			exp++
		} else {
			kept[i]++
		}
	}

	mantissa := string(kept[:1])
	if len(kept) > 1 {
		mantissa += "." + string(kept[1:])
	}
	r, err := strconv.ParseFloat(mantissa+"e"+strconv.Itoa(exp), 64)
	if err != nil || math.IsInf(r, 0) || r == 0 {
		return 0, &DomainError{Value: x}
	}
	return r, nil
}

// decimal splits the shortest decimal form of x > 0 into its significant
// digits and the exponent of the first one: 1234.5 is ("12345", 3).
func decimal(x float64) (string, int) {
	s := strconv.FormatFloat(x, 'e', -1, 64)
	e := strings.IndexByte(s, 'e')
	exp, _ := strconv.Atoi(s[e+1:])
	return strings.Replace(s[:e], ".", "", 1), exp
}

// Magnitude returns floor(log10(x)) for x > 0.
func Magnitude(x float64) int {
	_, exp := decimal(x)
	return exp
}

// Policy decides how many significant digits a value is rounded to.
//
// Two rounding rules were in use for this deck: a plain one, and one that
// keeps an extra digit for large values whose leading digit is 1 (so that
// 1 412 000 000 does not collapse to 1 400 000 000). Policy makes the choice
// explicit: LeadingOneAbove > 0 enables the extra digit for values strictly
// greater than it, zero disables it.
type Policy struct {
	Sig             int
	LeadingOneAbove float64
}

// DefaultPolicy is the rule used when generating the population deck.
var DefaultPolicy = Policy{Sig: 2, LeadingOneAbove: 1e8}

// Digits returns the number of significant digits used for x.
func (p Policy) Digits(x float64) int {
	sig := p.Sig
	if p.LeadingOneAbove > 0 && x > p.LeadingOneAbove && leadingDigit(x) == '1' {
		sig++
	}
	return sig
}

// Round rounds x according to the policy.
func (p Policy) Round(x float64) (float64, error) {
	return Round(x, p.Digits(x))
}

// RoundAndFormat rounds x and formats the result for display.
func (p Policy) RoundAndFormat(x float64) (string, error) {
	r, err := p.Round(x)
	if err != nil {
		return "", err
	}
	return Format(r), nil
}

func leadingDigit(x float64) byte {
	return strconv.FormatFloat(math.Abs(x), 'e', -1, 64)[0]
}

// Format groups the integer digits of v in thousands separated by a space.
// Integral values print without a fraction.
func Format(v float64) string {
	p := message.NewPrinter(language.English)
	var s string
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		s = p.Sprint(number.Decimal(int64(v)))
	} else {
		s = p.Sprint(number.Decimal(v, number.MaxFractionDigits(fractionDigits(v))))
	}
	return strings.ReplaceAll(s, ",", " ")
}

func fractionDigits(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}
