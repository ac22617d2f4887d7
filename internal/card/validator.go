package card

import (
	"strconv"
	"strings"
	"time"
)

const (
	minNumberLen = 12
	maxNumberLen = 19
)

// Validator checks card fields. It has no side effects and is safe for
// concurrent use.
type Validator struct {
	now func() time.Time
	loc *time.Location
}

type Option func(*Validator)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLocation sets the zone in which a card expires at the end of its month.
func WithLocation(loc *time.Location) Option {
	return func(v *Validator) {
		if loc != nil {
			v.loc = loc
		}
	}
}

func NewValidator(opts ...Option) *Validator {
	v := &Validator{now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// FromFields validates raw input and builds a Card. On failure the returned
// error is a *Rejection and the Card is the zero value.
func (v *Validator) FromFields(f Fields) (Card, error) {
	rej := &Rejection{}

	if strings.TrimSpace(f.FirstName) == "" {
		rej.add("first name is required")
	}
	if strings.TrimSpace(f.LastName) == "" {
		rej.add("last name is required")
	}

	network := v.checkNumber(f.Number, rej)
	if f.Type != "" {
		declared := Network(strings.ToLower(f.Type))
		switch {
		case !knownNetworks[declared]:
			rej.add("card type %q is not supported", f.Type)
		case network != Unknown && declared != network:
			rej.add("card type %q does not match number", f.Type)
		default:
			network = declared
		}
	}

	month, year := v.checkExpiry(f.Month, f.Year, rej)
	v.checkVerificationValue(f.VerificationValue, network, rej)

	if len(rej.Reasons) > 0 {
		return Card{}, rej
	}
	return Card{fields: f, month: month, year: year, network: network}, nil
}

// Revalidate re-checks a Card instead of trusting it. A valid card comes back
// equal to the input.
func (v *Validator) Revalidate(c Card) (Card, error) {
	if c.IsZero() {
		return Card{}, &Rejection{Reasons: []string{"card is empty"}}
	}
	return v.FromFields(c.fields)
}

func (v *Validator) checkNumber(number string, rej *Rejection) Network {
	switch {
	case number == "":
		rej.add("number is required")
		return Unknown
	case !isDigits(number):
		rej.add("number must contain digits only")
		return Unknown
	case len(number) < minNumberLen || len(number) > maxNumberLen:
		rej.add("number length must be %d..%d digits (got %d)", minNumberLen, maxNumberLen, len(number))
		return Unknown
	case !luhnValid(number):
		rej.add("number fails luhn check")
		return Unknown
	}
	return DetectNetwork(number)
}

func (v *Validator) checkExpiry(rawMonth, rawYear string, rej *Rejection) (int, int) {
	month, err := strconv.Atoi(strings.TrimSpace(rawMonth))
	if err != nil || month < 1 || month > 12 {
		rej.add("month must be 1..12")
		return 0, 0
	}

	rawYear = strings.TrimSpace(rawYear)
	year, err := strconv.Atoi(rawYear)
	switch {
	case err != nil || year < 0:
		rej.add("year is invalid")
		return 0, 0
	case len(rawYear) == 2:
		year += 2000
	case len(rawYear) != 4:
		rej.add("year must have 2 or 4 digits")
		return 0, 0
	}

	// A card is good through the last instant of its expiry month.
	firstOfNext := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, v.loc).AddDate(0, 1, 0)
	if !v.now().In(v.loc).Before(firstOfNext) {
		rej.add("card expired")
	}
	return month, year
}

func (v *Validator) checkVerificationValue(cvv string, network Network, rej *Rejection) {
	if cvv == "" {
		rej.add("verification value is required")
		return
	}
	want := 3
	if network == Amex {
		want = 4
	}
	if !isDigits(cvv) || len(cvv) != want {
		rej.add("verification value must be %d digits", want)
	}
}
