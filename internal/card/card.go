// Package card validates raw credit card data and produces immutable Card
// values. A Card can only be obtained through a Validator, so holding one
// means the data passed the format, Luhn and expiry checks at the time it
// was built.
package card

import (
	"errors"
	"fmt"
	"strings"
)

// Network identifies the card scheme. Values match the type names accepted
// on the raw input.
type Network string

const (
	Visa       Network = "visa"
	Master     Network = "master"
	Amex       Network = "american_express"
	Discover   Network = "discover"
	DinersClub Network = "diners_club"
	JCB        Network = "jcb"
	Unknown    Network = ""
)

var knownNetworks = map[Network]bool{
	Visa: true, Master: true, Amex: true, Discover: true, DinersClub: true, JCB: true,
}

// Fields is the raw, unvalidated card input.
type Fields struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Number            string `json:"number"`
	Month             string `json:"month"`
	Year              string `json:"year"`
	VerificationValue string `json:"verification_value"`
	Type              string `json:"type,omitempty"`
}

// Card is a validated card. The zero value is not a usable card.
type Card struct {
	fields  Fields
	month   int
	year    int
	network Network
}

func (c Card) FirstName() string         { return c.fields.FirstName }
func (c Card) LastName() string          { return c.fields.LastName }
func (c Card) Number() string            { return c.fields.Number }
func (c Card) VerificationValue() string { return c.fields.VerificationValue }
func (c Card) Month() int                { return c.month }
func (c Card) Year() int                 { return c.year }
func (c Card) Network() Network          { return c.network }

// HolderName joins first and last name.
func (c Card) HolderName() string {
	return strings.TrimSpace(c.fields.FirstName + " " + c.fields.LastName)
}

// Fields returns the input the card was built from, unchanged.
func (c Card) Fields() Fields { return c.fields }

// LastFour returns the last four digits of the number.
func (c Card) LastFour() string {
	n := c.fields.Number
	if len(n) <= 4 {
		return n
	}
	return n[len(n)-4:]
}

// Masked hides everything but the last four digits.
func (c Card) Masked() string {
	n := c.fields.Number
	if len(n) <= 4 {
		return n
	}
	return strings.Repeat("*", len(n)-4) + c.LastFour()
}

// IsZero reports whether c was never produced by a Validator.
func (c Card) IsZero() bool { return c.fields == (Fields{}) }

// String never prints the full number or the verification value.
func (c Card) String() string {
	return fmt.Sprintf("%s %s %02d/%04d", c.network, c.Masked(), c.month, c.year)
}

// ErrRejected is matched by every Rejection through errors.Is.
var ErrRejected = errors.New("card rejected")

// Rejection lists every reason the input failed validation.
type Rejection struct {
	Reasons []string
}

func (r *Rejection) Error() string {
	return "card rejected: " + strings.Join(r.Reasons, "; ")
}

func (r *Rejection) Is(target error) bool { return target == ErrRejected }

func (r *Rejection) add(format string, args ...any) {
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

// DetectNetwork guesses the scheme from the number prefix.
func DetectNetwork(number string) Network {
	prefix := func(n int) int {
		if len(number) < n {
			return -1
		}
		v := 0
		for i := 0; i < n; i++ {
			v = v*10 + int(number[i]-'0')
		}
		return v
	}
	switch {
	case !isDigits(number) || number == "":
		return Unknown
	case number[0] == '4':
		return Visa
	case prefix(2) == 34 || prefix(2) == 37:
		return Amex
	case prefix(2) >= 51 && prefix(2) <= 55, prefix(4) >= 2221 && prefix(4) <= 2720:
		return Master
	case prefix(4) == 6011, prefix(2) == 65, prefix(3) >= 644 && prefix(3) <= 649:
		return Discover
	case prefix(4) >= 3528 && prefix(4) <= 3589:
		return JCB
	case prefix(3) >= 300 && prefix(3) <= 305, prefix(2) == 36, prefix(2) == 38:
		return DinersClub
	}
	return Unknown
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// luhnValid checks the mod 10 checksum over the full number.
func luhnValid(number string) bool {
	sum, dbl := 0, false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	return sum%10 == 0
}
