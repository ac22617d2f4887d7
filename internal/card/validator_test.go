package card

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return NewValidator(WithClock(func() time.Time { return fixedNow }))
}

func validFields() Fields {
	return Fields{
		FirstName:         "Ada",
		LastName:          "Lovelace",
		Number:            "4111111111111111",
		Month:             "12",
		Year:              "2030",
		VerificationValue: "123",
		Type:              "visa",
	}
}

func TestFromFields_ValidCardKeepsFieldValues(t *testing.T) {
	in := validFields()
	c, err := newTestValidator().FromFields(in)
	require.NoError(t, err)

	assert.Equal(t, in, c.Fields())
	assert.Equal(t, "Ada Lovelace", c.HolderName())
	assert.Equal(t, in.Number, c.Number())
	assert.Equal(t, 12, c.Month())
	assert.Equal(t, 2030, c.Year())
	assert.Equal(t, Visa, c.Network())
	assert.Equal(t, "1111", c.LastFour())
	assert.Equal(t, "************1111", c.Masked())
	assert.NotContains(t, c.String(), in.Number)
}

func TestFromFields_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *Fields)
		reason string
	}{
		{"BadLuhn", func(f *Fields) { f.Number = "4111111111111112" }, "luhn"},
		{"NonDigits", func(f *Fields) { f.Number = "4111-1111-1111-1111" }, "digits only"},
		{"TooShort", func(f *Fields) { f.Number = "4111111" }, "length"},
		{"Expired", func(f *Fields) { f.Month, f.Year = "02", "2026" }, "expired"},
		{"MissingVerificationValue", func(f *Fields) { f.VerificationValue = "" }, "verification value is required"},
		{"ShortVerificationValue", func(f *Fields) { f.VerificationValue = "12" }, "3 digits"},
		{"BadMonth", func(f *Fields) { f.Month = "13" }, "month"},
		{"BadYear", func(f *Fields) { f.Year = "203" }, "2 or 4 digits"},
		{"MissingName", func(f *Fields) { f.FirstName = " " }, "first name"},
		{"TypeMismatch", func(f *Fields) { f.Type = "master" }, "does not match"},
		{"UnknownType", func(f *Fields) { f.Type = "bogus" }, "not supported"},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields()
			tt.mutate(&f)

			c, err := v.FromFields(f)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejected))
			assert.True(t, c.IsZero(), "rejected input must not yield a card")

			var rej *Rejection
			require.True(t, errors.As(err, &rej))
			assert.Contains(t, rej.Error(), tt.reason)
		})
	}
}

func TestFromFields_CollectsEveryReason(t *testing.T) {
	_, err := newTestValidator().FromFields(Fields{})
	var rej *Rejection
	require.True(t, errors.As(err, &rej))
	assert.GreaterOrEqual(t, len(rej.Reasons), 4)
}

func TestFromFields_ExpiresAtEndOfMonth(t *testing.T) {
	f := validFields()
	f.Month, f.Year = "3", "26"

	lastInstant := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	_, err := NewValidator(WithClock(func() time.Time { return lastInstant })).FromFields(f)
	assert.NoError(t, err)

	nextMonth := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err = NewValidator(WithClock(func() time.Time { return nextMonth })).FromFields(f)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestFromFields_Amex(t *testing.T) {
	f := validFields()
	f.Number = "378282246310005"
	f.Type = ""
	f.VerificationValue = "1234"

	c, err := newTestValidator().FromFields(f)
	require.NoError(t, err)
	assert.Equal(t, Amex, c.Network())

	f.VerificationValue = "123"
	_, err = newTestValidator().FromFields(f)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestRevalidate(t *testing.T) {
	v := newTestValidator()
	c, err := v.FromFields(validFields())
	require.NoError(t, err)

	again, err := v.Revalidate(c)
	require.NoError(t, err)
	assert.Equal(t, c, again)

	twice, err := v.Revalidate(again)
	require.NoError(t, err)
	assert.Equal(t, c, twice)
}

func TestRevalidate_StaleCard(t *testing.T) {
	c, err := newTestValidator().FromFields(validFields())
	require.NoError(t, err)

	later := NewValidator(WithClock(func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }))
	_, err = later.Revalidate(c)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestRevalidate_ZeroCard(t *testing.T) {
	_, err := newTestValidator().Revalidate(Card{})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestDetectNetwork(t *testing.T) {
	cases := map[string]Network{
		"4111111111111111": Visa,
		"5555555555554444": Master,
		"2223003122003222": Master,
		"378282246310005":  Amex,
		"6011111111111117": Discover,
		"3530111333300000": JCB,
		"30569309025904":   DinersClub,
		"9999999999999995": Unknown,
		"abc":              Unknown,
	}
	for number, want := range cases {
		assert.Equal(t, want, DetectNetwork(number), number)
	}
}
