package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOrderID(t *testing.T) {
	a := NewOrderID("paypal_express")
	b := NewOrderID("paypal_express")

	assert.True(t, strings.HasPrefix(a, "REF-PAYPALEXPRESS-"), a)
	assert.NotEqual(t, a, b)
	assert.Len(t, strings.TrimPrefix(a, "REF-PAYPALEXPRESS-"), 32)
}

func TestResponse_ErrorMessage(t *testing.T) {
	assert.Equal(t, "Card Declined", Response{Message: "Card Declined"}.ErrorMessage())
	assert.Equal(t, "transaction declined", Response{}.ErrorMessage())
	assert.Empty(t, Response{Success: true}.ErrorMessage())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "one_shot", KindOneShot.String())
	assert.Equal(t, "two_phase", KindTwoPhase.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestGateway_ZeroValue(t *testing.T) {
	var g Gateway
	assert.Equal(t, "", g.Name())
	assert.Nil(t, g.OneShot())
	assert.Nil(t, g.TwoPhase())
}
