package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqual(t *testing.T) {
	cases := []struct {
		a, b Value
		want bool
	}{
		{String("x"), String("x"), true},
		{String("x"), String("y"), false},
		{Int(1), Int(1), true},
		{Int(1), Float(1), false},
		{Symbol("ok"), String("ok"), false},
		{Null(), Null(), true},
		{Bool(true), Bool(false), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.a.Equal(c.b))
	}
}

func TestHeadersAccessors(t *testing.T) {
	h := Headers{
		HeaderID:            String("abc"),
		HeaderPriority:      Int(5),
		HeaderMaxDeliveries: Int(3),
		HeaderRedelivery:    Int(3),
		HeaderDelivery:      Symbol(string(DeliveryOnce)),
		HeaderExpiresAt:     Int(100),
	}
	assert.Equal(t, "abc", h.ID())
	assert.Equal(t, int64(5), h.Priority())
	assert.True(t, h.IsExhausted(), "expected IsExhausted when redelivery == max_deliveries")
	assert.Equal(t, DeliveryOnce, h.Delivery())
	assert.True(t, h.IsExpired(101))
	assert.False(t, h.IsExpired(100))
}

func TestHeadersDefaults(t *testing.T) {
	h := Headers{}
	assert.Equal(t, int64(DefaultPriority), h.Priority())
	assert.Equal(t, int64(DefaultMaxDeliveries), h.MaxDeliveries())
	assert.Equal(t, DeliveryBestEffort, h.Delivery())
	_, ok := h.ExpiresAt()
	assert.False(t, ok)
}

func TestHeadersCloneIsIndependent(t *testing.T) {
	h := Headers{HeaderID: String("a")}
	clone := h.Clone()
	clone[HeaderID] = String("b")
	assert.Equal(t, String("a"), h[HeaderID])
}

func TestSelectors(t *testing.T) {
	h := Headers{HeaderID: String("m1"), "color": String("red")}

	assert.True(t, (AnySelector{}).Match(h))
	assert.True(t, IDSelector("m1").Match(h))
	assert.False(t, IDSelector("m2").Match(h))

	eq := EqualitySelector{"color": String("red")}
	assert.True(t, eq.Match(h))
	eq2 := EqualitySelector{"color": String("blue")}
	assert.False(t, eq2.Match(h))
}

func TestValidateUserHeadersRejectsReserved(t *testing.T) {
	err := ValidateUserHeaders(Headers{HeaderID: String("x")})
	require.Error(t, err)
}

func TestValidateUserHeadersRejectsBlankName(t *testing.T) {
	err := ValidateUserHeaders(Headers{" ": String("x")})
	require.Error(t, err)
}

func TestValidateUserHeadersAcceptsUserHeaders(t *testing.T) {
	err := ValidateUserHeaders(Headers{"color": String("red"), "count": Int(3)})
	require.NoError(t, err)
}

func TestEncodeDecodeHeadersRoundTrip(t *testing.T) {
	h := Headers{
		HeaderID:       String("m1"),
		HeaderPriority: Int(7),
		"flag":         Bool(true),
		"ratio":        Float(1.5),
		"kind":         Symbol("urgent"),
		"nothing":      Null(),
	}
	data, err := EncodeHeaders(h)
	require.NoError(t, err)

	got, err := DecodeHeaders(data)
	require.NoError(t, err)
	require.Len(t, got, len(h))
	for k, v := range h {
		assert.True(t, got[k].Equal(v), "header %q round-tripped as %v, want %v", k, got[k], v)
	}
}

func TestDecodeHeadersEmpty(t *testing.T) {
	h, err := DecodeHeaders(nil)
	require.NoError(t, err)
	assert.Len(t, h, 0)
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
}
