package discovery

import "testing"

import "github.com/stretchr/testify/assert"

func TestParseAdvertisement_RoundTripsWellFormedPayload(t *testing.T) {
	ensemble, id, addr, ok := parseAdvertisement("jam|@0100007f:0100007f:1234|127.0.0.1:1234")
	assert.True(t, ok)
	assert.Equal(t, "jam", ensemble)
	assert.EqualValues(t, "@0100007f:0100007f:1234", id)
	assert.Equal(t, "127.0.0.1:1234", addr)
}

func TestParseAdvertisement_RejectsMalformedPayload(t *testing.T) {
	_, _, _, ok := parseAdvertisement("not-enough-fields")
	assert.False(t, ok)
}
