package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPinSet(t *testing.T) {
	ps, err := NewPinSet(" d0", "D1", "d2 ")
	require.NoError(t, err)
	assert.Equal(t, []PinID{"D0", "D1", "D2"}, ps.IDs())
	assert.True(t, ps.Contains("D1"))
	assert.False(t, ps.Contains("d1"))
	assert.Equal(t, "D0, D1, D2", ps.String())

	_, err = NewPinSet()
	assert.Error(t, err)
	_, err = NewPinSet("D0", "d0")
	assert.Error(t, err)
	_, err = NewPinSet("D0", "")
	assert.Error(t, err)
	_, err = NewPinSet("D0/1")
	assert.Error(t, err)
}

func TestPinSetLookup(t *testing.T) {
	ps := MustNewPinSet("D0", "D1")
	id, err := ps.Lookup(" d1 ")
	require.NoError(t, err)
	assert.Equal(t, PinID("D1"), id)

	_, err = ps.Lookup("D9")
	assert.True(t, IsInvalidPin(err))
}

func TestParsePinState(t *testing.T) {
	s, err := ParsePinState(" ON ")
	require.NoError(t, err)
	assert.Equal(t, On, s)
	assert.Equal(t, "on", s.Token())
	assert.Equal(t, "ON", s.String())

	s, err = ParsePinState("off")
	require.NoError(t, err)
	assert.Equal(t, Off, s)
	assert.Equal(t, "off", s.Token())

	for _, bad := range []string{"", "1", "true", "toggle"} {
		_, err := ParsePinState(bad)
		assert.True(t, IsInvalidState(err), bad)
	}
}
