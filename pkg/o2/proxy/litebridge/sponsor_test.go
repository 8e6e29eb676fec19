package litebridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2/pkg/o2/definition"
	"github.com/o2ensemble/o2/pkg/o2/types"
)

func TestSponsor_HandleServicesRequiresPriorConnect(t *testing.T) {
	s := New(definition.NewDefaultLogger())
	_, ok := s.HandleServices("unknown", []string{"x"})
	assert.False(t, ok)
}

func TestSponsor_ConnectThenServicesThenSync(t *testing.T) {
	s := New(definition.NewDefaultLogger())
	c := s.HandleConnect("conn-1", nil)
	require.NotNil(t, c)

	p, ok := s.Proxy("conn-1")
	require.True(t, ok)
	assert.Equal(t, types.StatusBridgeNoTime, p.Status())

	got, ok := s.HandleServices("conn-1", []string{"synth"})
	require.True(t, ok)
	assert.Equal(t, []string{"synth"}, got.Services)

	s.MarkSynced("conn-1")
	p, _ = s.Proxy("conn-1")
	assert.Equal(t, types.StatusBridge, p.Status())
}

func TestSponsor_DisconnectRemovesClient(t *testing.T) {
	s := New(definition.NewDefaultLogger())
	s.HandleConnect("conn-1", nil)
	s.Disconnect("conn-1")
	_, ok := s.Proxy("conn-1")
	assert.False(t, ok)
}
