package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2/pkg/o2/definition"
	"github.com/o2ensemble/o2/pkg/o2/discovery"
	"github.com/o2ensemble/o2/pkg/o2/types"
)

func TestTable_ShouldInitiateUsesIdentityOrdering(t *testing.T) {
	tbl := NewTable("@00000001:00000001:1000", definition.NewDefaultLogger())
	assert.True(t, tbl.ShouldInitiate("@00000000:00000000:0999", nil))
	assert.False(t, tbl.ShouldInitiate("@00000002:00000002:2000", nil))
}

func TestTable_ShouldInitiateNeverTrueWithHubPinned(t *testing.T) {
	tbl := NewTable("@00000001:00000001:1000", definition.NewDefaultLogger())
	assert.False(t, tbl.ShouldInitiate("@00000000:00000000:0999", &types.HubTarget{}))
}

func TestTable_ObserveIsIdempotent(t *testing.T) {
	tbl := NewTable("@00000001:00000001:1000", definition.NewDefaultLogger())
	c := discovery.Candidate{Identity: "@00000002:00000002:2000", TCPAddr: "127.0.0.1:2000"}
	_, created := tbl.Observe(c)
	assert.True(t, created)
	_, created = tbl.Observe(c)
	assert.False(t, created)
}

func TestTable_HandleDyRejectsMismatchedEnsemble(t *testing.T) {
	tbl := NewTable("@00000001:00000001:1000", definition.NewDefaultLogger())
	err := tbl.HandleDy(DyMessage{Ensemble: "other", Identity: "@00000002:00000002:2000"}, "jam", nil)
	require.Error(t, err)
}

func TestTable_HandleDyRecordsPeerInAcceptingState(t *testing.T) {
	tbl := NewTable("@00000001:00000001:1000", definition.NewDefaultLogger())
	err := tbl.HandleDy(DyMessage{Ensemble: "jam", Identity: "@00000002:00000002:2000"}, "jam", nil)
	require.NoError(t, err)
	rec, ok := tbl.Get("@00000002:00000002:2000")
	require.True(t, ok)
	assert.Equal(t, StateAccepting, rec.State)
}

func TestTable_CompleteHandshakeTransitionsToConnected(t *testing.T) {
	tbl := NewTable("@00000001:00000001:1000", definition.NewDefaultLogger())
	tbl.Observe(discovery.Candidate{Identity: "@00000002:00000002:2000"})
	tbl.CompleteHandshake("@00000002:00000002:2000")
	rec, _ := tbl.Get("@00000002:00000002:2000")
	assert.Equal(t, StateConnected, rec.State)
	assert.Len(t, tbl.Connected(), 1)
}
