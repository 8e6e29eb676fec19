package addrtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

func installNoop(t *testing.T, tbl *AddressTable, address string) {
	t.Helper()
	err := tbl.InstallHandler(address, &types.Handler{Address: address, Func: func(*types.Message, string, []types.Argument, interface{}) {}})
	require.NoError(t, err)
}

func TestDispatch_FullPathExactMatch(t *testing.T) {
	tbl := New("@00000000:0100007f:1f90")
	installNoop(t, tbl, "/svc/a/b")

	res, err := tbl.Dispatch("/svc/a/b")
	require.NoError(t, err)
	assert.Len(t, res.Handlers, 1)
}

func TestDispatch_PatternFanOut(t *testing.T) {
	tbl := New("@00000000:0100007f:1f90")
	installNoop(t, tbl, "/svc/a/1")
	installNoop(t, tbl, "/svc/a/2")
	installNoop(t, tbl, "/svc/a/3")

	res, err := tbl.Dispatch("/svc/a/*")
	require.NoError(t, err)
	assert.Len(t, res.Handlers, 3)
}

func TestDispatch_ForcedFullHashIgnoresPatternTree(t *testing.T) {
	tbl := New("@00000000:0100007f:1f90")
	installNoop(t, tbl, "/svc/a/1")

	res, err := tbl.Dispatch("!svc/a/1")
	require.NoError(t, err)
	assert.Len(t, res.Handlers, 1)
}

func TestDispatch_NoServiceReturnsError(t *testing.T) {
	tbl := New("@00000000:0100007f:1f90")
	_, err := tbl.Dispatch("/missing/x")
	assert.ErrorIs(t, err, types.ErrNoService)
}

func TestInstallHandler_FlatAndNestedConflict(t *testing.T) {
	tbl := New("@00000000:0100007f:1f90")
	installNoop(t, tbl, "/svc")
	err := tbl.InstallHandler("/svc/a", &types.Handler{})
	assert.ErrorIs(t, err, types.ErrServiceConflict)
}

func TestProviderOrdering_ActiveIsLexicographicMax(t *testing.T) {
	tbl := New("@00000000:0100007f:1f90")
	tbl.InstallProvider("svc", "@00000000:0100007f:2000", types.ProviderRemote, nil, nil)
	tbl.InstallProvider("svc", "@00000000:0100007f:3000", types.ProviderRemote, nil, nil)
	tbl.InstallProvider("svc", "@00000000:0100007f:1000", types.ProviderRemote, nil, nil)

	active, ok := tbl.ActiveProvider("svc")
	require.True(t, ok)
	assert.Equal(t, types.ProcessID("@00000000:0100007f:3000"), active.Identity)
}

func TestRemoveProvider_PromotesNextHighest(t *testing.T) {
	tbl := New("@00000000:0100007f:1f90")
	tbl.InstallProvider("svc", "@00000000:0100007f:2000", types.ProviderRemote, nil, nil)
	tbl.InstallProvider("svc", "@00000000:0100007f:3000", types.ProviderRemote, nil, nil)

	removed, wasActive, newActive := tbl.RemoveProvider("svc", "@00000000:0100007f:3000")
	assert.True(t, removed)
	assert.True(t, wasActive)
	require.NotNil(t, newActive)
	assert.Equal(t, types.ProcessID("@00000000:0100007f:2000"), newActive.Identity)
}

func TestTap_CreatesTappeeEntryImplicitly(t *testing.T) {
	tbl := New("@00000000:0100007f:1f90")
	tbl.AddTap("observed", "observer", "@00000000:0100007f:4000")

	taps := tbl.Taps("observed")
	require.Len(t, taps, 1)
	assert.Equal(t, "observer", taps[0].TapperService)
}

func TestTable_ResizeGrowsAndShrinks(t *testing.T) {
	tbl := newTable()
	for i := 0; i < 40; i++ {
		tbl.put(string(rune('a'+i%26))+string(rune(i)), &serviceEntry{name: "x"})
	}
	require.Greater(t, len(tbl.buckets), minBuckets)

	grown := len(tbl.buckets)
	for i := 0; i < 38; i++ {
		tbl.remove(string(rune('a'+i%26)) + string(rune(i)))
	}
	assert.Less(t, len(tbl.buckets), grown)
}
