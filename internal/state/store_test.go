package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "app_state.json"))
}

func TestSaveLoadRoundTripPreservesInstants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_state.json")

	cest := time.FixedZone("CEST", 2*3600)
	checked := time.Date(2026, 6, 1, 14, 30, 45, 123456789, cest)
	expires := time.Date(2026, 9, 1, 2, 0, 0, 0, time.UTC)

	src := NewStore(path)
	src.SetPublicIP("203.0.113.7")
	src.SetLastIPCheck(checked)
	recorded := "203.0.113.7"
	src.SetRecordedIP("example.com", &recorded)
	src.SetSSLExpiration("example.com", &expires)
	src.SetLastUpdate("example.com", checked)
	require.NoError(t, src.Save())

	dst := NewStore(path)
	dst.Load()

	ip, ok := dst.PublicIP()
	require.True(t, ok)
	assert.Equal(t, "203.0.113.7", ip)

	got, ok := dst.LastIPCheck()
	require.True(t, ok)
	assert.True(t, got.Equal(checked), "round trip must preserve the instant")

	st, ok := dst.Domain("example.com")
	require.True(t, ok)
	require.NotNil(t, st.RecordedIP)
	assert.Equal(t, "203.0.113.7", *st.RecordedIP)
	require.NotNil(t, st.SSLExpiration)
	assert.True(t, st.SSLExpiration.Equal(expires))
	require.NotNil(t, st.LastUpdateTime)
	assert.True(t, st.LastUpdateTime.Equal(checked))
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	s := tempStore(t)
	s.Load()

	_, ok := s.PublicIP()
	assert.False(t, ok)
	_, ok = s.LastIPCheck()
	assert.False(t, ok)
}

func TestLoadCorruptFileKeepsPriorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewStore(path)
	s.SetPublicIP("198.51.100.4")
	s.Load()

	ip, ok := s.PublicIP()
	require.True(t, ok, "corrupt file must not wipe in-memory state")
	assert.Equal(t, "198.51.100.4", ip)
}

func TestLoadMergesIntoExistingState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_state.json")

	src := NewStore(path)
	src.SetPublicIP("203.0.113.7")
	require.NoError(t, src.Save())

	dst := NewStore(path)
	dst.SetLastIPCheck(time.Now())
	dst.Load()

	ip, ok := dst.PublicIP()
	require.True(t, ok)
	assert.Equal(t, "203.0.113.7", ip)

	// The file had no last check time; the in-memory one survives.
	_, ok = dst.LastIPCheck()
	assert.True(t, ok)
}

func TestSetRecordedIPNilMeansNoRecord(t *testing.T) {
	s := tempStore(t)
	recorded := "203.0.113.7"
	s.SetRecordedIP("example.com", &recorded)
	s.SetRecordedIP("example.com", nil)

	st, ok := s.Domain("example.com")
	require.True(t, ok)
	assert.Nil(t, st.RecordedIP)
}

func TestDomainReturnsCopy(t *testing.T) {
	s := tempStore(t)
	recorded := "203.0.113.7"
	s.SetRecordedIP("example.com", &recorded)

	st, ok := s.Domain("example.com")
	require.True(t, ok)
	other := "192.0.2.1"
	st.RecordedIP = &other

	again, _ := s.Domain("example.com")
	assert.Equal(t, "203.0.113.7", *again.RecordedIP)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := tempStore(t)
	s.SetPublicIP("203.0.113.7")
	s.EnsureDomain("example.com")

	snap := s.Snapshot()
	*snap.PublicIP = "192.0.2.1"
	snap.DomainStates["example.com"].RecordedIP = snap.PublicIP

	ip, _ := s.PublicIP()
	assert.Equal(t, "203.0.113.7", ip)
	st, _ := s.Domain("example.com")
	assert.Nil(t, st.RecordedIP)
}

func TestEnsureDomainIsIdempotent(t *testing.T) {
	s := tempStore(t)
	recorded := "203.0.113.7"
	s.SetRecordedIP("example.com", &recorded)
	s.EnsureDomain("example.com")

	st, ok := s.Domain("example.com")
	require.True(t, ok)
	require.NotNil(t, st.RecordedIP)
	assert.Equal(t, "203.0.113.7", *st.RecordedIP)
}
