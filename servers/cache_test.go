package servers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession serves a canned catalog body and counts fetches.
type fakeSession struct {
	tier  int
	body  []byte
	err   error
	calls int
}

func (f *fakeSession) APIRequest(_ context.Context, endpoint string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func (f *fakeSession) Tier() int { return f.tier }

func catalogBody(t *testing.T, servers ...LogicalServer) []byte {
	t.Helper()
	body, err := json.Marshal(catalogDocument{Code: 1000, LogicalServers: servers})
	require.NoError(t, err)
	return body
}

func TestCacheRefresh_InvalidPath(t *testing.T) {
	session := &fakeSession{}

	err := NewCache("").Refresh(context.Background(), session, false)
	assert.ErrorIs(t, err, ErrInvalidCachePath)

	dir := t.TempDir()
	err = NewCache(dir).Refresh(context.Background(), session, false)
	assert.ErrorIs(t, err, ErrInvalidCachePath)

	assert.Zero(t, session.calls, "no fetch should happen for an invalid path")
}

func TestCacheRefresh_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "servers.json")
	session := &fakeSession{body: catalogBody(t)}

	require.NoError(t, NewCache(path).Refresh(context.Background(), session, false))

	assert.Equal(t, 1, session.calls)
	assert.FileExists(t, path)
}

func TestCacheRefresh_Staleness(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	cache := NewCache(path)
	session := &fakeSession{body: catalogBody(t)}

	// No file yet: always fetches.
	require.NoError(t, cache.Refresh(context.Background(), session, false))
	require.Equal(t, 1, session.calls)

	// Fresh file (5 minutes old): no fetch.
	recent := time.Now().Add(-5 * time.Minute)
	require.NoError(t, os.Chtimes(path, recent, recent))
	require.NoError(t, cache.Refresh(context.Background(), session, false))
	assert.Equal(t, 1, session.calls)

	// Stale file (20 minutes old): fetches.
	old := time.Now().Add(-20 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))
	require.NoError(t, cache.Refresh(context.Background(), session, false))
	assert.Equal(t, 2, session.calls)

	// Fresh again, but forced: fetches.
	require.NoError(t, os.Chtimes(path, recent, recent))
	require.NoError(t, cache.Refresh(context.Background(), session, true))
	assert.Equal(t, 3, session.calls)
}

func TestCacheRefresh_FailedFetchKeepsPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	cache := NewCache(path)

	body := catalogBody(t, LogicalServer{Name: "PT#1", Status: 1})
	require.NoError(t, cache.Refresh(context.Background(), &fakeSession{body: body}, true))

	err := cache.Refresh(context.Background(), &fakeSession{err: errors.New("api down")}, true)
	require.Error(t, err)

	catalog, err := cache.Load()
	require.NoError(t, err)
	assert.Len(t, catalog, 1)
	assert.Equal(t, "PT#1", catalog[0].Name)
}

func TestCacheLoad_NotFound(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "servers.json"))

	_, err := cache.Load()
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestCacheLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	cache := NewCache(path)

	want := LogicalServer{
		Name:        "SE#3",
		ExitCountry: "SE",
		Tier:        2,
		Features:    FeatureP2P,
		Status:      1,
		Score:       1.5,
		Servers: []PhysicalServer{
			{EntryIP: "10.0.0.1"},
			{EntryIP: "10.0.0.2"},
		},
	}
	session := &fakeSession{body: catalogBody(t, want)}
	require.NoError(t, cache.Refresh(context.Background(), session, true))

	catalog, err := cache.Load()
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, want, catalog[0])

	ips, err := catalog.EntryIPs("SE#3")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, ips)
}
