package servers

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSelector builds a selector over a fresh cache primed with the
// given catalog, and a session of the given tier.
func newTestSelector(t *testing.T, tier int, catalog ...LogicalServer) (*Selector, *fakeSession) {
	t.Helper()
	cache := NewCache(filepath.Join(t.TempDir(), "servers.json"))
	session := &fakeSession{tier: tier, body: catalogBody(t, catalog...)}
	require.NoError(t, cache.Refresh(context.Background(), session, true))
	return NewSelector(cache), session
}

func server(name, country string, tier, features, status int, score float64) LogicalServer {
	return LogicalServer{
		Name:        name,
		ExitCountry: country,
		Tier:        tier,
		Features:    features,
		Status:      status,
		Score:       score,
		Servers:     []PhysicalServer{{EntryIP: "192.0.2." + name[len(name)-1:]}},
	}
}

func TestSelectorFastest_ExcludesSecureCoreAndTor(t *testing.T) {
	selector, session := newTestSelector(t, 2,
		server("CH-SE#1", "SE", 2, FeatureSecureCore, 1, 0.1),
		server("CH#4", "CH", 2, FeatureTor, 1, 0.2),
		server("PT#1", "PT", 2, 0, 1, 0.9),
		// Combined mask: secure-core plus P2P is not a pure secure-core
		// server, so it stays eligible.
		server("DE#2", "DE", 2, FeatureSecureCore|FeatureP2P, 1, 0.5),
	)

	for i := 0; i < 20; i++ {
		name, ips, err := selector.Fastest(context.Background(), session)
		require.NoError(t, err)
		assert.NotEqual(t, "CH-SE#1", name)
		assert.NotEqual(t, "CH#4", name)
		assert.NotEmpty(t, ips)
	}
}

func TestSelectorFastest_SmallPoolIsDeterministic(t *testing.T) {
	selector, session := newTestSelector(t, 2,
		server("PT#1", "PT", 2, 0, 1, 0.9),
		server("SE#2", "SE", 2, 0, 1, 0.3),
		server("DE#3", "DE", 2, 0, 1, 0.6),
	)

	for i := 0; i < 10; i++ {
		name, _, err := selector.Fastest(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, "SE#2", name, "pools below the threshold always yield the single best server")
	}
}

func TestSelectorFastest_LargePoolPicksAmongTopFour(t *testing.T) {
	catalog := make([]LogicalServer, 0, 60)
	for i := 0; i < 60; i++ {
		catalog = append(catalog, LogicalServer{
			Name:        fmt.Sprintf("PT#%d", i+1),
			ExitCountry: "PT",
			Tier:        2,
			Status:      1,
			Score:       float64(i),
			Servers:     []PhysicalServer{{EntryIP: "192.0.2.1"}},
		})
	}
	selector, session := newTestSelector(t, 2, catalog...)

	best := map[string]bool{"PT#1": true, "PT#2": true, "PT#3": true, "PT#4": true}
	for i := 0; i < 50; i++ {
		name, _, err := selector.Fastest(context.Background(), session)
		require.NoError(t, err)
		assert.True(t, best[name], "pick %q outside the four lowest-score servers", name)
	}
}

func TestSelector_TierAndStatusFilter(t *testing.T) {
	selector, session := newTestSelector(t, 0,
		server("PT#1", "PT", 0, 0, 1, 0.5),
		server("SE#2", "SE", 2, 0, 1, 0.1),  // above tier
		server("DE#3", "DE", 0, 0, 0, 0.05), // under maintenance
	)

	for i := 0; i < 10; i++ {
		name, _, err := selector.Fastest(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, "PT#1", name)
	}
}

func TestSelectorFastestInCountry(t *testing.T) {
	selector, session := newTestSelector(t, 2,
		server("PT#1", "PT", 2, 0, 1, 0.9),
		server("PT#2", "PT", 2, 0, 1, 0.2),
		server("SE#1", "SE", 2, 0, 1, 0.1),
		server("PT#3", "PT", 2, FeatureTor, 1, 0.05),
	)

	name, ips, err := selector.FastestInCountry(context.Background(), session, " pt ")
	require.NoError(t, err)
	assert.Equal(t, "PT#2", name)
	assert.NotEmpty(t, ips)
}

func TestSelectorFastestInCountry_Unknown(t *testing.T) {
	selector, session := newTestSelector(t, 2,
		server("PT#1", "PT", 2, 0, 1, 0.9),
	)

	_, _, err := selector.FastestInCountry(context.Background(), session, "XX")
	assert.ErrorContains(t, err, "XX")
}

func TestSelectorDirect(t *testing.T) {
	selector, session := newTestSelector(t, 2,
		server("PT#1", "PT", 2, 0, 1, 0.9),
		server("SE#2", "SE", 2, 0, 1, 0.1),
	)

	name, ips, err := selector.Direct(context.Background(), session, "pt#01")
	require.NoError(t, err)
	assert.Equal(t, "PT#1", name)
	assert.NotEmpty(t, ips)

	_, _, err = selector.Direct(context.Background(), session, "not a server")
	assert.ErrorIs(t, err, ErrIllegalServername)

	// Valid grammar, but absent from the catalog.
	_, _, err = selector.Direct(context.Background(), session, "de9")
	assert.ErrorIs(t, err, ErrIllegalServername)
}

func TestSelectorByFeature(t *testing.T) {
	selector, session := newTestSelector(t, 2,
		server("PT#1", "PT", 2, FeatureP2P, 1, 0.9),
		server("SE#2", "SE", 2, FeatureP2P, 1, 0.1),
		server("DE#3", "DE", 2, FeatureP2P|FeatureStreaming, 1, 0.05),
		server("CH#4", "CH", 2, 0, 1, 0.01),
	)

	// Exact equality: the combined-mask server does not count as p2p.
	name, _, err := selector.ByFeature(context.Background(), session, "p2p")
	require.NoError(t, err)
	assert.Equal(t, "SE#2", name)
}

func TestSelectorByFeature_Errors(t *testing.T) {
	selector, session := newTestSelector(t, 2,
		server("PT#1", "PT", 2, 0, 1, 0.9),
	)

	_, _, err := selector.ByFeature(context.Background(), session, "p2p")
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, _, err = selector.ByFeature(context.Background(), session, "bogus")
	assert.NotErrorIs(t, err, ErrEmptyPool)
	assert.ErrorContains(t, err, "bogus")
}

func TestSelectorRandom(t *testing.T) {
	selector, session := newTestSelector(t, 2,
		server("PT#1", "PT", 2, FeatureSecureCore, 1, 0.9),
		server("SE#2", "SE", 2, 0, 1, 0.1),
	)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		name, _, err := selector.Random(context.Background(), session)
		require.NoError(t, err)
		seen[name] = true
	}
	// Random applies no feature exclusion; both servers are reachable.
	assert.True(t, seen["PT#1"])
	assert.True(t, seen["SE#2"])
}

func TestSelectorRandom_EmptyPool(t *testing.T) {
	selector, session := newTestSelector(t, 0,
		server("SE#2", "SE", 2, 0, 1, 0.1),
	)

	_, _, err := selector.Random(context.Background(), session)
	assert.ErrorIs(t, err, ErrEmptyPool)
}
