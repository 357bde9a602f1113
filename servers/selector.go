// Package servers implements the server catalog, servername grammar,
// and selection strategies.
// This file contains the selection strategies.
package servers

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/mbeltran/nmvpn/common"
)

// Selector picks a connection target from the cached catalog. Every
// strategy refreshes the cache when due, loads a snapshot, filters it
// to the session's tier, and returns the chosen servername together
// with its entry IPs.
type Selector struct {
	cache *Cache
	// intn is the random source for uniform picks, swapped in tests.
	intn func(int) int
}

// NewSelector returns a selector over the given cache.
func NewSelector(cache *Cache) *Selector {
	return &Selector{cache: cache, intn: rand.Intn}
}

// pool refreshes the cache when due and returns the tier-filtered
// snapshot for this session.
func (s *Selector) pool(ctx context.Context, session Session) (Catalog, error) {
	if err := s.cache.Refresh(ctx, session, false); err != nil {
		return nil, err
	}
	catalog, err := s.cache.Load()
	if err != nil {
		return nil, err
	}
	return catalog.TierFilter(session.Tier()), nil
}

// resolve looks the chosen name up in the pool and collects its entry
// IPs. The lookup guards against the catalog changing between the pick
// and the extraction.
func resolve(pool Catalog, servername string) (string, []string, error) {
	ips, err := pool.EntryIPs(servername)
	if err != nil {
		return "", nil, err
	}
	return servername, ips, nil
}

// excludedFromFastest reports whether a server is skipped by the
// fastest strategies. The check is exact membership, not a bitmask
// test: a pure secure-core or pure Tor server is excluded, a server
// combining either with other features is not.
func excludedFromFastest(server LogicalServer) bool {
	return server.Features == FeatureSecureCore || server.Features == FeatureTor
}

// Fastest picks the lowest-score server, excluding pure secure-core
// and Tor endpoints.
func (s *Selector) Fastest(ctx context.Context, session Session) (string, []string, error) {
	pool, err := s.pool(ctx, session)
	if err != nil {
		return "", nil, err
	}

	candidates := make(Catalog, 0, len(pool))
	for _, server := range pool {
		if !excludedFromFastest(server) {
			candidates = append(candidates, server)
		}
	}

	servername, err := pickFastest(candidates, s.intn)
	if err != nil {
		return "", nil, err
	}
	return resolve(pool, servername)
}

// FastestInCountry picks the lowest-score server exiting in the given
// country, with the same feature exclusion as Fastest.
func (s *Selector) FastestInCountry(ctx context.Context, session Session, countryCode string) (string, []string, error) {
	cc := strings.ToUpper(strings.TrimSpace(countryCode))

	pool, err := s.pool(ctx, session)
	if err != nil {
		return "", nil, err
	}

	candidates := make(Catalog, 0, len(pool))
	for _, server := range pool {
		if !excludedFromFastest(server) && server.ExitCountry == cc {
			candidates = append(candidates, server)
		}
	}
	if len(candidates) == 0 {
		return "", nil, fmt.Errorf("%w: no servers in country %q", common.ErrInvalidArgument, cc)
	}

	servername, err := pickFastest(candidates, s.intn)
	if err != nil {
		return "", nil, err
	}
	return resolve(pool, servername)
}

// Direct connects to the named server. The input is normalized once
// and the canonical name is looked up in the pool.
func (s *Selector) Direct(ctx context.Context, session Session, servername string) (string, []string, error) {
	canonical, err := NormalizeServername(servername)
	if err != nil {
		return "", nil, err
	}

	pool, err := s.pool(ctx, session)
	if err != nil {
		return "", nil, err
	}
	return resolve(pool, canonical)
}

// ByFeature picks the lowest-score server carrying exactly the feature
// named by the literal (sc, tor, p2p, stream, ipv6).
func (s *Selector) ByFeature(ctx context.Context, session Session, literal string) (string, []string, error) {
	feature, ok := featureLiterals[strings.ToLower(strings.TrimSpace(literal))]
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown feature %q", common.ErrInvalidArgument, literal)
	}

	pool, err := s.pool(ctx, session)
	if err != nil {
		return "", nil, err
	}

	candidates := make(Catalog, 0, len(pool))
	for _, server := range pool {
		if server.Features == feature {
			candidates = append(candidates, server)
		}
	}
	if len(candidates) == 0 {
		return "", nil, fmt.Errorf("%w: no servers with the %s feature", ErrEmptyPool, literal)
	}

	servername, err := pickFastest(candidates, s.intn)
	if err != nil {
		return "", nil, err
	}
	return resolve(pool, servername)
}

// Random picks uniformly over the tier-filtered pool, with no feature
// exclusion.
func (s *Selector) Random(ctx context.Context, session Session) (string, []string, error) {
	pool, err := s.pool(ctx, session)
	if err != nil {
		return "", nil, err
	}
	if len(pool) == 0 {
		return "", nil, ErrEmptyPool
	}
	return resolve(pool, pool[s.intn(len(pool))].Name)
}

// Refresh forces a catalog refetch regardless of cache age.
func (s *Selector) Refresh(ctx context.Context, session Session) error {
	return s.cache.Refresh(ctx, session, true)
}

// Catalog returns the current tier-filtered catalog snapshot,
// refreshing the cache when due. Used by the list command and the
// interactive browser.
func (s *Selector) Catalog(ctx context.Context, session Session) (Catalog, error) {
	return s.pool(ctx, session)
}
