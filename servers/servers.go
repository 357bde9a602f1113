// Package servers implements the server catalog, servername grammar,
// and selection strategies.
// This file contains the catalog model as returned by /vpn/logicals.
package servers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors returned by catalog operations.
var (
	// ErrInvalidCachePath reports a cache location that cannot hold a file.
	ErrInvalidCachePath = errors.New("invalid server cache path")
	// ErrCacheNotFound indicates that no cached server list exists yet.
	ErrCacheNotFound = errors.New("server cache not found")
	// ErrIllegalServername reports a servername that is malformed or not
	// present in the catalog.
	ErrIllegalServername = errors.New("illegal servername")
	// ErrEmptyPool indicates that no server matched the selection criteria.
	ErrEmptyPool = errors.New("no servers match the selection")
)

// Feature flags a logical server may carry. The provider reports the
// combined value in LogicalServer.Features.
const (
	FeatureSecureCore = 1
	FeatureTor        = 2
	FeatureP2P        = 4
	FeatureStreaming  = 8
	FeatureIPv6       = 16
)

// featureLiterals maps the user-facing feature literals to their flag.
var featureLiterals = map[string]int{
	"sc":     FeatureSecureCore,
	"tor":    FeatureTor,
	"p2p":    FeatureP2P,
	"stream": FeatureStreaming,
	"ipv6":   FeatureIPv6,
}

// LogicalServer is a named VPN endpoint exposed to users, backed by one
// or more physical entry points.
type LogicalServer struct {
	Name         string           `json:"Name"`
	EntryCountry string           `json:"EntryCountry"`
	ExitCountry  string           `json:"ExitCountry"`
	Domain       string           `json:"Domain"`
	Tier         int              `json:"Tier"`
	Features     int              `json:"Features"`
	City         string           `json:"City"`
	ID           string           `json:"ID"`
	Location     Location         `json:"Location"`
	Status       int              `json:"Status"`
	Servers      []PhysicalServer `json:"Servers"`
	Load         int              `json:"Load"`
	Score        float64          `json:"Score"`
}

// PhysicalServer is one concrete entry point behind a logical server.
type PhysicalServer struct {
	EntryIP string `json:"EntryIP"`
	ExitIP  string `json:"ExitIP"`
	Domain  string `json:"Domain"`
	ID      string `json:"ID"`
	Status  int    `json:"Status"`
}

// Location is the geographic position of a logical server.
type Location struct {
	Lat  float64 `json:"Lat"`
	Long float64 `json:"Long"`
}

// catalogDocument is the wire shape of GET /vpn/logicals.
type catalogDocument struct {
	Code           int             `json:"Code"`
	LogicalServers []LogicalServer `json:"LogicalServers"`
}

// Catalog is an in-memory snapshot of the logical server list.
type Catalog []LogicalServer

// TierFilter returns the servers a session of the given tier may use:
// entries whose Tier does not exceed it and which are not under
// maintenance.
func (c Catalog) TierFilter(tier int) Catalog {
	filtered := make(Catalog, 0, len(c))
	for _, s := range c {
		if s.Tier <= tier && s.Status == 1 {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// EntryIPs collects the entry IP of every physical server behind the
// named logical server. The name must match a catalog entry exactly.
func (c Catalog) EntryIPs(servername string) ([]string, error) {
	for _, s := range c {
		if s.Name != servername {
			continue
		}
		ips := make([]string, 0, len(s.Servers))
		for _, sub := range s.Servers {
			ips = append(ips, sub.EntryIP)
		}
		return ips, nil
	}
	return nil, fmt.Errorf("%w: %q is not in the server list", ErrIllegalServername, servername)
}

// HasName reports whether the catalog contains a server with this name.
func (c Catalog) HasName(servername string) bool {
	for _, s := range c {
		if s.Name == servername {
			return true
		}
	}
	return false
}

// FeatureString renders the feature flags of a server for display.
func FeatureString(features int) string {
	if features == 0 {
		return "-"
	}
	names := []string{}
	for _, f := range []struct {
		flag int
		name string
	}{
		{FeatureSecureCore, "secure-core"},
		{FeatureTor, "tor"},
		{FeatureP2P, "p2p"},
		{FeatureStreaming, "stream"},
		{FeatureIPv6, "ipv6"},
	} {
		if features&f.flag != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

// topPoolSize is how many of the lowest-score servers the fastest
// strategies pick among. Pools below largePoolThreshold always yield
// the single best server; spreading a large pool over the best few
// keeps clients from herding onto one endpoint.
const (
	topPoolSize        = 4
	largePoolThreshold = 50
)

// pickFastest sorts the pool by ascending score and picks the winner
// per the top-pool rule.
func pickFastest(pool Catalog, intn func(int) int) (string, error) {
	if len(pool) == 0 {
		return "", ErrEmptyPool
	}

	sorted := make(Catalog, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score < sorted[j].Score
	})

	size := 1
	if len(sorted) >= largePoolThreshold {
		size = topPoolSize
	}
	return sorted[intn(size)].Name, nil
}
