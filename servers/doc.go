// Package servers implements the server catalog: the disk-backed cache
// of the provider's logical server list, the servername grammar, and the
// selection strategies used to pick a connection target.
//
// The catalog is fetched from the provider API (GET /vpn/logicals) and
// cached on disk as the raw JSON response. A refresh happens when the
// cache file is missing, older than the refresh interval, or forced.
// Between refreshes reads serve the cached copy without touching the
// network.
//
// Selection is pure once the catalog is loaded: every strategy operates
// on an in-memory snapshot filtered to the servers the session's tier
// may use, and returns the chosen servername together with the entry
// IPs of its physical servers.
package servers
