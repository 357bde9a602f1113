// Package connection drives the lifecycle of the single VPN connection
// record this application owns inside NetworkManager.
//
// The managed record is identified by one rule used everywhere: its
// connection type is "vpn" and its vpn-settings data item "dev" equals
// the fixed virtual device name. That data item is the sole correlation
// key between nmvpn's notion of "the VPN connection" and
// NetworkManager's arbitrary set of records.
//
// The lifecycle is Absent -> Added -> Active:
//
//   - Add imports an OpenVPN profile, attaches credentials and the
//     virtual device, removes any pre-existing managed record, and
//     registers the new one. At most one managed record exists after
//     any successful Add.
//   - Start activates the managed record.
//   - Stop deactivates it, reporting "nothing was active" as a no-op
//     signal rather than an error.
//   - Remove deactivates (best effort) and deletes it.
//
// Each operation issues a single asynchronous request against
// NetworkManager and blocks until its completion reply arrives, so
// operations are sequential from the caller's perspective.
package connection
