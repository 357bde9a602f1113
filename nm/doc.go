// Package nm provides a client for the NetworkManager D-Bus service.
//
// This package implements the boundary between nmvpn and the system
// network configuration:
//
//   - Client: the operations the connection lifecycle needs (adding,
//     activating, deactivating and deleting connection profiles, and
//     listing saved or active connections)
//   - Pending: the handle for one in-flight asynchronous request
//   - Connection / VPNSetting: the profile shape marshalled into the
//     a{sa{sv}} settings dictionary NetworkManager expects
//   - Record: a connection entry read back from the service
//
// # Asynchronous model
//
// Every mutating call to NetworkManager is issued asynchronously on the
// system bus and returns a Pending. The caller blocks on Pending.Wait
// until the reply for that one request arrives; requests are therefore
// sequential from the caller's perspective. Cancellation flows through
// the context passed to Wait. There is no timeout beyond the bus's own.
//
// # Testing
//
// Client is an interface; tests exercise the lifecycle against a fake
// implementation and build completed handles with Resolved.
package nm
