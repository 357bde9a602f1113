// Package common provides shared constants, types, utilities, and interfaces
// used throughout the nmvpn application.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: Application-wide constants like file names, the virtual
//     device identifier, and the server cache refresh interval
//   - Errors: Sentinel errors for consistent error handling across packages
//   - Interfaces: Abstractions for secret storage and logging
//   - Logger: Structured logging to stdout and a rotated log file
//   - Utils: Common utility functions for the XDG directory layout
//
// # Usage
//
// Import the package to access shared functionality:
//
//	import "github.com/mbeltran/nmvpn/common"
//
//	// Use constants
//	device := common.VirtualDeviceName
//
//	// Use logger
//	common.LogInfo("Connecting to %s", servername)
//
//	// Check errors
//	if errors.Is(err, common.ErrConnectionNotFound) {
//	    // No managed connection record exists
//	}
package common
