// Package common provides shared constants, types, and utilities
// used across the nmvpn application.
package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "nmvpn"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "nmvpn"
)

// File names used by the application.
const (
	ConfigFileName      = "config.yaml"
	ServerCacheFileName = "servers.json"
	CredentialsFileName = ".credentials"
	HistoryFileName     = "history.db"
	LogFileName         = "nmvpn.log"
)

// VirtualDeviceName is the device identifier stamped into every VPN
// connection record the application owns. Records are located inside
// NetworkManager by matching this value.
const VirtualDeviceName = "nmvpn0"

// CatalogRefreshInterval is how long a cached server list stays fresh
// before the next selection triggers a refetch.
const CatalogRefreshInterval = 15 * time.Minute

// Environment variables honored by the application.
const (
	// EnvCI suppresses the removal of generated profile files after a
	// connection has been imported. Set by the test pipelines.
	EnvCI = "NMVPN_CI"
	// EnvLogLevel overrides the configured log level.
	EnvLogLevel = "NMVPN_LOG_LEVEL"
)

// Transport protocols for generated OpenVPN profiles.
const (
	ProtocolUDP = "udp"
	ProtocolTCP = "tcp"
)

// Default ports per transport protocol.
const (
	PortUDP = 1194
	PortTCP = 443
)
