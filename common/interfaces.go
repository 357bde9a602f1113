// Package common provides shared constants, types, and utilities
// used across the nmvpn application.
package common

// SecretStore defines the interface for secret persistence.
// Implementations may use the system keyring, encrypted files, etc.
type SecretStore interface {
	// Store saves a secret under the given key.
	Store(key, value string) error
	// Get retrieves a secret by key.
	Get(key string) (string, error)
	// Delete removes a secret by key.
	Delete(key string) error
}

// Logger defines the interface for structured logging.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...interface{})
	// Info logs an informational message.
	Info(msg string, args ...interface{})
	// Warn logs a warning message.
	Warn(msg string, args ...interface{})
	// Error logs an error message.
	Error(msg string, args ...interface{})
}
