// Package common provides shared constants, types, and utilities
// used across the nmvpn application.
package common

import "errors"

// Sentinel errors shared across packages.
// These can be checked with errors.Is() for proper error handling.
var (
	// ErrInvalidArgument reports caller-supplied input that fails validation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConnectionNotFound indicates that no VPN connection record owned
	// by this application exists in NetworkManager.
	ErrConnectionNotFound = errors.New("vpn connection not found")

	// ErrNotAuthenticated indicates that no stored API session is available.
	ErrNotAuthenticated = errors.New("not logged in")

	// Configuration errors.
	ErrConfigLoad = errors.New("failed to load configuration")
	ErrConfigSave = errors.New("failed to save configuration")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
