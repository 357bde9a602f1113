// Package connection drives the lifecycle of the managed VPN record.
// This file contains the Manager and its add/start/stop/remove state
// machine over the NetworkManager client.
package connection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mbeltran/nmvpn/common"
	"github.com/mbeltran/nmvpn/nm"
)

// CertCleaner deletes a generated profile artifact once its contents
// have been imported into NetworkManager. A missing file must be
// reported with an error satisfying errors.Is(err, os.ErrNotExist).
type CertCleaner interface {
	Cleanup(path string) error
}

// OperationError is a NetworkManager operation that the service
// rejected, after its completion reply resolved.
type OperationError struct {
	// Op names the failed operation.
	Op string
	// Err is the service's native failure.
	Err error
}

func (e *OperationError) Error() string {
	return e.Op + " failed: " + e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// opNames maps each request kind to the operation name surfaced in its
// failure. Static: the dispatch never changes at runtime.
var opNames = map[nm.Op]string{
	nm.OpAddConnection:        "add connection",
	nm.OpActivateConnection:   "start connection",
	nm.OpDeactivateConnection: "stop connection",
	nm.OpDeleteConnection:     "remove connection",
}

// Manager owns the single managed VPN record. Operations are
// serialized; each blocks until its asynchronous service reply
// resolves.
type Manager struct {
	mu     sync.Mutex
	client nm.Client
	device string
}

// NewManager returns a manager driving the given NetworkManager client.
func NewManager(client nm.Client) *Manager {
	return &Manager{
		client: client,
		device: common.VirtualDeviceName,
	}
}

// await blocks on one pending request and wraps a failure with its
// operation name.
func (m *Manager) await(ctx context.Context, pending *nm.Pending) error {
	if err := pending.Wait(ctx); err != nil {
		return &OperationError{Op: opNames[pending.Op()], Err: err}
	}
	return nil
}

// managedRecord finds the record owned by this application: type vpn,
// vpn data item "dev" equal to the fixed virtual device name.
func (m *Manager) managedRecord(records []nm.Record) (nm.Record, bool) {
	for _, rec := range records {
		if rec.Type == "vpn" && rec.VPNData["dev"] == m.device {
			return rec, true
		}
	}
	return nm.Record{}, false
}

// Add imports the profile at profilePath, attaches the credentials and
// the virtual device, replaces any pre-existing managed record, and
// registers the new one with NetworkManager. On success the generated
// profile is handed to cleaner, unless the CI environment flag is set.
func (m *Manager) Add(ctx context.Context, profilePath, username, password string, cleaner CertCleaner) error {
	if strings.TrimSpace(profilePath) == "" {
		return fmt.Errorf("%w: a profile path must be provided", common.ErrInvalidArgument)
	}
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: both username and password must be provided", common.ErrInvalidArgument)
	}
	if cleaner == nil {
		return fmt.Errorf("%w: a certificate cleaner is required", common.ErrInvalidArgument)
	}

	conn, err := ImportProfile(profilePath)
	if err != nil {
		return err
	}
	if err := InjectCredentials(conn.VPN, username, password); err != nil {
		return err
	}
	if err := ApplyVirtualDevice(conn.VPN, profilePath); err != nil {
		return err
	}

	// Replace-by-remove keeps the managed record unique.
	if err := m.Remove(ctx); err != nil && !errors.Is(err, common.ErrConnectionNotFound) {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.await(ctx, m.client.AddConnection(conn.Settings())); err != nil {
		return err
	}
	common.LogInfo("Connection profile %q has been added", conn.ID)

	if os.Getenv(common.EnvCI) != "" {
		return nil
	}
	if err := cleaner.Cleanup(profilePath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			common.LogWarn("Failed to clean up profile %s: %v", profilePath, err)
		}
	}
	return nil
}

// Start activates the managed record.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.client.Connections()
	if err != nil {
		return common.WrapError(err, "failed to list connections")
	}
	rec, ok := m.managedRecord(records)
	if !ok {
		return common.ErrConnectionNotFound
	}

	if err := m.await(ctx, m.client.ActivateConnection(rec.Path)); err != nil {
		return err
	}
	common.LogInfo("Connection %q has been started", rec.ID)
	return nil
}

// Stop deactivates the managed record. When nothing is active it
// returns (false, nil): not an error, there is simply nothing to do.
func (m *Manager) Stop(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) (bool, error) {
	active, err := m.client.ActiveConnections()
	if err != nil {
		return false, common.WrapError(err, "failed to list active connections")
	}
	rec, ok := m.managedRecord(active)
	if !ok {
		return false, nil
	}

	if err := m.await(ctx, m.client.DeactivateConnection(rec.ActivePath)); err != nil {
		return false, err
	}
	common.LogInfo("Connection %q has been stopped", rec.ID)
	return true, nil
}

// Remove deactivates (best effort) and deletes the managed record.
func (m *Manager) Remove(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.client.Connections()
	if err != nil {
		return common.WrapError(err, "failed to list connections")
	}
	rec, ok := m.managedRecord(records)
	if !ok {
		return common.ErrConnectionNotFound
	}

	// Deactivation failures do not block removal.
	if _, err := m.stopLocked(ctx); err != nil {
		common.LogWarn("Failed to stop connection before removal: %v", err)
	}

	if err := m.await(ctx, m.client.DeleteConnection(rec.Path)); err != nil {
		return err
	}
	common.LogInfo("Connection %q has been removed", rec.ID)
	return nil
}

// Status returns the managed record and whether it is currently
// active. A missing record is reported through the found flag, not an
// error.
func (m *Manager) Status(ctx context.Context) (nm.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.client.ActiveConnections()
	if err != nil {
		return nm.Record{}, false, common.WrapError(err, "failed to list active connections")
	}
	if rec, ok := m.managedRecord(active); ok {
		return rec, true, nil
	}

	records, err := m.client.Connections()
	if err != nil {
		return nm.Record{}, false, common.WrapError(err, "failed to list connections")
	}
	rec, ok := m.managedRecord(records)
	return rec, ok, nil
}
