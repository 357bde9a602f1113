// Package nm provides a client for the NetworkManager D-Bus service.
// This file contains the Client interface, the Pending request handle,
// and the system-bus implementation.
package nm

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/mbeltran/nmvpn/common"
)

const (
	busName         = "org.freedesktop.NetworkManager"
	nmPath          = "/org/freedesktop/NetworkManager"
	nmIface         = "org.freedesktop.NetworkManager"
	settingsPath    = "/org/freedesktop/NetworkManager/Settings"
	settingsIface   = "org.freedesktop.NetworkManager.Settings"
	connectionIface = "org.freedesktop.NetworkManager.Settings.Connection"
	activeIface     = "org.freedesktop.NetworkManager.Connection.Active"
)

// Op identifies the kind of an asynchronous service request.
type Op string

const (
	OpAddConnection        Op = "add"
	OpActivateConnection   Op = "activate"
	OpDeactivateConnection Op = "deactivate"
	OpDeleteConnection     Op = "delete"
)

// Pending is the handle for one in-flight asynchronous request.
// Exactly one result is delivered per handle.
type Pending struct {
	op   Op
	done <-chan error
}

// NewPending returns a handle that completes when done delivers a result.
func NewPending(op Op, done <-chan error) *Pending {
	return &Pending{op: op, done: done}
}

// Resolved returns an already-completed handle carrying err.
// Intended for fake clients in tests.
func Resolved(op Op, err error) *Pending {
	done := make(chan error, 1)
	done <- err
	return &Pending{op: op, done: done}
}

// Op returns the request kind this handle belongs to.
func (p *Pending) Op() Op {
	return p.op
}

// Wait blocks until the service's completion reply arrives or the
// context is cancelled.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client is the set of NetworkManager operations the connection
// lifecycle requires.
type Client interface {
	// AddConnection saves a new connection profile.
	AddConnection(settings ConnectionSettings) *Pending
	// ActivateConnection brings up the saved connection at path.
	ActivateConnection(path string) *Pending
	// DeactivateConnection takes down the active connection at activePath.
	DeactivateConnection(activePath string) *Pending
	// DeleteConnection removes the saved connection at path.
	DeleteConnection(path string) *Pending
	// Connections lists all saved connections.
	Connections() ([]Record, error)
	// ActiveConnections lists currently active connections.
	ActiveConnections() ([]Record, error)
}

// DBusClient talks to NetworkManager over the system bus.
type DBusClient struct {
	conn *dbus.Conn
}

// NewSystemClient connects to the system bus.
func NewSystemClient() (*DBusClient, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &DBusClient{conn: conn}, nil
}

// Close releases the bus connection.
func (c *DBusClient) Close() error {
	return c.conn.Close()
}

// request issues an asynchronous method call and returns its handle.
func (c *DBusClient) request(op Op, obj dbus.BusObject, method string, args ...interface{}) *Pending {
	ch := make(chan *dbus.Call, 1)
	obj.Go(method, 0, ch, args...)

	done := make(chan error, 1)
	go func() {
		call := <-ch
		done <- translateError(call.Err)
	}()
	return &Pending{op: op, done: done}
}

// AddConnection saves a new connection profile.
func (c *DBusClient) AddConnection(settings ConnectionSettings) *Pending {
	obj := c.conn.Object(busName, settingsPath)
	return c.request(OpAddConnection, obj, settingsIface+".AddConnection", settings.variants())
}

// ActivateConnection brings up the saved connection at path. Device and
// specific object are left to NetworkManager to resolve.
func (c *DBusClient) ActivateConnection(path string) *Pending {
	obj := c.conn.Object(busName, nmPath)
	return c.request(OpActivateConnection, obj, nmIface+".ActivateConnection",
		dbus.ObjectPath(path), dbus.ObjectPath("/"), dbus.ObjectPath("/"))
}

// DeactivateConnection takes down the active connection at activePath.
func (c *DBusClient) DeactivateConnection(activePath string) *Pending {
	obj := c.conn.Object(busName, nmPath)
	return c.request(OpDeactivateConnection, obj, nmIface+".DeactivateConnection",
		dbus.ObjectPath(activePath))
}

// DeleteConnection removes the saved connection at path.
func (c *DBusClient) DeleteConnection(path string) *Pending {
	obj := c.conn.Object(busName, dbus.ObjectPath(path))
	return c.request(OpDeleteConnection, obj, connectionIface+".Delete")
}

// Connections lists all saved connections. Entries whose settings
// cannot be read are skipped.
func (c *DBusClient) Connections() ([]Record, error) {
	obj := c.conn.Object(busName, settingsPath)

	var paths []dbus.ObjectPath
	if err := obj.Call(settingsIface+".ListConnections", 0).Store(&paths); err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	records := make([]Record, 0, len(paths))
	for _, p := range paths {
		rec, err := c.readRecord(p)
		if err != nil {
			common.LogDebug("Skipping unreadable connection %s: %v", p, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ActiveConnections lists currently active connections, resolving each
// back to its saved settings so vpn data items can be inspected.
func (c *DBusClient) ActiveConnections() ([]Record, error) {
	obj := c.conn.Object(busName, nmPath)

	prop, err := obj.GetProperty(nmIface + ".ActiveConnections")
	if err != nil {
		return nil, fmt.Errorf("failed to read active connections: %w", err)
	}
	paths, _ := prop.Value().([]dbus.ObjectPath)

	records := make([]Record, 0, len(paths))
	for _, p := range paths {
		active := c.conn.Object(busName, p)

		connProp, err := active.GetProperty(activeIface + ".Connection")
		if err != nil {
			common.LogDebug("Skipping active connection %s: %v", p, err)
			continue
		}
		settingsObj, _ := connProp.Value().(dbus.ObjectPath)

		rec, err := c.readRecord(settingsObj)
		if err != nil {
			common.LogDebug("Skipping active connection %s: %v", p, err)
			continue
		}
		rec.ActivePath = string(p)

		if stateProp, err := active.GetProperty(activeIface + ".State"); err == nil {
			if state, ok := stateProp.Value().(uint32); ok {
				rec.State = ActiveState(state)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// readRecord fetches and decodes the settings of one saved connection.
func (c *DBusClient) readRecord(path dbus.ObjectPath) (Record, error) {
	obj := c.conn.Object(busName, path)

	var settings map[string]map[string]dbus.Variant
	if err := obj.Call(connectionIface+".GetSettings", 0).Store(&settings); err != nil {
		return Record{}, err
	}

	rec := Record{Path: string(path)}
	if conn, ok := settings["connection"]; ok {
		rec.ID = variantString(conn["id"])
		rec.UUID = variantString(conn["uuid"])
		rec.Type = variantString(conn["type"])
	}
	if vpn, ok := settings["vpn"]; ok {
		if data, ok := vpn["data"].Value().(map[string]string); ok {
			rec.VPNData = data
		}
	}
	return rec, nil
}

// variants converts the settings dictionary to the wire representation.
func (s ConnectionSettings) variants() map[string]map[string]dbus.Variant {
	out := make(map[string]map[string]dbus.Variant, len(s))
	for section, items := range s {
		m := make(map[string]dbus.Variant, len(items))
		for key, value := range items {
			m[key] = dbus.MakeVariant(value)
		}
		out[section] = m
	}
	return out
}

func variantString(v dbus.Variant) string {
	s, _ := v.Value().(string)
	return s
}

// translateError maps bus-level "object is gone" replies onto the shared
// not-found sentinel so callers can absorb benign races.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		switch dbusErr.Name {
		case "org.freedesktop.DBus.Error.UnknownObject",
			"org.freedesktop.DBus.Error.UnknownMethod",
			"org.freedesktop.NetworkManager.ConnectionNotActive",
			"org.freedesktop.NetworkManager.Settings.Connection.NotFound":
			return fmt.Errorf("%w: %s", common.ErrConnectionNotFound, dbusErr.Name)
		}
	}
	return err
}
