// Package nm provides a client for the NetworkManager D-Bus service.
// This file contains the connection profile model and the settings
// dictionary shape handed to the service.
package nm

// OpenVPNServiceType is the NetworkManager plugin that services
// imported OpenVPN profiles.
const OpenVPNServiceType = "org.freedesktop.NetworkManager.openvpn"

// Connection describes a connection profile to be added to NetworkManager.
type Connection struct {
	// ID is the human-readable connection name.
	ID string
	// UUID uniquely identifies the profile.
	UUID string
	// Type is the connection type, "vpn" for profiles managed here.
	Type string
	// VPN holds the vpn section of the profile.
	VPN *VPNSetting
	// IPv4Method and IPv6Method select address configuration, "auto"
	// when left empty.
	IPv4Method string
	IPv6Method string
}

// VPNSetting holds the vpn section of a connection profile: the plugin
// service type, its data items, and its secrets.
type VPNSetting struct {
	ServiceType string
	Data        map[string]string
	Secrets     map[string]string
}

// NewVPNSetting returns an empty vpn section for the given plugin.
func NewVPNSetting(serviceType string) *VPNSetting {
	return &VPNSetting{
		ServiceType: serviceType,
		Data:        make(map[string]string),
		Secrets:     make(map[string]string),
	}
}

// SetData sets a data item on the vpn section.
func (s *VPNSetting) SetData(key, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
}

// DataItem returns a data item, or the empty string when absent.
func (s *VPNSetting) DataItem(key string) string {
	return s.Data[key]
}

// SetSecret sets a secret on the vpn section.
func (s *VPNSetting) SetSecret(key, value string) {
	if s.Secrets == nil {
		s.Secrets = make(map[string]string)
	}
	s.Secrets[key] = value
}

// ConnectionSettings is the a{sa{sv}} dictionary shape NetworkManager
// accepts for AddConnection, keyed by section and item name.
type ConnectionSettings map[string]map[string]interface{}

// Settings converts the profile into the settings dictionary.
func (c *Connection) Settings() ConnectionSettings {
	ipv4 := c.IPv4Method
	if ipv4 == "" {
		ipv4 = "auto"
	}
	ipv6 := c.IPv6Method
	if ipv6 == "" {
		ipv6 = "auto"
	}

	settings := ConnectionSettings{
		"connection": {
			"id":   c.ID,
			"uuid": c.UUID,
			"type": c.Type,
		},
		"ipv4": {"method": ipv4},
		"ipv6": {"method": ipv6},
	}

	if c.VPN != nil {
		settings["vpn"] = map[string]interface{}{
			"service-type": c.VPN.ServiceType,
			"data":         c.VPN.Data,
			"secrets":      c.VPN.Secrets,
		}
	}

	return settings
}

// Record is a connection entry read back from NetworkManager.
type Record struct {
	// Path is the D-Bus object path of the saved connection.
	Path string
	// ActivePath is the object path of the active connection, set only
	// when the record was listed among active connections.
	ActivePath string
	// ID is the connection name.
	ID string
	// UUID uniquely identifies the profile.
	UUID string
	// Type is the connection type, e.g. "vpn" or "802-3-ethernet".
	Type string
	// State is the activation state, set only for active records.
	State ActiveState
	// VPNData holds the vpn section's data items for vpn records.
	VPNData map[string]string
}

// ActiveState represents the activation state of an active connection.
type ActiveState uint32

const (
	StateUnknown ActiveState = iota
	StateActivating
	StateActivated
	StateDeactivating
	StateDeactivated
)

// String returns a human-readable representation of the state.
func (s ActiveState) String() string {
	switch s {
	case StateActivating:
		return "Activating"
	case StateActivated:
		return "Activated"
	case StateDeactivating:
		return "Deactivating"
	case StateDeactivated:
		return "Deactivated"
	default:
		return "Unknown"
	}
}
