// Package connection drives the lifecycle of the managed VPN record.
// This file contains OpenVPN profile parsing and the operations that
// prepare a profile's vpn settings for NetworkManager.
package connection

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mbeltran/nmvpn/common"
	"github.com/mbeltran/nmvpn/nm"
)

// Common errors returned by profile operations.
var (
	// ErrVirtualDeviceNotFound indicates the profile declares no virtual
	// device.
	ErrVirtualDeviceNotFound = errors.New("no virtual device type in profile")
	// ErrIllegalVirtualDevice reports a device value that is neither tun
	// nor tap.
	ErrIllegalVirtualDevice = errors.New("illegal virtual device type")
	// ErrCredentialInjection indicates that credentials could not be
	// attached to the vpn settings.
	ErrCredentialInjection = errors.New("failed to attach credentials")
	// ErrInvalidProfile reports a profile file that cannot be imported.
	ErrInvalidProfile = errors.New("invalid profile file")
)

// ExtractVirtualDeviceType reads the profile and returns the virtual
// device type it declares. The first line carrying a "dev" token
// decides; its value must denote a tun or tap device (tun, tun0, tap2
// and so on), normalized to "tun" or "tap".
func ExtractVirtualDeviceType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", common.WrapError(err, "failed to open profile")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if !hasToken(fields, "dev") {
			continue
		}
		if len(fields) < 2 {
			return "", fmt.Errorf("%w: %s", ErrVirtualDeviceNotFound, path)
		}

		value := fields[1]
		switch {
		case strings.HasPrefix(value, "tun"):
			return "tun", nil
		case strings.HasPrefix(value, "tap"):
			return "tap", nil
		default:
			return "", fmt.Errorf(
				"%w: only tun and tap are permitted, got %q", ErrIllegalVirtualDevice, value,
			)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", common.WrapError(err, "failed to read profile")
	}
	return "", fmt.Errorf("%w: %s", ErrVirtualDeviceNotFound, path)
}

func hasToken(fields []string, token string) bool {
	for _, f := range fields {
		if f == token {
			return true
		}
	}
	return false
}

// ImportProfile parses an OpenVPN profile file into a connection
// object ready to be handed to NetworkManager. The connection id is
// the file's base name; remote and proto directives are carried into
// the vpn settings.
func ImportProfile(path string) (*nm.Connection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, common.WrapError(err, "profile not found")
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidProfile, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, common.WrapError(err, "failed to open profile")
	}
	defer f.Close()

	var remotes []string
	proto := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "remote":
			remote := fields[1]
			if len(fields) >= 3 {
				remote += ":" + fields[2]
			}
			remotes = append(remotes, remote)
		case "proto":
			proto = strings.ToLower(fields[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, common.WrapError(err, "failed to read profile")
	}
	if len(remotes) == 0 {
		return nil, fmt.Errorf("%w: no remote directive in %s", ErrInvalidProfile, path)
	}

	vpn := nm.NewVPNSetting(nm.OpenVPNServiceType)
	vpn.SetData("connection-type", "password")
	vpn.SetData("remote", strings.Join(remotes, ", "))
	if proto == common.ProtocolTCP {
		vpn.SetData("proto-tcp", "yes")
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &nm.Connection{
		ID:   name,
		UUID: uuid.NewString(),
		Type: "vpn",
		VPN:  vpn,
	}, nil
}

// ApplyVirtualDevice stamps the fixed virtual device name and the
// profile's extracted device type onto the vpn settings. Whatever
// interface name the profile requested is renamed to the single
// managed tunnel identity.
func ApplyVirtualDevice(vpn *nm.VPNSetting, profilePath string) error {
	deviceType, err := ExtractVirtualDeviceType(profilePath)
	if err != nil {
		return err
	}
	vpn.SetData("dev", common.VirtualDeviceName)
	vpn.SetData("dev-type", deviceType)
	return nil
}

// InjectCredentials attaches the OpenVPN username and password to the
// vpn settings. Both must be non-blank.
func InjectCredentials(vpn *nm.VPNSetting, username, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: username and password must not be blank", ErrCredentialInjection)
	}
	if vpn == nil {
		return fmt.Errorf("%w: profile has no vpn settings", ErrCredentialInjection)
	}
	vpn.SetData("username", username)
	vpn.SetSecret("password", password)
	return nil
}
