// Package cert generates OpenVPN client profiles for a chosen server
// and cleans them up once NetworkManager has imported their contents.
package cert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/mbeltran/nmvpn/common"
)

// profileTemplate is the OpenVPN client profile handed to
// NetworkManager. One remote line per entry IP; the provider CA is
// referenced by path.
const profileTemplate = `client
dev tun
proto {{.Protocol}}
{{range .IPs}}remote {{.}} {{$.Port}}
{{end}}resolv-retry infinite
nobind
persist-key
persist-tun
remote-random
auth-user-pass
auth-retry nointeract
{{if .CAFile}}ca {{.CAFile}}
{{end}}cipher AES-256-GCM
verb 3
`

var tmpl = template.Must(template.New("profile").Parse(profileTemplate))

type profileData struct {
	Protocol string
	Port     int
	IPs      []string
	CAFile   string
}

// Generator writes per-connection OpenVPN profiles into a directory.
type Generator struct {
	dir    string
	caFile string
}

// NewGenerator returns a generator writing profiles under dir,
// referencing the provider CA certificate at caFile.
func NewGenerator(dir, caFile string) *Generator {
	return &Generator{dir: dir, caFile: caFile}
}

// Write renders the profile for servername over the given entry IPs
// and returns its path. The protocol selects the port: 1194 for udp,
// 443 for tcp.
func (g *Generator) Write(servername, protocol string, ips []string) (string, error) {
	if len(ips) == 0 {
		return "", fmt.Errorf("%w: no entry IPs for %s", common.ErrInvalidArgument, servername)
	}

	port := common.PortUDP
	switch protocol {
	case common.ProtocolUDP:
	case common.ProtocolTCP:
		port = common.PortTCP
	default:
		return "", fmt.Errorf("%w: unknown protocol %q", common.ErrInvalidArgument, protocol)
	}

	if err := os.MkdirAll(g.dir, 0700); err != nil {
		return "", common.WrapError(err, "failed to create profile directory")
	}

	path := filepath.Join(g.dir, profileFileName(servername))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", common.WrapError(err, "failed to create profile file")
	}
	defer f.Close()

	data := profileData{
		Protocol: protocol,
		Port:     port,
		IPs:      ips,
		CAFile:   g.caFile,
	}
	if err := tmpl.Execute(f, data); err != nil {
		os.Remove(path)
		return "", common.WrapError(err, "failed to render profile")
	}

	common.LogDebug("Generated profile %s for %s", path, servername)
	return path, nil
}

// Cleanup deletes a generated profile. A missing file surfaces as an
// os.ErrNotExist error so callers can absorb it.
func (g *Generator) Cleanup(path string) error {
	return os.Remove(path)
}

// profileFileName maps a canonical servername to a filesystem-safe
// profile name: PT#1 becomes pt-1.ovpn.
func profileFileName(servername string) string {
	name := strings.ToLower(strings.ReplaceAll(servername, "#", "-"))
	return name + ".ovpn"
}
