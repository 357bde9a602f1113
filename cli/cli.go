// Package cli implements the nmvpn commands. Each command wires the
// session, catalog, profile generator and connection manager together
// for one terminal invocation.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/mbeltran/nmvpn/cert"
	"github.com/mbeltran/nmvpn/common"
	"github.com/mbeltran/nmvpn/config"
	"github.com/mbeltran/nmvpn/connection"
	"github.com/mbeltran/nmvpn/history"
	"github.com/mbeltran/nmvpn/nm"
	"github.com/mbeltran/nmvpn/servers"
	"github.com/mbeltran/nmvpn/session"
	"github.com/mbeltran/nmvpn/tui"
)

// probeHosts are dialed through the tunnel by the status command to
// verify that traffic actually flows.
var probeHosts = []string{
	"8.8.8.8:53",        // Google DNS
	"1.1.1.1:53",        // Cloudflare DNS
	"208.67.222.222:53", // OpenDNS
}

const probeTimeout = 5 * time.Second

// ConnectOptions selects the server a connect command targets. At most
// one strategy field is honored; with none set the fastest server wins.
type ConnectOptions struct {
	// Server is a servername for a direct connection.
	Server string
	// Country is a two-letter exit country code.
	Country string
	// Feature is a feature literal (sc, tor, p2p, stream, ipv6).
	Feature string
	// Random picks uniformly over the whole pool.
	Random bool
	// Protocol overrides the configured default transport.
	Protocol string
}

// CLI holds the long-lived pieces shared by the commands.
type CLI struct {
	cfg         *config.Config
	selector    *servers.Selector
	generator   *cert.Generator
	historyPath string
	manager     *connection.Manager
}

// New builds a CLI over the given configuration. The NetworkManager
// client is dialed lazily so commands that never touch the tunnel work
// without a system bus.
func New(cfg *config.Config) (*CLI, error) {
	cacheDir, err := common.GetCacheDir()
	if err != nil {
		return nil, err
	}
	dataDir, err := common.GetDataDir()
	if err != nil {
		return nil, err
	}

	cache := servers.NewCache(filepath.Join(cacheDir, common.ServerCacheFileName))
	return &CLI{
		cfg:         cfg,
		selector:    servers.NewSelector(cache),
		generator:   cert.NewGenerator(filepath.Join(cacheDir, "profiles"), cfg.CAFile),
		historyPath: filepath.Join(dataDir, common.HistoryFileName),
	}, nil
}

// connectionManager dials the system bus on first use.
func (c *CLI) connectionManager() (*connection.Manager, error) {
	if c.manager == nil {
		client, err := nm.NewSystemClient()
		if err != nil {
			return nil, common.WrapError(err, "failed to reach NetworkManager")
		}
		c.manager = connection.NewManager(client)
	}
	return c.manager, nil
}

// Login prompts for the account credentials and establishes a session.
func (c *CLI) Login(ctx context.Context) error {
	fmt.Print("Username: ")
	reader := bufio.NewReader(os.Stdin)
	username, err := reader.ReadString('\n')
	if err != nil {
		return common.WrapError(err, "failed to read username")
	}
	username = strings.TrimSpace(username)

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return common.WrapError(err, "failed to read password")
	}

	sess, err := session.Login(ctx, c.cfg.APIURL, username, string(password))
	if err != nil {
		return err
	}

	fmt.Printf("✓ Logged in (plan tier %d)\n", sess.Tier())
	return nil
}

// Logout stops any active tunnel (best effort) and revokes the session.
func (c *CLI) Logout(ctx context.Context) error {
	sess, err := session.Load()
	if err != nil {
		return err
	}

	if manager, err := c.connectionManager(); err == nil {
		if stopped, err := manager.Stop(ctx); err != nil {
			common.LogWarn("Failed to stop connection on logout: %v", err)
		} else if stopped {
			fmt.Println("Disconnected.")
		}
	}

	if err := sess.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("✓ Logged out")
	return nil
}

// Connect picks a server per opts, generates its profile, registers it
// with NetworkManager and activates the tunnel.
func (c *CLI) Connect(ctx context.Context, opts ConnectOptions) error {
	sess, err := session.Load()
	if err != nil {
		return err
	}
	if err := sess.CheckAccounting(ctx); err != nil {
		return err
	}

	servername, ips, err := c.pick(ctx, sess, opts)
	if err != nil {
		return err
	}

	protocol := opts.Protocol
	if protocol == "" {
		protocol = c.cfg.DefaultProtocol
	}
	if protocol != common.ProtocolUDP && protocol != common.ProtocolTCP {
		return fmt.Errorf("%w: unknown protocol %q", common.ErrInvalidArgument, protocol)
	}

	return c.connectTo(ctx, sess, servername, protocol, ips)
}

// pick applies the selection strategy the options name.
func (c *CLI) pick(ctx context.Context, sess *session.Session, opts ConnectOptions) (string, []string, error) {
	switch {
	case opts.Server != "":
		return c.selector.Direct(ctx, sess, opts.Server)
	case opts.Country != "":
		return c.selector.FastestInCountry(ctx, sess, opts.Country)
	case opts.Feature != "":
		return c.selector.ByFeature(ctx, sess, opts.Feature)
	case opts.Random:
		return c.selector.Random(ctx, sess)
	default:
		return c.selector.Fastest(ctx, sess)
	}
}

func (c *CLI) connectTo(ctx context.Context, sess *session.Session, servername, protocol string, ips []string) error {
	fmt.Printf("Connecting to %s (%s)...\n", servername, protocol)

	profilePath, err := c.generator.Write(servername, protocol, ips)
	if err != nil {
		return err
	}

	manager, err := c.connectionManager()
	if err != nil {
		return err
	}

	username, password := sess.VPNCredentials()
	if err := manager.Add(ctx, profilePath, username, password, c.generator); err != nil {
		return err
	}
	if err := manager.Start(ctx); err != nil {
		return err
	}

	c.logEvent(history.Event{Kind: history.KindConnect, Server: servername, Protocol: protocol})
	fmt.Printf("✓ Connected to %s\n", servername)
	return nil
}

// Disconnect deactivates the tunnel. Nothing being active is reported,
// not treated as a failure.
func (c *CLI) Disconnect(ctx context.Context) error {
	manager, err := c.connectionManager()
	if err != nil {
		return err
	}

	record, found, err := manager.Status(ctx)
	stopped, stopErr := manager.Stop(ctx)
	if stopErr != nil {
		return stopErr
	}
	if !stopped {
		fmt.Println("No active connection.")
		return nil
	}

	if err == nil && found {
		servername, protocol := recordTarget(record)
		c.logEvent(history.Event{Kind: history.KindDisconnect, Server: servername, Protocol: protocol})
	}
	fmt.Println("✓ Disconnected")
	return nil
}

// Remove deletes the managed connection record from NetworkManager.
func (c *CLI) Remove(ctx context.Context) error {
	manager, err := c.connectionManager()
	if err != nil {
		return err
	}
	if err := manager.Remove(ctx); err != nil {
		return err
	}
	fmt.Println("✓ Connection removed")
	return nil
}

// Status shows the managed record's state and, when the tunnel is up,
// probes connectivity through it.
func (c *CLI) Status(ctx context.Context) error {
	manager, err := c.connectionManager()
	if err != nil {
		return err
	}

	record, found, err := manager.Status(ctx)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("No VPN connection configured.")
		return nil
	}

	servername, protocol := recordTarget(record)
	state := "Inactive"
	if record.ActivePath != "" {
		state = record.State.String()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER\tSTATE\tPROTOCOL\tDEVICE")
	fmt.Fprintln(w, "------\t-----\t--------\t------")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", servername, state, protocol, common.VirtualDeviceName)
	w.Flush()

	if record.State == nm.StateActivated {
		if latency, err := probeConnectivity(); err != nil {
			fmt.Println("Tunnel check: failed (no host reachable)")
		} else {
			fmt.Printf("Tunnel check: ok (%v)\n", latency.Round(time.Millisecond))
		}
	}
	return nil
}

// probeConnectivity dials the probe hosts until one answers and
// returns the observed latency.
func probeConnectivity() (time.Duration, error) {
	for _, host := range probeHosts {
		start := time.Now()
		conn, err := net.DialTimeout("tcp", host, probeTimeout)
		if err == nil {
			conn.Close()
			return time.Since(start), nil
		}
	}
	return 0, fmt.Errorf("no probe host reachable")
}

// List prints the tier-filtered server catalog.
func (c *CLI) List(ctx context.Context) error {
	sess, err := session.Load()
	if err != nil {
		return err
	}
	catalog, err := c.selector.Catalog(ctx, sess)
	if err != nil {
		return err
	}
	if len(catalog) == 0 {
		fmt.Println("No servers available for this account.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOUNTRY\tCITY\tLOAD\tSCORE\tFEATURES\tTIER")
	fmt.Fprintln(w, "----\t-------\t----\t----\t-----\t--------\t----")
	for _, s := range catalog {
		city := s.City
		if city == "" {
			city = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%.2f\t%s\t%d\n",
			s.Name, s.ExitCountry, city, s.Load, s.Score,
			servers.FeatureString(s.Features), s.Tier)
	}
	w.Flush()
	return nil
}

// Refresh forces a catalog refetch regardless of cache age.
func (c *CLI) Refresh(ctx context.Context) error {
	sess, err := session.Load()
	if err != nil {
		return err
	}
	if err := c.selector.Refresh(ctx, sess); err != nil {
		return err
	}
	fmt.Println("✓ Server list refreshed")
	return nil
}

// History prints the n most recent connection events.
func (c *CLI) History(n int) error {
	store, err := history.Open(c.historyPath)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Recent(n)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No connection history yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tEVENT\tSERVER\tPROTOCOL")
	fmt.Fprintln(w, "----\t-----\t------\t--------")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.At.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Server, e.Protocol)
	}
	w.Flush()
	return nil
}

// Browse opens the interactive server browser and connects to the
// chosen server.
func (c *CLI) Browse(ctx context.Context, protocol string) error {
	sess, err := session.Load()
	if err != nil {
		return err
	}
	if err := sess.CheckAccounting(ctx); err != nil {
		return err
	}

	catalog, err := c.selector.Catalog(ctx, sess)
	if err != nil {
		return err
	}
	servername, err := tui.Browse(catalog)
	if err != nil {
		return err
	}

	ips, err := catalog.EntryIPs(servername)
	if err != nil {
		return err
	}
	if protocol == "" {
		protocol = c.cfg.DefaultProtocol
	}
	return c.connectTo(ctx, sess, servername, protocol, ips)
}

// logEvent records a history entry, best effort.
func (c *CLI) logEvent(e history.Event) {
	store, err := history.Open(c.historyPath)
	if err != nil {
		common.LogWarn("Failed to open history store: %v", err)
		return
	}
	defer store.Close()
	if err := store.Record(e); err != nil {
		common.LogWarn("Failed to record history event: %v", err)
	}
}

// recordTarget extracts the servername and transport from a managed
// record. The connection id carries the profile file name, which
// normalizes back into a canonical servername.
func recordTarget(record nm.Record) (string, string) {
	servername := record.ID
	if canonical, err := servers.NormalizeServername(record.ID); err == nil {
		servername = canonical
	}
	protocol := common.ProtocolUDP
	if record.VPNData["proto-tcp"] == "yes" {
		protocol = common.ProtocolTCP
	}
	return servername, protocol
}

// PrintHelp prints CLI usage help.
func PrintHelp() {
	fmt.Println(`nmvpn - NetworkManager VPN client

Usage:
  nmvpn [OPTIONS]

Options:
  --login            Log in to the provider account
  --logout           Disconnect and log out
  --connect          Connect to the fastest server
  --server NAME      Connect to a specific server (e.g. PT#1)
  --cc CODE          Connect to the fastest server in a country
  --feature NAME     Connect by feature: sc, tor, p2p, stream, ipv6
  --random           Connect to a random server
  --fastest          Connect to the fastest server
  --protocol PROTO   Transport protocol: udp or tcp
  --disconnect       Disconnect the active tunnel
  --remove           Remove the VPN connection record
  --status           Show connection status
  --list             List available servers
  --history N        Show the last N connection events
  --refresh          Force a server list refresh
  --tui              Browse servers interactively
  --version          Show version and exit
  --verbose          Enable verbose logging
  --help             Show this help message

Examples:
  nmvpn --login
  nmvpn --connect
  nmvpn --server PT#1 --protocol tcp
  nmvpn --cc SE
  nmvpn --disconnect`)
}
