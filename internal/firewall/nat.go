package firewall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/egorlepa/shuttlefw/internal/netfilter"
	"github.com/egorlepa/shuttlefw/internal/platform"
)

const (
	// Connections the tunnel server originates carry TTL 63, so the chain
	// exempts them and client and server can share a host.
	serverTTL = "63"

	// LLMNR resolves single-label names on systems with systemd-resolved.
	// Queries go to a fixed multicast address, separate from port-53 DNS.
	llmnrAddr = "224.0.0.252"
	llmnrPort = "5355"

	dnsPort = "53"
)

// ChainName returns the nat chain for a redirection port. The port in the
// name is what lets multiple instances coexist on one host; an instance
// owns its own chain but shares OUTPUT and PREROUTING with everyone else.
func ChainName(port int) string {
	return fmt.Sprintf("sshuttle-%d", port)
}

// NAT redirects TCP traffic to a local proxy port with iptables NAT
// REDIRECT rules. IPv4 only; UDP cannot be redirected this way.
type NAT struct {
	runner platform.Runner
	logger *slog.Logger
}

// NewNAT creates the NAT method on the given runner.
func NewNAT(runner platform.Runner, logger *slog.Logger) *NAT {
	return &NAT{runner: runner, logger: logger}
}

func (m *NAT) Name() string { return "nat" }

// IsSupported reports whether the iptables binary is on PATH.
func (m *NAT) IsSupported() bool {
	if platform.Which("iptables") {
		return true
	}
	m.logger.Debug("nat method not supported, iptables command is missing")
	return false
}

func (m *NAT) Features() Features {
	return Features{User: true, DNS: true, UDP: false, IPv6: false}
}

// check rejects policies this method cannot express before any backend
// command is issued.
func (m *NAT) check(p Policy) error {
	if p.Family != netfilter.FamilyIPv4 {
		return &UnsupportedError{Method: m.Name(), Detail: fmt.Sprintf("address family %s", p.Family)}
	}
	if p.UDP {
		return &UnsupportedError{Method: m.Name(), Detail: "UDP redirection"}
	}
	return nil
}

// jumpArgs returns the match+target for the OUTPUT/PREROUTING entry rules.
// With a user set, entry rules only capture packets the mark rule tagged.
func jumpArgs(p Policy, chain string) []string {
	if p.User != "" {
		return []string{"-m", "mark", "--mark", strconv.Itoa(p.Port), "-j", chain}
	}
	return []string{"-j", chain}
}

// Setup installs the rule set for the policy. Rules are issued strictly in
// order; the chain's rule order is its semantics, first match wins.
//
// Entry rules are inserted at position 1 rather than appended so the newest
// instance takes precedence. When two instances' subnets overlap, the most
// recently started one wins; callers must avoid overlapping policies.
func (m *NAT) Setup(ctx context.Context, p Policy) error {
	if err := m.check(p); err != nil {
		return err
	}

	ipt := netfilter.New(p.Family, m.runner)
	chain := ChainName(p.Port)

	// Clear any prior instance on this port so a re-run never doubles rules.
	if err := m.Teardown(ctx, p); err != nil {
		return err
	}

	if err := ipt.Run(ctx, "nat", "-N", chain); err != nil {
		return err
	}
	if err := ipt.Run(ctx, "nat", "-F", chain); err != nil {
		return err
	}

	if p.User != "" {
		err := ipt.Run(ctx, "mangle", "-I", "OUTPUT", "1",
			"-m", "owner", "--uid-owner", p.User,
			"-j", "MARK", "--set-mark", strconv.Itoa(p.Port))
		if err != nil {
			return err
		}
	}
	jump := jumpArgs(p, chain)

	if err := ipt.Run(ctx, "nat", append([]string{"-I", "OUTPUT", "1"}, jump...)...); err != nil {
		return err
	}
	if err := ipt.Run(ctx, "nat", append([]string{"-I", "PREROUTING", "1"}, jump...)...); err != nil {
		return err
	}

	// Exempt the tunnel server's own connections (TTL 63).
	err := ipt.Run(ctx, "nat", "-A", chain, "-j", "RETURN",
		"-m", "ttl", "--ttl", serverTTL)
	if err != nil {
		return err
	}

	// Intercept DNS queries to each configured nameserver, including ones
	// on localhost, and hand them to the local DNS listener.
	for _, ns := range p.Nameservers {
		if ns.Family != p.Family {
			continue
		}
		err := ipt.Run(ctx, "nat", "-A", chain, "-j", "REDIRECT",
			"--dest", ns.Addr+"/32",
			"-p", "udp",
			"--dport", dnsPort,
			"--to-ports", strconv.Itoa(p.DNSPort))
		if err != nil {
			return err
		}
	}

	// Any remaining traffic to local addresses stays off the tunnel.
	err = ipt.Run(ctx, "nat", "-A", chain, "-j", "RETURN",
		"-m", "addrtype", "--dst-type", "LOCAL")
	if err != nil {
		return err
	}

	for _, s := range sortedByWeight(p.Subnets) {
		tcpPorts := []string{"-p", "tcp"}
		if s.FirstPort != 0 {
			tcpPorts = append(tcpPorts, "--dport", fmt.Sprintf("%d:%d", s.FirstPort, s.LastPort))
		}

		if s.Exclude {
			args := append([]string{"-A", chain, "-j", "RETURN", "--dest", s.String()}, tcpPorts...)
			if err := ipt.Run(ctx, "nat", args...); err != nil {
				return err
			}
		} else {
			args := append([]string{"-A", chain, "-j", "REDIRECT", "--dest", s.String()}, tcpPorts...)
			args = append(args, "--to-ports", strconv.Itoa(p.Port))
			if err := ipt.Run(ctx, "nat", args...); err != nil {
				return err
			}
		}
	}

	// Capture LLMNR as well, so single-label lookups still resolve through
	// the local DNS listener.
	err = ipt.Run(ctx, "nat", "-A", chain, "-j", "REDIRECT",
		"--dest", llmnrAddr+"/32",
		"-p", "udp",
		"--dport", llmnrPort,
		"--to-ports", strconv.Itoa(p.DNSPort))
	if err != nil {
		return err
	}

	// Already-tracked LLMNR flows would bypass the new rule; flush them.
	// Best effort: an empty table exits non-zero and that is fine.
	if err := ipt.FlushConntrack(ctx, llmnrAddr); err != nil && !errors.Is(err, netfilter.ErrNoEntries) {
		m.logger.Debug("conntrack flush failed", "dst", llmnrAddr, "error", err)
	}

	return nil
}

// Teardown removes the policy's chain and its entry rules. A missing chain
// is a successful no-op. Entry-rule removals are best effort since rule
// state may have drifted, but the chain flush and delete must succeed: a
// leftover chain blocks the next Setup on the same port.
func (m *NAT) Teardown(ctx context.Context, p Policy) error {
	if err := m.check(p); err != nil {
		return err
	}

	ipt := netfilter.New(p.Family, m.runner)
	chain := ChainName(p.Port)

	if !ipt.ChainExists(ctx, "nat", chain) {
		return nil
	}

	if p.User != "" {
		m.nonfatal(ctx, ipt, "mangle", "-D", "OUTPUT",
			"-m", "owner", "--uid-owner", p.User,
			"-j", "MARK", "--set-mark", strconv.Itoa(p.Port))
	}
	jump := jumpArgs(p, chain)

	m.nonfatal(ctx, ipt, "nat", append([]string{"-D", "OUTPUT"}, jump...)...)
	m.nonfatal(ctx, ipt, "nat", append([]string{"-D", "PREROUTING"}, jump...)...)

	if err := ipt.Run(ctx, "nat", "-F", chain); err != nil {
		return err
	}
	if err := ipt.Run(ctx, "nat", "-X", chain); err != nil {
		return fmt.Errorf("remove chain %s: %w", chain, err)
	}
	return nil
}

// nonfatal runs a cleanup command whose failure only means the rule was
// already gone; the error is logged and dropped.
func (m *NAT) nonfatal(ctx context.Context, ipt *netfilter.IPTables, table string, args ...string) {
	if err := ipt.Run(ctx, table, args...); err != nil {
		m.logger.Debug("cleanup command failed", "error", err)
	}
}
