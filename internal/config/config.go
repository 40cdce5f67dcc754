package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/egorlepa/shuttlefw/internal/firewall"
	"github.com/egorlepa/shuttlefw/internal/netfilter"
)

// File is the on-disk policy format.
//
//	port: 12300
//	dns_port: 12301
//	nameservers:
//	  - 10.0.0.1
//	subnets:
//	  - 10.0.0.0/8
//	  - "!10.1.2.0/24"
//	  - 10.3.0.0/16:1000-2000
//	user: ""
type File struct {
	Port        int      `yaml:"port"`
	DNSPort     int      `yaml:"dns_port"`
	Nameservers []string `yaml:"nameservers"`
	Subnets     []string `yaml:"subnets"`
	User        string   `yaml:"user"`
}

// Load reads a policy file and converts it to a firewall.Policy.
func Load(path string) (firewall.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return firewall.Policy{}, fmt.Errorf("read policy: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return firewall.Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	return f.Policy()
}

// Policy validates the file contents and builds the policy.
func (f File) Policy() (firewall.Policy, error) {
	p := firewall.Policy{
		Port:    f.Port,
		DNSPort: f.DNSPort,
		Family:  netfilter.FamilyIPv4,
		User:    f.User,
	}
	if p.Port < 1 || p.Port > 65535 {
		return firewall.Policy{}, fmt.Errorf("port %d out of range", p.Port)
	}
	// The LLMNR fallback rule always redirects to the DNS port, so a
	// policy needs one even without explicit nameservers.
	if p.DNSPort < 1 || p.DNSPort > 65535 {
		return firewall.Policy{}, fmt.Errorf("dns_port %d out of range", p.DNSPort)
	}

	for _, s := range f.Nameservers {
		ns, err := ParseNameserver(s)
		if err != nil {
			return firewall.Policy{}, err
		}
		p.Nameservers = append(p.Nameservers, ns)
	}

	for _, s := range f.Subnets {
		sn, err := ParseSubnet(s)
		if err != nil {
			return firewall.Policy{}, err
		}
		p.Subnets = append(p.Subnets, sn)
	}
	return p, nil
}

// ParseNameserver parses a nameserver address and classifies its family.
func ParseNameserver(s string) (firewall.Nameserver, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return firewall.Nameserver{}, fmt.Errorf("invalid nameserver address %q", s)
	}
	family := netfilter.FamilyIPv6
	if ip.To4() != nil {
		family = netfilter.FamilyIPv4
	}
	return firewall.Nameserver{Family: family, Addr: s}, nil
}

// ParseSubnet parses "addr/width[:first-last]" with an optional "!" prefix
// marking an exclusion. A bare address gets a /32 width.
func ParseSubnet(s string) (firewall.Subnet, error) {
	var sn firewall.Subnet

	rest := s
	if strings.HasPrefix(rest, "!") {
		sn.Exclude = true
		rest = rest[1:]
	}

	if i := strings.LastIndex(rest, ":"); i >= 0 {
		first, last, ok := strings.Cut(rest[i+1:], "-")
		if !ok {
			last = first
		}
		fp, err := strconv.Atoi(first)
		if err != nil {
			return firewall.Subnet{}, fmt.Errorf("invalid port range in %q", s)
		}
		lp, err := strconv.Atoi(last)
		if err != nil {
			return firewall.Subnet{}, fmt.Errorf("invalid port range in %q", s)
		}
		if fp < 1 || lp > 65535 || fp > lp {
			return firewall.Subnet{}, fmt.Errorf("port range %d-%d out of order in %q", fp, lp, s)
		}
		sn.FirstPort, sn.LastPort = fp, lp
		rest = rest[:i]
	}

	addr, width, ok := strings.Cut(rest, "/")
	if !ok {
		width = "32"
	}
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		return firewall.Subnet{}, fmt.Errorf("invalid IPv4 network address %q", addr)
	}
	w, err := strconv.Atoi(width)
	if err != nil || w < 0 || w > 32 {
		return firewall.Subnet{}, fmt.Errorf("invalid prefix width in %q", s)
	}

	sn.Net = addr
	sn.Width = w
	return sn, nil
}
