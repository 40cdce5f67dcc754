package firewall

import (
	"fmt"
	"sort"

	"github.com/egorlepa/shuttlefw/internal/netfilter"
)

// Policy describes one traffic-redirection instance: which subnets and DNS
// servers to intercept and where to send them. The local Port doubles as
// the instance key, so several policies can run on one host as long as
// their ports differ. Policies are read-only to the firewall methods.
type Policy struct {
	Port        int
	DNSPort     int
	Nameservers []Nameserver
	Family      netfilter.Family
	Subnets     []Subnet
	UDP         bool
	User        string
}

// Nameserver is one DNS server whose traffic should be intercepted.
type Nameserver struct {
	Family netfilter.Family
	Addr   string
}

// Subnet is one redirection target or exclusion. FirstPort == 0 means all
// ports; otherwise only FirstPort..LastPort is matched.
type Subnet struct {
	Net       string
	Width     int
	Exclude   bool
	FirstPort int
	LastPort  int
}

func (s Subnet) String() string {
	return fmt.Sprintf("%s/%d", s.Net, s.Width)
}

// weight ranks a subnet for rule ordering. Port-restricted entries rank
// above full-port ones, narrower networks above wider, and exclusions
// above inclusions at equal specificity.
func (s Subnet) weight() (ports, width, exclude int) {
	ports = -s.LastPort - 65535
	if s.FirstPort != 0 {
		ports = -s.LastPort + s.FirstPort
	}
	if s.Exclude {
		exclude = 1
	}
	return ports, s.Width, exclude
}

// sortedByWeight returns the subnets in rule order, heaviest first. The
// sort is stable so equal-weight entries keep their input order. Rule
// order is the chain's semantics: first match wins, so more specific
// entries must be installed ahead of broader ones.
func sortedByWeight(subnets []Subnet) []Subnet {
	out := append([]Subnet(nil), subnets...)
	sort.SliceStable(out, func(i, j int) bool {
		ip, iw, ie := out[i].weight()
		jp, jw, je := out[j].weight()
		if ip != jp {
			return ip > jp
		}
		if iw != jw {
			return iw > jw
		}
		return ie > je
	})
	return out
}
