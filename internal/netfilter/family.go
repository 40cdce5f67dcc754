package netfilter

// Family selects the IP protocol family a rule set applies to.
type Family int

const (
	FamilyIPv4 Family = iota + 1
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	default:
		return "unknown"
	}
}

// Command returns the packet-filter binary for the family.
func (f Family) Command() string {
	if f == FamilyIPv6 {
		return "ip6tables"
	}
	return "iptables"
}
