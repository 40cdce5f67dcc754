package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/egorlepa/shuttlefw/internal/config"
	"github.com/egorlepa/shuttlefw/internal/firewall"
	"github.com/egorlepa/shuttlefw/internal/netfilter"
)

// policyFlags collects the policy either from a config file or from
// individual flags. Flags win over nothing; mixing both is not supported.
type policyFlags struct {
	configPath  string
	port        int
	dnsPort     int
	nameservers []string
	subnets     []string
	user        string
	logLevel    string
}

func (pf *policyFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&pf.configPath, "config", "c", "", "policy file (YAML)")
	fl.IntVarP(&pf.port, "port", "p", 0, "local proxy port to redirect TCP traffic to")
	fl.IntVar(&pf.dnsPort, "dns-port", 0, "local port to redirect intercepted DNS to")
	fl.StringArrayVar(&pf.nameservers, "ns", nil, "nameserver to intercept (repeatable)")
	fl.StringArrayVarP(&pf.subnets, "subnet", "s", nil, "subnet addr/width[:first-last], prefix with ! to exclude (repeatable)")
	fl.StringVarP(&pf.user, "user", "u", "", "only redirect traffic owned by this user")
	fl.StringVar(&pf.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func (pf *policyFlags) policy() (firewall.Policy, error) {
	if pf.configPath != "" {
		return config.Load(pf.configPath)
	}
	if pf.port == 0 {
		return firewall.Policy{}, fmt.Errorf("either --config or --port is required")
	}
	f := config.File{
		Port:        pf.port,
		DNSPort:     pf.dnsPort,
		Nameservers: pf.nameservers,
		Subnets:     pf.subnets,
		User:        pf.user,
	}
	return f.Policy()
}

// teardownPolicy builds the minimal policy removal needs; DNS port and
// subnets do not matter once the chain is being deleted wholesale.
func (pf *policyFlags) teardownPolicy() (firewall.Policy, error) {
	if pf.configPath != "" {
		return config.Load(pf.configPath)
	}
	if pf.port == 0 {
		return firewall.Policy{}, fmt.Errorf("either --config or --port is required")
	}
	return firewall.Policy{
		Port:   pf.port,
		Family: netfilter.FamilyIPv4,
		User:   pf.user,
	}, nil
}
