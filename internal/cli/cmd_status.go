package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/egorlepa/shuttlefw/internal/firewall"
	"github.com/egorlepa/shuttlefw/internal/netfilter"
	"github.com/egorlepa/shuttlefw/internal/platform"
)

func newStatusCmd() *cobra.Command {
	var port int
	var logLevel string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend availability and installed chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := platform.NewLogger(logLevel)
			runner := platform.ExecRunner{}

			fmt.Println("Methods:")
			for _, m := range firewall.Methods(runner, logger) {
				status := "not available"
				if m.IsSupported() {
					status = "available"
				}
				f := m.Features()
				fmt.Printf("  %-8s %-13s user=%v dns=%v udp=%v ipv6=%v\n",
					m.Name(), status, f.User, f.DNS, f.UDP, f.IPv6)
			}

			if port != 0 {
				ipt := netfilter.New(netfilter.FamilyIPv4, runner)
				chain := firewall.ChainName(port)
				if ipt.ChainExists(ctx, "nat", chain) {
					fmt.Printf("Chain %s: installed\n", chain)
				} else {
					fmt.Printf("Chain %s: not installed\n", chain)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "check whether this instance's chain is installed")
	cmd.Flags().StringVar(&logLevel, "log-level", "error", "log level (debug, info, warn, error)")
	return cmd
}
