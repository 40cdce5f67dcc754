package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/egorlepa/shuttlefw/internal/dns"
	"github.com/egorlepa/shuttlefw/internal/firewall"
	"github.com/egorlepa/shuttlefw/internal/platform"
)

func newRunCmd() *cobra.Command {
	var pf policyFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Install rules, serve intercepted DNS, and tear down on exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := pf.policy()
			if err != nil {
				return err
			}

			logger := platform.NewLogger(pf.logLevel)
			method, err := firewall.Pick(platform.ExecRunner{}, logger)
			if err != nil {
				return err
			}

			if err := method.Setup(ctx, p); err != nil {
				return err
			}
			logger.Info("rules installed", "chain", firewall.ChainName(p.Port), "method", method.Name())

			var forwarder *dns.Forwarder
			if p.DNSPort != 0 && len(p.Nameservers) > 0 {
				forwarder = dns.NewForwarder(p, logger)
				if err := forwarder.Start(); err != nil {
					_ = method.Teardown(ctx, p)
					return err
				}
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			s := <-sig
			logger.Info("shutting down", "signal", s.String())

			if forwarder != nil {
				forwarder.Stop()
			}
			if err := method.Teardown(ctx, p); err != nil {
				return fmt.Errorf("teardown: %w", err)
			}
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}
