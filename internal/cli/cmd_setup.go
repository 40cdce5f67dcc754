package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/egorlepa/shuttlefw/internal/firewall"
	"github.com/egorlepa/shuttlefw/internal/platform"
)

func newSetupCmd() *cobra.Command {
	var pf policyFlags
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install redirection rules for a policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.policy()
			if err != nil {
				return err
			}

			logger := platform.NewLogger(pf.logLevel)
			method, err := firewall.Pick(platform.ExecRunner{}, logger)
			if err != nil {
				return err
			}

			if err := method.Setup(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Printf("Installed chain %s (%s method).\n", firewall.ChainName(p.Port), method.Name())
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}
