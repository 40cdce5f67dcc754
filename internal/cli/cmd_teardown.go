package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/egorlepa/shuttlefw/internal/firewall"
	"github.com/egorlepa/shuttlefw/internal/platform"
)

func newTeardownCmd() *cobra.Command {
	var pf policyFlags
	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Remove redirection rules for a policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.teardownPolicy()
			if err != nil {
				return err
			}

			logger := platform.NewLogger(pf.logLevel)
			method, err := firewall.Pick(platform.ExecRunner{}, logger)
			if err != nil {
				return err
			}

			if err := method.Teardown(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Printf("Removed chain %s.\n", firewall.ChainName(p.Port))
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}
