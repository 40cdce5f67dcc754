package cli

import (
	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "shuttlefw",
		Short: "shuttlefw — transparent-proxy firewall rules for sshuttle-style tunnels",
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newVersionCmd(),
		newSetupCmd(),
		newTeardownCmd(),
		newRunCmd(),
		newStatusCmd(),
	)

	return root
}

// SetVersion sets the version string (called from main).
func SetVersion(v string) {
	version = v
}
