package netfilter

import (
	"context"
	"errors"
	"fmt"

	"github.com/egorlepa/shuttlefw/internal/platform"
)

// ErrNoEntries is returned by FlushConntrack when no tracked connections
// matched the filter. Callers treat it as an expected outcome, distinct
// from a failed command.
var ErrNoEntries = errors.New("conntrack: no matching entries")

// IPTables issues rule operations for one protocol family through a Runner.
// It holds no state of its own; all state lives in the kernel tables.
type IPTables struct {
	family Family
	runner platform.Runner
}

// New creates an IPTables handle for the given family.
func New(family Family, runner platform.Runner) *IPTables {
	return &IPTables{family: family, runner: runner}
}

// Family returns the protocol family this handle operates on.
func (ipt *IPTables) Family() Family {
	return ipt.family
}

// Run executes one rule operation against the given table.
func (ipt *IPTables) Run(ctx context.Context, table string, args ...string) error {
	argv := append([]string{"-t", table}, args...)
	if _, err := ipt.runner.Run(ctx, ipt.family.Command(), argv...); err != nil {
		return fmt.Errorf("%s -t %s: %w", ipt.family.Command(), table, err)
	}
	return nil
}

// ChainExists reports whether a chain is present in the given table.
// A failed listing means the chain does not exist.
func (ipt *IPTables) ChainExists(ctx context.Context, table, chain string) bool {
	_, err := ipt.runner.Run(ctx, ipt.family.Command(), "-t", table, "-L", chain, "-n")
	return err == nil
}

// FlushConntrack deletes connection-tracking entries destined to dst.
// Tracked connections bypass freshly installed rules, so rule changes for
// an address only take effect once its entries are flushed. Returns
// ErrNoEntries when nothing matched (conntrack exits 1 for that).
func (ipt *IPTables) FlushConntrack(ctx context.Context, dst string) error {
	_, err := ipt.runner.Run(ctx, "conntrack", "-D", "--dst", dst)
	if err != nil {
		var cmdErr *platform.CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitStatus == 1 {
			return ErrNoEntries
		}
		return fmt.Errorf("conntrack flush %s: %w", dst, err)
	}
	return nil
}
