package netfilter_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/egorlepa/shuttlefw/internal/netfilter"
	"github.com/egorlepa/shuttlefw/internal/platform"
)

type scriptedRunner struct {
	calls []string
	err   error
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	return "", r.err
}

func TestFamilyCommand(t *testing.T) {
	if got := netfilter.FamilyIPv4.Command(); got != "iptables" {
		t.Errorf("IPv4 command = %q", got)
	}
	if got := netfilter.FamilyIPv6.Command(); got != "ip6tables" {
		t.Errorf("IPv6 command = %q", got)
	}
}

func TestRunPrependsTable(t *testing.T) {
	r := &scriptedRunner{}
	ipt := netfilter.New(netfilter.FamilyIPv4, r)

	if err := ipt.Run(context.Background(), "nat", "-N", "sshuttle-9000"); err != nil {
		t.Fatal(err)
	}
	want := "iptables -t nat -N sshuttle-9000"
	if len(r.calls) != 1 || r.calls[0] != want {
		t.Fatalf("calls = %v, want [%s]", r.calls, want)
	}
}

func TestRunWrapsCommandError(t *testing.T) {
	r := &scriptedRunner{err: &platform.CommandError{Command: "iptables", ExitStatus: 3, Output: "boom"}}
	ipt := netfilter.New(netfilter.FamilyIPv4, r)

	err := ipt.Run(context.Background(), "nat", "-F", "sshuttle-9000")
	var cmdErr *platform.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("got %v, want wrapped CommandError", err)
	}
}

func TestChainExists(t *testing.T) {
	r := &scriptedRunner{}
	ipt := netfilter.New(netfilter.FamilyIPv4, r)
	if !ipt.ChainExists(context.Background(), "nat", "sshuttle-9000") {
		t.Fatal("chain should exist when listing succeeds")
	}

	r.err = &platform.CommandError{Command: "iptables", ExitStatus: 1, Output: "No chain/target/match by that name."}
	if ipt.ChainExists(context.Background(), "nat", "sshuttle-9000") {
		t.Fatal("chain should not exist when listing fails")
	}
}

func TestFlushConntrackDistinguishesNoEntries(t *testing.T) {
	r := &scriptedRunner{err: &platform.CommandError{Command: "conntrack", ExitStatus: 1, Output: "0 flow entries"}}
	ipt := netfilter.New(netfilter.FamilyIPv4, r)

	err := ipt.FlushConntrack(context.Background(), "224.0.0.252")
	if !errors.Is(err, netfilter.ErrNoEntries) {
		t.Fatalf("got %v, want ErrNoEntries", err)
	}

	r.err = &platform.CommandError{Command: "conntrack", ExitStatus: 2, Output: "permission denied"}
	err = ipt.FlushConntrack(context.Background(), "224.0.0.252")
	if errors.Is(err, netfilter.ErrNoEntries) {
		t.Fatal("real failure reported as no-entries")
	}
	var cmdErr *platform.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("got %v, want wrapped CommandError", err)
	}
}
