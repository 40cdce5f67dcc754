package firewall

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/egorlepa/shuttlefw/internal/platform"
)

// Method abstracts a rule-installation backend.
type Method interface {
	// Name returns the method identifier.
	Name() string

	// Setup installs the redirection rules for a policy. It tears down
	// any prior rules for the same port first, so it is safe to call on
	// a live instance.
	Setup(ctx context.Context, p Policy) error

	// Teardown removes all rules Setup installed for the policy's port.
	// Calling it when nothing is installed is a no-op.
	Teardown(ctx context.Context, p Policy) error

	// IsSupported reports whether the backend's tooling is present on
	// this host.
	IsSupported() bool

	// Features returns the capability set of the method.
	Features() Features
}

// Features is the fixed capability record a method reports so callers can
// select a backend.
type Features struct {
	User bool
	DNS  bool
	UDP  bool
	IPv6 bool
}

// Methods returns the available backends in preference order.
func Methods(runner platform.Runner, logger *slog.Logger) []Method {
	return []Method{NewNAT(runner, logger)}
}

// Pick returns the first supported backend.
func Pick(runner platform.Runner, logger *slog.Logger) (Method, error) {
	for _, m := range Methods(runner, logger) {
		if m.IsSupported() {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no supported firewall method found")
}
