// Package dns serves the local listener that the compiled firewall rules
// redirect intercepted DNS traffic to. Queries are relayed to the policy's
// real nameservers, so interception is invisible to clients.
package dns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/egorlepa/shuttlefw/internal/firewall"
	"github.com/egorlepa/shuttlefw/internal/netfilter"
)

// Forwarder is a DNS proxy listening on the policy's DNS port. Upstreams
// are tried in order; a truncated UDP answer is retried over TCP.
type Forwarder struct {
	listenAddr string // e.g. "127.0.0.1:12301"
	upstreams  []string
	client     *dns.Client
	udpServer  *dns.Server
	tcpServer  *dns.Server
	logger     *slog.Logger
}

// Upstreams returns the "addr:53" endpoints for the policy's nameservers,
// keeping only the family the rules intercept and preserving their order.
func Upstreams(p firewall.Policy) []string {
	var out []string
	for _, ns := range p.Nameservers {
		if ns.Family != p.Family {
			continue
		}
		out = append(out, net.JoinHostPort(ns.Addr, "53"))
	}
	return out
}

// NewForwarder creates a forwarder for the policy's DNS port.
func NewForwarder(p firewall.Policy, logger *slog.Logger) *Forwarder {
	listen := net.JoinHostPort(listenHost(p.Family), fmt.Sprintf("%d", p.DNSPort))
	return &Forwarder{
		listenAddr: listen,
		upstreams:  Upstreams(p),
		client:     &dns.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

func listenHost(family netfilter.Family) string {
	if family == netfilter.FamilyIPv6 {
		return "::1"
	}
	return "127.0.0.1"
}

// Start begins serving DNS on UDP and TCP. It returns once both listeners
// are ready. Call Stop to shut down.
func (f *Forwarder) Start() error {
	handler := dns.HandlerFunc(f.handleQuery)

	f.udpServer = &dns.Server{Addr: f.listenAddr, Net: "udp", Handler: handler}
	f.tcpServer = &dns.Server{Addr: f.listenAddr, Net: "tcp", Handler: handler}

	udpReady := make(chan struct{})
	tcpReady := make(chan struct{})
	f.udpServer.NotifyStartedFunc = func() { close(udpReady) }
	f.tcpServer.NotifyStartedFunc = func() { close(tcpReady) }

	errCh := make(chan error, 2)
	go func() { errCh <- f.udpServer.ListenAndServe() }()
	go func() { errCh <- f.tcpServer.ListenAndServe() }()

	for i := 0; i < 2; i++ {
		select {
		case <-udpReady:
			udpReady = nil
		case <-tcpReady:
			tcpReady = nil
		case err := <-errCh:
			f.Stop()
			return fmt.Errorf("dns forwarder start: %w", err)
		}
	}

	f.logger.Info("dns forwarder started", "listen", f.listenAddr, "upstreams", f.upstreams)
	return nil
}

// Stop gracefully shuts down both servers.
func (f *Forwarder) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if f.udpServer != nil {
		f.udpServer.ShutdownContext(ctx)
	}
	if f.tcpServer != nil {
		f.tcpServer.ShutdownContext(ctx)
	}
}

func (f *Forwarder) handleQuery(w dns.ResponseWriter, r *dns.Msg) {
	if len(r.Question) == 0 {
		return
	}

	for _, upstream := range f.upstreams {
		resp, _, err := f.client.Exchange(r, upstream)
		if err != nil {
			f.logger.Debug("upstream exchange failed", "upstream", upstream, "error", err)
			continue
		}
		if resp.Truncated {
			tcp := &dns.Client{Net: "tcp", Timeout: f.client.Timeout}
			resp, _, err = tcp.Exchange(r, upstream)
			if err != nil {
				f.logger.Debug("upstream TCP retry failed", "upstream", upstream, "error", err)
				continue
			}
		}
		w.WriteMsg(resp)
		return
	}

	m := new(dns.Msg)
	m.SetRcode(r, dns.RcodeServerFailure)
	w.WriteMsg(m)
}
