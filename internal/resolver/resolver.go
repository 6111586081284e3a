package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/miekg/dns"

	"vpntrack/internal/domain"
	"vpntrack/internal/retry"
)

// ErrNoIPsResolved means every endpoint in the batch failed to resolve.
var ErrNoIPsResolved = errors.New("resolver: no IP addresses resolved")

// Exchanger is the slice of *dns.Client the resolver needs. Tests inject
// fakes here.
type Exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

// Resolver turns endpoint hostnames into IPv4 addresses by querying a fixed
// nameserver list. Each name is resolved independently; a name that fails
// all retries is dropped, never aborting the batch.
type Resolver struct {
	nameservers []string
	exchanger   Exchanger
	lifetime    time.Duration
	policy      retry.Policy
}

func New(nameservers []string, timeout, lifetime time.Duration, policy retry.Policy) *Resolver {
	return &Resolver{
		nameservers: withDNSPort(nameservers),
		exchanger:   &dns.Client{Timeout: timeout},
		lifetime:    lifetime,
		policy:      policy,
	}
}

// NewWithExchanger is the constructor tests use to swap the DNS client out.
func NewWithExchanger(nameservers []string, exchanger Exchanger, lifetime time.Duration, policy retry.Policy) *Resolver {
	return &Resolver{
		nameservers: withDNSPort(nameservers),
		exchanger:   exchanger,
		lifetime:    lifetime,
		policy:      policy,
	}
}

// Resolve maps names to the deduplicated union of their first A records.
// Literal IPv4 addresses pass through without a DNS query: a real A lookup
// for a dotted quad returns no answer and would silently drop the endpoint.
func (r *Resolver) Resolve(ctx context.Context, names []string) ([]string, error) {
	seen := make(map[string]struct{})
	resolved := make([]string, 0, len(names))

	add := func(ip string) {
		if _, dup := seen[ip]; dup {
			return
		}
		seen[ip] = struct{}{}
		resolved = append(resolved, ip)
	}

	for _, name := range names {
		if domain.IsIPv4(name) {
			add(name)
			continue
		}

		var address string
		err := r.policy.Do(func() error {
			var lookupErr error
			address, lookupErr = r.lookup(ctx, name)
			return lookupErr
		})
		if err != nil {
			log.Warn("Failed to resolve endpoint", "host", name, "error", err)
			continue
		}
		add(address)
	}

	if len(resolved) == 0 {
		return nil, ErrNoIPsResolved
	}
	return resolved, nil
}

// lookup performs one resolution attempt: the configured nameservers are
// tried in order under a shared lifetime budget, and the first A record of
// the first answering server wins.
func (r *Resolver) lookup(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lifetime)
	defer cancel()

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.RecursionDesired = true

	var lastErr error
	for _, ns := range r.nameservers {
		resp, _, err := r.exchanger.ExchangeContext(ctx, m, ns)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		for _, answer := range resp.Answer {
			if a, ok := answer.(*dns.A); ok {
				return a.A.String(), nil
			}
		}
		lastErr = fmt.Errorf("no A records for %s", name)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no nameservers configured")
	}
	return "", lastErr
}

func withDNSPort(nameservers []string) []string {
	out := make([]string, len(nameservers))
	for i, ns := range nameservers {
		if _, _, err := net.SplitHostPort(ns); err != nil && !strings.Contains(ns, ":") {
			ns = net.JoinHostPort(ns, "53")
		}
		out[i] = ns
	}
	return out
}
