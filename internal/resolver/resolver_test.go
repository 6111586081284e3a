package resolver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"

	"vpntrack/internal/retry"
)

type fakeExchanger struct {
	answers   map[string]string // fqdn -> IPv4, missing means SERVFAIL-style error
	failFirst int               // number of leading calls that error out
	calls     int
	queried   []string
}

func (f *fakeExchanger) ExchangeContext(_ context.Context, m *dns.Msg, _ string) (*dns.Msg, time.Duration, error) {
	f.calls++
	name := m.Question[0].Name
	f.queried = append(f.queried, name)

	if f.calls <= f.failFirst {
		return nil, 0, errors.New("i/o timeout")
	}

	ip, ok := f.answers[name]
	if !ok {
		return nil, 0, errors.New("SERVFAIL")
	}

	resp := new(dns.Msg)
	resp.SetReply(m)
	resp.Answer = append(resp.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
		A:   net.ParseIP(ip),
	})
	return resp, 0, nil
}

func noSleep(time.Duration) {}

func TestResolveReturnsFirstARecord(t *testing.T) {
	fake := &fakeExchanger{answers: map[string]string{
		"vpn1.example.com.": "198.51.100.7",
		"vpn2.example.com.": "198.51.100.8",
	}}
	r := NewWithExchanger([]string{"1.1.1.1", "1.0.0.1"}, fake, time.Minute, retry.Policy{MaxAttempts: 1, Sleep: noSleep})

	got, err := r.Resolve(context.Background(), []string{"vpn1.example.com", "vpn2.example.com"})
	if err != nil {
		t.Fatalf("Resolve returned %v, want nil", err)
	}
	want := []string{"198.51.100.7", "198.51.100.8"}
	if len(got) != len(want) {
		t.Fatalf("Resolve returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Resolve returned %v, want %v", got, want)
		}
	}
}

func TestResolveDeduplicatesAddresses(t *testing.T) {
	fake := &fakeExchanger{answers: map[string]string{
		"vpn1.example.com.": "198.51.100.7",
		"vpn2.example.com.": "198.51.100.7",
	}}
	r := NewWithExchanger([]string{"1.1.1.1"}, fake, time.Minute, retry.Policy{MaxAttempts: 1, Sleep: noSleep})

	got, err := r.Resolve(context.Background(), []string{"vpn1.example.com", "vpn2.example.com"})
	if err != nil {
		t.Fatalf("Resolve returned %v, want nil", err)
	}
	if len(got) != 1 || got[0] != "198.51.100.7" {
		t.Fatalf("Resolve returned %v, want [198.51.100.7]", got)
	}
}

func TestResolveLiteralAddressSkipsDNS(t *testing.T) {
	fake := &fakeExchanger{answers: map[string]string{}}
	r := NewWithExchanger([]string{"1.1.1.1"}, fake, time.Minute, retry.Policy{MaxAttempts: 1, Sleep: noSleep})

	got, err := r.Resolve(context.Background(), []string{"203.0.113.9"})
	if err != nil {
		t.Fatalf("Resolve returned %v, want nil", err)
	}
	if len(got) != 1 || got[0] != "203.0.113.9" {
		t.Fatalf("Resolve returned %v, want [203.0.113.9]", got)
	}
	if fake.calls != 0 {
		t.Fatalf("Resolve queried DNS %d times for a literal address, want 0", fake.calls)
	}
}

func TestResolveRetriesThenSucceeds(t *testing.T) {
	fake := &fakeExchanger{
		answers:   map[string]string{"vpn1.example.com.": "198.51.100.7"},
		failFirst: 3,
	}
	slept := 0
	// Two nameservers per attempt, so the second attempt's second server answers.
	r := NewWithExchanger([]string{"1.1.1.1", "1.0.0.1"}, fake, time.Minute,
		retry.Policy{MaxAttempts: 3, Delay: time.Second, Sleep: func(time.Duration) { slept++ }})

	got, err := r.Resolve(context.Background(), []string{"vpn1.example.com"})
	if err != nil {
		t.Fatalf("Resolve returned %v, want nil", err)
	}
	if len(got) != 1 || got[0] != "198.51.100.7" {
		t.Fatalf("Resolve returned %v, want [198.51.100.7]", got)
	}
	if slept != 1 {
		t.Fatalf("Resolve slept %d times, want 1", slept)
	}
}

func TestResolveDropsFailingNameWithoutAbortingBatch(t *testing.T) {
	fake := &fakeExchanger{answers: map[string]string{
		"vpn1.example.com.": "198.51.100.7",
	}}
	r := NewWithExchanger([]string{"1.1.1.1"}, fake, time.Minute, retry.Policy{MaxAttempts: 2, Sleep: noSleep})

	got, err := r.Resolve(context.Background(), []string{"dead.example.com", "vpn1.example.com"})
	if err != nil {
		t.Fatalf("Resolve returned %v, want nil", err)
	}
	if len(got) != 1 || got[0] != "198.51.100.7" {
		t.Fatalf("Resolve returned %v, want [198.51.100.7]", got)
	}
}

func TestResolveEmptyResultSignalsNoIPsResolved(t *testing.T) {
	fake := &fakeExchanger{answers: map[string]string{}}
	r := NewWithExchanger([]string{"1.1.1.1"}, fake, time.Minute, retry.Policy{MaxAttempts: 2, Sleep: noSleep})

	_, err := r.Resolve(context.Background(), []string{"dead.example.com"})
	if !errors.Is(err, ErrNoIPsResolved) {
		t.Fatalf("Resolve returned %v, want ErrNoIPsResolved", err)
	}
	// 2 attempts x 1 nameserver.
	if fake.calls != 2 {
		t.Fatalf("Resolve made %d queries, want 2", fake.calls)
	}
}

func TestWithDNSPort(t *testing.T) {
	got := withDNSPort([]string{"1.1.1.1", "9.9.9.9:5353"})
	if got[0] != "1.1.1.1:53" {
		t.Fatalf("withDNSPort returned %q, want %q", got[0], "1.1.1.1:53")
	}
	if got[1] != "9.9.9.9:5353" {
		t.Fatalf("withDNSPort returned %q, want %q", got[1], "9.9.9.9:5353")
	}
}
