package darkrecon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DNSProvider resolves the standard record types for a domain against a
// recursive resolver and reports them as passive-DNS style facts.
type DNSProvider struct {
	opt    DNSProviderOptions
	client *dns.Client
}

type DNSProviderOptions struct {
	// Address of the recursive resolver, host:port. Default "1.1.1.1:53".
	Resolver string

	// "udp" or "tcp", default udp with tcp fallback on truncation.
	Protocol string
}

var _ Provider = (*DNSProvider)(nil)

func NewDNSProvider(opt DNSProviderOptions) *DNSProvider {
	if opt.Resolver == "" {
		opt.Resolver = "1.1.1.1:53"
	}
	if opt.Protocol == "" {
		opt.Protocol = "udp"
	}
	return &DNSProvider{
		opt:    opt,
		client: &dns.Client{Net: opt.Protocol},
	}
}

func (p *DNSProvider) Name() string { return "dns" }

func (p *DNSProvider) Supports(t TargetType) bool { return t == TypeDomain }

func (p *DNSProvider) RequiredCredentials() []string { return nil }

var dnsQueryTypes = []struct {
	key   string
	qtype uint16
}{
	{"a", dns.TypeA},
	{"aaaa", dns.TypeAAAA},
	{"mx", dns.TypeMX},
	{"ns", dns.TypeNS},
	{"txt", dns.TypeTXT},
}

func (p *DNSProvider) Fetch(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error) {
	fqdn := dns.Fqdn(target)
	payload := make(map[string]interface{}, len(dnsQueryTypes))
	for _, qt := range dnsQueryTypes {
		values, err := p.query(ctx, fqdn, qt.qtype)
		if err != nil {
			return nil, fmt.Errorf("%s lookup for %s: %w", strings.ToUpper(qt.key), target, err)
		}
		payload[qt.key] = values
	}
	return payload, nil
}

func (p *DNSProvider) query(ctx context.Context, fqdn string, qtype uint16) ([]interface{}, error) {
	q := new(dns.Msg)
	q.SetQuestion(fqdn, qtype)
	q.RecursionDesired = true

	a, _, err := p.client.ExchangeContext(ctx, q, p.opt.Resolver)
	if err != nil {
		return nil, err
	}
	// Retry truncated answers over TCP
	if a.Truncated && p.opt.Protocol != "tcp" {
		tcp := &dns.Client{Net: "tcp"}
		a, _, err = tcp.ExchangeContext(ctx, q, p.opt.Resolver)
		if err != nil {
			return nil, err
		}
	}
	values := []interface{}{}
	if a.Rcode != dns.RcodeSuccess {
		return values, nil
	}
	for _, rr := range a.Answer {
		switch r := rr.(type) {
		case *dns.A:
			values = append(values, r.A.String())
		case *dns.AAAA:
			values = append(values, r.AAAA.String())
		case *dns.MX:
			values = append(values, fmt.Sprintf("%d %s", r.Preference, strings.TrimSuffix(r.Mx, ".")))
		case *dns.NS:
			values = append(values, strings.TrimSuffix(r.Ns, "."))
		case *dns.TXT:
			values = append(values, strings.Join(r.Txt, ""))
		}
	}
	return values, nil
}

func (p *DNSProvider) Normalize(raw map[string]interface{}, target string, typ TargetType) (*Record, error) {
	rec := NewRecord(target, typ)
	rec.Source = p.Name()
	rec.Resolved.IP.Add(asStrings(raw["a"])...)
	rec.Resolved.IP.Add(asStrings(raw["aaaa"])...)
	rec.Resolved.MX.Add(asStrings(raw["mx"])...)
	rec.Resolved.NS.Add(asStrings(raw["ns"])...)
	rec.Resolved.TXT.Add(asStrings(raw["txt"])...)
	rec.Raw[p.Name()] = raw
	return rec, nil
}

// default registration values
var dnsDefaults = Descriptor{
	Rate:    RateSpec{Rate: 5, Capacity: 10},
	Timeout: 10 * time.Second,
}
