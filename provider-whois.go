package darkrecon

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/domainr/whois"
)

// WhoisProvider queries port-43 WHOIS for registration facts about a
// domain or IP. The response body is free-form text; normalization scans
// it for the common "Key: value" lines.
type WhoisProvider struct {
	opt WhoisProviderOptions
}

type WhoisProviderOptions struct {
	// Override the WHOIS server instead of following IANA referrals.
	Host string
}

var _ Provider = (*WhoisProvider)(nil)

func NewWhoisProvider(opt WhoisProviderOptions) *WhoisProvider {
	return &WhoisProvider{opt: opt}
}

func (p *WhoisProvider) Name() string { return "whois" }

func (p *WhoisProvider) Supports(t TargetType) bool { return t == TypeDomain || t == TypeIP }

func (p *WhoisProvider) RequiredCredentials() []string { return nil }

func (p *WhoisProvider) Fetch(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error) {
	req, err := whois.NewRequest(target)
	if err != nil {
		return nil, err
	}
	if p.opt.Host != "" {
		req.Host = p.opt.Host
	}
	resp, err := whois.DefaultClient.FetchContext(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"host": req.Host,
		"body": string(resp.Body),
	}, nil
}

func (p *WhoisProvider) Normalize(raw map[string]interface{}, target string, typ TargetType) (*Record, error) {
	rec := NewRecord(target, typ)
	rec.Source = p.Name()
	body := asString(raw["body"])

	if v := findWhoisValue(body, "Registrar", "Sponsoring Registrar"); v != "" {
		rec.Whois.Registrar = v
	}
	if v := findWhoisValue(body, "Registrant Organization", "Organization", "OrgName", "org-name", "org"); v != "" {
		rec.Whois.Org = v
	}
	if v := findWhoisValue(body, "Registrant Country", "Country", "country"); v != "" {
		rec.Whois.Country = strings.ToUpper(v)
	}
	if t := parseTimestamp(findWhoisValue(body, "Creation Date", "Created On", "Registered", "created")); t != nil {
		rec.Whois.Created = t
	}
	if t := parseTimestamp(findWhoisValue(body, "Updated Date", "Last Updated On", "last-modified", "changed")); t != nil {
		rec.Whois.Updated = t
	}
	if t := parseTimestamp(findWhoisValue(body,
		"Registry Expiry Date", "Expiration Date", "Expiry Date", "Expires",
		"Registrar Registration Expiration Date")); t != nil {
		rec.Whois.Expires = t
	}
	rec.Whois.Emails.Add(findEmails(body)...)

	rec.Raw[p.Name()] = raw
	return rec, nil
}

// findWhoisValue scans a WHOIS body for the first "Key: value" line whose
// key matches one of the given keys, case-insensitively. It tolerates
// variable spacing around the colon.
func findWhoisValue(body string, keys ...string) string {
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[strings.ToLower(strings.TrimSpace(k))] = struct{}{}
	}
	for _, line := range strings.Split(body, "\n") {
		l := strings.TrimSpace(line)
		if l == "" || strings.HasPrefix(l, "%") || strings.HasPrefix(l, "#") {
			continue
		}
		idx := strings.IndexByte(l, ':')
		if idx <= 0 {
			continue
		}
		left := strings.ToLower(strings.TrimSpace(l[:idx]))
		right := strings.TrimSpace(l[idx+1:])
		if _, ok := keySet[left]; ok && right != "" {
			return right
		}
	}
	return ""
}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

func findEmails(body string) []string {
	matches := emailRe.FindAllString(body, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToLower(m))
	}
	return out
}

var whoisDefaults = Descriptor{
	Rate:    RateSpec{Rate: 5, Capacity: 10},
	Timeout: 15 * time.Second,
}
