package darkrecon

import (
	"context"
	"time"
)

// InternetDBProvider queries Shodan's InternetDB for open ports, known
// vulnerabilities and tags of an IP. The endpoint is free and keyless but
// aggressively rate limited, hence the 1/s bucket.
type InternetDBProvider struct {
	endpoint endpoint
}

type InternetDBProviderOptions struct {
	// URI template for the lookup endpoint with a {target} variable.
	Endpoint string
}

const defaultInternetDBEndpoint = "https://internetdb.shodan.io/{target}"

var _ Provider = (*InternetDBProvider)(nil)

func NewInternetDBProvider(opt InternetDBProviderOptions) (*InternetDBProvider, error) {
	if opt.Endpoint == "" {
		opt.Endpoint = defaultInternetDBEndpoint
	}
	ep, err := newEndpoint(opt.Endpoint)
	if err != nil {
		return nil, err
	}
	return &InternetDBProvider{endpoint: ep}, nil
}

func (p *InternetDBProvider) Name() string { return "internetdb" }

func (p *InternetDBProvider) Supports(t TargetType) bool { return t == TypeIP }

func (p *InternetDBProvider) RequiredCredentials() []string { return nil }

func (p *InternetDBProvider) Fetch(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error) {
	u, err := p.endpoint.url(map[string]interface{}{"target": target})
	if err != nil {
		return nil, err
	}
	return getJSONObject(ctx, defaultHTTPClient, u, nil, "response")
}

func (p *InternetDBProvider) Normalize(raw map[string]interface{}, target string, typ TargetType) (*Record, error) {
	rec := NewRecord(target, typ)
	rec.Source = p.Name()

	rec.Risk.Categories.Add(asStrings(raw["tags"])...)

	// No detection counts here; vulnerability count stands in as the
	// threat signal.
	vulns := asStrings(raw["vulns"])
	if len(vulns) > 0 {
		score := 10 * len(vulns)
		if score > 100 {
			score = 100
		}
		rec.Risk.Score = &score
		rec.Risk.Malicious = true
	}

	rec.Raw[p.Name()] = raw
	return rec, nil
}

var internetdbDefaults = Descriptor{
	Rate:    RateSpec{Rate: 1, Capacity: 1},
	Timeout: 15 * time.Second,
}
