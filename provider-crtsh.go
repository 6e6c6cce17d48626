package darkrecon

import (
	"context"
	"time"
)

// CrtshProvider queries the crt.sh certificate transparency database for
// certificates issued for a domain. The unified record has no certificate
// family, so the provider's contribution is the verbatim certificate list
// in the raw payload; downstream consumers mine it for issuance history
// and related names.
type CrtshProvider struct {
	endpoint endpoint
}

type CrtshProviderOptions struct {
	// URI template for the lookup endpoint with a {target} variable.
	Endpoint string
}

const defaultCrtshEndpoint = "https://crt.sh/?q={target}&output=json"

var _ Provider = (*CrtshProvider)(nil)

func NewCrtshProvider(opt CrtshProviderOptions) (*CrtshProvider, error) {
	if opt.Endpoint == "" {
		opt.Endpoint = defaultCrtshEndpoint
	}
	ep, err := newEndpoint(opt.Endpoint)
	if err != nil {
		return nil, err
	}
	return &CrtshProvider{endpoint: ep}, nil
}

func (p *CrtshProvider) Name() string { return "crtsh" }

func (p *CrtshProvider) Supports(t TargetType) bool { return t == TypeDomain }

func (p *CrtshProvider) RequiredCredentials() []string { return nil }

func (p *CrtshProvider) Fetch(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error) {
	u, err := p.endpoint.url(map[string]interface{}{"target": target})
	if err != nil {
		return nil, err
	}
	// crt.sh returns a JSON array of certificate entries
	return getJSONObject(ctx, defaultHTTPClient, u, nil, "certificates")
}

func (p *CrtshProvider) Normalize(raw map[string]interface{}, target string, typ TargetType) (*Record, error) {
	rec := NewRecord(target, typ)
	rec.Source = p.Name()
	rec.Raw[p.Name()] = raw
	return rec, nil
}

var crtshDefaults = Descriptor{
	Rate:    RateSpec{Rate: 2, Capacity: 10},
	Timeout: 30 * time.Second,
}
