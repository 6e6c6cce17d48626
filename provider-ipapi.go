package darkrecon

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// IPAPIProvider enriches IP targets with geolocation and network facts
// from the ip-api.com JSON endpoint. The free tier requires no key.
type IPAPIProvider struct {
	endpoint endpoint
}

type IPAPIProviderOptions struct {
	// URI template for the lookup endpoint with a {target} variable.
	Endpoint string
}

const defaultIPAPIEndpoint = "http://ip-api.com/json/{target}?fields=status,message,country,countryCode,regionName,city,isp,org,as,query"

var _ Provider = (*IPAPIProvider)(nil)

func NewIPAPIProvider(opt IPAPIProviderOptions) (*IPAPIProvider, error) {
	if opt.Endpoint == "" {
		opt.Endpoint = defaultIPAPIEndpoint
	}
	ep, err := newEndpoint(opt.Endpoint)
	if err != nil {
		return nil, err
	}
	return &IPAPIProvider{endpoint: ep}, nil
}

func (p *IPAPIProvider) Name() string { return "ipapi" }

func (p *IPAPIProvider) Supports(t TargetType) bool { return t == TypeIP }

func (p *IPAPIProvider) RequiredCredentials() []string { return nil }

func (p *IPAPIProvider) Fetch(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error) {
	u, err := p.endpoint.url(map[string]interface{}{"target": target})
	if err != nil {
		return nil, err
	}
	payload, err := getJSONObject(ctx, defaultHTTPClient, u, nil, "response")
	if err != nil {
		return nil, err
	}
	// The API reports failures in-band with a 200 status
	if asString(payload["status"]) == "fail" {
		return nil, fmt.Errorf("ip-api lookup failed: %s", asString(payload["message"]))
	}
	return payload, nil
}

func (p *IPAPIProvider) Normalize(raw map[string]interface{}, target string, typ TargetType) (*Record, error) {
	rec := NewRecord(target, typ)
	rec.Source = p.Name()
	rec.Network.City = asString(raw["city"])
	rec.Network.Region = asString(raw["regionName"])
	if c := asString(raw["countryCode"]); c != "" {
		rec.Network.Country = c
	} else {
		rec.Network.Country = asString(raw["country"])
	}
	rec.Network.ISP = asString(raw["isp"])
	if rec.Network.ISP == "" {
		rec.Network.ISP = asString(raw["org"])
	}
	rec.Network.ASN, rec.Network.ASNName = splitASN(asString(raw["as"]))
	rec.Raw[p.Name()] = raw
	return rec, nil
}

// splitASN splits ip-api's combined "AS15169 Google LLC" form.
func splitASN(s string) (asn, name string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	asn, name, found := strings.Cut(s, " ")
	if !found {
		return s, ""
	}
	return asn, strings.TrimSpace(name)
}

var ipapiDefaults = Descriptor{
	Rate:    RateSpec{Rate: 10, Capacity: 20},
	Timeout: 10 * time.Second,
}
