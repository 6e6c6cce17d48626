package darkrecon

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"
)

// VirusTotalProvider queries the VirusTotal v3 API for threat
// intelligence about domains, IPs and URLs. Requires an API key.
type VirusTotalProvider struct {
	opt      VirusTotalProviderOptions
	endpoint endpoint
}

type VirusTotalProviderOptions struct {
	// API key. Defaults to the VIRUSTOTAL_API_KEY environment variable.
	APIKey string

	// URI template with {collection} and {id} variables.
	Endpoint string
}

// VirusTotalAPIKeyVar is the environment variable holding the API key.
const VirusTotalAPIKeyVar = "VIRUSTOTAL_API_KEY"

const defaultVirusTotalEndpoint = "https://www.virustotal.com/api/v3/{collection}/{id}"

var _ Provider = (*VirusTotalProvider)(nil)

func NewVirusTotalProvider(opt VirusTotalProviderOptions) (*VirusTotalProvider, error) {
	if opt.APIKey == "" {
		opt.APIKey = os.Getenv(VirusTotalAPIKeyVar)
	}
	if opt.Endpoint == "" {
		opt.Endpoint = defaultVirusTotalEndpoint
	}
	ep, err := newEndpoint(opt.Endpoint)
	if err != nil {
		return nil, err
	}
	return &VirusTotalProvider{opt: opt, endpoint: ep}, nil
}

func (p *VirusTotalProvider) Name() string { return "virustotal" }

func (p *VirusTotalProvider) Supports(t TargetType) bool {
	return t == TypeDomain || t == TypeIP || t == TypeURL
}

func (p *VirusTotalProvider) RequiredCredentials() []string {
	return []string{VirusTotalAPIKeyVar}
}

func (p *VirusTotalProvider) Fetch(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error) {
	var collection, id string
	switch typ {
	case TypeDomain:
		collection, id = "domains", target
	case TypeIP:
		collection, id = "ip_addresses", target
	case TypeURL:
		// URL objects are addressed by the unpadded base64 of the URL
		collection, id = "urls", base64.RawURLEncoding.EncodeToString([]byte(target))
	default:
		return nil, fmt.Errorf("unsupported target type %q", typ)
	}
	u, err := p.endpoint.url(map[string]interface{}{"collection": collection, "id": id})
	if err != nil {
		return nil, err
	}
	header := http.Header{"X-Apikey": []string{p.opt.APIKey}}
	return getJSONObject(ctx, defaultHTTPClient, u, header, "response")
}

func (p *VirusTotalProvider) Normalize(raw map[string]interface{}, target string, typ TargetType) (*Record, error) {
	rec := NewRecord(target, typ)
	rec.Source = p.Name()

	stats := asMap(dig(raw, "data", "attributes", "last_analysis_stats"))
	if stats != nil {
		malicious := asFloat(stats["malicious"])
		suspicious := asFloat(stats["suspicious"])
		total := malicious + suspicious +
			asFloat(stats["harmless"]) + asFloat(stats["undetected"]) + asFloat(stats["timeout"])
		score, flagged := detectionScore(malicious, suspicious, total)
		rec.Risk.Score = &score
		rec.Risk.Malicious = flagged
	}

	// Domain/URL objects carry categorization verdicts keyed by engine
	for _, v := range asMap(dig(raw, "data", "attributes", "categories")) {
		if s := asString(v); s != "" {
			rec.Risk.Categories.Add(s)
		}
	}

	rec.Raw[p.Name()] = raw
	return rec, nil
}

var virustotalDefaults = Descriptor{
	Rate:    RateSpec{Rate: 10, Capacity: 20},
	Timeout: 30 * time.Second,
}
