package darkrecon

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/openrdap/rdap"
)

// RDAPProvider queries the RDAP successor protocol to WHOIS. Unlike
// port-43 WHOIS the responses are structured JSON, which makes the
// registration facts far more reliable to extract.
type RDAPProvider struct {
	client *rdap.Client
}

type RDAPProviderOptions struct {
}

var _ Provider = (*RDAPProvider)(nil)

func NewRDAPProvider(opt RDAPProviderOptions) *RDAPProvider {
	client := &rdap.Client{HTTP: defaultHTTPClient}
	return &RDAPProvider{client: client}
}

func (p *RDAPProvider) Name() string { return "rdap" }

func (p *RDAPProvider) Supports(t TargetType) bool { return t == TypeDomain || t == TypeIP }

func (p *RDAPProvider) RequiredCredentials() []string { return nil }

func (p *RDAPProvider) Fetch(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error) {
	reqType := rdap.DomainRequest
	if typ == TypeIP {
		reqType = rdap.IPRequest
	}
	req := (&rdap.Request{Type: reqType, Query: target}).WithContext(ctx)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	// Flatten the typed response into plain data so the raw payload
	// round-trips through JSON unchanged.
	data, err := json.Marshal(resp.Object)
	if err != nil {
		return nil, &decodeError{cause: err}
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &decodeError{cause: err}
	}
	return payload, nil
}

func (p *RDAPProvider) Normalize(raw map[string]interface{}, target string, typ TargetType) (*Record, error) {
	rec := NewRecord(target, typ)
	rec.Source = p.Name()

	for _, ev := range asSlice(raw["events"]) {
		evm := asMap(ev)
		t := parseTimestamp(asString(evm["eventDate"]))
		if t == nil {
			continue
		}
		switch strings.ToLower(asString(evm["eventAction"])) {
		case "registration":
			rec.Whois.Created = t
		case "last changed", "last update of rdap database":
			if rec.Whois.Updated == nil || t.After(*rec.Whois.Updated) {
				rec.Whois.Updated = t
			}
		case "expiration":
			rec.Whois.Expires = t
		}
	}

	for _, ent := range asSlice(raw["entities"]) {
		entm := asMap(ent)
		roles := asStrings(entm["roles"])
		name := vcardName(entm["vcardArray"])
		for _, role := range roles {
			switch strings.ToLower(role) {
			case "registrar":
				if rec.Whois.Registrar == "" {
					rec.Whois.Registrar = name
				}
			case "registrant":
				if rec.Whois.Org == "" {
					rec.Whois.Org = name
				}
			}
		}
	}

	if typ == TypeIP {
		if c := asString(raw["country"]); c != "" {
			rec.Network.Country = strings.ToUpper(c)
		}
		if rec.Whois.Org == "" {
			rec.Whois.Org = asString(raw["name"])
		}
	}

	rec.Raw[p.Name()] = raw
	return rec, nil
}

// vcardName extracts the formatted name from a jCard structure:
// ["vcard", [["fn", {}, "text", "Example Inc."], ...]]
func vcardName(v interface{}) string {
	arr := asSlice(v)
	if len(arr) < 2 {
		return ""
	}
	for _, prop := range asSlice(arr[1]) {
		fields := asSlice(prop)
		if len(fields) < 4 {
			continue
		}
		if asString(fields[0]) == "fn" {
			return asString(fields[3])
		}
	}
	return ""
}

var rdapDefaults = Descriptor{
	Rate:    RateSpec{Rate: 5, Capacity: 10},
	Timeout: 15 * time.Second,
}
