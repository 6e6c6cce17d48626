/*
Package darkrecon implements a concurrent OSINT enrichment engine. Given
one or more targets (domains, IPs, URLs, emails) it fans out queries to a
set of third-party providers, normalizes the provider-specific responses
into a single record shape, and merges the per-provider records into one
unified record per target. There are four fundamental kinds of objects in
this library.

# Providers

Providers wrap a single remote data source (passive DNS, WHOIS, RDAP, IP
geolocation, certificate transparency, threat intelligence, port/service
data). Each exposes a single-attempt Fetch returning the provider's raw
payload, and a pure Normalize mapping that payload to a unified Record.

# Registry

The Registry holds providers in insertion order. That order is canonical:
it decides which provider wins when merging single-valued fields.

# Policies

Every outbound call is regulated by a per-provider token-bucket rate
limiter and a retry policy that distinguishes transient from permanent
failures. Successful results are cached under a (target, provider)
fingerprint with a TTL; several cache backends are available.

# Engine

The Engine orchestrates a scan: it fans out per-target provider calls with
a bounded number of workers, tolerates partial failure, and merges the
per-provider records. A minimal scan:

	reg := darkrecon.NewRegistry()
	reg.Register(darkrecon.NewDNSProvider(darkrecon.DNSProviderOptions{}),
		darkrecon.RateSpec{Rate: 5, Capacity: 10}, 10*time.Second)
	eng := darkrecon.NewEngine(reg, darkrecon.EngineOptions{})
	results, err := eng.Enrich(context.Background(), darkrecon.Query{
		Targets: []string{"example.com"},
		Type:    darkrecon.TypeDomain,
	})
*/
package darkrecon
