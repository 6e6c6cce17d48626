package darkrecon

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
)

// GeoIPProvider looks up locality and ASN facts in local MaxMind
// databases. No network calls are made, which makes it the cheapest
// provider by far; it still runs under the same policies as the rest.
type GeoIPProvider struct {
	opt GeoIPProviderOptions

	once    sync.Once
	cityDB  *maxminddb.Reader
	asnDB   *maxminddb.Reader
	openErr error
}

type GeoIPProviderOptions struct {
	// Path to a GeoLite2/GeoIP2 City database. Defaults to the
	// GEOIP_CITY_DB environment variable.
	CityDBPath string

	// Path to a GeoLite2/GeoIP2 ASN database, optional. Defaults to the
	// GEOIP_ASN_DB environment variable.
	ASNDBPath string
}

var _ Provider = (*GeoIPProvider)(nil)

func NewGeoIPProvider(opt GeoIPProviderOptions) *GeoIPProvider {
	if opt.CityDBPath == "" {
		opt.CityDBPath = os.Getenv("GEOIP_CITY_DB")
	}
	if opt.ASNDBPath == "" {
		opt.ASNDBPath = os.Getenv("GEOIP_ASN_DB")
	}
	return &GeoIPProvider{opt: opt}
}

func (p *GeoIPProvider) Name() string { return "geoip" }

func (p *GeoIPProvider) Supports(t TargetType) bool { return t == TypeIP }

// The database path doubles as the provider's credential: without it the
// provider is skipped rather than failed.
func (p *GeoIPProvider) RequiredCredentials() []string { return []string{"GEOIP_CITY_DB"} }

func (p *GeoIPProvider) open() error {
	p.once.Do(func() {
		db, err := maxminddb.Open(p.opt.CityDBPath)
		if err != nil {
			p.openErr = fmt.Errorf("failed to open geo city database: %w", err)
			return
		}
		p.cityDB = db
		if p.opt.ASNDBPath != "" {
			asn, err := maxminddb.Open(p.opt.ASNDBPath)
			if err != nil {
				logger(p.Name(), "").WithError(err).Warn("failed to open geo asn database, continuing without ASN data")
				return
			}
			p.asnDB = asn
		}
	})
	return p.openErr
}

func (p *GeoIPProvider) Fetch(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error) {
	if err := p.open(); err != nil {
		return nil, err
	}
	ip := net.ParseIP(target)
	if ip == nil {
		return nil, fmt.Errorf("not an IP address: %q", target)
	}

	var city struct {
		City struct {
			Names map[string]string `maxminddb:"names"`
		} `maxminddb:"city"`
		Subdivisions []struct {
			Names map[string]string `maxminddb:"names"`
		} `maxminddb:"subdivisions"`
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}
	if err := p.cityDB.Lookup(ip, &city); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"city":    city.City.Names["en"],
		"country": city.Country.ISOCode,
	}
	if len(city.Subdivisions) > 0 {
		payload["region"] = city.Subdivisions[0].Names["en"]
	}

	if p.asnDB != nil {
		var asn struct {
			Number uint64 `maxminddb:"autonomous_system_number"`
			Org    string `maxminddb:"autonomous_system_organization"`
		}
		if err := p.asnDB.Lookup(ip, &asn); err == nil && asn.Number != 0 {
			payload["asn"] = "AS" + strconv.FormatUint(asn.Number, 10)
			payload["asn_name"] = asn.Org
		}
	}
	return payload, nil
}

func (p *GeoIPProvider) Normalize(raw map[string]interface{}, target string, typ TargetType) (*Record, error) {
	rec := NewRecord(target, typ)
	rec.Source = p.Name()
	rec.Network.City = asString(raw["city"])
	rec.Network.Region = asString(raw["region"])
	rec.Network.Country = asString(raw["country"])
	rec.Network.ASN = asString(raw["asn"])
	rec.Network.ASNName = asString(raw["asn_name"])
	rec.Raw[p.Name()] = raw
	return rec, nil
}

// Close releases the database handles.
func (p *GeoIPProvider) Close() error {
	if p.asnDB != nil {
		p.asnDB.Close()
	}
	if p.cityDB != nil {
		return p.cityDB.Close()
	}
	return nil
}

var geoipDefaults = Descriptor{
	Rate:    RateSpec{Rate: 10, Capacity: 20},
	Timeout: 5 * time.Second,
}
