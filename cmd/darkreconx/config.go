package main

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	darkrecon "github.com/GeoAziz/DarkReconX"
)

type config struct {
	Title   string
	Engine  engineConfig
	Cache   cacheConfig
	ScanLog scanLogConfig `toml:"scan-log"`

	Providers map[string]providerConfig
}

type engineConfig struct {
	MaxWorkers    int `toml:"max-workers"`    // provider units in flight, default 50
	Timeout       int `toml:"timeout"`        // per-provider deadline in seconds, overrides each provider's default
	Deadline      int `toml:"deadline"`       // per-target deadline in seconds, default 60
	RetryAttempts int `toml:"retry-attempts"` // default 3
}

type cacheConfig struct {
	Backend      string `toml:"backend"` // memory, disk, redis or sqlite, default memory
	TTL          int    `toml:"ttl"`     // default entry TTL in seconds, default 86400
	Dir          string `toml:"dir"`     // directory for the disk backend
	SQLitePath   string `toml:"sqlite-path"`
	RedisAddress string `toml:"redis-address"`
	RedisDB      int    `toml:"redis-db"`
	KeyPrefix    string `toml:"key-prefix"` // prefix for redis keys
}

type scanLogConfig struct {
	File   string
	Syslog string // udp:host:port or tcp:host:port
}

type providerConfig struct {
	APIKey   string  `toml:"api-key"`
	Endpoint string  `toml:"endpoint"`
	Rate     float64 `toml:"rate"`     // tokens per second
	Capacity float64 `toml:"capacity"` // bucket size
	Timeout  int     `toml:"timeout"`  // seconds

	// dns provider
	Resolver string `toml:"resolver"`

	// geoip provider
	CityDB string `toml:"city-db"`
	ASNDB  string `toml:"asn-db"`
}

// loadConfig reads the TOML config file. A missing path yields the zero
// config, which resolves to the built-in defaults.
func loadConfig(path string) (config, error) {
	var cfg config
	if path == "" {
		return cfg, nil
	}
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}

// Environment variables recognized per the published contract. Values
// here sit between the config file and the CLI flags in precedence.
const (
	envCacheTTL      = "CACHE_TTL"
	envNoCache       = "NO_CACHE"
	envRefreshCache  = "REFRESH_CACHE"
	envMaxWorkers    = "MAX_WORKERS"
	envTimeout       = "TIMEOUT"
	envRetryAttempts = "RETRY_ATTEMPTS"
)

// applyEnv overlays recognized environment variables onto the file
// config.
func (cfg *config) applyEnv() {
	if v, ok := envInt(envCacheTTL); ok {
		cfg.Cache.TTL = v
	}
	if v, ok := envInt(envMaxWorkers); ok {
		cfg.Engine.MaxWorkers = v
	}
	if v, ok := envInt(envTimeout); ok {
		cfg.Engine.Timeout = v
	}
	if v, ok := envInt(envRetryAttempts); ok {
		cfg.Engine.RetryAttempts = v
	}
}

func envInt(name string) (int, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(name string) bool {
	switch os.Getenv(name) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

// buildRegistry constructs the provider set with per-provider config
// applied, in the canonical registration order.
func buildRegistry(cfg config) (*darkrecon.Registry, error) {
	reg := darkrecon.NewRegistry()

	pc := func(name string) providerConfig { return cfg.Providers[name] }
	rate := func(name string, def darkrecon.RateSpec) darkrecon.RateSpec {
		c := pc(name)
		if c.Rate > 0 && c.Capacity > 0 {
			return darkrecon.RateSpec{Rate: c.Rate, Capacity: c.Capacity}
		}
		return def
	}
	timeout := func(name string, def time.Duration) time.Duration {
		if c := pc(name); c.Timeout > 0 {
			return time.Duration(c.Timeout) * time.Second
		}
		if cfg.Engine.Timeout > 0 {
			return time.Duration(cfg.Engine.Timeout) * time.Second
		}
		return def
	}

	dns := darkrecon.NewDNSProvider(darkrecon.DNSProviderOptions{Resolver: pc("dns").Resolver})
	if err := reg.Register(dns, rate("dns", darkrecon.RateSpec{Rate: 5, Capacity: 10}), timeout("dns", 10*time.Second)); err != nil {
		return nil, err
	}

	who := darkrecon.NewWhoisProvider(darkrecon.WhoisProviderOptions{})
	if err := reg.Register(who, rate("whois", darkrecon.RateSpec{Rate: 5, Capacity: 10}), timeout("whois", 15*time.Second)); err != nil {
		return nil, err
	}

	rdap := darkrecon.NewRDAPProvider(darkrecon.RDAPProviderOptions{})
	if err := reg.Register(rdap, rate("rdap", darkrecon.RateSpec{Rate: 5, Capacity: 10}), timeout("rdap", 15*time.Second)); err != nil {
		return nil, err
	}

	geo := darkrecon.NewGeoIPProvider(darkrecon.GeoIPProviderOptions{
		CityDBPath: pc("geoip").CityDB,
		ASNDBPath:  pc("geoip").ASNDB,
	})
	if err := reg.Register(geo, rate("geoip", darkrecon.RateSpec{Rate: 10, Capacity: 20}), timeout("geoip", 5*time.Second)); err != nil {
		return nil, err
	}

	ipapi, err := darkrecon.NewIPAPIProvider(darkrecon.IPAPIProviderOptions{Endpoint: pc("ipapi").Endpoint})
	if err != nil {
		return nil, err
	}
	if err := reg.Register(ipapi, rate("ipapi", darkrecon.RateSpec{Rate: 10, Capacity: 20}), timeout("ipapi", 10*time.Second)); err != nil {
		return nil, err
	}

	crtsh, err := darkrecon.NewCrtshProvider(darkrecon.CrtshProviderOptions{Endpoint: pc("crtsh").Endpoint})
	if err != nil {
		return nil, err
	}
	if err := reg.Register(crtsh, rate("crtsh", darkrecon.RateSpec{Rate: 2, Capacity: 10}), timeout("crtsh", 30*time.Second)); err != nil {
		return nil, err
	}

	vt, err := darkrecon.NewVirusTotalProvider(darkrecon.VirusTotalProviderOptions{
		APIKey:   pc("virustotal").APIKey,
		Endpoint: pc("virustotal").Endpoint,
	})
	if err != nil {
		return nil, err
	}
	if err := reg.Register(vt, rate("virustotal", darkrecon.RateSpec{Rate: 10, Capacity: 20}), timeout("virustotal", 30*time.Second)); err != nil {
		return nil, err
	}

	idb, err := darkrecon.NewInternetDBProvider(darkrecon.InternetDBProviderOptions{Endpoint: pc("internetdb").Endpoint})
	if err != nil {
		return nil, err
	}
	if err := reg.Register(idb, rate("internetdb", darkrecon.RateSpec{Rate: 1, Capacity: 1}), timeout("internetdb", 15*time.Second)); err != nil {
		return nil, err
	}

	return reg, nil
}

// buildCacheBackend constructs the configured cache backend. The memory
// backend is the default.
func buildCacheBackend(cfg cacheConfig) (darkrecon.CacheBackend, error) {
	switch cfg.Backend {
	case "", "memory":
		return darkrecon.NewMemoryBackend(darkrecon.MemoryBackendOptions{}), nil
	case "disk":
		dir := cfg.Dir
		if dir == "" {
			home, err := os.UserCacheDir()
			if err != nil {
				return nil, err
			}
			dir = home + "/darkreconx"
		}
		return darkrecon.NewDiskBackend(dir)
	case "redis":
		opt := darkrecon.RedisBackendOptions{KeyPrefix: cfg.KeyPrefix}
		opt.RedisOptions.Addr = cfg.RedisAddress
		opt.RedisOptions.DB = cfg.RedisDB
		return darkrecon.NewRedisBackend(opt), nil
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			home, err := os.UserCacheDir()
			if err != nil {
				return nil, err
			}
			path = home + "/darkreconx.db"
		}
		return darkrecon.NewSQLiteBackend(path)
	}
	return nil, errUnknownBackend(cfg.Backend)
}

type errUnknownBackend string

func (e errUnknownBackend) Error() string { return "unknown cache backend '" + string(e) + "'" }

// credentialLookup resolves credential names against provider config
// first, then the environment.
func credentialLookup(cfg config) func(string) string {
	return func(name string) string {
		switch name {
		case darkrecon.VirusTotalAPIKeyVar:
			if k := cfg.Providers["virustotal"].APIKey; k != "" {
				return k
			}
		case "GEOIP_CITY_DB":
			if p := cfg.Providers["geoip"].CityDB; p != "" {
				return p
			}
		}
		return os.Getenv(name)
	}
}
