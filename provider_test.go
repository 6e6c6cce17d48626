package darkrecon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryOrder(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		err := reg.Register(&TestProvider{ProviderName: name}, RateSpec{Rate: 1, Capacity: 1}, 0)
		require.NoError(t, err)
	}
	// Insertion order, not lexical order
	require.Equal(t, []string{"c", "a", "b"}, reg.Names())

	providers, err := reg.Select(TypeDomain, nil)
	require.NoError(t, err)
	require.Len(t, providers, 3)
	require.Equal(t, "c", providers[0].Name())
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&TestProvider{ProviderName: "dup"}, RateSpec{}, 0))
	require.Error(t, reg.Register(&TestProvider{ProviderName: "dup"}, RateSpec{}, 0))
}

func TestRegistrySelect(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&TestProvider{ProviderName: "domains-only", Types: []TargetType{TypeDomain}}, RateSpec{}, 0))
	require.NoError(t, reg.Register(&TestProvider{ProviderName: "ips-only", Types: []TargetType{TypeIP}}, RateSpec{}, 0))

	providers, err := reg.Select(TypeDomain, nil)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	require.Equal(t, "domains-only", providers[0].Name())

	// Requested subset intersected with type support
	providers, err = reg.Select(TypeDomain, []string{"ips-only"})
	require.NoError(t, err)
	require.Empty(t, providers)

	// Unknown provider names are a hard error
	_, err = reg.Select(TypeDomain, []string{"nope"})
	require.Error(t, err)
}

func TestRegistryDescriptor(t *testing.T) {
	reg := NewRegistry()
	p := &TestProvider{ProviderName: "p", Types: []TargetType{TypeDomain, TypeIP}, Credentials: []string{"P_API_KEY"}}
	require.NoError(t, reg.Register(p, RateSpec{Rate: 2, Capacity: 4}, 5*time.Second))

	d, ok := reg.Descriptor("p")
	require.True(t, ok)
	require.Equal(t, "p", d.Name)
	require.Equal(t, []TargetType{TypeDomain, TypeIP}, d.Types)
	require.Equal(t, []string{"P_API_KEY"}, d.Credentials)
	require.Equal(t, RateSpec{Rate: 2, Capacity: 4}, d.Rate)
	require.Equal(t, 5*time.Second, d.Timeout)

	// Missing timeout falls back to the default
	require.NoError(t, reg.Register(&TestProvider{ProviderName: "q"}, RateSpec{}, 0))
	d, _ = reg.Descriptor("q")
	require.Equal(t, DefaultProviderTimeout, d.Timeout)
}

func TestRegisterDefaultProviders(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterDefaultProviders(reg))
	require.Equal(t,
		[]string{"dns", "whois", "rdap", "geoip", "ipapi", "crtsh", "virustotal", "internetdb"},
		reg.Names())

	domains, err := reg.Select(TypeDomain, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(domains))
	for _, p := range domains {
		names = append(names, p.Name())
	}
	require.Equal(t, []string{"dns", "whois", "rdap", "crtsh", "virustotal"}, names)

	urls, err := reg.Select(TypeURL, nil)
	require.NoError(t, err)
	require.Len(t, urls, 1)
	require.Equal(t, "virustotal", urls[0].Name())
}
