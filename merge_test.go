package darkrecon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeTwoProviders(t *testing.T) {
	dns := NewRecord("example.com", TypeDomain)
	dns.Source = "dns"
	dns.Resolved.IP.Add("93.184.216.34")
	dns.Resolved.MX.Add("10 mail.example.com")
	dns.Raw["dns"] = map[string]interface{}{"a": []interface{}{"93.184.216.34"}}

	who := NewRecord("example.com", TypeDomain)
	who.Source = "whois"
	who.Whois.Registrar = "IANA"
	who.Whois.Created = parseTimestamp("1995-08-14T04:00:00Z")
	who.Raw["whois"] = map[string]interface{}{"registrar": "IANA"}

	m := Merge("example.com", TypeDomain, []*Record{dns, who})
	require.Equal(t, SourceMerged, m.Source)
	require.Equal(t, StringSet{"93.184.216.34"}, m.Resolved.IP)
	require.Equal(t, StringSet{"10 mail.example.com"}, m.Resolved.MX)
	require.Equal(t, "IANA", m.Whois.Registrar)
	require.Equal(t, parseTimestamp("1995-08-14T04:00:00Z"), m.Whois.Created)
	require.False(t, m.Risk.Malicious)
	require.Len(t, m.Raw, 2)
	require.Contains(t, m.Raw, "dns")
	require.Contains(t, m.Raw, "whois")
	require.NoError(t, m.Validate())

	// Inputs are not mutated by merge
	require.Equal(t, "dns", dns.Source)
	require.Empty(t, dns.Whois.Registrar)
}

func TestMergeDeduplicates(t *testing.T) {
	a := NewRecord("example.com", TypeDomain)
	a.Source = "a"
	a.Resolved.IP.Add("1.1.1.1", "2.2.2.2")

	b := NewRecord("example.com", TypeDomain)
	b.Source = "b"
	b.Resolved.IP.Add("2.2.2.2", "3.3.3.3")

	m := Merge("example.com", TypeDomain, []*Record{a, b})
	require.Len(t, m.Resolved.IP, 3)
	require.True(t, m.Resolved.IP.Equal(StringSet{"1.1.1.1", "2.2.2.2", "3.3.3.3"}))
}

func TestMergeTimestamps(t *testing.T) {
	a := NewRecord("example.com", TypeDomain)
	a.Source = "a"
	a.Whois.Created = parseTimestamp("2010-01-01")
	a.Whois.Updated = parseTimestamp("2020-01-01")

	b := NewRecord("example.com", TypeDomain)
	b.Source = "b"
	b.Whois.Created = parseTimestamp("2005-06-01")
	b.Whois.Updated = parseTimestamp("2022-06-01")

	m := Merge("example.com", TypeDomain, []*Record{a, b})
	require.Equal(t, parseTimestamp("2005-06-01"), m.Whois.Created)
	require.Equal(t, parseTimestamp("2022-06-01"), m.Whois.Updated)
}

func TestMergeRisk(t *testing.T) {
	a := NewRecord("example.com", TypeDomain)
	a.Source = "a"
	scoreA := 10
	a.Risk.Score = &scoreA

	b := NewRecord("example.com", TypeDomain)
	b.Source = "b"
	scoreB := 80
	b.Risk.Score = &scoreB
	b.Risk.Malicious = true
	b.Risk.Categories.Add("phishing")

	m := Merge("example.com", TypeDomain, []*Record{a, b})
	require.NotNil(t, m.Risk.Score)
	require.Equal(t, 80, *m.Risk.Score)
	require.True(t, m.Risk.Malicious)
	require.Equal(t, StringSet{"phishing"}, m.Risk.Categories)
}

func TestMergeFirstNonEmptyWins(t *testing.T) {
	a := NewRecord("1.2.3.4", TypeIP)
	a.Source = "a"
	a.Network.City = "Amsterdam"

	b := NewRecord("1.2.3.4", TypeIP)
	b.Source = "b"
	b.Network.City = "Berlin"
	b.Network.Country = "DE"

	m := Merge("1.2.3.4", TypeIP, []*Record{a, b})
	require.Equal(t, "Amsterdam", m.Network.City)
	require.Equal(t, "DE", m.Network.Country)

	// Order decides single-value ties
	m2 := Merge("1.2.3.4", TypeIP, []*Record{b, a})
	require.Equal(t, "Berlin", m2.Network.City)
}

func TestMergeSetCommutative(t *testing.T) {
	a := NewRecord("example.com", TypeDomain)
	a.Source = "a"
	a.Resolved.IP.Add("1.1.1.1")
	a.Risk.Categories.Add("spam")

	b := NewRecord("example.com", TypeDomain)
	b.Source = "b"
	b.Resolved.IP.Add("2.2.2.2")
	b.Risk.Categories.Add("phishing")

	ab := Merge("example.com", TypeDomain, []*Record{a, b})
	ba := Merge("example.com", TypeDomain, []*Record{b, a})
	require.True(t, ab.Resolved.IP.Equal(ba.Resolved.IP))
	require.True(t, ab.Risk.Categories.Equal(ba.Risk.Categories))
}

func TestMergeIdempotent(t *testing.T) {
	a := NewRecord("example.com", TypeDomain)
	a.Source = "a"
	a.Resolved.IP.Add("1.1.1.1")
	a.Whois.Registrar = "IANA"
	a.Whois.Created = parseTimestamp("2000-01-01")
	score := 33
	a.Risk.Score = &score
	a.Raw["a"] = map[string]interface{}{"k": "v"}

	b := NewRecord("example.com", TypeDomain)
	b.Source = "b"
	b.Resolved.IP.Add("2.2.2.2")
	b.Raw["b"] = map[string]interface{}{"k": "w"}

	once := Merge("example.com", TypeDomain, []*Record{a, b})
	twice := Merge("example.com", TypeDomain, []*Record{once})
	require.True(t, once.Equal(twice))
	require.Equal(t, once.Raw, twice.Raw)
}

func TestMergeEmptyInput(t *testing.T) {
	m := Merge("example.com", TypeDomain, nil)
	require.Equal(t, SourceMerged, m.Source)
	require.Equal(t, "example.com", m.Target)
	require.Equal(t, TypeDomain, m.Type)
	require.Empty(t, m.Raw)
	require.NoError(t, m.Validate())
}

func TestMergeSingleRecord(t *testing.T) {
	a := NewRecord("example.com", TypeDomain)
	a.Source = "dns"
	a.Resolved.IP.Add("1.1.1.1")
	a.Raw["dns"] = map[string]interface{}{"a": []interface{}{"1.1.1.1"}}

	m := Merge("example.com", TypeDomain, []*Record{a})
	require.Equal(t, SourceMerged, m.Source)
	require.Equal(t, a.Resolved.IP, m.Resolved.IP)
	require.Equal(t, a.Raw["dns"], m.Raw["dns"])
}
