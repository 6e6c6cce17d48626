package darkrecon

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStringSet(t *testing.T) {
	var s StringSet
	s.Add("a", "b", "a", "", "c", "b")
	require.Equal(t, StringSet{"a", "b", "c"}, s)
	require.True(t, s.Contains("b"))
	require.False(t, s.Contains("d"))

	other := StringSet{"c", "a", "b"}
	require.True(t, s.Equal(other))
	require.False(t, s.Equal(StringSet{"a", "b"}))
}

func TestRecordValidate(t *testing.T) {
	rec := NewRecord("example.com", TypeDomain)
	rec.Source = "dns"
	require.NoError(t, rec.Validate())

	// source must be set
	rec2 := NewRecord("example.com", TypeDomain)
	err := rec2.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "source", verr.Field)

	// type must be from the closed set
	rec3 := NewRecord("example.com", TargetType("host"))
	rec3.Source = "dns"
	err = rec3.Validate()
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "type", verr.Field)

	// target must match the type
	rec4 := NewRecord("not a domain", TypeDomain)
	rec4.Source = "dns"
	err = rec4.Validate()
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "target", verr.Field)

	// score range
	rec5 := NewRecord("1.2.3.4", TypeIP)
	rec5.Source = "x"
	score := 101
	rec5.Risk.Score = &score
	err = rec5.Validate()
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "risk.score", verr.Field)

	// duplicates in set-valued fields
	rec6 := NewRecord("example.com", TypeDomain)
	rec6.Source = "dns"
	rec6.Resolved.IP = StringSet{"1.1.1.1", "1.1.1.1"}
	err = rec6.Validate()
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "resolved.ip", verr.Field)

	// validate is total
	require.Error(t, (*Record)(nil).Validate())
}

func TestRecordJSONShape(t *testing.T) {
	rec := NewRecord("example.com", TypeDomain)
	rec.Source = "dns"
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	// Empty collections must encode as empty arrays, not null
	s := string(data)
	require.Contains(t, s, `"ip":[]`)
	require.Contains(t, s, `"mx":[]`)
	require.Contains(t, s, `"emails":[]`)
	require.Contains(t, s, `"categories":[]`)
	require.NotContains(t, s, "null")
	require.Contains(t, s, `"malicious":false`)
}

func TestRecordJSONRoundTrip(t *testing.T) {
	rec := NewRecord("example.com", TypeDomain)
	rec.Source = "dns"
	rec.Resolved.IP.Add("93.184.216.34", "2606:2800:220:1:248:1893:25c8:1946")
	rec.Resolved.MX.Add("10 mail.example.com")
	rec.Whois.Registrar = "IANA"
	rec.Whois.Emails.Add("abuse@example.com")
	rec.Whois.Created = parseTimestamp("1995-08-14T04:00:00Z")
	score := 42
	rec.Risk.Score = &score
	rec.Risk.Categories.Add("phishing")
	rec.Raw["dns"] = map[string]interface{}{"a": []interface{}{"93.184.216.34"}}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	parsed := new(Record)
	require.NoError(t, json.Unmarshal(data, parsed))
	require.True(t, rec.Equal(parsed))
	require.NoError(t, parsed.Validate())
}

func TestRecordEqual(t *testing.T) {
	a := NewRecord("example.com", TypeDomain)
	a.Source = "dns"
	a.Resolved.IP.Add("1.1.1.1", "2.2.2.2")

	b := NewRecord("example.com", TypeDomain)
	b.Source = "dns"
	b.Resolved.IP.Add("2.2.2.2", "1.1.1.1")

	// Sets compare equal regardless of order
	require.True(t, a.Equal(b))

	b.Resolved.IP.Add("3.3.3.3")
	require.False(t, a.Equal(b))
}

func TestParseTimestamp(t *testing.T) {
	for _, input := range []string{
		"1995-08-14T04:00:00Z",
		"1995-08-14T04:00:00",
		"1995-08-14 04:00:00",
	} {
		ts := parseTimestamp(input)
		require.NotNil(t, ts, input)
		require.Equal(t, time.UTC, ts.Location())
		require.Equal(t, 1995, ts.Year())
	}
	require.Nil(t, parseTimestamp(""))
	require.Nil(t, parseTimestamp("not a date"))

	// Zoned values are converted to UTC
	ts := parseTimestamp("2020-01-01T10:00:00+02:00")
	require.NotNil(t, ts)
	require.Equal(t, 8, ts.Hour())
}

func TestDetectionScore(t *testing.T) {
	score, malicious := detectionScore(0, 0, 70)
	require.Equal(t, 0, score)
	require.False(t, malicious)

	score, malicious = detectionScore(35, 0, 70)
	require.Equal(t, 50, score)
	require.True(t, malicious)

	score, malicious = detectionScore(7, 14, 70)
	require.Equal(t, 20, score)
	require.False(t, malicious)

	// Zero total must not divide by zero
	score, _ = detectionScore(0, 0, 0)
	require.Equal(t, 0, score)
}

func TestValidTarget(t *testing.T) {
	require.True(t, validTarget("example.com", TypeDomain))
	require.True(t, validTarget("sub.example.co.uk", TypeDomain))
	require.False(t, validTarget("1.2.3.4", TypeDomain))
	require.False(t, validTarget("no-dots", TypeDomain))
	require.False(t, validTarget(strings.Repeat("a", 64)+".com", TypeDomain))

	require.True(t, validTarget("1.2.3.4", TypeIP))
	require.True(t, validTarget("2606:2800:220:1:248:1893:25c8:1946", TypeIP))
	require.False(t, validTarget("example.com", TypeIP))

	require.True(t, validTarget("https://example.com/path", TypeURL))
	require.False(t, validTarget("example.com", TypeURL))
	require.False(t, validTarget("ftp://example.com", TypeURL))

	require.True(t, validTarget("user@example.com", TypeEmail))
	require.False(t, validTarget("user@", TypeEmail))
	require.False(t, validTarget("example.com", TypeEmail))
}
