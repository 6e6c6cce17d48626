package darkrecon

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// TargetType identifies the kind of string a scan runs against.
type TargetType string

const (
	TypeDomain TargetType = "domain"
	TypeIP     TargetType = "ip"
	TypeURL    TargetType = "url"
	TypeEmail  TargetType = "email"
)

// SourceMerged is the source tag carried by records produced by Merge.
const SourceMerged = "merged"

// TargetTypes lists all valid target types.
var TargetTypes = []TargetType{TypeDomain, TypeIP, TypeURL, TypeEmail}

// StringSet is an ordered set of strings. Elements are kept in first-seen
// order for serialization but compared as a set. The zero value is ready
// to use and marshals to an empty JSON array, never null.
type StringSet []string

// Add appends values not already present, preserving insertion order.
func (s *StringSet) Add(values ...string) {
	for _, v := range values {
		if v == "" || s.Contains(v) {
			continue
		}
		*s = append(*s, v)
	}
}

func (s StringSet) Contains(v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// Sorted returns the elements in lexical order without modifying the set.
func (s StringSet) Sorted() []string {
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out
}

// Equal compares two sets ignoring element order.
func (s StringSet) Equal(other StringSet) bool {
	if len(s) != len(other) {
		return false
	}
	a, b := s.Sorted(), other.Sorted()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// Resolved holds DNS-style collections for a target.
type Resolved struct {
	IP  StringSet `json:"ip"`
	MX  StringSet `json:"mx"`
	NS  StringSet `json:"ns"`
	TXT StringSet `json:"txt"`
}

// Whois holds registration facts for a target.
type Whois struct {
	Registrar string     `json:"registrar,omitempty"`
	Org       string     `json:"org,omitempty"`
	Country   string     `json:"country,omitempty"`
	Emails    StringSet  `json:"emails"`
	Created   *time.Time `json:"created,omitempty"`
	Updated   *time.Time `json:"updated,omitempty"`
	Expires   *time.Time `json:"expires,omitempty"`
}

// Network holds locality information for a target.
type Network struct {
	ASN     string `json:"asn,omitempty"`
	ASNName string `json:"asn_name,omitempty"`
	ISP     string `json:"isp,omitempty"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
}

// Risk holds the threat signal for a target.
type Risk struct {
	Score      *int      `json:"score,omitempty"`
	Categories StringSet `json:"categories"`
	Malicious  bool      `json:"malicious"`
}

// Record is the unified shape every provider produces and the merge
// engine consumes. Raw preserves each provider's original payload
// verbatim, keyed by provider name.
type Record struct {
	Source   string                 `json:"source"`
	Type     TargetType             `json:"type"`
	Target   string                 `json:"target"`
	Resolved Resolved               `json:"resolved"`
	Whois    Whois                  `json:"whois"`
	Network  Network                `json:"network"`
	Risk     Risk                   `json:"risk"`
	Raw      map[string]interface{} `json:"raw"`
}

// NewRecord returns an empty record for the given target. The source is
// left for the producer (a provider's normalizer or the merge engine) to
// fill in.
func NewRecord(target string, typ TargetType) *Record {
	return &Record{
		Type:   typ,
		Target: target,
		Raw:    make(map[string]interface{}),
	}
}

// ValidationError describes the first field of a record that violates the
// record invariants.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Reason)
}

// Validate checks the record against its invariants and returns nil if it
// satisfies all of them. It is total: it never panics on any input and
// reports the first offending field.
func (r *Record) Validate() error {
	if r == nil {
		return &ValidationError{Field: "record", Reason: "nil"}
	}
	if r.Source == "" {
		return &ValidationError{Field: "source", Reason: "empty"}
	}
	switch r.Type {
	case TypeDomain, TypeIP, TypeURL, TypeEmail:
	default:
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", r.Type)}
	}
	if r.Target == "" {
		return &ValidationError{Field: "target", Reason: "empty"}
	}
	if !validTarget(r.Target, r.Type) {
		return &ValidationError{Field: "target", Reason: fmt.Sprintf("%q does not look like a %s", r.Target, r.Type)}
	}
	for _, set := range []struct {
		name string
		s    StringSet
	}{
		{"resolved.ip", r.Resolved.IP},
		{"resolved.mx", r.Resolved.MX},
		{"resolved.ns", r.Resolved.NS},
		{"resolved.txt", r.Resolved.TXT},
		{"whois.emails", r.Whois.Emails},
		{"risk.categories", r.Risk.Categories},
	} {
		if hasDuplicates(set.s) {
			return &ValidationError{Field: set.name, Reason: "duplicate elements"}
		}
	}
	if r.Risk.Score != nil && (*r.Risk.Score < 0 || *r.Risk.Score > 100) {
		return &ValidationError{Field: "risk.score", Reason: fmt.Sprintf("%d outside [0,100]", *r.Risk.Score)}
	}
	return nil
}

func hasDuplicates(s StringSet) bool {
	seen := make(map[string]struct{}, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}

// Equal reports whether two records carry the same semantic content.
// Set-valued fields are compared as sets, single-valued fields directly.
// The raw payload map is not part of record equality.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Source != other.Source || r.Type != other.Type || r.Target != other.Target {
		return false
	}
	if !r.Resolved.IP.Equal(other.Resolved.IP) ||
		!r.Resolved.MX.Equal(other.Resolved.MX) ||
		!r.Resolved.NS.Equal(other.Resolved.NS) ||
		!r.Resolved.TXT.Equal(other.Resolved.TXT) {
		return false
	}
	if r.Whois.Registrar != other.Whois.Registrar ||
		r.Whois.Org != other.Whois.Org ||
		r.Whois.Country != other.Whois.Country ||
		!r.Whois.Emails.Equal(other.Whois.Emails) ||
		!timeEqual(r.Whois.Created, other.Whois.Created) ||
		!timeEqual(r.Whois.Updated, other.Whois.Updated) ||
		!timeEqual(r.Whois.Expires, other.Whois.Expires) {
		return false
	}
	if r.Network != other.Network {
		return false
	}
	if !intEqual(r.Risk.Score, other.Risk.Score) ||
		!r.Risk.Categories.Equal(other.Risk.Categories) ||
		r.Risk.Malicious != other.Risk.Malicious {
		return false
	}
	return true
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func intEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// utcTime returns a pointer to t converted to UTC, for storing in a record.
func utcTime(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
