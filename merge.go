package darkrecon

// Merge combines per-provider records for one target into a single record
// with source "merged". Input records are not modified. The order of the
// input slice is significant for single-valued fields: the first non-empty
// value wins, so callers pass records in registry declaration order.
// Set-valued fields are unioned in first-seen order.
func Merge(target string, typ TargetType, records []*Record) *Record {
	m := NewRecord(target, typ)
	m.Source = SourceMerged

	for _, r := range records {
		if r == nil {
			continue
		}
		m.Resolved.IP.Add(r.Resolved.IP...)
		m.Resolved.MX.Add(r.Resolved.MX...)
		m.Resolved.NS.Add(r.Resolved.NS...)
		m.Resolved.TXT.Add(r.Resolved.TXT...)

		m.Whois.Emails.Add(r.Whois.Emails...)
		if m.Whois.Registrar == "" {
			m.Whois.Registrar = r.Whois.Registrar
		}
		if m.Whois.Org == "" {
			m.Whois.Org = r.Whois.Org
		}
		if m.Whois.Country == "" {
			m.Whois.Country = r.Whois.Country
		}
		if t := r.Whois.Created; t != nil && (m.Whois.Created == nil || t.Before(*m.Whois.Created)) {
			m.Whois.Created = utcTime(*t)
		}
		if t := r.Whois.Updated; t != nil && (m.Whois.Updated == nil || t.After(*m.Whois.Updated)) {
			m.Whois.Updated = utcTime(*t)
		}
		if t := r.Whois.Expires; t != nil && (m.Whois.Expires == nil || t.After(*m.Whois.Expires)) {
			m.Whois.Expires = utcTime(*t)
		}

		if m.Network.ASN == "" {
			m.Network.ASN = r.Network.ASN
		}
		if m.Network.ASNName == "" {
			m.Network.ASNName = r.Network.ASNName
		}
		if m.Network.ISP == "" {
			m.Network.ISP = r.Network.ISP
		}
		if m.Network.City == "" {
			m.Network.City = r.Network.City
		}
		if m.Network.Region == "" {
			m.Network.Region = r.Network.Region
		}
		if m.Network.Country == "" {
			m.Network.Country = r.Network.Country
		}

		if s := r.Risk.Score; s != nil && (m.Risk.Score == nil || *s > *m.Risk.Score) {
			v := *s
			m.Risk.Score = &v
		}
		m.Risk.Categories.Add(r.Risk.Categories...)
		m.Risk.Malicious = m.Risk.Malicious || r.Risk.Malicious

		for provider, payload := range r.Raw {
			m.Raw[provider] = payload
		}
	}
	return m
}
