package darkrecon

// RegisterDefaultProviders registers the built-in provider set with its
// default rate limits and timeouts. The registration order is canonical:
// it decides which provider wins single-value merge ties.
func RegisterDefaultProviders(r *Registry) error {
	if err := r.Register(NewDNSProvider(DNSProviderOptions{}), dnsDefaults.Rate, dnsDefaults.Timeout); err != nil {
		return err
	}
	if err := r.Register(NewWhoisProvider(WhoisProviderOptions{}), whoisDefaults.Rate, whoisDefaults.Timeout); err != nil {
		return err
	}
	if err := r.Register(NewRDAPProvider(RDAPProviderOptions{}), rdapDefaults.Rate, rdapDefaults.Timeout); err != nil {
		return err
	}
	if err := r.Register(NewGeoIPProvider(GeoIPProviderOptions{}), geoipDefaults.Rate, geoipDefaults.Timeout); err != nil {
		return err
	}
	ipapi, err := NewIPAPIProvider(IPAPIProviderOptions{})
	if err != nil {
		return err
	}
	if err := r.Register(ipapi, ipapiDefaults.Rate, ipapiDefaults.Timeout); err != nil {
		return err
	}
	crtsh, err := NewCrtshProvider(CrtshProviderOptions{})
	if err != nil {
		return err
	}
	if err := r.Register(crtsh, crtshDefaults.Rate, crtshDefaults.Timeout); err != nil {
		return err
	}
	vt, err := NewVirusTotalProvider(VirusTotalProviderOptions{})
	if err != nil {
		return err
	}
	if err := r.Register(vt, virustotalDefaults.Rate, virustotalDefaults.Timeout); err != nil {
		return err
	}
	idb, err := NewInternetDBProvider(InternetDBProviderOptions{})
	if err != nil {
		return err
	}
	return r.Register(idb, internetdbDefaults.Rate, internetdbDefaults.Timeout)
}
