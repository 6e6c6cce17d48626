package darkrecon

import (
	"net/mail"
	"net/netip"
	"net/url"
	"strings"
)

// validTarget reports whether the target string is syntactically plausible
// for the given type. The checks are conservative, the goal is to reject
// obvious mismatches before any provider runs, not to fully validate per
// the relevant RFCs.
func validTarget(target string, typ TargetType) bool {
	switch typ {
	case TypeIP:
		_, err := netip.ParseAddr(target)
		return err == nil
	case TypeDomain:
		return validDomain(target)
	case TypeURL:
		u, err := url.Parse(target)
		return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	case TypeEmail:
		addr, err := mail.ParseAddress(target)
		if err != nil || addr.Address != target {
			return false
		}
		_, domain, ok := strings.Cut(target, "@")
		return ok && validDomain(domain)
	}
	return false
}

func validDomain(name string) bool {
	name = strings.TrimSuffix(name, ".")
	if len(name) == 0 || len(name) > 253 || !strings.Contains(name, ".") {
		return false
	}
	// A dotted-quad is a valid-looking hostname but not a domain
	if _, err := netip.ParseAddr(name); err == nil {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			switch {
			case c >= 'a' && c <= 'z':
			case c >= 'A' && c <= 'Z':
			case c >= '0' && c <= '9':
			case c == '-' || c == '_':
			default:
				return false
			}
		}
	}
	return true
}
