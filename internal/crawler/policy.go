package crawler

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DomainPolicy decides which hosts a crawl run may fetch. A host is allowed
// when it equals, or is a subdomain of, one of the allowed domains.
type DomainPolicy struct {
	domains []string
}

// NewDomainPolicy builds a policy from an explicit allow-list. When the list
// is empty the seed's registrable domain (eTLD+1) is used.
func NewDomainPolicy(seed *url.URL, allowed []string) DomainPolicy {
	var domains []string
	for _, d := range allowed {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "*.")
		d = strings.TrimSuffix(d, ".")
		if d == "" {
			continue
		}
		if ascii, err := idnaProfile.ToASCII(d); err == nil {
			d = ascii
		}
		domains = append(domains, d)
	}
	if len(domains) == 0 {
		domains = []string{RegistrableDomain(hostOf(seed))}
	}
	return DomainPolicy{domains: domains}
}

func (p DomainPolicy) Allows(u *url.URL) bool {
	host := hostOf(u)
	for _, d := range p.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (p DomainPolicy) Domains() []string {
	return append([]string(nil), p.domains...)
}

// RegistrableDomain returns eTLD+1 for host. IP addresses, single-label hosts
// and public suffixes themselves are returned unchanged.
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
