package internal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// DiscoverContextURL performs DNS-based service discovery for service
// (e.g. "caldav" or "carddav") against domain, as described in RFC 6764
// section 5 / RFC 6352 section 11. It resolves the SRV record, then
// follows the well-known URI to the server's actual context path.
func DiscoverContextURL(ctx context.Context, service, domain string) (string, error) {
	var resolver net.Resolver

	scheme := "https"
	_, addrs, err := resolver.LookupSRV(ctx, service+"s", "tcp", domain)
	if err != nil || len(addrs) == 0 {
		scheme = "http"
		_, addrs, err = resolver.LookupSRV(ctx, service, "tcp", domain)
	}

	target := domain
	if err == nil && len(addrs) > 0 {
		target = strings.TrimSuffix(addrs[0].Target, ".")
		if addrs[0].Port != 0 && !((scheme == "https" && addrs[0].Port == 443) || (scheme == "http" && addrs[0].Port == 80)) {
			target = fmt.Sprintf("%s:%d", target, addrs[0].Port)
		}
	}

	wellKnown := fmt.Sprintf("%s://%s/.well-known/%s", scheme, target, service)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, "PROPFIND", wellKnown, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Depth", "0")

	resp, err := client.Do(req)
	if err != nil {
		return wellKnown, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 3 {
		if loc := resp.Header.Get("Location"); loc != "" {
			return loc, nil
		}
	}

	return wellKnown, nil
}
