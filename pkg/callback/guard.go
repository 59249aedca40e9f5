// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// GuardOptions configures the callback URL guard.
type GuardOptions struct {
	// Development disables the private-address check.
	Development bool
	// AllowedDomains is the host allow-list: a URL host must equal an
	// entry or be a subdomain of one. An empty list permits all hosts and
	// is intended for development only.
	AllowedDomains []string
}

// ValidateCallbackURL checks a callback URL at job-submission time: the
// scheme must be http or https, outside development the host must not
// resolve to a private or internal address, and the host must match the
// allow-list.
func ValidateCallbackURL(raw string, opts GuardOptions) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid callback url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("callback url must use http or https, got %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("callback url has no host")
	}

	if !opts.Development {
		if err := checkPublicAddress(host); err != nil {
			return err
		}
	}

	if len(opts.AllowedDomains) > 0 && !hostAllowed(host, opts.AllowedDomains) {
		return fmt.Errorf("callback host %q is not in the allowed domains", host)
	}
	return nil
}

// checkPublicAddress rejects hosts that resolve to loopback, private, or
// link-local addresses.
func checkPublicAddress(host string) error {
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("callback host %q resolves to an internal address", host)
	}

	ips := []net.IP{}
	if ip := net.ParseIP(host); ip != nil {
		ips = append(ips, ip)
	} else {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return fmt.Errorf("unable to resolve callback host %q: %w", host, err)
		}
		ips = resolved
	}

	for _, ip := range ips {
		if isInternal(ip) {
			return fmt.Errorf("callback host %q resolves to an internal address", host)
		}
	}
	return nil
}

func isInternal(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// hostAllowed reports whether host equals an allowed domain or is a
// subdomain of one.
func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, domain := range allowed {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
