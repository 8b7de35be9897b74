// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package web

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/samber/oops"
)

// proxyHeaders are consulted in order when the peer is a trusted proxy.
var proxyHeaders = []string{"X-Forwarded-For", "Proxy-Client-IP", "WL-Proxy-Client-IP"}

// TrustedProxies are the networks whose forwarding headers are believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses CIDRs or bare addresses.
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(v); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, oops.Code("WEB_INVALID_CONFIG").With("trusted_proxy", v).Errorf("not a CIDR or IP address")
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Contains reports whether addr lies in one of the networks.
func (t TrustedProxies) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func peerHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP returns the originating address of r. Forwarding headers count
// only when the TCP peer is in trusted; otherwise the peer address is used.
func ClientIP(r *http.Request, trusted TrustedProxies) string {
	peer := peerHost(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !trusted.Contains(addr) {
		return peer
	}

	for _, name := range proxyHeaders {
		v := r.Header.Get(name)
		if v == "" {
			continue
		}
		// X-Forwarded-For may list several hops; the first is the client.
		if first, _, found := strings.Cut(v, ","); found {
			v = first
		}
		v = strings.TrimSpace(v)
		if v != "" && !strings.EqualFold(v, "unknown") {
			return v
		}
	}
	return peer
}
