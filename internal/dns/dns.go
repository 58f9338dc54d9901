// Package dns resolves broker hostnames, falling back to public resolvers
// when the system resolver fails.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	localTimeout  = 1 * time.Second
	remoteTimeout = 2 * time.Second
)

// PublicServers are queried concurrently when a local lookup fails.
var PublicServers = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
	"208.67.220.220",         // Cisco OpenDNS
}

type lookupFunc func(ctx context.Context, host, server string) ([]string, error)

// Resolver looks hosts up locally first, then races the public servers.
type Resolver struct {
	servers []string
	local   lookupFunc
	remote  lookupFunc
	dialer  net.Dialer
}

// NewResolver returns a resolver over PublicServers.
func NewResolver() *Resolver {
	return &Resolver{
		servers: PublicServers,
		local:   systemLookup,
		remote:  serverLookup,
	}
}

// Lookup resolves host to a single address, preferring IPv4. IP literals are
// returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, localTimeout)
	ips, err := r.local(localCtx, host, "")
	cancel()
	if err == nil && len(ips) > 0 {
		return preferIPv4(ips), nil
	}

	return r.race(ctx, host)
}

// DialContext resolves the host part of addr with Lookup and dials it. It
// fits websocket.Dialer.NetDialContext and http.Transport.DialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	return r.dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.servers) == 0 {
		return "", fmt.Errorf("failed to resolve %s: no public servers", host)
	}

	type result struct {
		ips []string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	results := make(chan result, len(r.servers))
	for _, server := range r.servers {
		go func() {
			ips, err := r.remote(ctx, host, server)
			results <- result{ips: ips, err: err}
		}()
	}

	for range r.servers {
		select {
		case res := <-results:
			if res.err == nil && len(res.ips) > 0 {
				return preferIPv4(res.ips), nil
			}
		case <-ctx.Done():
			return "", errors.New("DNS lookup timed out during public DNS race")
		}
	}

	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, len(r.servers))
}

func systemLookup(ctx context.Context, host, _ string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}

// serverLookup queries one DNS server on port 53.
func serverLookup(ctx context.Context, host, server string) ([]string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
	return r.LookupHost(ctx, host)
}

func preferIPv4(ips []string) string {
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip
		}
	}
	return ips[0]
}
