package ddns

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver looks up the host's public IP from one external vantage point.
// Resolvers are tried in priority order with a short per-attempt timeout;
// the first success wins.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context) (string, error)
}

const resolveTimeout = 5 * time.Second

type httpResolver struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPResolver builds a resolver for a plain-text "what is my IP"
// service.
func NewHTTPResolver(name, url string) Resolver {
	return &httpResolver{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: resolveTimeout},
	}
}

func (r *httpResolver) Name() string { return r.name }

func (r *httpResolver) Resolve(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d", r.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", err
	}

	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("%s returned an invalid IP %q", r.name, ip)
	}
	return ip, nil
}

type dnsResolver struct {
	name   string
	host   string
	server string
	client *dns.Client
}

// NewOpenDNSResolver resolves the public IP by asking OpenDNS for
// myip.opendns.com, which answers with the querying address.
func NewOpenDNSResolver() Resolver {
	return &dnsResolver{
		name:   "opendns",
		host:   "myip.opendns.com.",
		server: net.JoinHostPort("resolver1.opendns.com", "53"),
		client: &dns.Client{Timeout: resolveTimeout},
	}
}

func (r *dnsResolver) Name() string { return r.name }

func (r *dnsResolver) Resolve(ctx context.Context) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(r.host), dns.TypeA)

	resp, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("%s query failed", r.name)
	}

	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", fmt.Errorf("%s returned no A records", r.name)
}

// DefaultResolvers returns the resolver chain in priority order.
func DefaultResolvers() []Resolver {
	return []Resolver{
		NewHTTPResolver("ipify", "https://api.ipify.org"),
		NewHTTPResolver("icanhazip", "https://icanhazip.com"),
		NewHTTPResolver("ipinfo", "https://ipinfo.io/ip"),
		NewOpenDNSResolver(),
	}
}
