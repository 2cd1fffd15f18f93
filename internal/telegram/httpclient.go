package telegram

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ClientOptions configures the Bot API HTTP client.
type ClientOptions struct {
	Timeout   time.Duration // whole request, default 30s
	Proxy     string        // http, https or socks5 URL; empty uses HTTPS_PROXY and friends
	UserAgent string
}

// NewHTTPClient returns a client sized for one bot talking to one host.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	proxy := http.ProxyFromEnvironment
	if opts.Proxy != "" {
		u, err := ParseProxyURL(opts.Proxy)
		if err != nil {
			return nil, err
		}
		proxy = http.ProxyURL(u)
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy:               proxy,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		ForceAttemptHTTP2:     true,
	}
	if opts.UserAgent != "" {
		rt = &userAgentTransport{agent: opts.UserAgent, next: rt}
	}
	return &http.Client{Timeout: opts.Timeout, Transport: rt}, nil
}

// ParseProxyURL accepts http, https and socks5 proxy URLs.
func ParseProxyURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", s, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("invalid proxy %q: scheme must be http, https or socks5", s)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy %q: missing host", s)
	}
	return u, nil
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.next.RoundTrip(req)
}
