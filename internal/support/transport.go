package support

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// CreateTransport builds the one-shot transport used for the archive fetch
// and subnet lookups. outboundProxy may be empty (direct), an http(s):// URL,
// or a socks5:// URL with optional userinfo credentials.
func CreateTransport(outboundProxy string, timeout time.Duration) (*http.Transport, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 0, // KeepAlive disabled
		}).DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if outboundProxy == "" {
		return transport, nil
	}

	proxyURL, err := url.Parse(outboundProxy)
	if err != nil {
		return nil, fmt.Errorf("invalid outbound proxy %q: %w", outboundProxy, err)
	}

	switch proxyURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)

	case "socks5":
		var auth *proxy.Auth
		if user := proxyURL.User; user != nil {
			password, _ := user.Password()
			auth = &proxy.Auth{User: user.Username(), Password: password}
		}
		socksDialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, &net.Dialer{
			Timeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return socksDialer.Dial(network, addr)
		}

	default:
		return nil, fmt.Errorf("unsupported outbound proxy scheme %q", proxyURL.Scheme)
	}

	return transport, nil
}
