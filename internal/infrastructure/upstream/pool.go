package upstream

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/campersurfer/Autopicker/internal/config"
)

// ClientPool hands out one pooled HTTP client per provider host. h2 is
// negotiated where the provider supports it; everything else reuses h1
// keep-alive connections.
type ClientPool struct {
	cfg *config.Config

	mu      sync.Mutex
	clients map[string]*http.Client
}

func NewClientPool(cfg *config.Config) *ClientPool {
	return &ClientPool{cfg: cfg, clients: make(map[string]*http.Client)}
}

// ClientFor returns the pooled client for the base URL's host.
func (p *ClientPool) ClientFor(baseURL string) *http.Client {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[host]; ok {
		return client
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   p.cfg.UpstreamConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:       p.cfg.UpstreamMaxConnsPerHost,
		MaxIdleConnsPerHost:   p.cfg.UpstreamMaxConnsPerHost,
		IdleConnTimeout:       p.cfg.UpstreamIdleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: p.cfg.UpstreamFirstByteWait,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:     true,
	}
	if err := http2.ConfigureTransport(transport); err == nil {
		transport.ForceAttemptHTTP2 = true
	}

	// The overall request deadline rides on the context, not the client.
	client := &http.Client{Transport: transport}
	p.clients[host] = client
	return client
}

// CloseIdle drops idle connections across every pooled client.
func (p *ClientPool) CloseIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, client := range p.clients {
		if transport, ok := client.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
}
