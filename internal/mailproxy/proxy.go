package mailproxy

import (
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaypoint/mailadmin/internal/circuitbreaker"
)

// Proxy forwards admin requests to the hosted mail-server API. The portal
// owns the upstream credential; operator requests are authenticated by the
// portal and re-authenticated upstream with the API token, so the token
// never reaches a browser.
type Proxy struct {
	targets  []string
	proxies  map[string]*httputil.ReverseProxy
	breaker  *circuitbreaker.CircuitBreaker
	picker   Picker
	monitor  *Monitor
	apiToken string
	prefix   string
}

type Config struct {
	Targets        []string
	Strategy       string
	APIToken       string
	HealthEndpoint string
	// Prefix is stripped from incoming paths before forwarding
	// (e.g. "/mailserver").
	Prefix string
}

func New(cfg Config) (*Proxy, error) {
	if len(cfg.Targets) == 0 {
		return nil, errors.New("at least one mail-server target is required")
	}

	proxies := make(map[string]*httputil.ReverseProxy)
	for _, targetURL := range cfg.Targets {
		target, err := url.Parse(targetURL)
		if err != nil {
			return nil, err
		}
		proxies[targetURL] = httputil.NewSingleHostReverseProxy(target)
	}

	monitor := NewMonitor(cfg.Targets, cfg.HealthEndpoint)
	monitor.Start()

	p := &Proxy{
		targets: cfg.Targets,
		proxies: proxies,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		picker:   newPicker(cfg.Strategy),
		monitor:  monitor,
		apiToken: cfg.APIToken,
		prefix:   cfg.Prefix,
	}

	log.Printf("mail-server proxy initialized with %d upstreams", len(cfg.Targets))

	return p, nil
}

func (p *Proxy) Handle(c *gin.Context) {
	healthy := p.monitor.Healthy()
	if len(healthy) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Mail server API is unavailable",
		})
		return
	}

	selected := p.picker.Next(healthy)
	targetProxy, exists := p.proxies[selected]
	if !exists {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Mail server API is unavailable",
		})
		return
	}

	target, _ := url.Parse(selected)

	err := p.breaker.Call(func() error {
		req := c.Request

		req.URL.Host = target.Host
		req.URL.Scheme = target.Scheme
		req.URL.Path = p.rewritePath(req.URL.Path)
		req.Host = target.Host

		// Swap the operator's portal credential for the upstream one.
		req.Header.Del("Authorization")
		if p.apiToken != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiToken)
		}
		if clientIP := c.ClientIP(); clientIP != "" {
			req.Header.Set("X-Forwarded-For", clientIP)
		}

		targetProxy.ServeHTTP(c.Writer, req)
		return nil
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Mail server API is temporarily unavailable",
		})
	}
}

func (p *Proxy) rewritePath(path string) string {
	if p.prefix != "" && strings.HasPrefix(path, p.prefix) {
		path = strings.TrimPrefix(path, p.prefix)
	}
	if path == "" {
		path = "/"
	}
	return path
}

func (p *Proxy) Healthy() bool {
	return p.monitor.AllHealthy()
}

func (p *Proxy) BreakerState() circuitbreaker.State {
	return p.breaker.State()
}

func (p *Proxy) ResetBreaker() {
	p.breaker.Reset()
}

func (p *Proxy) Stop() {
	p.monitor.Stop()
}
