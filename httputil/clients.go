package httputil

import (
	"net/http"
	"net/url"
	"time"

	"vinyl_radar/config"
)

type Clients struct {
	Market  *http.Client // optionally proxied, for marketplace endpoints
	Webhook *http.Client // direct, for the notification endpoint
}

func NewClients(proxyCfg *config.ProxyConfig) *Clients {
	transport := &http.Transport{}
	if proxyCfg != nil && proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	market := &http.Client{
		Timeout:   15 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Clients{
		Market:  market,
		Webhook: &http.Client{Timeout: 30 * time.Second},
	}
}
