package clients

import (
	"net"
	"net/http"
	"time"
)

// DefaultTransport returns the shared HTTP transport for outbound notifier
// calls. Connection counts are capped so that a dead webhook endpoint during
// an escalation storm cannot pile up unbounded dials.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxConnsPerHost:     50,
		MaxIdleConnsPerHost: 5,
		MaxIdleConns:        50,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
