package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ASKEROS1449/router-auto-connect/internal/metrics"
)

// Status classifies the outcome of a single endpoint probe.
type Status string

const (
	// StatusOpen means the endpoint answered with any HTTP response;
	// the transport (and TLS, if any) handshake succeeded.
	StatusOpen Status = "open"
	// StatusClosed covers timeouts, connection refusal and plain-HTTP
	// transport errors. No distinction between closed and filtered.
	StatusClosed Status = "closed"
	// StatusSSLAnomaly is an HTTPS transport failure that was not a
	// timeout. On the target hosts self-signed certificates are the
	// norm, so a TLS error is strong evidence the endpoint exists.
	StatusSSLAnomaly Status = "ssl_anomaly"
)

// Candidate is one (port, scheme) combination considered as a possible
// service endpoint.
type Candidate struct {
	Port   int    `json:"port"`
	Scheme string `json:"scheme"` // "http" or "https"
}

func (c Candidate) URL(hostname string) string {
	return fmt.Sprintf("%s://%s:%d", c.Scheme, hostname, c.Port)
}

// Outcome is the classified result of probing one candidate.
type Outcome struct {
	URL       string `json:"url"`
	Scheme    string `json:"scheme"`
	Port      int    `json:"port"`
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
}

// Prober issues bounded-time HEAD requests against candidate endpoints.
type Prober struct {
	timeout time.Duration
	metrics *metrics.Collector
	client  *http.Client
}

func NewProber(timeoutMs int, metricsCollector *metrics.Collector) *Prober {
	timeout := time.Duration(timeoutMs) * time.Millisecond

	// Certificate verification stays enabled: a handshake failure is
	// exactly the SSL_ANOMALY signal the ranker consumes.
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: timeout,
		}).DialContext,
		ForceAttemptHTTP2:   false,
		TLSHandshakeTimeout: timeout,
		DisableKeepAlives:   true,
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // Don't follow redirects
		},
	}

	return &Prober{
		timeout: timeout,
		metrics: metricsCollector,
		client:  client,
	}
}

// Probe attempts exactly one connection to the candidate endpoint and
// always returns a classified outcome, never an error.
func (p *Prober) Probe(ctx context.Context, hostname string, cand Candidate) Outcome {
	startTime := time.Now()
	out := Outcome{
		URL:    cand.URL(hostname),
		Scheme: cand.Scheme,
		Port:   cand.Port,
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, out.URL, nil)
	if err != nil {
		out.Status = StatusClosed
		return out
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	out.LatencyMs = time.Since(startTime).Milliseconds()

	if err == nil {
		// Any HTTP status counts: connection establishment is the only
		// thing being tested.
		resp.Body.Close()
		out.Status = StatusOpen
	} else {
		out.Status = classify(cand.Scheme, err)
	}

	if p.metrics != nil {
		p.metrics.RecordProbe(out.Scheme, string(out.Status), time.Since(startTime).Seconds())
	}
	return out
}

// classify maps a transport error to a probe status. Timeouts mean
// closed-or-filtered; any other HTTPS transport failure is treated as a
// TLS anomaly, while the same failure on plain HTTP is a refusal.
func classify(scheme string, err error) Status {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StatusClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusClosed
	}
	if scheme == "https" {
		return StatusSSLAnomaly
	}
	return StatusClosed
}
