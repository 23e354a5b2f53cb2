package transcriber

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// TracedClient is an HTTP client whose requests fill a NetworkMetrics when
// their context carries one (see WithMetrics). It is shared by the hand-built
// Groq requests and the go-openai SDK.
type TracedClient struct {
	client  *http.Client
	warmURL string
}

func NewTracedClient(warmURL string, timeout time.Duration) *TracedClient {
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &TracedClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &tracingTransport{base: base},
		},
		warmURL: warmURL,
	}
}

// HTTPClient is the underlying client, for SDKs that issue their own requests.
func (c *TracedClient) HTTPClient() *http.Client { return c.client }

type metricsKey struct{}

// WithMetrics returns a context under which TracedClient requests record
// their connection timings into m.
func WithMetrics(ctx context.Context, m *NetworkMetrics) context.Context {
	return context.WithValue(ctx, metricsKey{}, m)
}

func metricsFrom(ctx context.Context) *NetworkMetrics {
	m, _ := ctx.Value(metricsKey{}).(*NetworkMetrics)
	return m
}

type tracingTransport struct {
	base http.RoundTripper
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m := metricsFrom(req.Context())
	if m == nil {
		return t.base.RoundTrip(req)
	}
	tr := &tracer{m: m}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), tr.clientTrace()))
	return t.base.RoundTrip(req)
}

// tracer holds the phase start times of one request.
type tracer struct {
	m *NetworkMetrics

	getConn, dns, tcp, tls  time.Time
	gotConn, wroteHeaders   time.Time
	wroteRequest, firstByte time.Time
}

func (t *tracer) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) { t.getConn = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			t.gotConn = time.Now()
			t.m.ConnWait = t.gotConn.Sub(t.getConn)
			t.m.ConnReused = info.Reused
		},
		DNSStart:          func(httptrace.DNSStartInfo) { t.dns = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { t.m.DNS = time.Since(t.dns) },
		ConnectStart:      func(_, _ string) { t.tcp = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { t.m.TCP = time.Since(t.tcp) },
		TLSHandshakeStart: func() { t.tls = time.Now() },
		TLSHandshakeDone: func(st tls.ConnectionState, _ error) {
			t.m.TLS = time.Since(t.tls)
			t.m.TLSProtocol = st.NegotiatedProtocol
		},
		WroteHeaders: func() {
			t.wroteHeaders = time.Now()
			t.m.ReqHeaders = t.wroteHeaders.Sub(t.gotConn)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			t.wroteRequest = time.Now()
			t.m.ReqBody = t.wroteRequest.Sub(t.wroteHeaders)
		},
		GotFirstResponseByte: func() {
			t.firstByte = time.Now()
			t.m.TTFB = t.firstByte.Sub(t.wroteRequest)
		},
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

// Do sends req and reads the whole body. Download covers the time from the
// first response byte to the end of the body.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	m := &NetworkMetrics{}
	req = req.WithContext(WithMetrics(req.Context(), m))
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	headersAt := time.Now()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	m.Download = time.Since(headersAt)
	m.Total = time.Since(start)

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    m,
	}, nil
}

// Warm opens a connection to the API host so the upload after recording
// skips DNS and the TLS handshake. Failures are ignored.
func (c *TracedClient) Warm() {
	if c.warmURL == "" {
		return
	}
	req, err := http.NewRequest(http.MethodHead, c.warmURL, nil)
	if err != nil {
		return
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
