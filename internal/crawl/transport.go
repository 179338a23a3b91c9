package crawl

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Request is everything the transport needs for one attempt.
type Request struct {
	Method  string
	URL     string
	Params  url.Values
	Headers map[string]string
	Cookies map[string]string
	Body    string
	Proxy   *ProxyRecord
	Timeout time.Duration
}

// Response is the raw transport result handed to classification.
type Response struct {
	StatusCode int
	Body       string
}

// Transport performs the actual network call. Injected so tests can fake
// it and so the orchestrator never holds a lock across a network round
// trip.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the production Transport on net/http. Clients are cached
// per proxy identity so connection pools survive across attempts.
type HTTPTransport struct {
	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewHTTPTransport returns an empty transport; clients are built lazily.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{clients: make(map[string]*http.Client)}
}

// Send issues the request through the proxy named in req, or directly when
// req.Proxy is nil.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	client := t.client(req.Proxy)

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	target := req.URL
	if len(req.Params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Params.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: string(raw)}, nil
}

func (t *HTTPTransport) client(proxy *ProxyRecord) *http.Client {
	key := ""
	if proxy != nil {
		key = proxy.Key()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[key]; ok {
		return c
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy.URL())
	}

	c := &http.Client{Transport: transport}
	t.clients[key] = c
	return c
}
