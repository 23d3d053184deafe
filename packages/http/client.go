package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptrace"
	neturl "net/url"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/cookies"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultMaxRedirects   = 50
	DefaultUserAgent      = "reqflow"

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
)

// ExecOptions are the per-attempt transport settings. Entry options can
// override the run-level defaults, so they travel with every Execute call.
type ExecOptions struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	FollowRedirect bool
	MaxRedirects   int
	Insecure       bool
}

// Transport executes one attempt against a live server. The runner only sees
// this interface, tests substitute their own implementation.
type Transport interface {
	Execute(ctx context.Context, req *Request, opts ExecOptions, jar *cookies.Jar) (*Exchange, error)
}

// Error is a transport-level failure (connection, TLS, timeout).
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Client struct {
	userAgent string
	proxyURL  string

	secure   *nethttp.Transport
	insecure *nethttp.Transport
}

type ClientOption func(*Client)

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxyURL = proxyURL
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{userAgent: DefaultUserAgent}
	for _, opt := range opts {
		opt(c)
	}
	c.secure = c.newTransport(false)
	c.insecure = c.newTransport(true)
	return c
}

func (c *Client) newTransport(insecure bool) *nethttp.Transport {
	t := &nethttp.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if c.proxyURL != "" {
		if u, err := neturl.Parse(c.proxyURL); err == nil {
			t.Proxy = nethttp.ProxyURL(u)
		}
	}
	return t
}

// Execute runs one attempt, following redirects itself so the whole call
// chain is recorded and the jar sees every response.
func (c *Client) Execute(ctx context.Context, req *Request, opts ExecOptions, jar *cookies.Jar) (*Exchange, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	exchange := &Exchange{}
	current := req
	for {
		call, err := c.call(ctx, current, opts, jar)
		if err != nil {
			return nil, &Error{URL: current.URL, Err: err}
		}
		exchange.Calls = append(exchange.Calls, call)

		location, redirect := redirectTarget(call)
		if !redirect || !opts.FollowRedirect {
			return exchange, nil
		}
		if exchange.RedirectCount() >= opts.MaxRedirects {
			return nil, &Error{URL: current.URL, Err: fmt.Errorf("too many redirects (max %d)", opts.MaxRedirects)}
		}
		current = redirectRequest(current, call.Response.Status, location)
	}
}

func (c *Client) call(ctx context.Context, req *Request, opts ExecOptions, jar *cookies.Jar) (*Call, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := nethttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	for _, h := range req.Headers {
		httpReq.Header.Add(h.Name, h.Value)
	}
	if jar != nil {
		if cs := jar.RequestCookies(req.URL); len(cs) > 0 {
			httpReq.Header.Set("Cookie", cookies.HeaderValue(cs))
		}
	}

	var timings Timings
	start := time.Now()
	var dnsStart, connStart, tlsStart time.Time
	trace := &httptrace.ClientTrace{
		DNSStart:          func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { timings.DNS = time.Since(dnsStart) },
		ConnectStart:      func(string, string) { connStart = time.Now() },
		ConnectDone:       func(string, string, error) { timings.Connect = time.Since(connStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { timings.TLS = time.Since(tlsStart) },
		GotFirstResponseByte: func() {
			timings.FirstByte = time.Since(start)
		},
	}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), trace))

	transport := c.secure
	if opts.Insecure {
		transport = c.insecure
	}
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	perCall := transport.Clone()
	perCall.DialContext = dialer.DialContext

	httpClient := &nethttp.Client{
		Transport:     perCall,
		CheckRedirect: func(*nethttp.Request, []*nethttp.Request) error { return nethttp.ErrUseLastResponse },
	}

	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	timings.Total = time.Since(start)

	resp := &Response{
		Status:  httpResp.StatusCode,
		Version: httpResp.Proto,
		Headers: flattenHeaders(httpResp.Header),
		Body:    respBody,
	}
	if httpResp.TLS != nil && len(httpResp.TLS.PeerCertificates) > 0 {
		leaf := httpResp.TLS.PeerCertificates[0]
		resp.Certificate = &Certificate{
			Subject:      leaf.Subject.String(),
			Issuer:       leaf.Issuer.String(),
			StartDate:    leaf.NotBefore,
			ExpireDate:   leaf.NotAfter,
			SerialNumber: formatSerial(leaf.SerialNumber.Bytes()),
		}
	}

	if jar != nil {
		jar.UpdateFromResponse(req.URL, setCookieSources(resp))
	}

	sent := &Request{Method: req.Method, URL: req.URL, Body: req.Body}
	sent.Headers = flattenHeaders(httpReq.Header)

	return &Call{Request: sent, Response: resp, Timings: timings}, nil
}

// flattenHeaders keeps duplicate values per name in wire order. Names are
// sorted because net/http stores headers in a map.
func flattenHeaders(h nethttp.Header) HeaderList {
	var out HeaderList
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range h[name] {
			out = out.Add(name, v)
		}
	}
	return out
}

func setCookieSources(resp *Response) []cookies.SetCookieSource {
	parsed := resp.Cookies()
	out := make([]cookies.SetCookieSource, len(parsed))
	for i, c := range parsed {
		out[i] = cookies.SetCookieSource{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			Expires:  c.Expires,
			MaxAge:   c.MaxAge,
		}
	}
	return out
}

func redirectTarget(call *Call) (string, bool) {
	status := call.Response.Status
	if status < 300 || status >= 400 || status == 304 {
		return "", false
	}
	loc, ok := call.Response.Headers.Get("Location")
	if !ok || loc == "" {
		return "", false
	}
	base, err := neturl.Parse(call.Request.URL)
	if err != nil {
		return "", false
	}
	ref, err := neturl.Parse(loc)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// redirectRequest builds the follow-up request. 303, and the historical
// 301/302 POST behavior, switch to GET and drop the body.
func redirectRequest(prev *Request, status int, location string) *Request {
	method := prev.Method
	body := prev.Body
	if status == 303 || ((status == 301 || status == 302) && strings.EqualFold(method, "POST")) {
		method = "GET"
		body = nil
	}
	next := &Request{Method: method, URL: location, Body: body}
	for _, h := range prev.Headers {
		if strings.EqualFold(h.Name, "Content-Length") {
			continue
		}
		if body == nil && strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		next.Headers = next.Headers.Add(h.Name, h.Value)
	}
	return next
}

func formatSerial(b []byte) string {
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = fmt.Sprintf("%02x", x)
	}
	return strings.Join(parts, ":")
}
