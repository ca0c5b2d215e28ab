// Package httpengine is the single HTTP transport every other package in
// this module sends requests through: one-shot send, TLS 1.2+ with a
// fixed cipher allowlist, composable trust roots, proxy support, and
// chunked streaming uploads.
package httpengine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"github.com/mindconnect/mcl-go/mclerr"
	"github.com/mindconnect/mcl-go/mcllog"
)

// Method is restricted to the verbs the platform API ever issues.
type Method string

const (
	MethodGet   Method = http.MethodGet
	MethodPost  Method = http.MethodPost
	MethodPut   Method = http.MethodPut
	MethodPatch Method = http.MethodPatch
)

// ProxyKind enumerates the proxy protocols the engine understands.
type ProxyKind int

const (
	ProxyNone ProxyKind = iota
	ProxyHTTP
	ProxyHTTPS
	ProxySOCKS4
	ProxySOCKS4A
	ProxySOCKS5
	ProxySOCKS5Hostname
)

// ProxyConfig describes an optional forward proxy.
type ProxyConfig struct {
	Kind     ProxyKind
	Host     string
	Port     int
	Username string
	Password string
	Domain   string
}

func (p ProxyConfig) address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// userIdentifier builds the libcurl-style "domain\username" proxy auth
// identity when a domain is configured, grounded on DOMAIN_SEPERATOR in
// the original HTTP client.
func (p ProxyConfig) userIdentifier() string {
	if p.Domain == "" {
		return p.Username
	}
	return p.Domain + `\` + p.Username
}

// TrustRoot is one certificate authority root, supplied either as PEM
// content already in memory or as a filesystem path to load it from.
type TrustRoot struct {
	Content []byte
	Path    string
}

// Config governs the engine's construction-time TLS and proxy setup.
type Config struct {
	TrustRoots []TrustRoot
	Proxy      *ProxyConfig
	// Timeout governs both connect and total transfer time, matching the
	// original's single CURLOPT_TIMEOUT/CURLOPT_CONNECTTIMEOUT pair.
	Timeout time.Duration
	// Logger receives debug entry/leave tracing and send errors. Defaults
	// to mcllog.Default() when nil.
	Logger *slog.Logger
}

// Client sends one-shot requests over a TLS connection configured once at
// construction, mirroring portainer.Client's bare *http.Client wrapping.
type Client struct {
	httpClient *http.Client
	log        *slog.Logger
}

// supportedCipherSuites is the fixed AEAD/CBC-SHA256 allowlist required by
// §4.A. Go's crypto/tls does not expose an AES-256-CBC-SHA256 cipher ID
// (only AES-128-CBC got a TLS-1.2 SHA256 variant standardized), so the
// 256-bit CBC member of the original allowlist has no direct stdlib
// equivalent; its AES-256-GCM-SHA384 sibling is carried instead.
var supportedCipherSuites = []uint16{
	tls.TLS_RSA_WITH_AES_128_CBC_SHA256,
	tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
}

// buildTrustPool composes one or more trust roots into a *x509.CertPool,
// per §4.A: a single file-path root may be handed to the TLS stack
// directly, but when multiple roots are present (or the single root is
// in-memory content) every root is merged into one pool. AppendCertsFromPEM
// returning false for a truly malformed block surfaces as
// ImproperCertificate; re-adding an already-present root is treated as
// success, matching the original's "ignore already-present" comment.
func buildTrustPool(roots []TrustRoot) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, root := range roots {
		pem := root.Content
		if root.Path != "" {
			content, err := os.ReadFile(root.Path)
			if err != nil {
				return nil, mclerr.Wrap(mclerr.ImproperCertificate, "read trust root file", err)
			}
			pem = content
		}
		if len(pem) == 0 {
			return nil, mclerr.New(mclerr.ImproperCertificate, "empty trust root")
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, mclerr.New(mclerr.ImproperCertificate, "no valid certificate in supplied trust root")
		}
	}
	return pool, nil
}

// NewClient builds a Client with its TLS and proxy settings fixed for the
// lifetime of the Client, mirroring the original's one-time
// curl_easy_init-and-configure discipline.
func NewClient(cfg Config) (*Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: supportedCipherSuites,
	}

	// Exactly one trust root supplied as a file path: its file is read
	// into a pool of its own, the analogue of handing a single CA file to
	// the TLS stack.
	if len(cfg.TrustRoots) == 1 && cfg.TrustRoots[0].Path != "" && len(cfg.TrustRoots[0].Content) == 0 {
		pool, err := buildTrustPool(cfg.TrustRoots)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	} else if len(cfg.TrustRoots) > 0 {
		pool, err := buildTrustPool(cfg.TrustRoots)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	transport := &http.Transport{
		TLSClientConfig: tlsConfig,
		// Never reuse a connection across send calls.
		DisableKeepAlives: true,
	}

	if cfg.Proxy != nil && cfg.Proxy.Kind != ProxyNone {
		if err := applyProxy(transport, *cfg.Proxy); err != nil {
			return nil, err
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	transport.TLSHandshakeTimeout = timeout

	log := cfg.Logger
	if log == nil {
		log = mcllog.Default()
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		log: log,
	}, nil
}

// applyProxy wires transport.Proxy (HTTP/HTTPS) or transport.DialContext
// (SOCKS4/4A/5/5h) according to cfg.Kind.
func applyProxy(transport *http.Transport, cfg ProxyConfig) error {
	switch cfg.Kind {
	case ProxyHTTP, ProxyHTTPS:
		scheme := "http"
		if cfg.Kind == ProxyHTTPS {
			scheme = "https"
		}
		u := &url.URL{Scheme: scheme, Host: cfg.address()}
		if cfg.Username != "" {
			u.User = url.UserPassword(cfg.userIdentifier(), cfg.Password)
		}
		transport.Proxy = http.ProxyURL(u)
		return nil
	case ProxySOCKS5, ProxySOCKS5Hostname:
		var auth *proxy.Auth
		if cfg.Username != "" {
			auth = &proxy.Auth{User: cfg.userIdentifier(), Password: cfg.Password}
		}
		dialer, err := proxy.SOCKS5("tcp", cfg.address(), auth, proxy.Direct)
		if err != nil {
			return mclerr.Wrap(mclerr.CouldNotResolveProxy, "configure SOCKS5 proxy", err)
		}
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
		return nil
	case ProxySOCKS4, ProxySOCKS4A:
		dialer := &socks4Dialer{proxyAddr: cfg.address(), resolveLocally: cfg.Kind == ProxySOCKS4}
		transport.DialContext = dialer.DialContext
		return nil
	default:
		return nil
	}
}

// Header is a single ordered request or response header field.
type Header struct {
	Name  string
	Value string
}

// BodyKind distinguishes an in-memory body from a streamed one.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyInMemory
	BodyStream
)

// Request describes one outbound HTTP call.
type Request struct {
	Method  Method
	URL     string
	Headers []Header

	// Operation names the logical call site for metrics/log correlation
	// (e.g. "onboard", "exchange", "deployment_list"); purely observational,
	// never sent over the wire.
	Operation string

	BodyKind BodyKind
	// InMemory is used when BodyKind == BodyInMemory.
	InMemory []byte
	// Stream and StreamLength are used when BodyKind == BodyStream.
	// StreamLength of -1 means unknown, triggering chunked encoding.
	Stream       StreamProducer
	StreamLength int64
}

// StreamProducer is a pull-style streaming body source, matching the
// caller-supplied producer callback the original HTTP client invokes.
type StreamProducer interface {
	Read(p []byte) (n int, err error)
}

// Response is a fully-buffered HTTP response.
type Response struct {
	StatusCode int
	Headers    []Header
	Body       []byte
}

func (r *Response) Header(name string) string {
	for _, h := range r.Headers {
		if strEqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func strEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
