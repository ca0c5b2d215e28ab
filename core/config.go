package core

import (
	"log/slog"
	"time"

	"github.com/mindconnect/mcl-go/httpengine"
	"github.com/mindconnect/mcl-go/mclerr"
)

// Profile is the security profile an identity is bound to.
type Profile int

const (
	ProfileShared Profile = iota
	ProfileRsa3072
)

const (
	defaultPort               = 443
	defaultTimeout            = 300 * time.Second
	defaultMaxHTTPPayloadSize = 16384
	minHTTPPayloadSize        = 400
	maxHTTPPayloadSize        = 10 * 1024 * 1024
)

// StoredCredentials is the load/save callback payload, §6: four fields
// for Shared, five for Rsa (PublicKeyPEM/PrivateKeyPEM are empty for
// Shared, ClientSecret is empty for Rsa).
type StoredCredentials struct {
	ClientID                string
	ClientSecret            string
	PublicKeyPEM            string
	PrivateKeyPEM           string
	RegistrationAccessToken string
	RegistrationURI         string
}

// LoadCredentials returns a populated StoredCredentials, or an error
// unwrapping to mclerr.CredentialsNotLoaded when nothing is stored yet.
type LoadCredentials func() (*StoredCredentials, error)

// SaveCredentials persists creds, returning an error unwrapping to
// mclerr.CredentialsNotSaved on failure. The core never mutates creds
// after calling this.
type SaveCredentials func(creds *StoredCredentials) error

// CriticalSection brackets identity mutations the way the original's
// optional enter/leave callbacks do, for callers sharing one identity
// context across threads of control.
type CriticalSection interface {
	Enter()
	Leave()
}

// Configuration is immutable once built by Build(); it is validated
// exactly once, in Build.
type Configuration struct {
	BaseURL   string
	Port      int
	TrustRoot httpengine.TrustRoot
	Proxy     *httpengine.ProxyConfig

	UserAgent string
	Tenant    string
	Profile   Profile

	// EnrollmentEndpoint is the initial registration endpoint; RegistrationURI
	// on the identity record overrides it for every subsequent rekey.
	EnrollmentEndpoint string
	// TokenEndpoint issues access tokens for a client-credentials grant.
	TokenEndpoint string

	// EnrollmentToken is the one-shot bearer for the very first registration.
	// At least one of EnrollmentToken or Load must be set; when both are,
	// EnrollmentToken is used only if Load reports nothing stored.
	EnrollmentToken string
	Load            LoadCredentials
	Save            SaveCredentials

	CriticalSection CriticalSection

	Timeout            time.Duration
	MaxHTTPPayloadSize int

	// Logger receives debug entry/leave tracing for every state-machine
	// operation and the shared HTTP engine. Defaults to mcllog.Default()
	// when nil.
	Logger *slog.Logger
}

// ConfigBuilder is the typed, per-profile configuration builder that
// replaces a stringly-typed "set_parameter" dispatcher (Design Note 9).
type ConfigBuilder struct {
	cfg Configuration
}

// NewSharedSecretConfig starts a builder for the Shared security profile.
func NewSharedSecretConfig() *ConfigBuilder {
	return &ConfigBuilder{cfg: Configuration{Profile: ProfileShared, Port: defaultPort, Timeout: defaultTimeout, MaxHTTPPayloadSize: defaultMaxHTTPPayloadSize}}
}

// NewRsaConfig starts a builder for the Rsa3072 security profile.
func NewRsaConfig() *ConfigBuilder {
	return &ConfigBuilder{cfg: Configuration{Profile: ProfileRsa3072, Port: defaultPort, Timeout: defaultTimeout, MaxHTTPPayloadSize: defaultMaxHTTPPayloadSize}}
}

func (b *ConfigBuilder) BaseURL(url string) *ConfigBuilder { b.cfg.BaseURL = url; return b }
func (b *ConfigBuilder) Port(port int) *ConfigBuilder      { b.cfg.Port = port; return b }
func (b *ConfigBuilder) TrustRoot(root httpengine.TrustRoot) *ConfigBuilder {
	b.cfg.TrustRoot = root
	return b
}
func (b *ConfigBuilder) Proxy(p httpengine.ProxyConfig) *ConfigBuilder { b.cfg.Proxy = &p; return b }
func (b *ConfigBuilder) UserAgent(ua string) *ConfigBuilder            { b.cfg.UserAgent = ua; return b }
func (b *ConfigBuilder) Tenant(tenant string) *ConfigBuilder           { b.cfg.Tenant = tenant; return b }
func (b *ConfigBuilder) EnrollmentEndpoint(ep string) *ConfigBuilder {
	b.cfg.EnrollmentEndpoint = ep
	return b
}
func (b *ConfigBuilder) TokenEndpoint(ep string) *ConfigBuilder { b.cfg.TokenEndpoint = ep; return b }
func (b *ConfigBuilder) EnrollmentToken(tok string) *ConfigBuilder {
	b.cfg.EnrollmentToken = tok
	return b
}
func (b *ConfigBuilder) Credentials(load LoadCredentials, save SaveCredentials) *ConfigBuilder {
	b.cfg.Load = load
	b.cfg.Save = save
	return b
}
func (b *ConfigBuilder) CriticalSection(cs CriticalSection) *ConfigBuilder {
	b.cfg.CriticalSection = cs
	return b
}
func (b *ConfigBuilder) Timeout(d time.Duration) *ConfigBuilder { b.cfg.Timeout = d; return b }
func (b *ConfigBuilder) MaxHTTPPayloadSize(n int) *ConfigBuilder {
	b.cfg.MaxHTTPPayloadSize = n
	return b
}
func (b *ConfigBuilder) Logger(l *slog.Logger) *ConfigBuilder { b.cfg.Logger = l; return b }

// Build validates the accumulated fields once, per Design Note 9.
func (b *ConfigBuilder) Build() (*Configuration, error) {
	cfg := b.cfg
	if cfg.BaseURL == "" {
		return nil, mclerr.New(mclerr.InvalidParameter, "core: empty base URL")
	}
	if cfg.MaxHTTPPayloadSize < minHTTPPayloadSize || cfg.MaxHTTPPayloadSize > maxHTTPPayloadSize {
		return nil, mclerr.New(mclerr.InvalidParameter, "core: max_http_payload_size out of [400, 10485760]")
	}
	if cfg.EnrollmentToken == "" && cfg.Load == nil {
		return nil, mclerr.New(mclerr.NoAccessTokenProvided, "core: neither enrollment token nor credential callbacks configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	return &cfg, nil
}
