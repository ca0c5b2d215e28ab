// Package core owns the credential store and identity state machine:
// Uninitialized → Configured → Onboarded → (Onboarded, HasToken), plus
// the shared httpengine.Client and request.Composer every other context
// in this module (uploads, deployments) reuses.
package core

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/mindconnect/mcl-go/httpengine"
	"github.com/mindconnect/mcl-go/jwtbuilder"
	"github.com/mindconnect/mcl-go/mclerr"
	"github.com/mindconnect/mcl-go/mcllog"
	"github.com/mindconnect/mcl-go/mclmetrics"
	"github.com/mindconnect/mcl-go/request"
	"github.com/mindconnect/mcl-go/security"
)

// Core is the identity context: state machine owning an Identity, the
// credential store, the JWT builder, and the shared HTTP request path.
type Core struct {
	cfg      *Configuration
	identity Identity
	store    credentialStore
	engine   *httpengine.Client
	rsaKey   *rsa.PrivateKey
	log      *slog.Logger

	// rekeyArmed gates the Onboarded→rekey sub-flow of Register: per
	// §4.E's ordering rule, rekey must not start until a successful
	// access-token fetch has last completed, or the caller explicitly
	// triggers it after a 400 from token acquisition. A register() call
	// while this is false is the ALREADY_ONBOARDED short-circuit of §8
	// scenario 2, not a rekey attempt.
	rekeyArmed bool
}

// Initialize builds a Core from cfg: loads credentials if a load callback
// is configured, validates the profile's key material, and transitions to
// Configured or Onboarded. It is the Go analogue of mcl_core_initialize.
func Initialize(cfg *Configuration) (*Core, error) {
	if cfg == nil {
		return nil, mclerr.New(mclerr.TriggeredWithNull, "core: nil configuration")
	}

	var trustRoots []httpengine.TrustRoot
	if len(cfg.TrustRoot.Content) > 0 || cfg.TrustRoot.Path != "" {
		trustRoots = append(trustRoots, cfg.TrustRoot)
	}
	log := cfg.Logger
	if log == nil {
		log = mcllog.Default()
	}

	engine, err := httpengine.NewClient(httpengine.Config{
		TrustRoots: trustRoots,
		Proxy:      cfg.Proxy,
		Timeout:    cfg.Timeout,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	c := &Core{
		cfg:    cfg,
		engine: engine,
		store:  credentialStore{load: cfg.Load, save: cfg.Save, lock: cfg.CriticalSection},
		log:    log,
	}
	c.identity.Profile = cfg.Profile

	err = c.store.loadIfConfigured(&c.identity)
	loaded := err == nil
	if err != nil && mclerr.Of(err) != mclerr.CredentialsNotLoaded {
		return nil, err
	}

	if !loaded {
		if cfg.EnrollmentToken == "" {
			return nil, mclerr.New(mclerr.NoAccessTokenProvided, "core: no loaded credentials and no enrollment token")
		}
	}

	if cfg.Profile == ProfileRsa3072 {
		if c.identity.PrivateKeyPEM == "" {
			key, err := security.GenerateRSAKeyPair()
			if err != nil {
				return nil, err
			}
			c.rsaKey = key
			c.identity.PrivateKeyPEM = security.EncodePrivateKeyPEM(key)
			c.identity.PublicKeyPEM = security.EncodePublicKeyPEM(&key.PublicKey)
		} else {
			key, err := security.DecodePrivateKeyPEM(c.identity.PrivateKeyPEM)
			if err != nil {
				return nil, err
			}
			c.rsaKey = key
		}
	}

	return c, nil
}

// IsOnboarded reports the §3 invariant directly off the identity record.
func (c *Core) IsOnboarded() bool { return c.identity.IsOnboarded() }

// GetHostName returns the configured platform base URL with cfg.Port
// folded in, the original's mcl_core_get_host_name. A BaseURL that
// already names an explicit port (as httptest servers do) is left
// untouched; Port only applies when BaseURL relies on the scheme's
// implied port and Port differs from it, the way
// http_client_libcurl.c's CURLOPT_PORT is a dial parameter independent
// of the URL's own scheme-implied port.
func (c *Core) GetHostName() string { return withPort(c.cfg.BaseURL, c.cfg.Port) }

func withPort(baseURL string, port int) string {
	if port == 0 {
		return baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || u.Port() != "" {
		return baseURL
	}
	schemeDefault := 80
	if u.Scheme == "https" {
		schemeDefault = 443
	}
	if port == schemeDefault {
		return baseURL
	}
	u.Host = u.Hostname() + ":" + strconv.Itoa(port)
	return u.String()
}

// GetClientID returns the current client_id, or "" before onboarding.
func (c *Core) GetClientID() string { return c.identity.ClientID }

// GetHTTPClient exposes the shared engine so uploads/deployment contexts
// reuse the same TLS/proxy-configured instance.
func (c *Core) GetHTTPClient() *httpengine.Client { return c.engine }

// GetMaxHTTPPayloadSize returns the configured upload budget the
// connectivity assembler enforces per envelope or range.
func (c *Core) GetMaxHTTPPayloadSize() int { return c.cfg.MaxHTTPPayloadSize }

// GetLogger exposes the configured logger so uploads/deployment contexts
// built over this identity share its entry/leave trace point instead of
// each defaulting independently.
func (c *Core) GetLogger() *slog.Logger { return c.log }

// GetLastAccessToken returns the most recently fetched access token.
func (c *Core) GetLastAccessToken() (string, error) {
	if c.identity.AccessToken == "" {
		return "", mclerr.New(mclerr.NoAccessTokenExists, "no access token has been fetched")
	}
	return c.identity.AccessToken, nil
}

// GetLastTokenTime returns the Server-Time header value from the most
// recent access-token response, or NoServerTime if none was present.
func (c *Core) GetLastTokenTime() (string, error) {
	if c.identity.LastTokenServerTime == "" {
		return "", mclerr.New(mclerr.NoServerTime, "no server time recorded")
	}
	return c.identity.LastTokenServerTime, nil
}

// Destroy zeroizes in-memory secret material. The Core must not be used
// afterward.
func (c *Core) Destroy() {
	c.identity.zeroize()
	c.rsaKey = nil
}

func (c *Core) composer(bearer string) request.Composer {
	return request.Composer{Engine: c.engine, UserAgent: c.cfg.UserAgent}.WithBearer(bearer)
}

// Register performs initial onboarding when not yet onboarded, or rekey
// when already onboarded and rekey is armed (see rekeyArmed); an onboarded
// identity with rekey unarmed gets ALREADY_ONBOARDED with no network call.
// Callers never pick the sub-flow (§4.E).
func (c *Core) Register(ctx context.Context) error {
	c.log.Debug("core register entry", "onboarded", c.identity.IsOnboarded(), "rekey_armed", c.rekeyArmed)
	c.store.enter()
	defer c.store.leave()

	if c.identity.IsOnboarded() {
		if !c.rekeyArmed {
			mclmetrics.RegistrationsTotal.WithLabelValues("register", "already_onboarded").Inc()
			c.log.Debug("core register leave", "result", "already_onboarded")
			return mclerr.New(mclerr.AlreadyOnboarded, "core: already onboarded; rekey not yet armed")
		}
		err := c.rekey(ctx)
		if err == nil || mclerr.Of(err) == mclerr.CredentialsNotSaved {
			c.rekeyArmed = false
		}
		c.log.Debug("core register leave", "result", "rekey", "error", err)
		return err
	}
	err := c.onboard(ctx)
	c.log.Debug("core register leave", "result", "onboard", "error", err)
	return err
}

// RotateKey is the explicit rekey trigger named in the original source
// (mcl_core_rotate_key) and in §8 scenario 3's literal call sequence. It
// arms and immediately invokes the same Register dispatch — callers do
// not get a second code path, only a documented way to unlock rekey
// after a 400 from token acquisition without waiting for a successful
// fetch first.
func (c *Core) RotateKey(ctx context.Context) error {
	if !c.identity.IsOnboarded() {
		return mclerr.New(mclerr.NotOnboarded, "core: rotate_key requires an onboarded identity")
	}
	c.rekeyArmed = true
	return c.Register(ctx)
}

func (c *Core) onboard(ctx context.Context) error {
	body, err := c.registrationBody()
	if err != nil {
		return err
	}

	comp := c.composer(c.cfg.EnrollmentToken)
	resp, err := comp.Send(ctx, &httpengine.Request{
		Method:    httpengine.MethodPost,
		URL:       c.cfg.EnrollmentEndpoint,
		Operation: "onboard",
		BodyKind:  httpengine.BodyInMemory,
		InMemory:  body,
		Headers:   []httpengine.Header{{Name: "Content-Type", Value: "application/json"}},
	}, true)
	if err != nil {
		mclmetrics.RegistrationsTotal.WithLabelValues("onboard", "error").Inc()
		return err
	}

	var parsed registrationResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		mclmetrics.RegistrationsTotal.WithLabelValues("onboard", "error").Inc()
		return mclerr.Wrap(mclerr.Fail, "parse registration response", err)
	}

	c.identity.ClientID = parsed.ClientID
	c.identity.ClientSecret = parsed.ClientSecret
	c.identity.RegistrationAccessToken = parsed.RegistrationAccessToken
	c.identity.RegistrationURI = parsed.RegistrationClientURI
	if c.rsaKey != nil {
		c.identity.PrivateKeyPEM = security.EncodePrivateKeyPEM(c.rsaKey)
		c.identity.PublicKeyPEM = security.EncodePublicKeyPEM(&c.rsaKey.PublicKey)
	}

	if err := c.store.saveIfConfigured(&c.identity); err != nil {
		mclmetrics.RegistrationsTotal.WithLabelValues("onboard", "not_saved").Inc()
		return err
	}
	mclmetrics.RegistrationsTotal.WithLabelValues("onboard", "ok").Inc()
	return nil
}

func (c *Core) rekey(ctx context.Context) error {
	if c.cfg.Profile == ProfileRsa3072 {
		key, err := security.GenerateRSAKeyPair()
		if err != nil {
			return err
		}
		c.rsaKey = key
	}

	body, err := c.registrationBody()
	if err != nil {
		return err
	}

	target := c.identity.RegistrationURI
	if target == "" {
		target = c.cfg.EnrollmentEndpoint
	}

	comp := c.composer(c.identity.RegistrationAccessToken)
	resp, err := comp.Send(ctx, &httpengine.Request{
		Method:    httpengine.MethodPost,
		URL:       target,
		Operation: "rekey",
		BodyKind:  httpengine.BodyInMemory,
		InMemory:  body,
		Headers:   []httpengine.Header{{Name: "Content-Type", Value: "application/json"}},
	}, true)
	if err != nil {
		mclmetrics.RegistrationsTotal.WithLabelValues("rekey", "error").Inc()
		return err
	}

	var parsed registrationResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		mclmetrics.RegistrationsTotal.WithLabelValues("rekey", "error").Inc()
		return mclerr.Wrap(mclerr.Fail, "parse registration response", err)
	}

	c.identity.ClientID = parsed.ClientID
	if c.cfg.Profile == ProfileShared {
		c.identity.ClientSecret = parsed.ClientSecret
	} else {
		c.identity.PrivateKeyPEM = security.EncodePrivateKeyPEM(c.rsaKey)
		c.identity.PublicKeyPEM = security.EncodePublicKeyPEM(&c.rsaKey.PublicKey)
	}
	c.identity.RegistrationAccessToken = parsed.RegistrationAccessToken
	c.identity.RegistrationURI = parsed.RegistrationClientURI

	if err := c.store.saveIfConfigured(&c.identity); err != nil {
		mclmetrics.RegistrationsTotal.WithLabelValues("rekey", "not_saved").Inc()
		return err
	}
	mclmetrics.RegistrationsTotal.WithLabelValues("rekey", "ok").Inc()
	return nil
}

func (c *Core) registrationBody() ([]byte, error) {
	req := registrationRequest{ClientID: c.identity.ClientID}
	if c.cfg.Profile == ProfileRsa3072 && c.rsaKey != nil {
		n, e := security.ModulusAndExponent(&c.rsaKey.PublicKey)
		kid := c.identity.ClientID
		req.JWKS = newRsaJWKS(kid, n, e)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, mclerr.Wrap(mclerr.Fail, "marshal registration request", err)
	}
	return body, nil
}

// UpdateCredentials re-runs the load callback and reconciles the
// in-memory identity against what is stored, per §4.E.
func (c *Core) UpdateCredentials(ctx context.Context) error {
	c.log.Debug("core update_credentials entry")
	c.store.enter()
	defer c.store.leave()

	var reloaded Identity
	reloaded.Profile = c.identity.Profile
	if err := c.store.loadIfConfigured(&reloaded); err != nil {
		c.log.Debug("core update_credentials leave", "error", err)
		return err
	}

	if c.identity.equalStored(reloaded.toStored()) {
		c.log.Debug("core update_credentials leave", "result", "up_to_date")
		return mclerr.New(mclerr.CredentialsUpToDate, "stored credentials match in-memory identity")
	}
	c.identity.fromStored(reloaded.toStored())

	if c.identity.Profile == ProfileRsa3072 && c.identity.PrivateKeyPEM != "" {
		key, err := security.DecodePrivateKeyPEM(c.identity.PrivateKeyPEM)
		if err != nil {
			c.log.Debug("core update_credentials leave", "error", err)
			return err
		}
		c.rsaKey = key
	}
	c.log.Debug("core update_credentials leave", "result", "reconciled")
	return nil
}

// GetAccessToken builds and sends a self-issued authorization grant and
// stores the resulting access token. The identity must be onboarded.
func (c *Core) GetAccessToken(ctx context.Context) error {
	c.log.Debug("core get_access_token entry", "client_id", c.identity.ClientID)
	if !c.identity.IsOnboarded() {
		return mclerr.New(mclerr.NotOnboarded, "core: get_access_token requires an onboarded identity")
	}

	builder := &jwtbuilder.Builder{
		ClientID: c.identity.ClientID,
		Tenant:   c.cfg.Tenant,
		Audience: c.cfg.BaseURL,
	}
	switch c.cfg.Profile {
	case ProfileShared:
		builder.Algorithm = jwtbuilder.HS256
		builder.HMACSecret = []byte(c.identity.ClientSecret)
	case ProfileRsa3072:
		builder.Algorithm = jwtbuilder.RS256
		builder.RSAKey = c.rsaKey
	}

	assertion, err := builder.Build()
	if err != nil {
		return err
	}

	form := fmt.Sprintf("grant_type=client_credentials&assertion=%s", assertion)
	comp := c.composer(assertion)
	resp, err := comp.Send(ctx, &httpengine.Request{
		Method:    httpengine.MethodPost,
		URL:       c.cfg.TokenEndpoint,
		Operation: "get_access_token",
		BodyKind:  httpengine.BodyInMemory,
		InMemory:  []byte(form),
		Headers:   []httpengine.Header{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}},
	}, true)
	if err != nil {
		code := mclerr.Of(err)
		mclmetrics.TokenFetchesTotal.WithLabelValues(code.String()).Inc()
		if code == mclerr.BadRequest {
			// A 400 from token acquisition is the documented signal that
			// the current secret/key is no longer accepted; it arms rekey
			// the same way a successful fetch would (§4.E, §8 scenario 3).
			c.rekeyArmed = true
		}
		c.log.Debug("core get_access_token leave", "error", err)
		return err
	}

	// Decoded via oauth2.Token's own JSON shape ({access_token, token_type,
	// expires_in, ...}) rather than a hand-rolled struct, since this
	// module already depends on golang.org/x/oauth2 for that shape.
	var tokenResp oauth2.Token
	if err := json.Unmarshal(resp.Body, &tokenResp); err != nil {
		return mclerr.Wrap(mclerr.Fail, "parse token response", err)
	}

	c.identity.AccessToken = tokenResp.AccessToken
	if serverTime := resp.Header("Server-Time"); serverTime != "" {
		c.identity.LastTokenServerTime = serverTime
	}
	c.rekeyArmed = true
	mclmetrics.TokenFetchesTotal.WithLabelValues("ok").Inc()
	c.log.Debug("core get_access_token leave", "result", "ok")
	return nil
}
