package core

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mindconnect/mcl-go/httpengine"
	"github.com/mindconnect/mcl-go/jwtbuilder"
	"github.com/mindconnect/mcl-go/mclerr"
	"github.com/mindconnect/mcl-go/security"
)

func trustRootFor(srv *httptest.Server) httpengine.TrustRoot {
	cert := srv.Certificate()
	return httpengine.TrustRoot{Content: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})}
}

// memoryCredentialStore is a trivial in-process Load/Save pair used by
// tests in place of a real boltstore, so these tests exercise the core
// state machine without pulling in the bbolt dependency.
type memoryCredentialStore struct {
	creds   *StoredCredentials
	savedAt int
}

func (m *memoryCredentialStore) load() (*StoredCredentials, error) {
	if m.creds == nil {
		return nil, mclerr.New(mclerr.CredentialsNotLoaded, "nothing stored")
	}
	cp := *m.creds
	return &cp, nil
}

func (m *memoryCredentialStore) save(c *StoredCredentials) error {
	cp := *c
	m.creds = &cp
	m.savedAt++
	return nil
}

func TestSharedSecretOnboarding(t *testing.T) {
	var registerCalls int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&registerCalls, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer IAT-xyz" {
			t.Errorf("Authorization = %q, want enrollment token bearer", got)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(registrationResponse{
			ClientID:                "zxc",
			ClientSecret:            "dummy_secret",
			RegistrationAccessToken: "123",
			RegistrationClientURI:   "https://h/register",
		})
	}))
	defer srv.Close()

	store := &memoryCredentialStore{}
	cfg, err := NewSharedSecretConfig().
		BaseURL(srv.URL).
		TrustRoot(trustRootFor(srv)).
		Tenant("br-smk1").
		EnrollmentEndpoint(srv.URL).
		TokenEndpoint(srv.URL).
		EnrollmentToken("IAT-xyz").
		Credentials(store.load, store.save).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	c, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !c.IsOnboarded() {
		t.Fatalf("expected IsOnboarded() to be true after successful register")
	}
	if store.savedAt != 1 {
		t.Fatalf("save callback invoked %d times, want exactly 1", store.savedAt)
	}
	if store.creds.ClientID != "zxc" || store.creds.ClientSecret != "dummy_secret" ||
		store.creds.RegistrationAccessToken != "123" || store.creds.RegistrationURI != "https://h/register" {
		t.Fatalf("saved credentials = %+v, want the fixture values", store.creds)
	}
}

func TestAlreadyOnboardedShortCircuit(t *testing.T) {
	var networkCalls int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&networkCalls, 1)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(registrationResponse{
			ClientID: "zxc", ClientSecret: "dummy_secret",
			RegistrationAccessToken: "123", RegistrationClientURI: "https://h/register",
		})
	}))
	defer srv.Close()

	store := &memoryCredentialStore{}
	cfg, _ := NewSharedSecretConfig().
		BaseURL(srv.URL).TrustRoot(trustRootFor(srv)).Tenant("br-smk1").
		EnrollmentEndpoint(srv.URL).TokenEndpoint(srv.URL).
		EnrollmentToken("IAT-xyz").Credentials(store.load, store.save).Build()

	c, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if got := atomic.LoadInt32(&networkCalls); got != 1 {
		t.Fatalf("expected exactly 1 network call after first register, got %d", got)
	}

	err = c.Register(context.Background())
	if mclerr.Of(err) != mclerr.AlreadyOnboarded {
		t.Fatalf("second Register error = %v, want AlreadyOnboarded", err)
	}
	if got := atomic.LoadInt32(&networkCalls); got != 1 {
		t.Fatalf("second Register must not perform network I/O, call count = %d", got)
	}
}

func TestRekeyOnTokenBadRequest(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(registrationResponse{
			ClientID: "zxc", ClientSecret: "dummy_secret",
			RegistrationAccessToken: "123", RegistrationClientURI: "",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokenCalls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "eyJraWQiOi...",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	srv := httptest.NewTLSServer(mux)
	defer srv.Close()

	store := &memoryCredentialStore{}
	cfg, _ := NewSharedSecretConfig().
		BaseURL(srv.URL).TrustRoot(trustRootFor(srv)).Tenant("br-smk1").
		EnrollmentEndpoint(srv.URL + "/register").TokenEndpoint(srv.URL + "/token").
		EnrollmentToken("IAT-xyz").Credentials(store.load, store.save).Build()

	c, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("initial Register: %v", err)
	}

	err = c.GetAccessToken(context.Background())
	if mclerr.Of(err) != mclerr.BadRequest {
		t.Fatalf("first GetAccessToken error = %v, want BadRequest", err)
	}

	if err := c.RotateKey(context.Background()); err != nil {
		t.Fatalf("RotateKey: %v", err)
	}

	if err := c.GetAccessToken(context.Background()); err != nil {
		t.Fatalf("second GetAccessToken: %v", err)
	}

	token, err := c.GetLastAccessToken()
	if err != nil {
		t.Fatalf("GetLastAccessToken: %v", err)
	}
	if token != "eyJraWQiOi..." {
		t.Fatalf("GetLastAccessToken = %q, want the fixture token", token)
	}
}

func TestImproperTrustRootYieldsZeroNetworkIO(t *testing.T) {
	cfg, err := NewSharedSecretConfig().
		BaseURL("https://example.invalid").
		TrustRoot(httpengine.TrustRoot{Content: []byte("not a certificate")}).
		Tenant("br-smk1").
		EnrollmentEndpoint("https://example.invalid/register").
		TokenEndpoint("https://example.invalid/token").
		EnrollmentToken("IAT-xyz").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	_, err = Initialize(cfg)
	if mclerr.Of(err) != mclerr.ImproperCertificate {
		t.Fatalf("Initialize error = %v, want ImproperCertificate", err)
	}
}

func TestInitializeFailsWithNoEnrollmentTokenAndNoStoredCredentials(t *testing.T) {
	store := &memoryCredentialStore{}
	cfg, err := NewSharedSecretConfig().
		BaseURL("https://example.invalid").
		Tenant("br-smk1").
		Credentials(store.load, store.save).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	_, err = Initialize(cfg)
	if mclerr.Of(err) != mclerr.NoAccessTokenProvided {
		t.Fatalf("Initialize error = %v, want NoAccessTokenProvided", err)
	}
}

func TestMaxHTTPPayloadSizeBoundary(t *testing.T) {
	for _, n := range []int{399, 10*1024*1024 + 1} {
		_, err := NewSharedSecretConfig().
			BaseURL("https://example.invalid").
			EnrollmentToken("x").
			MaxHTTPPayloadSize(n).
			Build()
		if mclerr.Of(err) != mclerr.InvalidParameter {
			t.Fatalf("MaxHTTPPayloadSize(%d): error = %v, want InvalidParameter", n, err)
		}
	}

	_, err := NewSharedSecretConfig().
		BaseURL("https://example.invalid").
		EnrollmentToken("x").
		MaxHTTPPayloadSize(16384).
		Build()
	if err != nil {
		t.Fatalf("MaxHTTPPayloadSize(16384): unexpected error %v", err)
	}
}

func TestUpdateCredentialsReportsUpToDate(t *testing.T) {
	store := &memoryCredentialStore{creds: &StoredCredentials{
		ClientID: "a", ClientSecret: "b", RegistrationAccessToken: "c", RegistrationURI: "d",
	}}
	cfg, _ := NewSharedSecretConfig().
		BaseURL("https://example.invalid").
		Credentials(store.load, store.save).
		Timeout(5 * time.Second).
		Build()

	c, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	err = c.UpdateCredentials(context.Background())
	if mclerr.Of(err) != mclerr.CredentialsUpToDate {
		t.Fatalf("UpdateCredentials = %v, want CredentialsUpToDate", err)
	}
}

func TestUpdateCredentialsReloadsRsaKeyMaterial(t *testing.T) {
	oldKey, err := security.GenerateRSAKeyPair()
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair: %v", err)
	}
	newKey, err := security.GenerateRSAKeyPair()
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair: %v", err)
	}

	store := &memoryCredentialStore{creds: &StoredCredentials{
		ClientID:      "zxc",
		PrivateKeyPEM: security.EncodePrivateKeyPEM(oldKey),
		PublicKeyPEM:  security.EncodePublicKeyPEM(&oldKey.PublicKey),
	}}
	cfg, err := NewRsaConfig().
		BaseURL("https://example.invalid").
		Tenant("br-smk1").
		TokenEndpoint("https://example.invalid/token").
		Credentials(store.load, store.save).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	c, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !oldKey.Equal(c.rsaKey) {
		t.Fatalf("Initialize did not load the stored RSA key")
	}

	// Simulate an out-of-band rekey: the store now holds a new key pair
	// under the same client_id.
	store.creds.PrivateKeyPEM = security.EncodePrivateKeyPEM(newKey)
	store.creds.PublicKeyPEM = security.EncodePublicKeyPEM(&newKey.PublicKey)

	if err := c.UpdateCredentials(context.Background()); err != nil {
		t.Fatalf("UpdateCredentials: %v", err)
	}
	if !newKey.Equal(c.rsaKey) {
		t.Fatalf("UpdateCredentials did not reload the new RSA key into c.rsaKey")
	}

	builder := &jwtbuilder.Builder{
		Algorithm: jwtbuilder.RS256,
		ClientID:  c.identity.ClientID,
		Tenant:    cfg.Tenant,
		Audience:  cfg.BaseURL,
		RSAKey:    c.rsaKey,
	}
	signed, err := builder.Build()
	if err != nil {
		t.Fatalf("Build assertion: %v", err)
	}
	if _, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) {
		return &newKey.PublicKey, nil
	}); err != nil {
		t.Fatalf("assertion signed after UpdateCredentials does not verify against the new key: %v", err)
	}
	if _, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) {
		return &oldKey.PublicKey, nil
	}); err == nil {
		t.Fatalf("assertion signed after UpdateCredentials must not verify against the stale key")
	}
}

func TestGetHostNameFoldsInNonDefaultPort(t *testing.T) {
	cfg, err := NewSharedSecretConfig().
		BaseURL("https://example.invalid").
		Port(8443).
		EnrollmentToken("IAT-xyz").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got, want := c.GetHostName(), "https://example.invalid:8443"; got != want {
		t.Fatalf("GetHostName() = %q, want %q", got, want)
	}
}

func TestGetHostNameLeavesExplicitPortUntouched(t *testing.T) {
	cfg, err := NewSharedSecretConfig().
		BaseURL("https://example.invalid:9999").
		Port(8443).
		EnrollmentToken("IAT-xyz").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got, want := c.GetHostName(), "https://example.invalid:9999"; got != want {
		t.Fatalf("GetHostName() = %q, want %q (explicit port wins)", got, want)
	}
}
