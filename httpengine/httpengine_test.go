package httpengine

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendRoundTripsInMemoryBody(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "hello" {
			t.Errorf("server received body %q, want %q", body, "hello")
		}
		w.Header().Set("X-Server-Time", "2026-01-01T00:00:00Z")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		TrustRoots: []TrustRoot{{Content: certPEM(srv)}},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	resp, err := client.Send(context.Background(), &Request{
		Method:   MethodPost,
		URL:      srv.URL,
		BodyKind: BodyInMemory,
		InMemory: []byte("hello"),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if resp.Header("X-Server-Time") != "2026-01-01T00:00:00Z" {
		t.Fatalf("Server-Time header = %q", resp.Header("X-Server-Time"))
	}
}

func TestSendStreamsChunkedBodyWithUnknownLength(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "streamed-payload" {
			t.Errorf("server received %q", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{TrustRoots: []TrustRoot{{Content: certPEM(srv)}}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	resp, err := client.Send(context.Background(), &Request{
		Method:       MethodPut,
		URL:          srv.URL,
		BodyKind:     BodyStream,
		Stream:       io.NopCloser(bytes.NewReader([]byte("streamed-payload"))),
		StreamLength: -1,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestNewClientRejectsImproperCertificate(t *testing.T) {
	_, err := NewClient(Config{
		TrustRoots: []TrustRoot{{Content: []byte("not a certificate")}},
	})
	if err == nil {
		t.Fatalf("expected error for malformed trust root")
	}
}

func TestNewClientAcceptsMultipleRootsWithDuplicates(t *testing.T) {
	// A root listed twice must not be treated as a failure ("already
	// present" is swallowed per Design Note 9).
	dummyCA := testCACert()
	_, err := NewClient(Config{
		TrustRoots: []TrustRoot{{Content: dummyCA}, {Content: dummyCA}},
	})
	if err != nil {
		t.Fatalf("NewClient with duplicate roots: %v", err)
	}
}

// certPEM extracts the PEM-encoded leaf certificate the test TLS server
// presents, so the engine under test can be configured to trust it.
func certPEM(srv *httptest.Server) []byte {
	cert := srv.Certificate()
	return pemEncodeCert(cert.Raw)
}
