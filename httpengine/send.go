package httpengine

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/mindconnect/mcl-go/mclerr"
)

// Send performs one request/response round trip and never reuses the
// underlying connection afterward (Connection: close), per §4.A.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	c.log.Debug("httpengine send entry", "operation", req.Operation, "method", req.Method, "url", req.URL)

	httpReq, err := c.buildHTTPRequest(ctx, req)
	if err != nil {
		c.log.Error("httpengine send leave", "operation", req.Operation, "error", err)
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		wrapped := classifyTransportError(err)
		c.log.Error("httpengine send leave", "operation", req.Operation, "error", wrapped)
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		wrapped := mclerr.Wrap(mclerr.NetworkReceiveFail, "read response body", err)
		c.log.Error("httpengine send leave", "operation", req.Operation, "error", wrapped)
		return nil, wrapped
	}

	headers := make([]Header, 0, len(resp.Header))
	for name, values := range resp.Header {
		for _, v := range values {
			headers = append(headers, Header{Name: name, Value: v})
		}
	}

	c.log.Debug("httpengine send leave", "operation", req.Operation, "status", resp.StatusCode)
	return &Response{StatusCode: resp.StatusCode, Headers: headers, Body: body}, nil
}

func (c *Client) buildHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	contentLength := int64(-1)

	switch req.BodyKind {
	case BodyNone:
		body = nil
		contentLength = 0
	case BodyInMemory:
		body = bytes.NewReader(req.InMemory)
		contentLength = int64(len(req.InMemory))
	case BodyStream:
		if req.Stream == nil {
			return nil, mclerr.New(mclerr.TriggeredWithNull, "httpengine: stream body with nil producer")
		}
		body = io.NopCloser(req.Stream)
		contentLength = req.StreamLength
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, body)
	if err != nil {
		return nil, mclerr.Wrap(mclerr.InvalidParameter, "build request", err)
	}

	for _, h := range req.Headers {
		httpReq.Header.Set(h.Name, h.Value)
	}

	// Always append an Expect header to suppress a library-injected
	// 100-continue, matching the original client's defensive default.
	httpReq.Header.Set("Expect", "")
	// Never reuse a connection across send calls.
	httpReq.Header.Set("Connection", "close")
	httpReq.Close = true

	if req.BodyKind == BodyStream && contentLength < 0 {
		httpReq.TransferEncoding = []string{"chunked"}
		httpReq.ContentLength = -1
	} else {
		httpReq.ContentLength = contentLength
	}

	return httpReq, nil
}

// classifyTransportError maps a net/http transport failure onto the
// taxonomy the same way the original's _convert_to_mcl_return_code maps
// CURLcode values onto mcl_error_t.
func classifyTransportError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return mclerr.Wrap(mclerr.CouldNotResolveHost, "resolve host", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return mclerr.Wrap(mclerr.RequestTimeout, "request timed out", err)
		}
		if opErr.Op == "dial" {
			return mclerr.Wrap(mclerr.CouldNotConnect, "connect to host", err)
		}
		if opErr.Op == "read" {
			return mclerr.Wrap(mclerr.NetworkReceiveFail, "receive response", err)
		}
		if opErr.Op == "write" {
			return mclerr.Wrap(mclerr.NetworkSendFail, "send request", err)
		}
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return mclerr.Wrap(mclerr.ServerCertificateNotVerified, "verify server certificate", err)
	}

	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthErr) {
		return mclerr.Wrap(mclerr.ServerCertificateNotVerified, "verify server certificate", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return mclerr.Wrap(mclerr.RequestTimeout, "request timed out", err)
	}

	if errors.Is(err, io.EOF) {
		return mclerr.Wrap(mclerr.NetworkReceiveFail, "connection closed", err)
	}

	return mclerr.Wrap(mclerr.Fail, "send request", err)
}
