// Package request composes authenticated HTTP calls on top of httpengine
// and translates transport and status outcomes into the error taxonomy.
package request

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindconnect/mcl-go/httpengine"
	"github.com/mindconnect/mcl-go/mclerr"
	"github.com/mindconnect/mcl-go/mclmetrics"
)

// libraryVersion is the version in the fixed "MCL/<version>" product token
// every User-Agent header carries, followed by the caller-configured
// free-form string.
const libraryVersion = "1.0"

// Composer adds Authorization/User-Agent/Correlation-ID/Accept headers to
// outbound requests and maps their outcome onto mclerr.Code. It does not
// add Content-Type; that header comes only from the request's own Headers.
type Composer struct {
	Engine      *httpengine.Client
	UserAgent   string // caller-configured free-form suffix
	BearerToken string // set per call via WithBearer
}

// WithBearer returns a shallow copy of the composer carrying token as the
// Authorization bearer for calls built from it — data-plane calls use the
// access token, identity-plane calls use the enrollment/registration
// access token, per §4.F.
func (c Composer) WithBearer(token string) Composer {
	c.BearerToken = token
	return c
}

func correlationID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func (c Composer) userAgentHeader() string {
	return "MCL/" + libraryVersion + " (" + c.UserAgent + ")"
}

// Send builds the outbound request by merging composer-owned headers onto
// req's caller-supplied headers and then calls the engine.
func (c Composer) Send(ctx context.Context, req *httpengine.Request, expectJSON bool) (*httpengine.Response, error) {
	if c.Engine == nil {
		return nil, mclerr.New(mclerr.TriggeredWithNull, "request: nil engine")
	}

	headers := make([]httpengine.Header, 0, len(req.Headers)+4)
	headers = append(headers, req.Headers...)
	if c.BearerToken != "" {
		headers = append(headers, httpengine.Header{Name: "Authorization", Value: "Bearer " + c.BearerToken})
	}
	headers = append(headers, httpengine.Header{Name: "User-Agent", Value: c.userAgentHeader()})
	headers = append(headers, httpengine.Header{Name: "Correlation-ID", Value: correlationID()})
	if expectJSON {
		headers = append(headers, httpengine.Header{Name: "Accept", Value: "application/json"})
	}
	req.Headers = headers

	operation := req.Operation
	if operation == "" {
		operation = "unspecified"
	}
	start := time.Now()
	resp, err := c.Engine.Send(ctx, req)
	mclmetrics.RequestLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if statusErr := StatusToError(resp.StatusCode); statusErr != nil {
		return resp, statusErr
	}
	return resp, nil
}

// StatusToError maps an HTTP status code onto the §7 taxonomy. It returns
// nil for 2xx. It does not distinguish a data-plane 401 from a
// token-acquisition 400 — that distinction is the caller's policy per
// §4.F, applied by the caller inspecting the returned code.
func StatusToError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 400:
		return mclerr.New(mclerr.BadRequest, "server rejected request")
	case status == 401:
		return mclerr.New(mclerr.Unauthorized, "access token rejected")
	case status == 403:
		return mclerr.New(mclerr.Forbidden, "access denied")
	case status == 404:
		return mclerr.New(mclerr.NotFound, "resource not found")
	case status == 409:
		return mclerr.New(mclerr.Conflict, "resource conflict")
	case status == 413:
		return mclerr.New(mclerr.RequestPayloadTooLarge, "payload too large")
	case status == 429:
		return mclerr.New(mclerr.TooManyRequests, "rate limited")
	case status >= 500:
		return mclerr.New(mclerr.ServerFail, "server error")
	default:
		return mclerr.New(mclerr.Fail, "unexpected status code")
	}
}
