package connectivity

import (
	"fmt"
	"net/http"

	"github.com/mindconnect/mcl-go/mclerr"
)

// uploadState is the chunked file-range upload state machine §4.G
// describes: Init -> Chunk(n) -> Chunk(n+1) -> ... -> FinalChunk -> Done,
// with any non-200 status on a non-final chunk transitioning to Failed.
type uploadState int

const (
	stateInit uploadState = iota
	stateChunk
	stateFinalChunk
	stateDone
	stateFailed
)

func (s uploadState) String() string {
	switch s {
	case stateInit:
		return "Init"
	case stateChunk:
		return "Chunk"
	case stateFinalChunk:
		return "FinalChunk"
	case stateDone:
		return "Done"
	case stateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("uploadState(%d)", int(s))
	}
}

// next computes the state following a chunk send, given the HTTP status
// the server returned and whether the chunk just sent was the last one.
// A non-final chunk must see 200 to progress; the final chunk accepts
// either 200 or 201. Any other status fails the whole upload, and the
// assembler does not retry (§7's "no autonomous retries" policy).
func next(current uploadState, status int, isFinal bool) (uploadState, error) {
	if current == stateDone || current == stateFailed {
		return current, mclerr.New(mclerr.InvalidParameter, "upload: no transition from a terminal state")
	}

	if isFinal {
		if status == http.StatusOK || status == http.StatusCreated {
			return stateDone, nil
		}
		return stateFailed, statusError(status)
	}

	if status == http.StatusOK {
		return stateChunk, nil
	}
	return stateFailed, statusError(status)
}

// statusError gives a non-200/201 status a mclerr.Code home, reusing the
// same mapping the request composer applies to every other status-bearing
// response.
func statusError(status int) error {
	switch status {
	case http.StatusBadRequest:
		return mclerr.New(mclerr.BadRequest, "bad request")
	case http.StatusUnauthorized:
		return mclerr.New(mclerr.Unauthorized, "unauthorized")
	case http.StatusForbidden:
		return mclerr.New(mclerr.Forbidden, "forbidden")
	case http.StatusNotFound:
		return mclerr.New(mclerr.NotFound, "not found")
	case http.StatusConflict:
		return mclerr.New(mclerr.Conflict, "conflict")
	case http.StatusRequestEntityTooLarge:
		return mclerr.New(mclerr.RequestPayloadTooLarge, "request payload too large")
	case http.StatusTooManyRequests:
		return mclerr.New(mclerr.TooManyRequests, "too many requests")
	default:
		if status >= 500 {
			return mclerr.New(mclerr.ServerFail, "server fail")
		}
		return mclerr.New(mclerr.Fail, fmt.Sprintf("unexpected status %d", status))
	}
}
