package connectivity

import (
	"context"
	"fmt"
	"io"

	"github.com/mindconnect/mcl-go/httpengine"
	"github.com/mindconnect/mcl-go/mclerr"
	"github.com/mindconnect/mcl-go/mclmetrics"
)

// UploadFile drives the chunked range-upload state machine for file,
// reading sequential chunks of at most the configured payload budget and
// PUTting each as a Range/Content-Range-addressed part of the exchange
// envelope until the source is exhausted.
func (c *Client) UploadFile(ctx context.Context, file *File) error {
	if file == nil || file.Content == nil {
		return mclerr.New(mclerr.InvalidParameter, "connectivity: file item requires non-nil content")
	}
	c.log.Debug("connectivity upload_file entry", "remote_name", file.RemoteName)

	chunkSize := c.maxHTTPPayloadSize
	if chunkSize <= 0 {
		chunkSize = 16384
	}

	meta, err := buildFileMeta(file)
	if err != nil {
		return err
	}

	state := stateInit
	offset := int64(0)
	buf := make([]byte, chunkSize)

	for {
		n, readErr := io.ReadFull(file.Content, buf)
		isFinal := readErr == io.ErrUnexpectedEOF || readErr == io.EOF
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			wrapped := mclerr.Wrap(mclerr.NetworkReceiveFail, "read file chunk", readErr)
			c.log.Debug("connectivity upload_file leave", "error", wrapped)
			return wrapped
		}
		if n == 0 && isFinal && offset > 0 {
			// File length was an exact multiple of chunkSize: the last
			// data-bearing chunk already went out as a non-final 200,
			// and there is nothing left to send as the closing chunk.
			mclmetrics.UploadsTotal.WithLabelValues("file", "ok").Inc()
			c.log.Debug("connectivity upload_file leave", "result", "ok")
			return nil
		}

		chunk := buf[:n]
		status, err := c.sendFileChunk(ctx, meta, chunk, offset, isFinal)
		if err != nil {
			mclmetrics.ChunkedRangeRetries.Inc()
			c.log.Debug("connectivity upload_file leave", "error", err)
			return err
		}

		nextState, err := next(state, status, isFinal)
		if err != nil {
			mclmetrics.ChunkedRangeRetries.Inc()
			mclmetrics.UploadsTotal.WithLabelValues("file", mclerr.Of(err).String()).Inc()
			c.log.Debug("connectivity upload_file leave", "error", err)
			return err
		}
		state = nextState
		offset += int64(n)

		if state == stateDone {
			mclmetrics.UploadsTotal.WithLabelValues("file", "ok").Inc()
			c.log.Debug("connectivity upload_file leave", "result", "ok")
			return nil
		}
		if isFinal {
			// ReadFull reported EOF/unexpected-EOF but the server has not
			// yet accepted the final chunk; nothing left to read, so the
			// upload cannot progress further.
			break
		}
	}
	c.log.Debug("connectivity upload_file leave", "result", "incomplete")
	return nil
}

func buildFileMeta(file *File) (partMeta, error) {
	if file.RemoteName == "" {
		return partMeta{}, mclerr.New(mclerr.InvalidParameter, "connectivity: file item requires a remote name")
	}
	return partMeta{Type: string(KindFile), Version: file.Version}, nil
}

func (c *Client) sendFileChunk(ctx context.Context, meta partMeta, chunk []byte, offset int64, isFinal bool) (int, error) {
	w := newEnvelopeWriter()
	if err := w.writePart("application/octet-stream", meta, chunk); err != nil {
		return 0, err
	}
	body := w.finish()

	end := offset + int64(len(chunk)) - 1
	if end < offset {
		end = offset
	}
	contentRange := fmt.Sprintf("bytes %d-%d/*", offset, end)
	if isFinal {
		contentRange = fmt.Sprintf("bytes %d-%d/%d", offset, end, offset+int64(len(chunk)))
	}

	resp, err := c.composer().Send(ctx, &httpengine.Request{
		Method:    httpengine.MethodPut,
		URL:       c.core.GetHostName() + exchangePath,
		Operation: "upload_file_chunk",
		BodyKind:  httpengine.BodyInMemory,
		InMemory:  body,
		Headers: []httpengine.Header{
			{Name: "Content-Type", Value: envelopeContentType()},
			{Name: "Content-Range", Value: contentRange},
		},
	}, false)

	// Send returns a status-mapped error alongside a non-nil resp for any
	// non-2xx response; the range state machine (next) needs the raw
	// status, not the composer's pre-mapped error, so only a nil resp
	// (transport failure) short-circuits here.
	if resp == nil {
		return 0, err
	}
	return resp.StatusCode, nil
}
