package connectivity

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mindconnect/mcl-go/mclerr"
)

const envelopeBoundary = "mcl-go-envelope-boundary"

// partMeta is the small JSON meta-descriptor prefixing every envelope
// part: item type, version, and optional business-level routing.
type partMeta struct {
	Type            string `json:"type"`
	Version         string `json:"version,omitempty"`
	ConfigurationID string `json:"configurationId,omitempty"`
}

// envelopeWriter assembles parts into the mixed-content wire format: a
// boundary-delimited sequence of (JSON meta part, payload part) pairs,
// payloads either JSON text or an opaque byte run. This is a bespoke
// format, not RFC 2046 multipart, so it is hand-rolled rather than built
// on mime/multipart.
type envelopeWriter struct {
	buf bytes.Buffer
}

func newEnvelopeWriter() *envelopeWriter { return &envelopeWriter{} }

func (e *envelopeWriter) writeBoundary() {
	e.buf.WriteString("--")
	e.buf.WriteString(envelopeBoundary)
	e.buf.WriteString("\r\n")
}

func (e *envelopeWriter) writePart(contentType string, meta partMeta, payload []byte) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return mclerr.Wrap(mclerr.Fail, "marshal envelope part meta", err)
	}

	e.writeBoundary()
	e.buf.WriteString("Content-Type: application/vnd.mindsphere.meta+json\r\n\r\n")
	e.buf.Write(metaJSON)
	e.buf.WriteString("\r\n")

	e.writeBoundary()
	fmt.Fprintf(&e.buf, "Content-Type: %s\r\n\r\n", contentType)
	e.buf.Write(payload)
	e.buf.WriteString("\r\n")
	return nil
}

func (e *envelopeWriter) finish() []byte {
	e.buf.WriteString("--")
	e.buf.WriteString(envelopeBoundary)
	e.buf.WriteString("--\r\n")
	return e.buf.Bytes()
}

func envelopeContentType() string {
	return "multipart/mixed; boundary=" + envelopeBoundary
}
