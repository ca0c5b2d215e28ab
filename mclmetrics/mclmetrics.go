// Package mclmetrics instruments the identity, upload, and deployment
// pipelines with Prometheus counters and histograms, modeled on the
// teacher's internal/metrics package.
package mclmetrics

import (
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var (
	// RegistrationsTotal counts register() calls by kind ("onboard",
	// "rekey", or "register" for the already-onboarded short-circuit) and
	// result ("ok", "error", "not_saved", or "already_onboarded").
	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcl_registrations_total",
		Help: "Total number of registration attempts by kind.",
	}, []string{"kind", "result"})

	// TokenFetchesTotal counts get_access_token() calls by result code.
	TokenFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcl_token_fetches_total",
		Help: "Total number of access-token acquisition attempts by result.",
	}, []string{"result"})

	// UploadsTotal counts upload calls by kind ("exchange", "file",
	// "mapping", "deployment_update") and result; an exchange envelope
	// counts once, however many items it carries.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcl_uploads_total",
		Help: "Total number of uploaded items by kind and result.",
	}, []string{"kind", "result"})

	// ChunkedRangeRetries counts chunk attempts that did not advance the
	// range state machine: both transport-level send failures and a
	// non-2xx status rejecting a chunk mid-sequence.
	ChunkedRangeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcl_chunked_range_retries_total",
		Help: "Total number of chunked file-upload range transitions that did not progress.",
	})

	// RequestLatency observes wall-clock duration of every request sent
	// through request.Composer, labeled by logical operation.
	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcl_request_duration_seconds",
		Help:    "Request latency in seconds by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// WriteTextfile writes current mcl_ metrics in Prometheus exposition format
// to path, using an atomic write (temp file + rename). Intended for hosts
// running this library headless (no scrape target of its own) that feed
// node_exporter's textfile collector instead.
func WriteTextfile(path string) error {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if strings.HasPrefix(mf.GetName(), "mcl_") {
			if encErr := enc.Encode(mf); encErr != nil {
				f.Close()
				os.Remove(tmp)
				return encErr
			}
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
