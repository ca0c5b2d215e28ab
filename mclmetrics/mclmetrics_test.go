package mclmetrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCountersAcceptIncrements(t *testing.T) {
	RegistrationsTotal.WithLabelValues("onboard", "ok").Inc()
	TokenFetchesTotal.WithLabelValues("ok").Inc()
	UploadsTotal.WithLabelValues("timeseries", "ok").Inc()
	ChunkedRangeRetries.Inc()
	RequestLatency.WithLabelValues("register").Observe(0.05)
}

func TestWriteTextfileEmitsOnlyMclPrefixedFamilies(t *testing.T) {
	RegistrationsTotal.WithLabelValues("onboard", "ok").Inc()

	path := filepath.Join(t.TempDir(), "mcl.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, line := range strings.Split(string(content), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "mcl_") {
			t.Fatalf("unexpected non-mcl_ metric line in textfile output: %q", line)
		}
	}
	if !strings.Contains(string(content), "mcl_registrations_total") {
		t.Fatalf("expected mcl_registrations_total in textfile output, got:\n%s", content)
	}
}
