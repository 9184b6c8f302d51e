// Package metrics is the process-wide metrics facade used by the pipeline.
//
// Pipeline code records through the package-level helpers; a concrete backend
// (e.g. internal/metrics/datadog) is installed once at startup via SetBackend.
// Until then every call goes to a no-op backend.
package metrics

import (
	"sync"
	"time"
)

// Metric names. Backends translate them to their own naming scheme.
const (
	StepTotal           = "surveyetl_step_total"
	StepDurationSeconds = "surveyetl_step_duration_seconds"
	RecordsTotal        = "surveyetl_records_total"
	FilesTotal          = "surveyetl_files_total"
)

// Step status label values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Labels are metric dimensions such as step or stream.
type Labels map[string]string

// Backend receives metric observations.
// Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter on the current backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the current backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the current backend to submit buffered data.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a pipeline step and its duration.
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords counts records emitted for a stream.
func RecordRecords(stream string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"stream": stream})
}

// RecordFile counts one source file by outcome (ok, skipped, failed).
func RecordFile(status string) {
	current().IncCounter(FilesTotal, 1, Labels{"status": status})
}
