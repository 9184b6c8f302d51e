package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type call struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recordingBackend struct {
	mu       sync.Mutex
	calls    []call
	flushErr error
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"counter", name, delta, labels})
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"histogram", name, value, labels})
}

func (r *recordingBackend) Flush() error { return r.flushErr }

// These tests mutate the process-wide backend and therefore do not run in parallel.

func TestHelpersRouteToBackend(t *testing.T) {
	rb := &recordingBackend{flushErr: errors.New("boom")}
	SetBackend(rb)
	defer SetBackend(nil)

	RecordStep("decode", StatusOK, 1500*time.Millisecond)
	RecordRecords("interview", 3)
	RecordRecords("question", 0)
	RecordFile(StatusSkipped)

	if len(rb.calls) != 4 {
		t.Fatalf("calls=%d, want 4: %#v", len(rb.calls), rb.calls)
	}
	if c := rb.calls[0]; c.name != StepTotal || c.value != 1 || c.labels["step"] != "decode" || c.labels["status"] != "ok" {
		t.Fatalf("unexpected step counter: %#v", c)
	}
	if c := rb.calls[1]; c.kind != "histogram" || c.name != StepDurationSeconds || c.value != 1.5 {
		t.Fatalf("unexpected step histogram: %#v", c)
	}
	if c := rb.calls[2]; c.name != RecordsTotal || c.value != 3 || c.labels["stream"] != "interview" {
		t.Fatalf("unexpected records counter: %#v", c)
	}
	if c := rb.calls[3]; c.name != FilesTotal || c.labels["status"] != "skipped" {
		t.Fatalf("unexpected files counter: %#v", c)
	}

	if err := Flush(); err == nil || err.Error() != "boom" {
		t.Fatalf("Flush err=%v, want boom", err)
	}
}

func TestSetBackendNilRestoresNop(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	SetBackend(nil)

	RecordFile(StatusOK)
	if len(rb.calls) != 0 {
		t.Fatalf("calls=%d after reset, want 0", len(rb.calls))
	}
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush err=%v", err)
	}
}
