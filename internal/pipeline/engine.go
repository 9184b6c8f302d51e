package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"surveyetl/internal/catalog"
	"surveyetl/internal/decode"
	"surveyetl/internal/metrics"
	"surveyetl/internal/storage"
	"surveyetl/internal/survey"
)

const (
	statusOK      = metrics.StatusOK
	statusError   = metrics.StatusError
	statusSkipped = metrics.StatusSkipped
	statusFailed  = metrics.StatusFailed
)

// engine processes files concurrently. Files are independent: each is
// decoded, processed and loaded on its own, and a file's records reach the
// sinks all at once or not at all.
type engine struct {
	proc      *survey.Processor
	decoder   decode.Decoder
	streams   []catalog.Stream
	sinks     sinks
	batchSize int
	workers   int
	skipBad   bool
	logf      func(format string, v ...any)
}

// outcome aggregates per-file results.
type outcome struct {
	mu      sync.Mutex
	files   int
	failed  int
	records map[string]int
	loaded  []time.Time
	broken  []time.Time
}

func (o *outcome) ok(src survey.SourceFile, counts map[string]int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files++
	o.loaded = append(o.loaded, src.Modified)
	for k, v := range counts {
		o.records[k] += v
	}
}

func (o *outcome) fail(src survey.SourceFile) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
	o.broken = append(o.broken, src.Modified)
}

// advanceTo returns the newest modification time the bookmark may move to.
// A failed file pins the cursor below its own timestamp so the next run
// retries it.
func (o *outcome) advanceTo() (time.Time, bool) {
	var limit time.Time
	for i, b := range o.broken {
		if i == 0 || b.Before(limit) {
			limit = b
		}
	}

	var cursor time.Time
	found := false
	for _, m := range o.loaded {
		if len(o.broken) > 0 && !m.Before(limit) {
			continue
		}
		if !found || m.After(cursor) {
			cursor = m
			found = true
		}
	}
	return cursor, found
}

func (e *engine) run(ctx context.Context, files []survey.SourceFile) (*outcome, error) {
	out := &outcome{records: map[string]int{}}

	workers := e.workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			counts, err := e.processFile(gctx, f)
			if err == nil {
				out.ok(f, counts)
				recordFile(statusOK)
				e.logf("stage=file ok file=%s records=%v", f.Name, counts)
				return nil
			}
			if e.skipBad && !isCancel(err) {
				out.fail(f)
				recordFile(statusFailed)
				e.logf("stage=file failed file=%s err=%v", f.Name, err)
				return nil
			}
			recordFile(statusFailed)
			return fmt.Errorf("file %s: %w", f.Name, err)
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return out, err
}

// processFile runs decode, process, load and emit for one file and returns
// the record counts per stream.
func (e *engine) processFile(ctx context.Context, f survey.SourceFile) (map[string]int, error) {
	var (
		tab  *survey.Table
		meta *survey.Metadata
		res  *survey.Result
	)

	err := e.step("decode", f, func() error {
		var err error
		tab, meta, err = e.decoder.Decode(ctx, f.LocalPath)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = e.step("process", f, func() error {
		var err error
		res, err = e.proc.Process(tab, meta, f)
		return err
	})
	if err != nil {
		return nil, err
	}

	if e.sinks.repo != nil {
		err = e.step("load", f, func() error {
			loads, err := e.tableLoads(res)
			if err != nil {
				return err
			}
			_, err = e.sinks.repo.ReplaceFile(ctx, f.Name, loads, e.batchSize)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if e.sinks.singer != nil {
		err = e.step("emit", f, func() error {
			_, err := e.sinks.singer.WriteFile(e.streams, res)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	counts := res.Counts()
	for k, v := range counts {
		metrics.RecordRecords(k, v)
	}
	return counts, nil
}

func (e *engine) tableLoads(res *survey.Result) ([]storage.TableLoad, error) {
	loads := make([]storage.TableLoad, 0, len(e.streams))
	for _, s := range e.streams {
		rows, err := catalog.Rows(s, res)
		if err != nil {
			return nil, err
		}
		loads = append(loads, storage.TableLoad{
			Spec:    s.Table,
			Columns: s.Table.ColumnNames(),
			Rows:    rows,
		})
	}
	return loads, nil
}

// step times fn, records it as a metric and logs it.
func (e *engine) step(name string, f survey.SourceFile, fn func() error) (err error) {
	t := startStep(name)
	defer func() {
		t.done(err)
		if err == nil {
			e.logf("stage=%s ok file=%s duration=%s", name, f.Name, durMS(t.start))
		}
	}()
	return fn()
}

type stepTimer struct {
	name  string
	start time.Time
}

func startStep(name string) stepTimer {
	return stepTimer{name: name, start: time.Now()}
}

func (t stepTimer) done(err error) {
	status := statusOK
	if err != nil {
		status = statusError
	}
	metrics.RecordStep(t.name, status, time.Since(t.start))
}

func recordFile(status string) { metrics.RecordFile(status) }

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
