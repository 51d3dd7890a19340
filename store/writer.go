package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pilosa/wdhistory"
	"github.com/pkg/errors"
)

// Defaults for ResultWriter.
const (
	DefaultBatchSize     = 5000
	DefaultFlushInterval = 20 * time.Second
	DefaultPollInterval  = 5 * time.Second
)

// Mirror receives every change row after it has been persisted.
type Mirror interface {
	Publish(ctx context.Context, table string, cols []string, rows []Row) error
}

// Accumulator buffers the rows of one class until they are flushed.
type Accumulator struct {
	Class     wdhistory.Classification
	Rows      map[string][]Row
	Revisions int
	LastFlush time.Time
}

func newAccumulator(class wdhistory.Classification, now time.Time) *Accumulator {
	return &Accumulator{Class: class, Rows: make(map[string][]Row), LastFlush: now}
}

// Len returns the number of buffered rows.
func (a *Accumulator) Len() int {
	n := 0
	for _, rows := range a.Rows {
		n += len(rows)
	}
	return n
}

func (a *Accumulator) add(b *Batch) {
	for name, rows := range b.Rows {
		a.Rows[name] = append(a.Rows[name], rows...)
	}
	a.Revisions += len(b.Rows[RevisionTable.Name])
}

func (a *Accumulator) reset(now time.Time) {
	a.Rows = make(map[string][]Row)
	a.Revisions = 0
	a.LastFlush = now
}

// WriterOption is a functional option for ResultWriter.
type WriterOption func(w *ResultWriter) error

// OptWriterBatchSize sets the number of buffered revisions which triggers
// a flush of a class.
func OptWriterBatchSize(n int) WriterOption {
	return func(w *ResultWriter) error {
		if n <= 0 {
			return errors.Errorf("batch size must be positive, got %d", n)
		}
		w.batchSize = n
		return nil
	}
}

// OptWriterFlushInterval sets the age after which a non-empty class is
// flushed.
func OptWriterFlushInterval(d time.Duration) WriterOption {
	return func(w *ResultWriter) error {
		w.flushInterval = d
		return nil
	}
}

// OptWriterPollInterval sets how long Run waits for a batch before
// flushing everything.
func OptWriterPollInterval(d time.Duration) WriterOption {
	return func(w *ResultWriter) error {
		if d <= 0 {
			return errors.Errorf("poll interval must be positive, got %v", d)
		}
		w.pollInterval = d
		return nil
	}
}

// OptWriterMirror publishes persisted change rows to m.
func OptWriterMirror(m Mirror) WriterOption {
	return func(w *ResultWriter) error {
		w.mirror = m
		return nil
	}
}

// OptWriterLogger sets the logger.
func OptWriterLogger(l wdhistory.Logger) WriterOption {
	return func(w *ResultWriter) error {
		w.log = l
		return nil
	}
}

// OptWriterStatter sets the statter.
func OptWriterStatter(s wdhistory.Statter) WriterOption {
	return func(w *ResultWriter) error {
		w.stats = s
		return nil
	}
}

// ResultWriter is the single consumer of worker output. It owns one
// Accumulator per class and is the only goroutine touching the Store.
type ResultWriter struct {
	store         Store
	mirror        Mirror
	log           wdhistory.Logger
	stats         wdhistory.Statter
	batchSize     int
	flushInterval time.Duration
	pollInterval  time.Duration
	now           func() time.Time

	accs    map[wdhistory.Classification]*Accumulator
	written map[string]int64
	flushes int64
}

// NewResultWriter returns a ResultWriter on s.
func NewResultWriter(s Store, opts ...WriterOption) (*ResultWriter, error) {
	w := &ResultWriter{
		store:         s,
		log:           wdhistory.NopLogger{},
		stats:         wdhistory.NopStatter{},
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		pollInterval:  DefaultPollInterval,
		now:           time.Now,
		accs:          make(map[wdhistory.Classification]*Accumulator),
		written:       make(map[string]int64),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	return w, nil
}

// Written returns the number of rows written per table.
func (w *ResultWriter) Written() map[string]int64 {
	out := make(map[string]int64, len(w.written))
	for k, v := range w.written {
		out[k] = v
	}
	return out
}

// Flushes returns the number of class flushes that wrote rows.
func (w *ResultWriter) Flushes() int64 { return w.flushes }

// Pending returns the number of buffered rows of class.
func (w *ResultWriter) Pending(class wdhistory.Classification) int {
	if a, ok := w.accs[class]; ok {
		return a.Len()
	}
	return 0
}

// Add routes b to the Accumulator of its class and flushes that class if
// it reached the batch size or flush interval.
func (w *ResultWriter) Add(ctx context.Context, b *Batch) error {
	a, ok := w.accs[b.Class]
	if !ok {
		a = newAccumulator(b.Class, w.now())
		w.accs[b.Class] = a
	}
	a.add(b)
	if a.Revisions >= w.batchSize || (w.flushInterval > 0 && w.now().Sub(a.LastFlush) >= w.flushInterval) {
		return w.Flush(ctx, b.Class)
	}
	return nil
}

// FlushAll flushes every non-empty class.
func (w *ResultWriter) FlushAll(ctx context.Context) error {
	for _, class := range wdhistory.Classifications {
		if a, ok := w.accs[class]; ok && a.Len() > 0 {
			if err := w.Flush(ctx, class); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush writes the buffered rows of class table by table in Tables order.
// A failed bulk insert is retried row by row to find the offending rows,
// and a *PersistenceError is returned.
func (w *ResultWriter) Flush(ctx context.Context, class wdhistory.Classification) error {
	a, ok := w.accs[class]
	if !ok || a.Len() == 0 {
		return nil
	}
	start := time.Now()
	for _, t := range Tables {
		rows := a.Rows[t.Name]
		if len(rows) == 0 {
			continue
		}
		if t.Features && !class.HasFeatures() {
			continue
		}
		name, cols := t.For(class), t.ColumnNames()
		if err := w.store.BulkInsert(ctx, name, cols, rows); err != nil {
			return w.isolate(ctx, t, name, cols, rows, err)
		}
		w.written[name] += int64(len(rows))
		w.stats.Count("rows."+t.Name, int64(len(rows)), 1, "class:"+class.String())
		if w.mirror != nil && isChangeTable(t) {
			if err := w.mirror.Publish(ctx, name, cols, rows); err != nil {
				w.stats.Count("mirror.errors", 1, 1)
				w.log.Printf("mirroring %d rows of %s: %v", len(rows), name, err)
			}
		}
	}
	w.log.Debugf("flushed %d rows of %d revisions for class %v", a.Len(), a.Revisions, class)
	w.stats.Timing("flush", time.Since(start), 1, "class:"+class.String())
	w.flushes++
	a.reset(w.now())
	return nil
}

func isChangeTable(t *Table) bool {
	return t == ValueChangeTable || t == QualifierChangeTable || t == ReferenceChangeTable || t == MetadataChangeTable
}

func (w *ResultWriter) isolate(ctx context.Context, t *Table, name string, cols []string, rows []Row, bulkErr error) error {
	w.log.Printf("bulk insert of %d rows into %s failed, retrying one at a time: %v", len(rows), name, bulkErr)
	pe := &PersistenceError{Table: name, Rows: len(rows), Err: bulkErr}
	for _, row := range rows {
		if err := w.store.InsertRow(ctx, name, cols, row); err != nil {
			key := rowKey(t, row)
			w.log.Printf("row %s of %s: %v", key, name, err)
			pe.Offending = append(pe.Offending, key)
		}
	}
	return pe
}

func rowKey(t *Table, row Row) string {
	parts := make([]string, 0, len(t.Key))
	for _, k := range t.Key {
		for i, c := range t.Columns {
			if c.Name == k && i < len(row) {
				parts = append(parts, fmt.Sprintf("%s=%v", k, row[i]))
			}
		}
	}
	return strings.Join(parts, ",")
}

// Run consumes batches from in until it has received a nil batch from each
// of workers producers, or in is closed, then flushes everything. If no
// batch arrives within the poll interval, every non-empty class is flushed.
func (w *ResultWriter) Run(ctx context.Context, in <-chan *Batch, workers int) error {
	done := 0
	poll := time.NewTimer(w.pollInterval)
	defer poll.Stop()
	for done < workers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-in:
			if !ok {
				return w.FlushAll(ctx)
			}
			if b == nil {
				done++
				w.log.Debugf("writer: %d of %d workers done", done, workers)
				continue
			}
			if err := w.Add(ctx, b); err != nil {
				return err
			}
			poll.Reset(w.pollInterval)
		case <-poll.C:
			if err := w.FlushAll(ctx); err != nil {
				return err
			}
			poll.Reset(w.pollInterval)
		}
	}
	return w.FlushAll(ctx)
}
