// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package pipeline runs the reader, the worker pool and the result writer
// over a set of dump files.
package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pilosa/wdhistory"
	"github.com/pilosa/wdhistory/dump"
	"github.com/pilosa/wdhistory/lookup"
	"github.com/pilosa/wdhistory/revert"
	"github.com/pilosa/wdhistory/store"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Defaults for Pipeline.
const (
	DefaultWorkers         = 4
	DefaultQueueSize       = 150
	DefaultLessRevisions   = 10
	DefaultMonitorInterval = 10 * time.Second
)

// Checkpoints remembers which files were read to the end. Mark is called
// for every such file once a Run has written all of its pages; files whose
// summary carries an error must not be reported as Done afterwards.
type Checkpoints interface {
	Done(name string) (bool, error)
	Mark(name string, s dump.Summary) error
}

// Option is a functional option for Pipeline.
type Option func(p *Pipeline) error

// OptWorkers sets the number of workers.
func OptWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return errors.Errorf("workers must be positive, got %d", n)
		}
		p.workers = n
		return nil
	}
}

// OptQueueSize sets the capacity of the work queue.
func OptQueueSize(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return errors.Errorf("queue size must be positive, got %d", n)
		}
		p.queueSize = n
		return nil
	}
}

// OptLookups sets where workers open their lookup handles.
func OptLookups(o lookup.Opener) Option {
	return func(p *Pipeline) error {
		p.lookups = o
		return nil
	}
}

// OptLessRevisions sets the revision count under which entities without a
// more specific class go to the "_less" tables.
func OptLessRevisions(n int) Option {
	return func(p *Pipeline) error {
		p.lessRevisions = n
		return nil
	}
}

// OptRevertWindow sets the revert detection window.
func OptRevertWindow(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.revert.Window = d
		return nil
	}
}

// OptCheckpoints skips files already marked in c and marks files that
// were read to the end.
func OptCheckpoints(c Checkpoints) Option {
	return func(p *Pipeline) error {
		p.checkpoints = c
		return nil
	}
}

// OptReaderOptions passes options to every dump.Reader.
func OptReaderOptions(opts ...dump.Option) Option {
	return func(p *Pipeline) error {
		p.readerOpts = append(p.readerOpts, opts...)
		return nil
	}
}

// OptMonitorInterval sets how often the Monitor reports.
func OptMonitorInterval(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return errors.Errorf("monitor interval must be positive, got %v", d)
		}
		p.monitorInterval = d
		return nil
	}
}

// OptLogger sets the logger.
func OptLogger(l wdhistory.Logger) Option {
	return func(p *Pipeline) error {
		p.log = l
		return nil
	}
}

// OptStatter sets the statter.
func OptStatter(s wdhistory.Statter) Option {
	return func(p *Pipeline) error {
		p.stats = s
		return nil
	}
}

// Pipeline reads pages from the files of a RawSource, processes them on a
// pool of workers and hands the results to a single ResultWriter.
type Pipeline struct {
	src    wdhistory.RawSource
	writer *store.ResultWriter

	workers         int
	queueSize       int
	lessRevisions   int
	revert          revert.Options
	lookups         lookup.Opener
	checkpoints     Checkpoints
	readerOpts      []dump.Option
	monitorInterval time.Duration
	log             wdhistory.Logger
	stats           wdhistory.Statter

	stopOnce sync.Once
	stop     chan struct{}

	files   []fileResult
	mu      sync.Mutex
	changes map[string]int64
	monitor *Monitor
}

type fileResult struct {
	sum      dump.Summary
	complete bool
}

// NewPipeline returns a Pipeline reading src and writing through w.
func NewPipeline(src wdhistory.RawSource, w *store.ResultWriter, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		src:             src,
		writer:          w,
		workers:         DefaultWorkers,
		queueSize:       DefaultQueueSize,
		lessRevisions:   DefaultLessRevisions,
		revert:          revert.Options{Window: revert.DefaultWindow},
		lookups:         lookup.NewStatic(),
		monitorInterval: DefaultMonitorInterval,
		log:             wdhistory.NopLogger{},
		stats:           wdhistory.NopStatter{},
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	return p, nil
}

// Stop asks the reader to stop after the page it is reading. Pages already
// queued are still processed and written.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pipeline) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

// Summaries returns the summary of each file read by the last Run. Changes
// are only counted once Run has returned.
func (p *Pipeline) Summaries() []dump.Summary {
	out := make([]dump.Summary, len(p.files))
	for i, f := range p.files {
		out[i] = f.sum
	}
	return out
}

// Monitor returns the Monitor of the last Run.
func (p *Pipeline) Monitor() *Monitor { return p.monitor }

// Run processes every file of the source. Canceling ctx aborts everything
// at once; use Stop to finish gracefully. The first error of any stage
// aborts the others and is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	p.files = nil
	p.changes = make(map[string]int64)
	g, gctx := errgroup.WithContext(ctx)
	q := NewWorkQueue(p.queueSize)
	results := make(chan *store.Batch, p.workers)

	p.monitor = NewMonitor(p.monitorInterval, q.Len, func() int { return len(results) }, p.stats, p.log)
	mctx, mcancel := context.WithCancel(context.Background())
	defer mcancel()
	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		p.monitor.Run(mctx)
	}()

	g.Go(func() error {
		return p.read(gctx, q)
	})
	for i := 0; i < p.workers; i++ {
		i := i
		g.Go(func() error {
			return p.work(gctx, i, q, results)
		})
	}
	g.Go(func() error {
		return errors.Wrap(p.writer.Run(gctx, results, p.workers), "writing results")
	})

	err := g.Wait()
	mcancel()
	<-monDone
	if ferr := p.finish(err == nil); err == nil {
		err = ferr
	}
	return err
}

func (p *Pipeline) countChanges(file string, n int) {
	p.mu.Lock()
	p.changes[file] += int64(n)
	p.mu.Unlock()
}

// finish fills in the change counts of each file and logs its summary. If
// everything read was written, complete files are checkpointed.
func (p *Pipeline) finish(written bool) error {
	for i := range p.files {
		f := &p.files[i]
		f.sum.Changes = p.changes[f.sum.File]
		p.logSummary(f.sum, f.complete)
		if !written || !f.complete || p.checkpoints == nil {
			continue
		}
		if err := p.checkpoints.Mark(f.sum.File, f.sum); err != nil {
			return errors.Wrapf(err, "marking %s done", f.sum.File)
		}
	}
	return nil
}

func (p *Pipeline) read(ctx context.Context, q *WorkQueue) error {
	for !p.stopped() {
		rc, err := p.src.NextReader()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "getting next file")
		}
		name := rc.Name()
		if p.checkpoints != nil {
			done, err := p.checkpoints.Done(name)
			if err != nil {
				rc.Close()
				return errors.Wrapf(err, "checking checkpoint of %s", name)
			}
			if done {
				p.log.Printf("skipping %s, already processed", name)
				rc.Close()
				continue
			}
		}
		sum, complete, err := p.readFile(ctx, name, rc, q)
		rc.Close()
		if err != nil {
			return err
		}
		p.files = append(p.files, fileResult{sum: sum, complete: complete})
	}
	return q.Stop(ctx, p.workers)
}

// readFile enqueues the pages of one file. Corruption ends the file but not
// the run. complete is false if the reader was stopped part way.
func (p *Pipeline) readFile(ctx context.Context, name string, r io.Reader, q *WorkQueue) (sum dump.Summary, complete bool, err error) {
	dec, err := dump.Open(name, r)
	if err != nil {
		p.stats.Count("files.corrupt", 1, 1)
		pe := &dump.PositionError{File: name, Err: err}
		return dump.Summary{File: name, Err: pe, Error: pe.Error()}, true, nil
	}
	rd := dump.NewReader(dec, append([]dump.Option{dump.OptName(name)}, p.readerOpts...)...)
	for {
		if p.stopped() {
			return rd.Summary(), false, nil
		}
		page, err := rd.Next()
		if err == io.EOF {
			return rd.Summary(), true, nil
		}
		if _, ok := err.(*dump.PositionError); ok {
			p.stats.Count("files.corrupt", 1, 1)
			return rd.Summary(), true, nil
		}
		if err != nil {
			return rd.Summary(), false, errors.Wrapf(err, "reading %s", name)
		}
		if err := q.Put(ctx, page); err != nil {
			return rd.Summary(), false, err
		}
		p.stats.Count("pages.read", 1, 1)
	}
}

func (p *Pipeline) logSummary(sum dump.Summary, complete bool) {
	if lg, ok := p.log.(*wdhistory.LogrusLogger); ok {
		fields := map[string]interface{}{
			"file":      sum.File,
			"pages":     sum.Pages,
			"skipped":   sum.Skipped,
			"revisions": sum.Revisions,
			"changes":   sum.Changes,
			"complete":  complete,
		}
		if sum.Err != nil {
			fields["offset"] = sum.Err.Offset
			fields["line"] = sum.Err.Line
			fields["error"] = sum.Err.Err
		}
		lg.WithFields(fields).Printf("finished file")
		return
	}
	if sum.Err != nil {
		p.log.Printf("finished %s: pages=%d skipped=%d revisions=%d changes=%d complete=%v: %v",
			sum.File, sum.Pages, sum.Skipped, sum.Revisions, sum.Changes, complete, sum.Err)
		return
	}
	p.log.Printf("finished %s: pages=%d skipped=%d revisions=%d changes=%d complete=%v",
		sum.File, sum.Pages, sum.Skipped, sum.Revisions, sum.Changes, complete)
}

// work processes pages until it takes a stop sentinel, then sends its own
// sentinel to the writer.
func (p *Pipeline) work(ctx context.Context, id int, q *WorkQueue, out chan<- *store.Batch) error {
	h, err := p.lookups.Open()
	if err != nil {
		return errors.Wrapf(err, "opening lookups for worker %d", id)
	}
	defer h.Close()
	env := NewEnv(h, p.lessRevisions, p.log)
	env.Revert = p.revert

	for {
		page, err := q.Get(ctx)
		if err != nil {
			return err
		}
		if page == nil {
			break
		}
		start := time.Now()
		b, err := ProcessPage(page, env)
		if err != nil {
			return errors.Wrapf(err, "worker %d", id)
		}
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.countChanges(b.File, b.Changes)
		p.stats.Count("changes", int64(b.Changes), 1)
		p.monitor.Sample(WorkerSample{
			Worker:    id,
			Pages:     1,
			Revisions: int64(b.Revisions),
			Changes:   int64(b.Changes),
			Busy:      time.Since(start),
		})
	}
	select {
	case out <- nil:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
