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

// Package ingest wires a source, the pipeline and a store together into one
// run over a set of history dumps.
package ingest

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pilosa/wdhistory"
	"github.com/pilosa/wdhistory/aws/s3"
	"github.com/pilosa/wdhistory/checkpoint"
	"github.com/pilosa/wdhistory/dump"
	"github.com/pilosa/wdhistory/file"
	"github.com/pilosa/wdhistory/kafka"
	"github.com/pilosa/wdhistory/lookup"
	"github.com/pilosa/wdhistory/pipeline"
	"github.com/pilosa/wdhistory/promstat"
	"github.com/pilosa/wdhistory/revert"
	"github.com/pilosa/wdhistory/store"
	"github.com/pilosa/wdhistory/termstat"
	"github.com/pkg/errors"
)

// Main holds the configuration of an ingest run.
type Main struct {
	Path        string `help:"Dump archive, or directory of archives, to read."`
	S3Bucket    string `help:"Read archives from this S3 bucket instead of Path."`
	S3Prefix    string `help:"Only objects in the bucket matching this prefix will be used."`
	S3Region    string `help:"AWS region of the bucket."`
	SQLitePath  string `help:"SQLite database to write to."`
	PostgresDSN string `help:"Postgres connection string. Overrides SQLitePath."`
	MaxConns    int    `help:"Maximum Postgres connections."`

	Workers       int           `help:"Number of workers processing pages."`
	QueueSize     int           `help:"Number of pages buffered between the reader and the workers."`
	BatchSize     int           `help:"Revisions buffered per class before writing."`
	FlushInterval time.Duration `help:"Longest time a class buffers rows before writing."`
	PollInterval  time.Duration `help:"Flush everything when no result arrives for this long."`
	LessRevisions int           `help:"Entities with fewer revisions go to the _less tables."`
	RevertWindow  time.Duration `help:"How long after an edit a restoring edit still counts as a revert."`
	Namespace     string        `help:"XML namespace of the dump export format."`
	EntityPrefix  string        `help:"Only pages whose title has this prefix are processed."`

	LookupCache   string   `help:"Bolt file with property labels, entity info and subclass closure."`
	CheckpointDir string   `help:"Directory remembering processed files. Empty disables resuming."`
	KafkaHosts    []string `help:"Kafka brokers to mirror change rows to."`
	KafkaTopic    string   `help:"Kafka topic for mirrored change rows."`

	LogPath     string        `help:"Log to this file instead of stderr."`
	JSONLogs    bool          `help:"Log JSON objects instead of text."`
	Verbose     bool          `help:"Enable debug logging."`
	MetricsAddr string        `help:"Serve Prometheus metrics on this address."`
	TermStats   bool          `help:"Print stats to the terminal."`
	Monitor     time.Duration `help:"Interval between progress reports."`

	Stderr io.Writer `flag:"-"`

	log       *wdhistory.LogrusLogger
	pipeline  *pipeline.Pipeline
	writer    *store.ResultWriter
	summaries []dump.Summary
}

// NewMain returns a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		Path:          "dumps",
		S3Region:      "us-east-1",
		SQLitePath:    "wdhistory.db",
		MaxConns:      8,
		Workers:       pipeline.DefaultWorkers,
		QueueSize:     pipeline.DefaultQueueSize,
		BatchSize:     store.DefaultBatchSize,
		FlushInterval: store.DefaultFlushInterval,
		PollInterval:  store.DefaultPollInterval,
		LessRevisions: pipeline.DefaultLessRevisions,
		RevertWindow:  revert.DefaultWindow,
		Namespace:     dump.Namespace,
		EntityPrefix:  "Q",
		KafkaTopic:    "wdhistory-changes",
		Monitor:       pipeline.DefaultMonitorInterval,
		Stderr:        os.Stderr,
	}
}

// Summaries returns the per-file summaries of the last run.
func (m *Main) Summaries() []dump.Summary { return m.summaries }

// Written returns the number of rows written per table by the last run.
func (m *Main) Written() map[string]int64 {
	if m.writer == nil {
		return nil
	}
	return m.writer.Written()
}

// Run runs the ingest until every file is processed. The first SIGINT or
// SIGTERM stops reading and lets queued pages finish; a second aborts.
func (m *Main) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	stopped := make(chan struct{})
	defer close(stopped)
	ready := make(chan struct{})
	go func() {
		select {
		case <-ready:
		case <-stopped:
			return
		}
		for n := 0; ; n++ {
			select {
			case sig := <-sigs:
				if n == 0 {
					m.log.Printf("received %v, finishing queued pages", sig)
					m.pipeline.Stop()
					continue
				}
				m.log.Printf("received %v again, aborting", sig)
				cancel()
				return
			case <-stopped:
				return
			}
		}
	}()
	return m.run(ctx, ready)
}

func (m *Main) run(ctx context.Context, ready chan<- struct{}) (err error) {
	out := m.Stderr
	if out == nil {
		out = os.Stderr
	}
	if m.LogPath != "" {
		f, err := os.OpenFile(m.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		defer f.Close()
		out = f
	}
	m.log = wdhistory.NewLogrusLogger(out, m.Verbose, m.JSONLogs)

	var stats wdhistory.Statter = wdhistory.NopStatter{}
	switch {
	case m.MetricsAddr != "":
		ps := promstat.NewStatter()
		ln, err := net.Listen("tcp", m.MetricsAddr)
		if err != nil {
			return errors.Wrap(err, "listening for metrics")
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", ps.Handler())
		srv := &http.Server{Handler: mux}
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				m.log.Printf("serving metrics: %v", err)
			}
		}()
		defer srv.Close()
		m.log.Printf("serving metrics on %s", ln.Addr())
		stats = ps
	case m.TermStats:
		ts := termstat.NewCollector(out, 2*time.Second)
		defer ts.Stop()
		stats = ts
	}

	src, err := m.openSource()
	if err != nil {
		return err
	}

	st, err := m.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing store")
		}
	}()
	if err := st.EnsureSchema(ctx); err != nil {
		return errors.Wrap(err, "creating tables")
	}

	wopts := []store.WriterOption{
		store.OptWriterBatchSize(m.BatchSize),
		store.OptWriterFlushInterval(m.FlushInterval),
		store.OptWriterPollInterval(m.PollInterval),
		store.OptWriterLogger(m.log),
		store.OptWriterStatter(stats),
	}
	if len(m.KafkaHosts) > 0 {
		pub, err := kafka.NewPublisher(m.KafkaHosts, m.KafkaTopic)
		if err != nil {
			return errors.Wrap(err, "connecting to kafka")
		}
		defer pub.Close()
		wopts = append(wopts, store.OptWriterMirror(pub))
	}
	m.writer, err = store.NewResultWriter(st, wopts...)
	if err != nil {
		return errors.Wrap(err, "setting up writer")
	}

	popts := []pipeline.Option{
		pipeline.OptWorkers(m.Workers),
		pipeline.OptQueueSize(m.QueueSize),
		pipeline.OptLessRevisions(m.LessRevisions),
		pipeline.OptRevertWindow(m.RevertWindow),
		pipeline.OptMonitorInterval(m.Monitor),
		pipeline.OptReaderOptions(dump.OptNamespace(m.Namespace), dump.OptPrefix(m.EntityPrefix)),
		pipeline.OptLogger(m.log),
		pipeline.OptStatter(stats),
	}
	if m.LookupCache != "" {
		if _, err := os.Stat(m.LookupCache); err != nil {
			return errors.Wrap(err, "checking lookup cache")
		}
		popts = append(popts, pipeline.OptLookups(lookup.BoltOpener{Path: m.LookupCache}))
	}
	var cp *checkpoint.Store
	if m.CheckpointDir != "" {
		cp, err = checkpoint.Open(m.CheckpointDir)
		if err != nil {
			return errors.Wrap(err, "opening checkpoints")
		}
		defer cp.Close()
		popts = append(popts, pipeline.OptCheckpoints(cp))
	}
	m.pipeline, err = pipeline.NewPipeline(src, m.writer, popts...)
	if err != nil {
		return errors.Wrap(err, "setting up pipeline")
	}
	if ready != nil {
		close(ready)
	}

	start := time.Now()
	err = m.pipeline.Run(ctx)
	m.summaries = m.pipeline.Summaries()
	if err != nil {
		return errors.Wrap(err, "running pipeline")
	}
	mon := m.pipeline.Monitor()
	m.log.Printf("done in %v: pages=%d revisions=%d changes=%d", time.Since(start), mon.Pages, mon.Revisions, mon.Changes)
	if cp != nil {
		failed, err := cp.Failed()
		if err != nil {
			return errors.Wrap(err, "listing failed files")
		}
		for name, sum := range failed {
			m.log.Printf("%s was abandoned after %d pages: %s", name, sum.Pages, sum.Error)
		}
	}
	return nil
}

func (m *Main) openSource() (wdhistory.RawSource, error) {
	if m.S3Bucket != "" {
		src, err := s3.NewRawSource(m.S3Bucket, s3.OptSrcPrefix(m.S3Prefix), s3.OptSrcRegion(m.S3Region))
		if err != nil {
			return nil, errors.Wrap(err, "getting s3 source")
		}
		m.log.Printf("reading %d objects from %s", len(src.Keys()), m.S3Bucket)
		return src, nil
	}
	src, err := file.NewRawSource(m.Path)
	if err != nil {
		return nil, errors.Wrap(err, "getting file source")
	}
	m.log.Printf("reading %d files from %s", len(src.Files()), m.Path)
	return src, nil
}

func (m *Main) openStore(ctx context.Context) (store.Store, error) {
	if m.PostgresDSN != "" {
		st, err := store.NewPostgresStore(ctx, m.PostgresDSN, int32(m.MaxConns))
		if err != nil {
			return nil, errors.Wrap(err, "connecting to postgres")
		}
		return st, nil
	}
	st, err := store.NewSQLiteStore(m.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite")
	}
	return st, nil
}
