// Package uploader is the concurrent, retrying, chunked upload pipeline:
// it fans manifest entries out over a bounded worker pool, drives each
// file through compression, multipart upload and retry, and reduces all
// per-file outcomes to a single job verdict.
package uploader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethpandaops/snapshotoor/pkg/compress"
	"github.com/ethpandaops/snapshotoor/pkg/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config holds the upload pipeline settings.
type Config struct {
	Store       storage.Store
	Codec       compress.Codec
	BasePath    string
	Encrypt     bool
	ChunkSize   int64
	Concurrency int
	Incremental bool

	// Bandwidth caps upload throughput across all workers in bytes per
	// second. Zero means unlimited.
	Bandwidth int64

	Retry       Policy
	PartTimeout time.Duration
}

// Orchestrator runs upload tasks over a bounded worker pool and derives
// the job outcome.
type Orchestrator struct {
	log     logrus.FieldLogger
	cfg     *Config
	limiter *rate.Limiter
}

// New creates an Orchestrator from the given configuration.
func New(log logrus.FieldLogger, cfg *Config) *Orchestrator {
	o := &Orchestrator{
		log: log.WithField("component", "uploader"),
		cfg: cfg,
	}

	if cfg.Bandwidth > 0 {
		burst := int(cfg.ChunkSize)
		if burst < 1 {
			burst = 1
		}

		o.limiter = rate.NewLimiter(rate.Limit(cfg.Bandwidth), burst)
	}

	return o
}

// Run uploads every file in the manifest. Execution order across files
// is unspecified; outcomes are observed in manifest order. The first
// failed outcome cancels the job: in-flight tasks notice at their next
// chunk boundary and abort their own sessions, and the pool is drained
// before the verdict is computed. In incremental mode every
// manifest-listed file is removed afterwards, regardless of per-file
// success. Returns an error if any observed task failed.
func (o *Orchestrator) Run(ctx context.Context, files []string) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	g := &errgroup.Group{}
	g.SetLimit(o.cfg.Concurrency)

	results := make([]chan outcome, len(files))
	for i := range files {
		results[i] = make(chan outcome, 1)
	}

	// Launch from a separate goroutine: g.Go blocks while the pool is
	// full, and the observer below must be able to cancel the run while
	// later manifest entries are still queued. Tasks scheduled after
	// cancellation exit immediately.
	launched := make(chan struct{})

	go func() {
		defer close(launched)

		for i, source := range files {
			ch := results[i]
			t := o.newTask(source)

			g.Go(func() error {
				ch <- t.run(runCtx)

				return nil
			})
		}
	}()

	failed := false

	for i := range results {
		out := <-results[i]
		if out.Err != nil {
			o.log.WithError(out.Err).WithField("file", out.Source).
				Error("Upload failed")

			failed = true

			cancelRun()

			break
		}

		o.log.WithFields(logrus.Fields{
			"file": out.Source,
			"key":  out.Key,
		}).Info("Uploaded file")
	}

	<-launched
	_ = g.Wait()

	if o.cfg.Incremental {
		o.removeSources(files)
	}

	if failed {
		return fmt.Errorf("at least one file failed to upload")
	}

	return nil
}

// newTask builds the task for one manifest entry.
func (o *Orchestrator) newTask(source string) *task {
	log := o.log.WithField("file", source)

	return &task{
		log:         log,
		store:       o.cfg.Store,
		retrier:     NewRetrier(log, o.cfg.Retry),
		limiter:     o.limiter,
		source:      source,
		key:         DestinationKey(o.cfg.BasePath, source, o.cfg.Codec),
		codec:       o.cfg.Codec,
		chunkSize:   o.cfg.ChunkSize,
		encrypt:     o.cfg.Encrypt,
		partTimeout: o.cfg.PartTimeout,
	}
}

// removeSources deletes every manifest-listed file from local disk.
func (o *Orchestrator) removeSources(files []string) {
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			o.log.WithError(err).WithField("file", f).
				Warn("Failed to remove source file")

			continue
		}

		o.log.WithField("file", f).Debug("Removed source file")
	}
}

// DestinationKey maps a source path to its destination object key: the
// base path joined with the source path, plus the codec suffix.
func DestinationKey(basePath, source string, codec compress.Codec) string {
	key := strings.TrimRight(basePath, "/") + "/" +
		strings.TrimLeft(source, "/") + codec.Suffix()

	return strings.TrimLeft(key, "/")
}
