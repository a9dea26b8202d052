package uploader

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethpandaops/snapshotoor/pkg/compress"
	"github.com/ethpandaops/snapshotoor/pkg/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// task uploads one manifest entry end-to-end: chunk source in, multipart
// session out. It is owned by exactly one worker and reduces to an
// outcome; errors never cross the task boundary.
type task struct {
	log     logrus.FieldLogger
	store   storage.Store
	retrier *Retrier
	limiter *rate.Limiter

	source      string
	key         string
	codec       compress.Codec
	chunkSize   int64
	encrypt     bool
	partTimeout time.Duration
}

// outcome is the terminal result of one task.
type outcome struct {
	Source string
	Key    string
	Err    error
}

// run drives the task through initiation, chunk upload and completion.
func (t *task) run(ctx context.Context) outcome {
	out := outcome{Source: t.source, Key: t.key}

	// A task scheduled after the job was already cancelled does no work.
	if err := ctx.Err(); err != nil {
		out.Err = err

		return out
	}

	src, err := compress.NewChunkSource(t.source, t.codec, t.chunkSize)
	if err != nil {
		out.Err = fmt.Errorf("opening chunk source: %w", err)

		return out
	}

	defer func() { _ = src.Close() }()

	sess, err := t.store.Initiate(ctx, t.key, t.encrypt)
	if err != nil {
		out.Err = fmt.Errorf("%w: %v", ErrInitiationFailed, err)

		return out
	}

	t.log.WithField("key", t.key).Info("Initiated multipart upload")

	for {
		// Job-level cancellation between chunks: abort our own session
		// instead of leaving it to remote-side expiry.
		if err := ctx.Err(); err != nil {
			t.cancel(ctx, sess)
			out.Err = err

			return out
		}

		chunk, err := src.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			t.cancel(ctx, sess)
			out.Err = fmt.Errorf("reading chunks of %s: %w", t.source, err)

			return out
		}

		if err := t.uploadChunk(ctx, sess, chunk); err != nil {
			t.cancel(ctx, sess)
			out.Err = fmt.Errorf("%w: part %d: %v", ErrPartUploadFailed, chunk.Index, err)

			return out
		}
	}

	if err := sess.Complete(ctx); err != nil {
		t.cancel(ctx, sess)
		out.Err = fmt.Errorf("%w: %v", ErrCompletionFailed, err)

		return out
	}

	t.log.WithField("key", t.key).Info("Upload completed")

	return out
}

// uploadChunk transmits one chunk through the retrier. Each attempt is
// bounded by the part timeout; a timed-out attempt counts as failed and
// re-enters the retry policy.
func (t *task) uploadChunk(ctx context.Context, sess storage.Session, chunk *compress.Chunk) error {
	return t.retrier.Do(ctx, func(ctx context.Context) error {
		if t.limiter != nil {
			if err := t.limiter.WaitN(ctx, len(chunk.Data)); err != nil {
				return fmt.Errorf("waiting for bandwidth: %w", err)
			}
		}

		pctx, cancel := context.WithTimeout(ctx, t.partTimeout)
		defer cancel()

		return sess.UploadPart(pctx, chunk.Index, chunk.Data)
	})
}

// cancel best-effort aborts the session. Cleanup proceeds even when the
// job context is already cancelled.
func (t *task) cancel(ctx context.Context, sess storage.Session) {
	t.store.Cancel(context.WithoutCancel(ctx), sess)
}
