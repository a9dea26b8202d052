package compress

import (
	"fmt"
	"io"
)

// Chunk is one part's worth of compressed bytes. Indices are 1-based and
// contiguous, matching multipart part numbering.
type Chunk struct {
	Index int32
	Data  []byte
}

// ChunkSource exposes the compressed stream of one file as an ordered,
// finite sequence of fixed-size chunks. Only the last chunk may be short.
// At most one chunk is buffered at a time.
type ChunkSource struct {
	rc        io.ReadCloser
	wait      func() error
	chunkSize int64

	next    int32
	emitted bool
	done    bool
	waited  bool
	closed  bool
	err     error
}

// NewChunkSource opens path through the given codec and splits the
// resulting stream into chunks of chunkSize bytes.
func NewChunkSource(path string, codec Codec, chunkSize int64) (*ChunkSource, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be at least 1 byte, got %d", chunkSize)
	}

	rc, wait, err := codec.open(path)
	if err != nil {
		return nil, err
	}

	return &ChunkSource{
		rc:        rc,
		wait:      wait,
		chunkSize: chunkSize,
		next:      1,
	}, nil
}

// Next returns the next chunk of the stream, or io.EOF once the sequence
// is exhausted. A compressor failure is surfaced as a single terminal
// error; no partial chunk is emitted for a failed stream.
func (s *ChunkSource) Next() (*Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}

	if s.done {
		return nil, io.EOF
	}

	buf := make([]byte, s.chunkSize)

	n, err := io.ReadFull(s.rc, buf)
	switch err {
	case nil:
		chunk := &Chunk{Index: s.next, Data: buf}
		s.next++
		s.emitted = true

		return chunk, nil
	case io.EOF, io.ErrUnexpectedEOF:
		s.done = true

		if werr := s.finish(); werr != nil {
			s.err = werr

			return nil, werr
		}

		if n > 0 {
			chunk := &Chunk{Index: s.next, Data: buf[:n]}
			s.next++
			s.emitted = true

			return chunk, nil
		}

		if !s.emitted {
			// Empty stream still needs one part for the remote object
			// to be creatable.
			s.emitted = true

			return &Chunk{Index: 1, Data: []byte{}}, nil
		}

		return nil, io.EOF
	default:
		s.done = true
		s.err = fmt.Errorf("reading compressed stream: %w", err)
		_ = s.finish()

		return nil, s.err
	}
}

// finish reaps the compressor exactly once.
func (s *ChunkSource) finish() error {
	if s.waited {
		return nil
	}

	s.waited = true

	return s.wait()
}

// Close releases the underlying stream. Safe to call after the sequence
// is exhausted; when called mid-sequence it tears the compressor down.
func (s *ChunkSource) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true
	s.done = true
	_ = s.rc.Close()

	return s.finish()
}
