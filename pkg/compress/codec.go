// Package compress turns local files into streaming compressed chunk
// sequences suitable for multipart upload.
package compress

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Codec selects the compression applied to a file before upload.
type Codec string

const (
	// CodecLZOP pipes the file through the external lzop binary.
	CodecLZOP Codec = "lzop"

	// CodecZstd compresses in-process with zstd.
	CodecZstd Codec = "zstd"

	// CodecNone uploads the file bytes unchanged.
	CodecNone Codec = "none"
)

// lzopBinary is the external compressor consumed via its stdout.
const lzopBinary = "lzop"

// ParseCodec validates a codec name from configuration.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case CodecLZOP, CodecZstd, CodecNone:
		return Codec(s), nil
	default:
		return "", fmt.Errorf("unknown codec %q (use %q, %q or %q)",
			s, CodecLZOP, CodecZstd, CodecNone)
	}
}

// Suffix returns the suffix appended to destination keys for this codec.
func (c Codec) Suffix() string {
	switch c {
	case CodecLZOP:
		return ".lzo"
	case CodecZstd:
		return ".zst"
	default:
		return ""
	}
}

// CheckBinary verifies that the external lzop binary is on PATH.
func CheckBinary() error {
	if _, err := exec.LookPath(lzopBinary); err != nil {
		return fmt.Errorf("%s binary not found: %w", lzopBinary, err)
	}

	return nil
}

// open returns a reader over the compressed bytes of path and a wait
// function that must be called after the reader is drained. The wait
// function surfaces compressor failures, e.g. a non-zero lzop exit.
func (c Codec) open(path string) (io.ReadCloser, func() error, error) {
	switch c {
	case CodecLZOP:
		return openLZOP(path)
	case CodecZstd:
		return openZstd(path)
	case CodecNone:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", path, err)
		}

		return f, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown codec %q", c)
	}
}

// openLZOP spawns lzop and streams its stdout.
func openLZOP(path string) (io.ReadCloser, func() error, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}

	var stderr strings.Builder

	cmd := exec.Command(lzopBinary, "--stdout", path)
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s stdout pipe: %w", lzopBinary, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting %s: %w", lzopBinary, err)
	}

	wait := func() error {
		if err := cmd.Wait(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return fmt.Errorf("%s failed: %w: %s", lzopBinary, err, msg)
			}

			return fmt.Errorf("%s failed: %w", lzopBinary, err)
		}

		return nil
	}

	return stdout, wait, nil
}

// openZstd compresses the file in-process, streaming through a pipe so
// that peak memory stays bounded by the chunk size.
func openZstd(path string) (io.ReadCloser, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}

	pr, pw := io.Pipe()
	errCh := make(chan error, 1)

	go func() {
		defer func() { _ = f.Close() }()

		zw, err := zstd.NewWriter(pw)
		if err == nil {
			if _, cErr := io.Copy(zw, f); cErr != nil {
				err = cErr
			}

			if cErr := zw.Close(); err == nil && cErr != nil {
				err = cErr
			}
		}

		if err != nil {
			err = fmt.Errorf("zstd compression of %s: %w", path, err)
		}

		errCh <- err
		_ = pw.CloseWithError(err)
	}()

	wait := func() error { return <-errCh }

	return pr, wait, nil
}
