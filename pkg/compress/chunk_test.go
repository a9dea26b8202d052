package compress

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sstable1.db")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	return path
}

func drain(t *testing.T, src *ChunkSource) []*Chunk {
	t.Helper()

	var chunks []*Chunk

	for {
		chunk, err := src.Next()
		if err == io.EOF {
			return chunks
		}

		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
}

func TestChunkSourceNoneSplitsStream(t *testing.T) {
	content := []byte("0123456789")
	path := writeTempFile(t, content)

	src, err := NewChunkSource(path, CodecNone, 4)
	require.NoError(t, err)

	defer func() { _ = src.Close() }()

	chunks := drain(t, src)
	require.Len(t, chunks, 3)

	var got []byte

	for i, chunk := range chunks {
		assert.Equal(t, int32(i+1), chunk.Index)
		got = append(got, chunk.Data...)
	}

	assert.Equal(t, []byte("0123"), chunks[0].Data)
	assert.Equal(t, []byte("89"), chunks[2].Data)
	assert.Equal(t, content, got)
}

func TestChunkSourceChunkSizeOne(t *testing.T) {
	content := []byte("abc")
	path := writeTempFile(t, content)

	src, err := NewChunkSource(path, CodecNone, 1)
	require.NoError(t, err)

	defer func() { _ = src.Close() }()

	chunks := drain(t, src)
	require.Len(t, chunks, 3)

	for i, chunk := range chunks {
		assert.Equal(t, int32(i+1), chunk.Index)
		assert.Equal(t, content[i:i+1], chunk.Data)
	}
}

func TestChunkSourceExactMultiple(t *testing.T) {
	path := writeTempFile(t, []byte("12345678"))

	src, err := NewChunkSource(path, CodecNone, 4)
	require.NoError(t, err)

	defer func() { _ = src.Close() }()

	chunks := drain(t, src)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Data, 4)
	assert.Len(t, chunks[1].Data, 4)
}

func TestChunkSourceEmptyFileEmitsOneChunk(t *testing.T) {
	path := writeTempFile(t, nil)

	src, err := NewChunkSource(path, CodecNone, 4)
	require.NoError(t, err)

	defer func() { _ = src.Close() }()

	chunks := drain(t, src)
	require.Len(t, chunks, 1)
	assert.Equal(t, int32(1), chunks[0].Index)
	assert.Empty(t, chunks[0].Data)
}

func TestChunkSourceZstdRoundTrip(t *testing.T) {
	content := bytes.Repeat([]byte("cassandra sstable data "), 4096)
	path := writeTempFile(t, content)

	src, err := NewChunkSource(path, CodecZstd, 1024)
	require.NoError(t, err)

	defer func() { _ = src.Close() }()

	var compressed []byte

	for i, chunk := range drain(t, src) {
		assert.Equal(t, int32(i+1), chunk.Index)

		if int32(i+1) < src.next-1 {
			assert.Len(t, chunk.Data, 1024)
		}

		compressed = append(compressed, chunk.Data...)
	}

	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)

	defer dec.Close()

	decoded, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestChunkSourceLZOPRoundTrip(t *testing.T) {
	if err := CheckBinary(); err != nil {
		t.Skipf("lzop not installed: %v", err)
	}

	content := bytes.Repeat([]byte("cassandra sstable data "), 4096)
	path := writeTempFile(t, content)

	src, err := NewChunkSource(path, CodecLZOP, 1024)
	require.NoError(t, err)

	defer func() { _ = src.Close() }()

	chunks := drain(t, src)
	require.NotEmpty(t, chunks)

	// lzop output starts with the LZO magic bytes.
	assert.Equal(t, byte(0x89), chunks[0].Data[0])
	assert.Equal(t, []byte("LZO"), chunks[0].Data[1:4])
}

func TestChunkSourceMissingFile(t *testing.T) {
	_, err := NewChunkSource(
		filepath.Join(t.TempDir(), "missing.db"), CodecNone, 4,
	)
	assert.Error(t, err)
}

func TestChunkSourceInvalidChunkSize(t *testing.T) {
	path := writeTempFile(t, []byte("data"))

	_, err := NewChunkSource(path, CodecNone, 0)
	assert.ErrorContains(t, err, "chunk size must be at least 1 byte")
}

func TestChunkSourceTerminalErrorSticks(t *testing.T) {
	path := writeTempFile(t, []byte("data"))

	src, err := NewChunkSource(path, CodecNone, 4)
	require.NoError(t, err)

	src.err = io.ErrClosedPipe

	_, err = src.Next()
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestParseCodec(t *testing.T) {
	tests := []struct {
		in      string
		want    Codec
		wantErr bool
	}{
		{in: "lzop", want: CodecLZOP},
		{in: "zstd", want: CodecZstd},
		{in: "none", want: CodecNone},
		{in: "gzip", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCodec(tt.in)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodecSuffix(t *testing.T) {
	assert.Equal(t, ".lzo", CodecLZOP.Suffix())
	assert.Equal(t, ".zst", CodecZstd.Suffix())
	assert.Equal(t, "", CodecNone.Suffix())
}
