package uploader

import (
	"errors"
	"io"
)

// ChunkReader reads a stream in blocks of a fixed size.
type ChunkReader struct {
	r      io.Reader
	seeker io.Seeker
	buf    []byte
	offset int64
}

// NewChunkReader returns a ChunkReader yielding chunks of chunkSize bytes.
// When r is also an io.Seeker the reported offset is the stream's own position.
func NewChunkReader(r io.Reader, chunkSize int) *ChunkReader {
	seeker, _ := r.(io.Seeker)
	return &ChunkReader{
		r:      r,
		seeker: seeker,
		buf:    make([]byte, chunkSize),
	}
}

// ChunkSize returns the configured chunk size.
func (c *ChunkReader) ChunkSize() int {
	return len(c.buf)
}

// ReadChunk returns the next chunk and the stream's absolute offset after reading it.
// The chunk is shorter than ChunkSize only at the end of the stream, and is empty
// when the stream is already exhausted. The returned slice is reused by the next call.
func (c *ChunkReader) ReadChunk() ([]byte, int64, error) {
	n, err := io.ReadFull(c.r, c.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, c.offset, err
	}

	if c.seeker != nil {
		pos, err := c.seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, c.offset, err
		}
		c.offset = pos
	} else {
		c.offset += int64(n)
	}

	return c.buf[:n], c.offset, nil
}
