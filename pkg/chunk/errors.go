package chunk

import "errors"

var (
	// ErrChunkTruncated means the stream ended inside a header or payload.
	ErrChunkTruncated = errors.New("chunk truncated")
	// ErrChunkTypeMismatch means a nested chunk was not of the expected type.
	ErrChunkTypeMismatch = errors.New("chunk type mismatch")
	// ErrNotFound is returned by Find when the sentinel or end of stream is hit.
	ErrNotFound = errors.New("chunk not found")
)
