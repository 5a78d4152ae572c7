package chunk

import (
	"errors"
	"fmt"
	"io"
)

// Node is one chunk visited by Walk.
type Node struct {
	Header
	Offset int64 // absolute offset of the header
	Depth  int
}

// Walk visits every chunk from the reader's position to end (or to the read
// limit when end is negative) depth first. Container chunks are descended into;
// every other payload is skipped by length. A STRUCT inside a container is
// never descended into even if its bytes happen to parse as headers.
func (r *Reader) Walk(end int64, fn func(Node) error) error {
	if end < 0 {
		end = r.limit
	}
	return r.walk(end, 0, fn)
}

func (r *Reader) walk(end int64, depth int, fn func(Node) error) error {
	for r.Pos() < end {
		off := r.Pos()
		h, err := r.ReadHeader()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		payloadEnd := r.Pos() + int64(h.Length)
		if payloadEnd > end {
			return fmt.Errorf("%w: %s at offset %d overruns its parent", ErrChunkTruncated, h.Type, off)
		}
		if err := fn(Node{Header: h, Offset: off, Depth: depth}); err != nil {
			return err
		}
		if h.Type.Container() {
			if err := r.walk(payloadEnd, depth+1, fn); err != nil {
				return err
			}
		}
		if err := r.SeekTo(payloadEnd); err != nil {
			return err
		}
	}
	return nil
}
