package asset

import (
	"errors"
	"fmt"

	"github.com/samcharles93/strata/pkg/plugin"
)

// ErrCorruptAsset means a record could not be decoded: its extension data
// was truncated or a plugin rejected its own payload.
var ErrCorruptAsset = plugin.ErrCorruptAsset

// ErrNoGeometry means an instance or uninstance was requested on a geometry
// that holds neither representation.
var ErrNoGeometry = errors.New("geometry has no vertex data")

// RecordError reports the failure to load one record inside a larger file.
// Loaders that recover at record granularity collect these and continue.
type RecordError struct {
	Kind   string
	Index  int
	Offset int64
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %d at offset %d: %v", e.Kind, e.Index, e.Offset, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
