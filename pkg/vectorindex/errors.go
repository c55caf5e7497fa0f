package vectorindex

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's dimensionality
	// does not match the index it is being inserted into or searched
	// against.
	ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")
	// ErrFrozenParameterMismatch is returned when reopening a
	// persisted index with an m different from the one it was created
	// with.
	ErrFrozenParameterMismatch = errors.New("vectorindex: frozen parameter mismatch")
	// ErrInvalidDimension is returned for a non-positive dim.
	ErrInvalidDimension = errors.New("vectorindex: invalid dimension")
	// ErrEmptyID is returned when an entry has no id.
	ErrEmptyID = errors.New("vectorindex: empty id")
	// ErrDuplicateID is returned when inserting an id already present.
	ErrDuplicateID = errors.New("vectorindex: duplicate id")
	// ErrMaxElements is returned when the index is at capacity.
	ErrMaxElements = errors.New("vectorindex: max elements reached")
	// ErrManifestMismatch is returned by ModelManifest.Verify when a
	// listed file's hash does not match.
	ErrManifestMismatch = errors.New("vectorindex: manifest hash mismatch")
)
