package dao

import "errors"

// Storage sentinels shared by the memory and postgres stores; callers match
// them with errors.Is.
var (
	// ErrNotFound reports a missing request, assessment or admin.
	ErrNotFound = errors.New("dao: not found")
	// ErrInvalidID reports an empty approval or assessment id.
	ErrInvalidID = errors.New("dao: invalid id")
	// ErrNilEntity reports a nil request, commit or assessment.
	ErrNilEntity = errors.New("dao: nil entity")
	// ErrDuplicate reports a Create of an approval id that already exists.
	ErrDuplicate = errors.New("dao: duplicate id")
)
