package tree

import (
	"errors"

	goerrors "gopkg.in/src-d/go-errors.v1"
)

var (
	ErrInvalidSchema  = errors.New("invalid level schema")
	ErrSealed         = errors.New("tree is sealed")
	ErrSchemaConflict = errors.New("builders use different schemas")
)

// ErrSchemaMismatch is returned when a record lacks one or more level fields.
// No node is created for such a record.
var ErrSchemaMismatch = goerrors.NewKind("record %d is missing level fields: %s")

// IsSchemaMismatch reports whether err, or any error it wraps, is an
// ErrSchemaMismatch error.
func IsSchemaMismatch(err error) bool {
	var e *goerrors.Error
	return errors.As(err, &e) && ErrSchemaMismatch.Is(e)
}
