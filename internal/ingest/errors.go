package ingest

import (
	"errors"
	"strings"

	goerrors "gopkg.in/src-d/go-errors.v1"
)

var ErrUnsupported = errors.New("unsupported source format")

// ErrMissingColumns reports an input that lacks required level columns.
var ErrMissingColumns = goerrors.NewKind("%s is missing required columns: %s")

// IsMissingColumns reports whether err, or any error it wraps, is an
// ErrMissingColumns error.
func IsMissingColumns(err error) bool {
	var e *goerrors.Error
	return errors.As(err, &e) && ErrMissingColumns.Is(e)
}

// missingColumns returns the levels absent from have, in schema order.
func missingColumns(levels []string, have map[string]int) []string {
	var missing []string
	for _, level := range levels {
		if _, ok := have[level]; !ok {
			missing = append(missing, level)
		}
	}
	return missing
}

func checkColumns(name string, levels []string, have map[string]int) error {
	if missing := missingColumns(levels, have); len(missing) > 0 {
		return ErrMissingColumns.New(name, strings.Join(missing, ", "))
	}
	return nil
}
