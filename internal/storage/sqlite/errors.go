package sqlite

import "fmt"

// wrapDBError wraps a raw database/sql error with the operation that
// produced it. Re-created in the teacher's own idiom: the original
// definition was not present in the retrieved sample, only call sites were
// (see DESIGN.md).
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

// wrapDBErrorf is wrapDBError with a formatted operation description.
func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("sqlite: %s: %w", fmt.Sprintf(format, args...), err)
}
