package slide

import (
	"errors"
	"fmt"
)

// View opens path, passes the reader to fn and always closes it, including
// when fn panics.
func View(path string, fn func(*Reader) error, opts ...Option) (err error) {
	r, err := Open(path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, r.Close())
	}()
	return fn(r)
}

// Build creates path, passes the writer to fn and closes it. When fn returns
// nil the pyramid is built and the file finalized. When fn fails or panics
// the writer is aborted instead and the file stays unreadable; a panic is
// re-raised after the handle is released.
func Build(path string, height, width, tileSize int, fn func(*Writer) error, opts ...Option) (err error) {
	w, err := Create(path, height, width, tileSize, opts...)
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if done {
			return
		}
		abortErr := w.Abort()
		if p := recover(); p != nil {
			panic(p)
		}
		err = errors.Join(err, abortErr)
	}()

	if err := fn(w); err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	done = true
	return w.Close()
}
