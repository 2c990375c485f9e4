package runlock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
)

// ErrHeld means another run owns the lock file.
var ErrHeld = errors.New("lock file exists, another run is active")

// Acquire creates the exclusive marker file with this process's pid. It is
// the sole cross-run concurrency mechanism: at most one run may be active,
// and every piece of durable state assumes single-writer access.
func Acquire(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrHeld
		}
		return fmt.Errorf("create lock file: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(os.Getpid()))
	return err
}

// Release removes the marker. Called unconditionally when the run ends,
// including on failure.
func Release(path string) {
	_ = os.Remove(path)
}
