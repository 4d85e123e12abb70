package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/odysseus/odytelem/internal/errors"
)

const (
	ErrInvalidPID = errors.ErrorCode("pid_invalid")
)

// Read returns the process ID stored in the PID file at path. Surrounding
// whitespace, including the trailing newline daemons write, is ignored.
func Read(path string) (int, error) {
	errFactory := errors.New()

	bytes, err := os.ReadFile(path)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrResourceNotFound, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
	if err != nil {
		return 0, errFactory.Wrap(ErrInvalidPID, err)
	}
	if pid <= 0 {
		return 0, errFactory.WithData(ErrInvalidPID, pid)
	}

	return pid, nil
}

// Path returns the location of the agent's own PID file.
func Path(name string) string {
	return filepath.Join(os.TempDir(), name+".pid")
}

// Write writes the current process ID to the named PID file. It fails with
// ErrAlreadyRunning when the file names a live process.
func Write(name string) error {
	errFactory := errors.New()
	path := Path(name)

	if existing, err := Read(path); err == nil {
		process, err := os.FindProcess(existing)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		if existing != os.Getpid() && process.Signal(syscall.Signal(0)) == nil {
			return errFactory.WithData(errors.ErrAlreadyRunning, existing)
		}
	}

	err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the named PID file.
func Remove(name string) error {
	errFactory := errors.New()
	path := Path(name)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}
