package dispatch

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by AcquireLock when another instance already
// holds the job class's lock file — the single-instance-per-job-class
// guarantee. The CLI translates this into exit code 2.
var ErrLocked = errors.New("dispatch: another instance is already running this job class")

// Lock is an advisory, exclusive, non-blocking flock on one job class's
// lock file, held for the lifetime of the process that acquired it.
type Lock struct {
	file *os.File
}

// AcquireLock opens (creating if absent) <varDir>/<jobClass>.lock and
// takes a non-blocking exclusive flock on it. The lock is also released
// by the OS on process exit or crash, so Release is a courtesy for the
// graceful-shutdown path rather than a correctness requirement.
func AcquireLock(varDir string, jobClass JobClass) (*Lock, error) {
	if err := os.MkdirAll(varDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(varDir, string(jobClass)+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, ErrLocked
	}
	return &Lock{file: f}, nil
}

// Release unlocks and closes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	return l.file.Close()
}
