package index

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// LockName is the lock file created next to the index while a caller
// checks or builds it.
const LockName = "index_build.lock"

// LockPath is the lock guarding the index at prefix. It is keyed on the
// prefix's parent directory.
func LockPath(prefix string) string {
	return filepath.Join(filepath.Dir(prefix), LockName)
}

// Lock is an exclusive flock(2) held on a lock file. The file exists only
// while some caller holds or waits on it.
type Lock struct {
	path string
	f    *os.File
}

// AcquireLock blocks until the exclusive lock at path is held.
func AcquireLock(path string) (*Lock, error) {
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "opening lock file %s", path)
		}
		if err := flock(f, unix.LOCK_EX); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "locking %s", path)
		}
		// The previous holder unlinks the file on release, so the inode we
		// locked may no longer be the one at path.
		same, err := sameFile(f, path)
		if err != nil {
			f.Close()
			return nil, err
		}
		if same {
			return &Lock{path: path, f: f}, nil
		}
		f.Close()
	}
}

// Release removes the lock file and drops the lock. The file is removed
// first so that waiters blocked on the old inode retry on a fresh one.
func (l *Lock) Release() error {
	rmErr := os.Remove(l.path)
	unlockErr := flock(l.f, unix.LOCK_UN)
	closeErr := l.f.Close()
	switch {
	case rmErr != nil && !os.IsNotExist(rmErr):
		return errors.Wrapf(rmErr, "removing lock file %s", l.path)
	case unlockErr != nil:
		return errors.Wrapf(unlockErr, "unlocking %s", l.path)
	case closeErr != nil:
		return errors.Wrapf(closeErr, "closing %s", l.path)
	}
	return nil
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

func sameFile(f *os.File, path string) (bool, error) {
	var held, onDisk unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &held); err != nil {
		return false, errors.Wrapf(err, "stat %s", path)
	}
	if err := unix.Stat(path, &onDisk); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat %s", path)
	}
	return held.Dev == onDisk.Dev && held.Ino == onDisk.Ino, nil
}
