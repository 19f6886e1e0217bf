package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/bmsmon/internal/errors"
)

const prefix = "bmsmon"

// File guards against two daemons reading the same bus.
type File struct {
	path string
}

// New returns a PID file at dir/name.
func New(dir, name string) *File {
	return &File{path: filepath.Join(dir, name)}
}

// ForInterface returns the PID file for the daemon bound to iface, placed in
// the system temp directory.
func ForInterface(iface string) *File {
	name := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(iface)
	return New(os.TempDir(), prefix+"-"+strings.TrimLeft(name, "_.")+".pid")
}

func (f *File) Path() string {
	return f.path
}

// Write writes the current process ID to the PID file. It fails with
// ErrAlreadyRunning if the file names another live process.
func (f *File) Write() error {
	errFactory := errors.New()
	self := os.Getpid()

	if bytes, err := os.ReadFile(f.path); err == nil {
		// PID file exists, check if the process is running. A file naming us
		// is left over from an earlier run that got the same PID (container init).
		if pid, err := strconv.Atoi(strings.TrimSpace(string(bytes))); err == nil && pid != self && alive(pid) {
			return errFactory.WithData(errors.ErrAlreadyRunning, pid)
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	err := os.WriteFile(f.path, []byte(strconv.Itoa(self)), 0o600)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

// Remove removes the PID file.
func (f *File) Remove() error {
	errFactory := errors.New()

	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(f.path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}
