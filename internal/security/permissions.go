package security

import (
	"fmt"
	"os"
	"runtime"
)

const (
	// PermDirectory is for output and bundle directories.
	// rwxr-xr-x (0755): archives are shared artifacts, readable by everyone.
	PermDirectory os.FileMode = 0755

	// PermArchive is for produced zip archives.
	// rw-r--r-- (0644): owner can read/write, group and others can read.
	PermArchive os.FileMode = 0644

	// PermLogFile is for log files.
	// rw-r----- (0640): owner can read/write, group can read, others have no access.
	PermLogFile os.FileMode = 0640

	// PermDBFile is for the publish history database.
	// rw-r----- (0640)
	PermDBFile os.FileMode = 0640
)

// Capabilities describes what the host can do to produced files.
// It is injected into the publish pipeline so tests can simulate hosts
// other than the one they run on.
type Capabilities struct {
	// CanSetExecutable reports whether UNIX executable bits can be set
	// on files. False on Windows.
	CanSetExecutable bool
}

// HostCapabilities returns the capabilities of the running host.
func HostCapabilities() Capabilities {
	return Capabilities{
		CanSetExecutable: runtime.GOOS != "windows",
	}
}

// IsExecutable reports whether any execute bit is set.
func IsExecutable(perm os.FileMode) bool {
	return perm&0111 != 0
}

// EnsureExecutable checks that a file carries an execute bit.
func EnsureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if !IsExecutable(info.Mode().Perm()) {
		return fmt.Errorf("file %s is not executable (%04o)", path, info.Mode().Perm())
	}
	return nil
}

// IsWorldWritable checks if a file is writable by others.
// Returns true if the file has world-writable permissions (e.g., 0666, 0777).
func IsWorldWritable(perm os.FileMode) bool {
	return perm&0002 != 0
}

// RejectWorldWritable fails for files any local user could rewrite. Used for
// configuration that names commands to execute.
func RejectWorldWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	perm := info.Mode().Perm()
	if IsWorldWritable(perm) {
		return fmt.Errorf("file %s is world-writable (%04o), which is a serious security risk", path, perm)
	}
	return nil
}

// CreateSecureDir creates a directory (and parents) with the given
// permissions, bypassing the umask.
func CreateSecureDir(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Ensure permissions are set correctly (MkdirAll may use umask)
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set directory permissions: %w", err)
	}

	return nil
}
