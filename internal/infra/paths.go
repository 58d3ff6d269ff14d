package infra

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "auctiond"

// WorkspaceDir returns the root directory for runtime data. Priority:
// AUCTIOND_HOME, a local _workspace directory (dev mode), then the
// OS data directory.
func WorkspaceDir() string {
	if dir := os.Getenv("AUCTIOND_HOME"); dir != "" {
		return dir
	}
	if _, err := os.Stat("_workspace"); err == nil {
		return "_workspace"
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "_workspace"
	}
	return filepath.Join(home, ".local", "share", appName)
}

// EnsureDir creates the directory if it doesn't exist (0755).
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// CreateLockFile guards against two node processes sharing one workspace:
// a second writer would corrupt the WAL. Returns an unlock function.
func CreateLockFile(workDir string) (func(), error) {
	lockPath := filepath.Join(workDir, "instance.lock")

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("another instance is already running (lock file exists: %s)", lockPath)
		}
		return nil, err
	}
	fmt.Fprintf(f, "%d", os.Getpid())
	f.Close()

	return func() { os.Remove(lockPath) }, nil
}

// ResolveConfigPath finds config.yaml: current directory first, then the
// workspace.
func ResolveConfigPath() string {
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return filepath.Join(WorkspaceDir(), "config.yaml")
}
