package logging

import (
	"os"
	"path/filepath"
)

// appDirName is the per-user state directory name.
const appDirName = ".amanrag"

// DefaultHomeDir returns ~/.amanrag, falling back to the temp directory when
// the home directory is unavailable.
func DefaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName)
	}
	return filepath.Join(home, appDirName)
}

// DefaultLogDir returns the default log directory (~/.amanrag/logs/).
func DefaultLogDir() string {
	return filepath.Join(DefaultHomeDir(), "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
