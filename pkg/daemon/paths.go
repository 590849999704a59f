package daemon

import (
	"fmt"
	"os"
	"path/filepath"
)

// runtimeDir returns the per-user runtime directory for barkeep state,
// preferring $XDG_RUNTIME_DIR and falling back to /tmp.
func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "barkeep")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("barkeep-%d", os.Getuid()))
}

// SocketPath returns the control socket path for an instance.
func SocketPath(instance string) string {
	return filepath.Join(runtimeDir(), instance+".sock")
}

// PIDPath returns the pidfile path for an instance.
func PIDPath(instance string) string {
	return filepath.Join(runtimeDir(), instance+".pid")
}
