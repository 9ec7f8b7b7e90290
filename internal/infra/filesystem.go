package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// privateDirMode is used for the data directory, which holds the store key.
const privateDirMode = 0700

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return expandHomeWith(path, home)
}

func expandHomeWith(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		return home
	}
	return path
}

// EnsurePrivateDir creates dir if needed and strips group and other
// permissions from an existing one.
func EnsurePrivateDir(dir string) error {
	if err := os.MkdirAll(dir, privateDirMode); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(dir, info.Mode().Perm()&privateDirMode); err != nil {
			return fmt.Errorf("failed to restrict %s: %w", dir, err)
		}
	}
	return nil
}
