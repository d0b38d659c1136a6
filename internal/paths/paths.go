// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// DatabaseFile is the file name used when a directory is given as the
// database location.
const DatabaseFile = "chat.db"

// ResolveDatabase resolves the SQLite database path from user input.
// It accepts either the database file or a directory holding it.
//
// Input normalization:
//   - "~/notes/chat.db" -> "$HOME/notes/chat.db"
//   - "/path/to/dir" (an existing directory) -> "/path/to/dir/chat.db"
//   - "/path/to/dir/" -> "/path/to/dir/chat.db"
//   - "" -> "./chat.db"
func ResolveDatabase(path string) string {
	if path == "" {
		return DatabaseFile
	}
	trailing := strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator))
	path = filepath.Clean(ExpandHome(path))

	if trailing {
		return filepath.Join(path, DatabaseFile)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, DatabaseFile)
	}
	return path
}

// ExpandHome replaces a leading "~" with the user's home directory. The path
// is returned unchanged if the home directory is unavailable.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
