package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDatabase(t *testing.T) {
	dir := t.TempDir()
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: DatabaseFile},
		{name: "file", in: filepath.Join(dir, "my.db"), want: filepath.Join(dir, "my.db")},
		{name: "existing directory", in: dir, want: filepath.Join(dir, DatabaseFile)},
		{name: "trailing slash", in: filepath.Join(dir, "new") + "/", want: filepath.Join(dir, "new", DatabaseFile)},
		{name: "home", in: "~/chats/chat.db", want: filepath.Join(home, "chats", "chat.db")},
		{name: "unclean", in: dir + "/./x/../my.db", want: filepath.Join(dir, "my.db")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ResolveDatabase(tt.in))
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.Equal(t, home, ExpandHome("~"))
	require.Equal(t, filepath.Join(home, "a", "b"), ExpandHome("~/a/b"))
	require.Equal(t, "~other/x", ExpandHome("~other/x"))
	require.Equal(t, "/abs", ExpandHome("/abs"))
}
