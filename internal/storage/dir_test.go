package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirProvider_UploadListDownload(t *testing.T) {
	ctx := context.Background()
	p, err := NewDirProvider(filepath.Join(t.TempDir(), "remote"))
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "session.csv")
	require.NoError(t, os.WriteFile(local, []byte("timestamp,pitch\n1,2\n"), 0o644))

	id, err := p.Upload(ctx, local, "sessions")
	require.NoError(t, err)
	assert.Equal(t, "sessions/session.csv", id)

	files, err := p.List(ctx, "sessions", CSVMimeType)
	require.NoError(t, err)
	assert.Equal(t, []RemoteFile{{ID: "sessions/session.csv", Name: "session.csv"}}, files)

	dst := filepath.Join(t.TempDir(), "downloaded", "session.csv")
	require.NoError(t, p.Download(ctx, id, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,pitch\n1,2\n", string(data))
}

func TestDirProvider_ListFiltersByMimeType(t *testing.T) {
	root := t.TempDir()
	p, err := NewDirProvider(root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.csv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "B.CSV"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir.csv"), 0o755))

	files, err := p.List(context.Background(), "", CSVMimeType)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"a.csv", "B.CSV"}, names)
}

func TestDirProvider_FolderCannotEscapeRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "remote")
	p, err := NewDirProvider(root)
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))

	id, err := p.Upload(context.Background(), local, "../../outside")
	require.NoError(t, err)
	assert.Equal(t, "outside/x.csv", id)
	_, err = os.Stat(filepath.Join(root, "outside", "x.csv"))
	assert.NoError(t, err)
}

func TestDirProvider_ListMissingFolder(t *testing.T) {
	p, err := NewDirProvider(t.TempDir())
	require.NoError(t, err)

	_, err = p.List(context.Background(), "nope", CSVMimeType)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDirProvider_CancelledContext(t *testing.T) {
	p, err := NewDirProvider(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.List(ctx, "", CSVMimeType)
	assert.ErrorIs(t, err, context.Canceled)
}
