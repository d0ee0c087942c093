package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesystemStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemStore(dir, "/uploads/")
	require.NoError(t, err)

	url, err := store.Save(context.Background(), "request letter.pdf", "application/pdf", strings.NewReader("letter body"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/uploads/"))
	require.True(t, strings.HasSuffix(url, "-request_letter.pdf"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, "letter body", string(content))
}

func TestFilesystemStoreDistinctNames(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	first, err := store.Save(context.Background(), "a.pdf", "application/pdf", strings.NewReader("one"))
	require.NoError(t, err)
	second, err := store.Save(context.Background(), "a.pdf", "application/pdf", strings.NewReader("two"))
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
