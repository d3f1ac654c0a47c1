package fs_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsstorage "github.com/recordsdesk/custody/pkg/custody/storage/fs"
)

func TestFSStore(t *testing.T) {
	store, err := fsstorage.New(fsstorage.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	testKey := "A/EV-0001/id/form.pdf"
	testData := "signed transfer form"

	size, err := store.Upload(ctx, testKey, strings.NewReader(testData))
	require.NoError(t, err)
	assert.Equal(t, int64(len(testData)), size)

	reader, err := store.Download(ctx, testKey)
	require.NoError(t, err)
	defer reader.Close()
	downloaded, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, testData, string(downloaded))

	require.NoError(t, store.Delete(ctx, testKey))
	_, err = store.Download(ctx, testKey)
	assert.Error(t, err)

	// Deleting a missing blob is not an error.
	assert.NoError(t, store.Delete(ctx, "no/such/key"))
}

func TestFSStoreRequiresBaseDir(t *testing.T) {
	_, err := fsstorage.New(fsstorage.Config{})
	assert.Error(t, err)
}

func TestFSStoreDownloadURL(t *testing.T) {
	store, err := fsstorage.New(fsstorage.Config{BaseDir: t.TempDir(), URLPrefix: "https://files.example.com"})
	require.NoError(t, err)

	url, err := store.GetDownloadURL(context.Background(), "A/EV-0001/id/form.pdf", "form.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/A/EV-0001/id/form.pdf", url)
}
