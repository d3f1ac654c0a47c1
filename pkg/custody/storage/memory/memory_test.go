package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memorystorage "github.com/recordsdesk/custody/pkg/custody/storage/memory"
)

func TestMemoryStore(t *testing.T) {
	store := memorystorage.New()
	ctx := context.Background()
	testKey := "A/EV-0001/id/intake.jpg"
	testData := "Hello, World! This is test data."

	t.Run("Upload", func(t *testing.T) {
		size, err := store.Upload(ctx, testKey, strings.NewReader(testData))
		assert.NoError(t, err)
		assert.Equal(t, int64(len(testData)), size)
	})

	t.Run("Download", func(t *testing.T) {
		reader, err := store.Download(ctx, testKey)
		require.NoError(t, err)
		defer reader.Close()

		downloaded, err := io.ReadAll(reader)
		assert.NoError(t, err)
		assert.Equal(t, testData, string(downloaded))
	})

	t.Run("DownloadMissing", func(t *testing.T) {
		_, err := store.Download(ctx, "no/such/key")
		assert.Error(t, err)
	})

	t.Run("GetDownloadURL", func(t *testing.T) {
		url, err := store.GetDownloadURL(ctx, testKey, "intake.jpg")
		assert.NoError(t, err)
		assert.Empty(t, url)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, testKey))
		_, err := store.Download(ctx, testKey)
		assert.Error(t, err)
	})
}
