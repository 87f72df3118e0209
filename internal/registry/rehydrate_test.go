package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSession(t *testing.T, root, id string, meta *Metadata, images ...string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	if meta != nil {
		raw, err := json.Marshal(meta)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), raw, 0o644))
	}
	for _, name := range images {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("jpeg"), 0o644))
	}
}

func TestImportReadsSessionsAndImagesInOrder(t *testing.T) {
	root := t.TempDir()
	created := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeSession(t, root, "session-a", &Metadata{
		OwnerName: "Alice",
		Timestamp: created,
		Consumed:  true,
	}, "camera_1000.jpg", "camera_2000.jpg", "notes.txt")

	records, err := Import(root)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "session-a", rec.ID)
	assert.Equal(t, "Alice", rec.OwnerName)
	assert.True(t, rec.Consumed)
	assert.True(t, rec.CreatedAt.Equal(created))

	require.Len(t, rec.Images, 2)
	assert.Contains(t, rec.Images[0].Locator, "camera_1000.jpg")
	assert.Contains(t, rec.Images[1].Locator, "camera_2000.jpg")
	assert.Equal(t, time.UnixMilli(1000), rec.Images[0].CapturedAt)
}

func TestImportSkipsCorruptMetadata(t *testing.T) {
	root := t.TempDir()

	writeSession(t, root, "good", &Metadata{OwnerName: "Alice", Timestamp: time.Now()}, "camera_1.jpg")

	badDir := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, MetadataFile), []byte("{not json"), 0o644))

	records, err := Import(root)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "good", records[0].ID)
}

func TestImportWithoutMetadataUsesEmptyOwner(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "anon", nil, "camera_5.jpg")

	records, err := Import(root)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Empty(t, rec.OwnerName)
	assert.False(t, rec.Consumed)
	assert.False(t, rec.CreatedAt.IsZero())
	require.Len(t, rec.Images, 1)
}

func TestImportMissingRootIsEmpty(t *testing.T) {
	records, err := Import(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, records)
}
