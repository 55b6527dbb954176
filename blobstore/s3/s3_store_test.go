package s3

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationS3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("S3_BUCKET not set")
	}
	ctx := context.Background()

	store, err := New(ctx, bucket, WithPrefix(fmt.Sprintf("indexmerge-test-%d", time.Now().UnixNano())))
	require.NoError(t, err)

	data := make([]byte, 1<<20)
	_, _ = rand.Read(data)

	w, err := store.Create(ctx, "segment_0/attribute/title/data")
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	d := blobstore.NewDir(store, "segment_0")
	names, err := d.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"attribute/title/data"}, names)

	got, err := d.ReadFile(ctx, "attribute/title/data")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, d.RemoveAll(ctx))
	_, err = store.Open(ctx, "segment_0/attribute/title/data")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
